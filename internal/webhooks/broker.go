package webhooks

import "sync"

// DeliveryEvent is one delivery outcome, fanned out to stream subscribers.
type DeliveryEvent struct {
    SubscriptionID string `json:"subscriptionId"`
    EventType      string `json:"eventType"`
    EventID        string `json:"eventId"`
    AttemptNumber  int    `json:"attemptNumber"`
    Outcome        string `json:"outcome"` // delivered, retry, dropped, discarded
    StatusCode     int    `json:"statusCode,omitempty"`
    Error          string `json:"error,omitempty"`
    LatencyMs      int    `json:"latencyMs"`
}

// Broker fans delivery outcomes out to live stream subscribers. Sends are
// non-blocking; a slow consumer drops events rather than stalling delivery.
type Broker struct {
    mu   sync.Mutex
    subs map[chan DeliveryEvent]struct{}
}

func NewBroker() *Broker {
    return &Broker{subs: map[chan DeliveryEvent]struct{}{}}
}

func (b *Broker) Subscribe() chan DeliveryEvent {
    ch := make(chan DeliveryEvent, 16)
    b.mu.Lock()
    b.subs[ch] = struct{}{}
    b.mu.Unlock()
    return ch
}

func (b *Broker) Unsubscribe(ch chan DeliveryEvent) {
    b.mu.Lock()
    if _, ok := b.subs[ch]; ok {
        delete(b.subs, ch)
        close(ch)
    }
    b.mu.Unlock()
}

func (b *Broker) Publish(evt DeliveryEvent) {
    b.mu.Lock()
    for ch := range b.subs {
        select { case ch <- evt: default: }
    }
    b.mu.Unlock()
}
