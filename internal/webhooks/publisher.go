package webhooks

import (
    "context"
    "encoding/json"
    "fmt"
    "time"

    "github.com/google/uuid"

    "stocklane/internal/model"
    "stocklane/internal/store"
)

// Publisher turns domain events into queued delivery attempts. Delivery is
// always out-of-band: Publish returns as soon as the event and its attempts
// are persisted.
type Publisher struct {
    Store  store.Store
    Notify Notifier
    // Max overrides the retry budget for new attempts; zero means the
    // policy default.
    Max int
}

func NewPublisher(s store.Store, n Notifier) *Publisher {
    return &Publisher{Store: s, Notify: n}
}

// envelope is the wire format posted to subscriber URLs.
type envelope struct {
    ID        string         `json:"id"`
    Event     string         `json:"event"`
    Timestamp string         `json:"timestamp"`
    Data      map[string]any `json:"data"`
}

// Publish records the event and enqueues one delivery attempt per matching
// active subscription. An event with no listeners still lands in the log.
func (p *Publisher) Publish(ctx context.Context, scope, eventType string, data map[string]any) error {
    if !model.ValidEventType(eventType) {
        return fmt.Errorf("unknown event type: %s", eventType)
    }
    now := time.Now().UTC()
    evt := model.DomainEvent{
        ID:        uuid.New().String(),
        EventType: eventType,
        Scope:     scope,
        Timestamp: now,
        Data:      data,
    }
    subs, err := p.Store.GetSubscriptionsForEvent(ctx, scope, eventType)
    if err != nil {
        return err
    }
    if err := p.Store.AppendEvent(ctx, evt); err != nil {
        return err
    }
    if len(subs) == 0 {
        return nil
    }
    body, err := json.Marshal(envelope{
        ID:        evt.ID,
        Event:     eventType,
        Timestamp: now.Format(time.RFC3339),
        Data:      data,
    })
    if err != nil {
        return err
    }
    max := p.Max
    if max <= 0 {
        max = MaxAttempts
    }
    attempts := make([]model.DeliveryAttempt, 0, len(subs))
    for _, s := range subs {
        attempts = append(attempts, model.DeliveryAttempt{
            ID:             uuid.New().String(),
            SubscriptionID: s.ID,
            EventType:      eventType,
            EventID:        evt.ID,
            Payload:        body,
            URL:            s.URL,
            AttemptNumber:  1,
            MaxAttempts:    max,
            ScheduledAt:    now,
        })
    }
    if err := p.Store.EnqueueDeliveries(ctx, attempts); err != nil {
        return err
    }
    if p.Notify != nil {
        p.Notify.Kick()
    }
    return nil
}
