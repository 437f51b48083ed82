package store

import (
    "context"
    "sync"
    "time"

    "github.com/google/uuid"
    "stocklane/internal/model"
)

// Memory is the in-memory store used when no DATABASE_URL is set and in
// tests. A single mutex covers every collection, so claim-and-mark is
// naturally atomic.
type Memory struct {
    mu         sync.Mutex
    subs       map[string]model.Subscription
    subOrder   []string                 // creation order for stable listings
    events     []model.DomainEvent      // ring, capped at model.EventLogCap
    deliveries map[string]*memDelivery
    delOrder   []string
}

// memDelivery augments the attempt with claim state.
type memDelivery struct {
    model.DeliveryAttempt
    claimed   bool
    claimedAt time.Time
}

func NewMemory() *Memory {
    return &Memory{
        subs:       map[string]model.Subscription{},
        deliveries: map[string]*memDelivery{},
    }
}

// Subscriptions

func (m *Memory) CreateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if sub.ID == "" {
        sub.ID = uuid.New().String()
    }
    now := time.Now().UTC()
    sub.CreatedAt = now
    sub.UpdatedAt = now
    m.subs[sub.ID] = sub
    m.subOrder = append(m.subOrder, sub.ID)
    return sub, nil
}

func (m *Memory) GetSubscription(ctx context.Context, id string) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s, ok := m.subs[id]
    if !ok { return model.Subscription{}, ErrNotFound }
    return s, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, scope string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Subscription{}
    for _, id := range m.subOrder {
        s, ok := m.subs[id]
        if !ok { continue }
        if scope != "" && s.Scope != scope { continue }
        out = append(out, s)
    }
    return out, nil
}

func (m *Memory) UpdateSubscription(ctx context.Context, id string, patch model.SubscriptionPatch) (model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    s, ok := m.subs[id]
    if !ok { return model.Subscription{}, ErrNotFound }
    applyPatch(&s, patch)
    s.UpdatedAt = time.Now().UTC()
    m.subs[id] = s
    return s, nil
}

func applyPatch(s *model.Subscription, patch model.SubscriptionPatch) {
    if patch.URL != nil { s.URL = *patch.URL }
    if patch.Events != nil { s.Events = append([]string(nil), (*patch.Events)...) }
    if patch.Secret != nil { s.Secret = *patch.Secret }
    if patch.Active != nil { s.Active = *patch.Active }
    if patch.Name != nil { s.Name = *patch.Name }
    if patch.Description != nil { s.Description = *patch.Description }
}

func (m *Memory) DeleteSubscription(ctx context.Context, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.subs[id]; !ok { return ErrNotFound }
    delete(m.subs, id)
    out := make([]string, 0, len(m.subOrder))
    for _, v := range m.subOrder { if v != id { out = append(out, v) } }
    m.subOrder = out
    return nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, scope, eventType string) ([]model.Subscription, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.Subscription{}
    for _, id := range m.subOrder {
        s := m.subs[id]
        if !s.Active || !s.SubscribesTo(eventType) { continue }
        if scope != "" && s.Scope != "" && s.Scope != scope { continue }
        out = append(out, s)
    }
    return out, nil
}

func (m *Memory) UpdateSubscriptionHealth(ctx context.Context, id string, statusCode int, success bool, at time.Time) error {
    m.mu.Lock(); defer m.mu.Unlock()
    s, ok := m.subs[id]
    if !ok { return ErrNotFound }
    s.LastStatus = statusCode
    s.LastAttemptAt = &at
    if success {
        s.LastSuccessAt = &at
        s.FailureCount = 0
    } else {
        s.FailureCount++
    }
    s.UpdatedAt = at
    m.subs[id] = s
    return nil
}

// Event log

func (m *Memory) AppendEvent(ctx context.Context, evt model.DomainEvent) error {
    m.mu.Lock(); defer m.mu.Unlock()
    m.events = append(m.events, evt)
    if len(m.events) > model.EventLogCap {
        m.events = m.events[len(m.events)-model.EventLogCap:]
    }
    return nil
}

func (m *Memory) ListEvents(ctx context.Context, limit int) ([]model.DomainEvent, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    if limit <= 0 || limit > len(m.events) { limit = len(m.events) }
    // newest first
    out := make([]model.DomainEvent, 0, limit)
    for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
        out = append(out, m.events[i])
    }
    return out, nil
}

// Delivery queue

func (m *Memory) EnqueueDeliveries(ctx context.Context, attempts []model.DeliveryAttempt) error {
    m.mu.Lock(); defer m.mu.Unlock()
    for _, a := range attempts {
        if a.ID == "" { a.ID = uuid.New().String() }
        cp := a
        m.deliveries[a.ID] = &memDelivery{DeliveryAttempt: cp}
        m.delOrder = append(m.delOrder, a.ID)
    }
    return nil
}

func (m *Memory) ClaimDueDeliveries(ctx context.Context, now time.Time, limit int) ([]model.DeliveryAttempt, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.DeliveryAttempt{}
    for _, id := range m.delOrder {
        d := m.deliveries[id]
        if d == nil || d.claimed { continue }
        due := d.AttemptedAt == nil && !d.ScheduledAt.After(now)
        if d.NextRetryAt != nil && !d.NextRetryAt.After(now) { due = true }
        if !due { continue }
        d.claimed = true
        d.claimedAt = now
        out = append(out, d.DeliveryAttempt)
        if limit > 0 && len(out) >= limit { break }
    }
    return out, nil
}

func (m *Memory) RescheduleDelivery(ctx context.Context, attempt model.DeliveryAttempt) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[attempt.ID]
    if d == nil { return ErrNotFound }
    d.DeliveryAttempt = attempt
    d.claimed = false
    return nil
}

func (m *Memory) CompleteDelivery(ctx context.Context, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    if _, ok := m.deliveries[id]; !ok { return nil }
    delete(m.deliveries, id)
    out := make([]string, 0, len(m.delOrder))
    for _, v := range m.delOrder { if v != id { out = append(out, v) } }
    m.delOrder = out
    return nil
}

func (m *Memory) ReleaseStaleClaims(ctx context.Context, cutoff time.Time) (int, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    n := 0
    for _, d := range m.deliveries {
        if d.claimed && d.claimedAt.Before(cutoff) {
            d.claimed = false
            n++
        }
    }
    return n, nil
}

func (m *Memory) ListDeliveries(ctx context.Context, limit int) ([]model.DeliveryAttempt, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    out := []model.DeliveryAttempt{}
    for _, id := range m.delOrder {
        if d := m.deliveries[id]; d != nil {
            out = append(out, d.DeliveryAttempt)
            if limit > 0 && len(out) >= limit { break }
        }
    }
    return out, nil
}

func (m *Memory) RetryDeliveryNow(ctx context.Context, id string) error {
    m.mu.Lock(); defer m.mu.Unlock()
    d := m.deliveries[id]
    if d == nil { return ErrNotFound }
    now := time.Now().UTC()
    d.NextRetryAt = &now
    d.claimed = false
    return nil
}

func (m *Memory) CountQueuedDeliveries(ctx context.Context) (int, error) {
    m.mu.Lock(); defer m.mu.Unlock()
    return len(m.deliveries), nil
}
