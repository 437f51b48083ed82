package store

import (
    "context"
    "errors"
    "time"

    "stocklane/internal/model"
)

// Store is the persistence interface for subscriptions, the event log, and
// the delivery queue. All mutations are atomic per record; there is no write
// buffering, so a crash between calls cannot lose a subscription's last
// known health state.
type Store interface {
    // Subscriptions
    CreateSubscription(ctx context.Context, sub model.Subscription) (model.Subscription, error)
    GetSubscription(ctx context.Context, id string) (model.Subscription, error)
    ListSubscriptions(ctx context.Context, scope string) ([]model.Subscription, error)
    UpdateSubscription(ctx context.Context, id string, patch model.SubscriptionPatch) (model.Subscription, error)
    DeleteSubscription(ctx context.Context, id string) error
    // GetSubscriptionsForEvent returns active subscriptions for the event
    // type. A subscription with no scope matches any scope.
    GetSubscriptionsForEvent(ctx context.Context, scope, eventType string) ([]model.Subscription, error)
    // UpdateSubscriptionHealth records the outcome of one delivery attempt
    // on the owning subscription: lastStatus, lastAttemptAt, and either
    // failureCount++ or failureCount=0 with lastSuccessAt set.
    UpdateSubscriptionHealth(ctx context.Context, id string, statusCode int, success bool, at time.Time) error

    // Event log (bounded; append evicts the oldest beyond model.EventLogCap)
    AppendEvent(ctx context.Context, evt model.DomainEvent) error
    ListEvents(ctx context.Context, limit int) ([]model.DomainEvent, error)

    // Delivery queue. An attempt exists in the queue iff it has not reached
    // a terminal outcome.
    EnqueueDeliveries(ctx context.Context, attempts []model.DeliveryAttempt) error
    // ClaimDueDeliveries atomically selects attempts that are due (never
    // tried, or nextRetryAt <= now) and marks them in-flight so a
    // concurrent pass cannot pick them up again.
    ClaimDueDeliveries(ctx context.Context, now time.Time, limit int) ([]model.DeliveryAttempt, error)
    // RescheduleDelivery writes a failed attempt back as pending with its
    // incremented attempt number and nextRetryAt, releasing the claim.
    RescheduleDelivery(ctx context.Context, attempt model.DeliveryAttempt) error
    // CompleteDelivery removes an attempt that reached a terminal outcome.
    CompleteDelivery(ctx context.Context, id string) error
    // ReleaseStaleClaims returns claims older than cutoff to pending, for
    // recovery after a crash mid-pass.
    ReleaseStaleClaims(ctx context.Context, cutoff time.Time) (int, error)
    ListDeliveries(ctx context.Context, limit int) ([]model.DeliveryAttempt, error)
    // RetryDeliveryNow makes a queued attempt due immediately.
    RetryDeliveryNow(ctx context.Context, id string) error
    CountQueuedDeliveries(ctx context.Context) (int, error)
}

var ErrNotFound = errors.New("not found")
