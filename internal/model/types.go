package model

import "time"

// Core domain types for the webhook delivery subsystem.

// EventTypes is the closed set of domain event types the rest of the
// application may publish. Subscriptions are validated against this set so a
// typo cannot silently subscribe to nothing.
var EventTypes = map[string]struct{}{
    "inventory.adjusted":  {},
    "inventory.low_stock": {},
    "product.created":     {},
    "product.updated":     {},
    "product.deleted":     {},
    "order.created":       {},
    "order.updated":       {},
    "order.fulfilled":     {},
    "order.cancelled":     {},
    "invoice.created":     {},
    "invoice.paid":        {},
    "invoice.overdue":     {},
}

// EventTypeTest is reserved for synchronous endpoint tests and is not
// subscribable.
const EventTypeTest = "test.webhook"

func ValidEventType(t string) bool {
    _, ok := EventTypes[t]
    return ok
}

type Subscription struct {
    ID          string     `json:"id"`
    Scope       string     `json:"scope,omitempty"`
    URL         string     `json:"url"`
    Secret      string     `json:"secret,omitempty"`
    Events      []string   `json:"events"`
    Active      bool       `json:"active"`
    Name        string     `json:"name,omitempty"`
    Description string     `json:"description,omitempty"`
    CreatedAt   time.Time  `json:"createdAt"`
    UpdatedAt   time.Time  `json:"updatedAt"`

    // Delivery health, owned by the registry and updated after each attempt.
    LastStatus    int        `json:"lastStatus,omitempty"`
    LastAttemptAt *time.Time `json:"lastAttemptAt,omitempty"`
    LastSuccessAt *time.Time `json:"lastSuccessAt,omitempty"`
    FailureCount  int        `json:"failureCount"`
}

// SubscribesTo reports whether the subscription wants eventType.
func (s Subscription) SubscribesTo(eventType string) bool {
    for _, e := range s.Events {
        if e == eventType {
            return true
        }
    }
    return false
}

type SubscriptionRequest struct {
    Scope       string   `json:"scope,omitempty"`
    URL         string   `json:"url"`
    Events      []string `json:"events"`
    Secret      string   `json:"secret,omitempty"`
    Name        string   `json:"name,omitempty"`
    Description string   `json:"description,omitempty"`
}

// SubscriptionPatch carries partial updates; nil fields are left untouched.
type SubscriptionPatch struct {
    URL         *string   `json:"url,omitempty"`
    Events      *[]string `json:"events,omitempty"`
    Secret      *string   `json:"secret,omitempty"`
    Active      *bool     `json:"active,omitempty"`
    Name        *string   `json:"name,omitempty"`
    Description *string   `json:"description,omitempty"`
}

// DomainEvent is one entry of the bounded event log. Immutable once written.
type DomainEvent struct {
    ID        string         `json:"id"`
    EventType string         `json:"eventType"`
    Scope     string         `json:"scope,omitempty"`
    Timestamp time.Time      `json:"timestamp"`
    Data      map[string]any `json:"data"`
}

// EventLogCap bounds the event log; the oldest entry is evicted on append.
const EventLogCap = 1000

// DeliveryAttempt is one subscription's pending or in-flight delivery of one
// event. It lives in the queue exactly until it reaches a terminal outcome.
type DeliveryAttempt struct {
    ID             string     `json:"id"`
    SubscriptionID string     `json:"subscriptionId"`
    EventType      string     `json:"eventType"`
    EventID        string     `json:"eventId"`
    Payload        []byte     `json:"payload"`
    URL            string     `json:"url"`
    AttemptNumber  int        `json:"attemptNumber"`
    MaxAttempts    int        `json:"maxAttempts"`
    ScheduledAt    time.Time  `json:"scheduledAt"`
    AttemptedAt    *time.Time `json:"attemptedAt,omitempty"`
    StatusCode     int        `json:"statusCode,omitempty"`
    ResponseBody   string     `json:"responseBody,omitempty"`
    Error          string     `json:"error,omitempty"`
    NextRetryAt    *time.Time `json:"nextRetryAt,omitempty"`
}

// MaxResponseBody caps how much of a subscriber's response is recorded on
// the attempt.
const MaxResponseBody = 1000

// TestResult is the synchronous outcome of a one-off test delivery.
type TestResult struct {
    Success        bool   `json:"success"`
    StatusCode     int    `json:"statusCode,omitempty"`
    Error          string `json:"error,omitempty"`
    ResponseTimeMs int    `json:"responseTimeMs"`
}
