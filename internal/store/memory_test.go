package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"stocklane/internal/model"
)

func TestSubscriptionCRUD(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	sub, err := m.CreateSubscription(ctx, model.Subscription{
		URL:    "http://dest.example/hook",
		Secret: "s",
		Events: []string{"order.created", "invoice.paid"},
		Active: true,
		Name:   "orders",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sub.ID == "" || sub.CreatedAt.IsZero() {
		t.Fatalf("create did not fill id/createdAt: %+v", sub)
	}

	got, err := m.GetSubscription(ctx, sub.ID)
	if err != nil || got.URL != sub.URL {
		t.Fatalf("get: %v %+v", err, got)
	}

	newURL := "http://moved.example/hook"
	inactive := false
	upd, err := m.UpdateSubscription(ctx, sub.ID, model.SubscriptionPatch{URL: &newURL, Active: &inactive})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.URL != newURL || upd.Active {
		t.Fatalf("patch not applied: %+v", upd)
	}
	if upd.Name != "orders" || len(upd.Events) != 2 {
		t.Fatalf("patch clobbered untouched fields: %+v", upd)
	}

	if err := m.DeleteSubscription(ctx, sub.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.GetSubscription(ctx, sub.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := m.DeleteSubscription(ctx, sub.ID); err != ErrNotFound {
		t.Fatalf("double delete: %v", err)
	}
}

func TestUpdateSubscriptionNotFound(t *testing.T) {
	m := NewMemory()
	if _, err := m.UpdateSubscription(context.Background(), "nope", model.SubscriptionPatch{}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListSubscriptionsScopeFilter(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, _ = m.CreateSubscription(ctx, model.Subscription{Scope: "ws1", URL: "http://a", Events: []string{"order.created"}})
	_, _ = m.CreateSubscription(ctx, model.Subscription{Scope: "ws2", URL: "http://b", Events: []string{"order.created"}})
	_, _ = m.CreateSubscription(ctx, model.Subscription{URL: "http://c", Events: []string{"order.created"}})

	all, _ := m.ListSubscriptions(ctx, "")
	if len(all) != 3 {
		t.Fatalf("list all: %d", len(all))
	}
	ws1, _ := m.ListSubscriptions(ctx, "ws1")
	if len(ws1) != 1 || ws1[0].Scope != "ws1" {
		t.Fatalf("scope filter: %+v", ws1)
	}
}

func TestSubscriptionHealthUpdates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	sub, _ := m.CreateSubscription(ctx, model.Subscription{URL: "http://a", Events: []string{"order.created"}, Active: true})

	at := time.Now().UTC()
	_ = m.UpdateSubscriptionHealth(ctx, sub.ID, 500, false, at)
	_ = m.UpdateSubscriptionHealth(ctx, sub.ID, 502, false, at)
	got, _ := m.GetSubscription(ctx, sub.ID)
	if got.FailureCount != 2 || got.LastStatus != 502 || got.LastSuccessAt != nil {
		t.Fatalf("after failures: %+v", got)
	}

	_ = m.UpdateSubscriptionHealth(ctx, sub.ID, 200, true, at)
	got, _ = m.GetSubscription(ctx, sub.ID)
	if got.FailureCount != 0 || got.LastStatus != 200 || got.LastSuccessAt == nil {
		t.Fatalf("after success: %+v", got)
	}
}

func TestEventLogCapFIFO(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for i := 0; i < model.EventLogCap+5; i++ {
		_ = m.AppendEvent(ctx, model.DomainEvent{
			ID:        fmt.Sprintf("e%d", i),
			EventType: "inventory.adjusted",
			Timestamp: time.Now().UTC(),
		})
	}
	events, _ := m.ListEvents(ctx, 0)
	if len(events) != model.EventLogCap {
		t.Fatalf("log size: %d", len(events))
	}
	if events[0].ID != fmt.Sprintf("e%d", model.EventLogCap+4) {
		t.Fatalf("newest first expected, got %s", events[0].ID)
	}
	if events[len(events)-1].ID != "e5" {
		t.Fatalf("oldest surviving should be e5, got %s", events[len(events)-1].ID)
	}
}

func TestQueueLifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()

	_ = m.EnqueueDeliveries(ctx, []model.DeliveryAttempt{
		{ID: "a1", SubscriptionID: "s1", EventType: "order.created", EventID: "e1", URL: "http://a", AttemptNumber: 1, MaxAttempts: 5, ScheduledAt: now},
		{ID: "a2", SubscriptionID: "s2", EventType: "order.created", EventID: "e1", URL: "http://b", AttemptNumber: 1, MaxAttempts: 5, ScheduledAt: now.Add(time.Hour)},
	})

	if n, _ := m.CountQueuedDeliveries(ctx); n != 2 {
		t.Fatalf("count: %d", n)
	}

	// only a1 is due; a2 is scheduled in the future
	due, _ := m.ClaimDueDeliveries(ctx, now, 10)
	if len(due) != 1 || due[0].ID != "a1" {
		t.Fatalf("due: %+v", due)
	}

	// reschedule a1 as a failed attempt
	attempted := now
	retry := now.Add(time.Minute)
	a := due[0]
	a.AttemptNumber = 2
	a.AttemptedAt = &attempted
	a.NextRetryAt = &retry
	a.StatusCode = 500
	if err := m.RescheduleDelivery(ctx, a); err != nil {
		t.Fatalf("reschedule: %v", err)
	}

	// not due until nextRetryAt
	if due, _ := m.ClaimDueDeliveries(ctx, now, 10); len(due) != 0 {
		t.Fatalf("rescheduled attempt claimed early")
	}
	due, _ = m.ClaimDueDeliveries(ctx, retry, 10)
	if len(due) != 1 || due[0].AttemptNumber != 2 {
		t.Fatalf("after retry time: %+v", due)
	}

	if err := m.CompleteDelivery(ctx, "a1"); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if n, _ := m.CountQueuedDeliveries(ctx); n != 1 {
		t.Fatalf("count after complete: %d", n)
	}
	// completing twice is harmless
	if err := m.CompleteDelivery(ctx, "a1"); err != nil {
		t.Fatalf("complete twice: %v", err)
	}
}

func TestRetryDeliveryNow(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	_ = m.EnqueueDeliveries(ctx, []model.DeliveryAttempt{
		{ID: "a1", SubscriptionID: "s1", EventType: "order.created", EventID: "e1", URL: "http://a", AttemptNumber: 1, MaxAttempts: 5, ScheduledAt: now.Add(time.Hour)},
	})
	if due, _ := m.ClaimDueDeliveries(ctx, now, 10); len(due) != 0 {
		t.Fatalf("future attempt claimed")
	}
	if err := m.RetryDeliveryNow(ctx, "a1"); err != nil {
		t.Fatalf("retry now: %v", err)
	}
	if due, _ := m.ClaimDueDeliveries(ctx, time.Now().UTC(), 10); len(due) != 1 {
		t.Fatalf("attempt not due after retry now")
	}
	if err := m.RetryDeliveryNow(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetSubscriptionsForEvent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, _ = m.CreateSubscription(ctx, model.Subscription{URL: "http://a", Events: []string{"order.created"}, Active: true})
	_, _ = m.CreateSubscription(ctx, model.Subscription{URL: "http://b", Events: []string{"order.created"}, Active: false})
	_, _ = m.CreateSubscription(ctx, model.Subscription{URL: "http://c", Events: []string{"invoice.paid"}, Active: true})
	_, _ = m.CreateSubscription(ctx, model.Subscription{Scope: "ws1", URL: "http://d", Events: []string{"order.created"}, Active: true})

	subs, _ := m.GetSubscriptionsForEvent(ctx, "", "order.created")
	if len(subs) != 2 {
		t.Fatalf("unscoped match: %d", len(subs))
	}
	subs, _ = m.GetSubscriptionsForEvent(ctx, "ws2", "order.created")
	// unscoped subscription matches any scope; ws1 does not match ws2
	if len(subs) != 1 || subs[0].URL != "http://a" {
		t.Fatalf("scoped match: %+v", subs)
	}
}
