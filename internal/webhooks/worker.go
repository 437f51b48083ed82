package webhooks

import (
    "bytes"
    "context"
    "encoding/json"
    "errors"
    "io"
    "net/http"
    "time"

    "github.com/google/uuid"
    "golang.org/x/time/rate"

    "stocklane/internal/metrics"
    "stocklane/internal/model"
    "stocklane/internal/store"
)

const (
    userAgent       = "Stocklane-Hook/1.0"
    headerEvent     = "X-Stocklane-Event"
    headerEventID   = "X-Stocklane-Id"
    headerSignature = "X-Stocklane-Signature"

    // DeliveryTimeout bounds one HTTP call; past it the attempt counts as a
    // network failure.
    DeliveryTimeout = 30 * time.Second
)

// Worker performs the signed HTTP call for a single delivery attempt and
// applies the retry policy to the result.
type Worker struct {
    Store   store.Store
    HTTP    *http.Client
    Broker  *Broker
    Limiter *rate.Limiter
}

func NewWorker(s store.Store, b *Broker, rps float64) *Worker {
    var lim *rate.Limiter
    if rps > 0 {
        lim = rate.NewLimiter(rate.Limit(rps), int(rps)+1)
    }
    return &Worker{
        Store:   s,
        HTTP:    &http.Client{Timeout: DeliveryTimeout},
        Broker:  b,
        Limiter: lim,
    }
}

// Deliver runs one attempt to completion: success, retry scheduled, or
// dropped. The queue record is only rewritten once the outcome is known.
func (w *Worker) Deliver(ctx context.Context, a model.DeliveryAttempt) {
    sub, err := w.Store.GetSubscription(ctx, a.SubscriptionID)
    if errors.Is(err, store.ErrNotFound) || (err == nil && !sub.Active) {
        // deleted or disabled subscriptions silently drain their attempts
        _ = w.Store.CompleteDelivery(ctx, a.ID)
        w.emit(a, "discarded", 0, "", 0)
        return
    }
    if err != nil {
        // persistence failure: leave the claim to expire, nothing is lost
        return
    }

    if w.Limiter != nil {
        if err := w.Limiter.Wait(ctx); err != nil {
            return
        }
    }

    now := time.Now().UTC()
    a.AttemptedAt = &now
    code, respBody, sendErr := w.send(ctx, sub, a)
    latency := int(time.Since(now).Milliseconds())
    a.StatusCode = code
    a.ResponseBody = respBody

    success := code >= 200 && code < 300
    if success {
        _ = w.Store.UpdateSubscriptionHealth(ctx, sub.ID, code, true, now)
        _ = w.Store.CompleteDelivery(ctx, a.ID)
        metrics.WebhookDeliveries.WithLabelValues(a.EventType, "delivered").Inc()
        metrics.WebhookLatency.WithLabelValues(a.EventType, "delivered").Observe(float64(latency))
        w.emit(a, "delivered", code, "", latency)
        return
    }

    if sendErr != nil {
        a.Error = sendErr.Error()
    } else {
        a.Error = http.StatusText(code)
    }
    // every failed attempt counts against the subscription, not only the
    // terminal one
    _ = w.Store.UpdateSubscriptionHealth(ctx, sub.ID, code, false, now)

    if Exhausted(a.AttemptNumber, a.MaxAttempts) {
        _ = w.Store.CompleteDelivery(ctx, a.ID)
        metrics.WebhookDeliveries.WithLabelValues(a.EventType, "dropped").Inc()
        w.emit(a, "dropped", code, a.Error, latency)
        return
    }

    retryAt := now.Add(Backoff(a.AttemptNumber))
    a.AttemptNumber++
    a.NextRetryAt = &retryAt
    _ = w.Store.RescheduleDelivery(ctx, a)
    metrics.WebhookDeliveries.WithLabelValues(a.EventType, "retry").Inc()
    w.emit(a, "retry", code, a.Error, latency)
}

// send posts the signed envelope. Returns the HTTP status (0 on transport
// error) and the response body truncated for storage.
func (w *Worker) send(ctx context.Context, sub model.Subscription, a model.DeliveryAttempt) (int, string, error) {
    ctx, cancel := context.WithTimeout(ctx, DeliveryTimeout)
    defer cancel()
    req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(a.Payload))
    if err != nil {
        return 0, "", err
    }
    req.Header.Set("Content-Type", "application/json")
    req.Header.Set("User-Agent", userAgent)
    req.Header.Set(headerEvent, a.EventType)
    req.Header.Set(headerEventID, a.EventID)
    req.Header.Set(headerSignature, FormatSignatureHeader(sub.Secret, a.Payload))
    resp, err := w.HTTP.Do(req)
    if err != nil {
        return 0, "", err
    }
    defer func() { _ = resp.Body.Close() }()
    body, _ := io.ReadAll(io.LimitReader(resp.Body, model.MaxResponseBody))
    return resp.StatusCode, string(body), nil
}

func (w *Worker) emit(a model.DeliveryAttempt, outcome string, code int, errMsg string, latency int) {
    if w.Broker == nil {
        return
    }
    w.Broker.Publish(DeliveryEvent{
        SubscriptionID: a.SubscriptionID,
        EventType:      a.EventType,
        EventID:        a.EventID,
        AttemptNumber:  a.AttemptNumber,
        Outcome:        outcome,
        StatusCode:     code,
        Error:          errMsg,
        LatencyMs:      latency,
    })
}

// TestDelivery sends one synthetic signed event to the subscription's URL,
// outside the queue: no retry, nothing persisted.
func (w *Worker) TestDelivery(ctx context.Context, subscriptionID string) (model.TestResult, error) {
    sub, err := w.Store.GetSubscription(ctx, subscriptionID)
    if err != nil {
        return model.TestResult{}, err
    }
    id := uuid.New().String()
    body, _ := json.Marshal(envelope{
        ID:        id,
        Event:     model.EventTypeTest,
        Timestamp: time.Now().UTC().Format(time.RFC3339),
        Data:      map[string]any{"message": "test delivery"},
    })
    start := time.Now()
    code, _, sendErr := w.send(ctx, sub, model.DeliveryAttempt{
        EventType: model.EventTypeTest,
        EventID:   id,
        Payload:   body,
    })
    res := model.TestResult{
        StatusCode:     code,
        ResponseTimeMs: int(time.Since(start).Milliseconds()),
        Success:        code >= 200 && code < 300,
    }
    if sendErr != nil {
        res.Error = sendErr.Error()
    } else if !res.Success {
        res.Error = http.StatusText(code)
    }
    return res, nil
}
