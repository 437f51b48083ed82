package api

import (
    "context"
    "encoding/json"
    "fmt"
    "net/http"
    "strings"
    "time"

    "stocklane/internal/metrics"
    "stocklane/internal/model"
    "stocklane/internal/webhooks"
)

// WebhooksHandler handles POST/GET /v1/webhooks
func (s *Server) WebhooksHandler(w http.ResponseWriter, r *http.Request) {
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    switch r.Method {
    case http.MethodPost:
        var req model.SubscriptionRequest
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if err := validateSubscriptionRequest(&req); err != nil {
            writeProblem(w, http.StatusBadRequest, "Invalid subscription", err.Error(), r.URL.Path)
            return
        }
        if req.Scope == "" { req.Scope = p.Scope }
        secret := req.Secret
        if secret == "" { secret = webhooks.GenerateSecret() }
        sub, err := s.Store.CreateSubscription(r.Context(), model.Subscription{
            Scope:       req.Scope,
            URL:         req.URL,
            Secret:      secret,
            Events:      req.Events,
            Active:      true,
            Name:        req.Name,
            Description: req.Description,
        })
        if err != nil {
            writeProblem(w, http.StatusInternalServerError, "Create subscription failed", err.Error(), r.URL.Path)
            return
        }
        writeJSON(w, http.StatusCreated, sub)
    case http.MethodGet:
        scope := r.URL.Query().Get("scope")
        items, err := s.Store.ListSubscriptions(r.Context(), scope)
        if err != nil { writeProblem(w, 500, "List subscriptions failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": items})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// WebhookByIDHandler handles GET/PATCH/DELETE /v1/webhooks/{id} and
// POST /v1/webhooks/{id}/test
func (s *Server) WebhookByIDHandler(w http.ResponseWriter, r *http.Request) {
    rest := strings.TrimPrefix(r.URL.Path, "/v1/webhooks/")
    if rest == r.URL.Path || rest == "" {
        writeProblem(w, http.StatusNotFound, "Not Found", "missing id", r.URL.Path)
        return
    }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    parts := strings.Split(rest, "/")
    id := parts[0]
    if len(parts) > 1 && parts[1] == "test" {
        if r.Method != http.MethodPost { w.WriteHeader(405); return }
        res, err := s.Worker.TestDelivery(r.Context(), id)
        if err != nil { writeStoreError(w, err, "Test delivery failed", r.URL.Path); return }
        writeJSON(w, 200, res)
        return
    }
    switch r.Method {
    case http.MethodGet:
        sub, err := s.Store.GetSubscription(r.Context(), id)
        if err != nil { writeStoreError(w, err, "Get subscription failed", r.URL.Path); return }
        writeJSON(w, 200, sub)
    case http.MethodPatch:
        var patch model.SubscriptionPatch
        if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
            writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if patch.Events != nil {
            if len(*patch.Events) == 0 {
                writeProblem(w, 400, "Invalid subscription", "events must not be empty", r.URL.Path)
                return
            }
            if err := validateEventTypes(*patch.Events); err != nil {
                writeProblem(w, 400, "Invalid subscription", err.Error(), r.URL.Path)
                return
            }
        }
        if patch.URL != nil && *patch.URL == "" {
            writeProblem(w, 400, "Invalid subscription", "url is required", r.URL.Path)
            return
        }
        sub, err := s.Store.UpdateSubscription(r.Context(), id, patch)
        if err != nil { writeStoreError(w, err, "Update subscription failed", r.URL.Path); return }
        writeJSON(w, 200, sub)
    case http.MethodDelete:
        if err := s.Store.DeleteSubscription(r.Context(), id); err != nil {
            writeStoreError(w, err, "Delete subscription failed", r.URL.Path)
            return
        }
        w.WriteHeader(204)
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// EventsHandler handles POST /v1/events (publish, called by the rest of the
// application) and GET /v1/events (recent event log).
func (s *Server) EventsHandler(w http.ResponseWriter, r *http.Request) {
    p := s.getPrincipal(r)
    switch r.Method {
    case http.MethodPost:
        var req struct {
            EventType string         `json:"eventType"`
            Scope     string         `json:"scope,omitempty"`
            Data      map[string]any `json:"data"`
        }
        if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
            writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path)
            return
        }
        if req.Scope == "" { req.Scope = p.Scope }
        if !model.ValidEventType(req.EventType) {
            writeProblem(w, 400, "Invalid event", fmt.Sprintf("unknown event type: %s", req.EventType), r.URL.Path)
            return
        }
        if err := s.Pub.Publish(r.Context(), req.Scope, req.EventType, req.Data); err != nil {
            writeProblem(w, 500, "Publish failed", err.Error(), r.URL.Path)
            return
        }
        metrics.EventsPublished.WithLabelValues(req.EventType).Inc()
        writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
    case http.MethodGet:
        if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
        limit := 100
        if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
        items, err := s.Store.ListEvents(r.Context(), limit)
        if err != nil { writeProblem(w, 500, "List events failed", err.Error(), r.URL.Path); return }
        writeJSON(w, 200, map[string]any{"items": items})
    default:
        w.WriteHeader(http.StatusMethodNotAllowed)
    }
}

// WebhookDeliveriesHandler lists the pending delivery queue (admin).
func (s *Server) WebhookDeliveriesHandler(w http.ResponseWriter, r *http.Request) {
    if r.URL.Path != "/v1/admin/webhook-deliveries" { writeProblem(w, 404, "Not Found", "", r.URL.Path); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    if r.Method != http.MethodGet { w.WriteHeader(405); return }
    limit := 100
    if v := r.URL.Query().Get("limit"); v != "" { fmt.Sscanf(v, "%d", &limit) }
    items, err := s.Store.ListDeliveries(r.Context(), limit)
    if err != nil { writeProblem(w, 500, "List deliveries failed", err.Error(), r.URL.Path); return }
    writeJSON(w, 200, map[string]any{"items": items})
}

// WebhookDeliveryRetryHandler makes a queued attempt due immediately.
func (s *Server) WebhookDeliveryRetryHandler(w http.ResponseWriter, r *http.Request) {
    if !strings.HasPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/") || !strings.HasSuffix(r.URL.Path, "/retry") {
        writeProblem(w, 404, "Not Found", "", r.URL.Path)
        return
    }
    if r.Method != http.MethodPost { w.WriteHeader(405); return }
    p := s.getPrincipal(r)
    if !p.IsAdmin() { writeProblem(w, 403, "Forbidden", "admin required", r.URL.Path); return }
    id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/v1/admin/webhook-deliveries/"), "/retry")
    if err := s.Store.RetryDeliveryNow(r.Context(), id); err != nil {
        writeStoreError(w, err, "Retry delivery failed", r.URL.Path)
        return
    }
    s.Pub.Notify.Kick()
    writeJSON(w, 202, map[string]int{"accepted": 1})
}

// PaymentCallbackHandler is the example inbound provider callback; it is
// mounted behind RequireSignature, so the body here is already verified.
func (s *Server) PaymentCallbackHandler(w http.ResponseWriter, r *http.Request) {
    if r.Method != http.MethodPost { w.WriteHeader(405); return }
    var body map[string]any
    if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
        writeProblem(w, 400, "Invalid JSON", err.Error(), r.URL.Path)
        return
    }
    writeJSON(w, 200, map[string]string{"status": "received"})
}

// Health
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
    writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
    // Check DB connectivity when using the Postgres store
    type pinger interface{ Ping(ctx context.Context) error }
    if pg, ok := s.Store.(pinger); ok {
        ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
        defer cancel()
        if err := pg.Ping(ctx); err != nil { writeProblem(w, 503, "Not Ready", err.Error(), r.URL.Path); return }
    }
    writeJSON(w, 200, map[string]string{"status": "ready"})
}
