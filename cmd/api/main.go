package main

import (
    "context"
    "log"
    "net/http"
    "os"
    "strconv"
    "time"

    "github.com/prometheus/client_golang/prometheus/promhttp"

    "stocklane/internal/api"
    "stocklane/internal/config"
    "stocklane/internal/metrics"
    "stocklane/internal/store"
)

func main() {
    cfgPath := os.Getenv("CONFIG_FILE")
    if cfgPath == "" {
        cfgPath = "config.yaml"
    }
    cfg, err := config.Load(cfgPath)
    if err != nil {
        log.Fatalf("failed to load config: %v", err)
    }

    srv, err := api.NewServer(cfg)
    if err != nil {
        log.Fatalf("failed to init server: %v", err)
    }
    if pg, ok := srv.Store.(*store.Postgres); ok && os.Getenv("DB_MIGRATE") != "false" {
        if err := pg.Migrate(context.Background()); err != nil {
            log.Fatalf("migration failed: %v", err)
        }
    }

    metrics.RegisterDefault()

    mux := http.NewServeMux()

    // Registry
    mux.HandleFunc("/v1/webhooks", srv.WebhooksHandler)
    mux.HandleFunc("/v1/webhooks/", srv.WebhookByIDHandler) // includes /{id}/test

    // Events: publish entry point and audit log
    mux.HandleFunc("/v1/events", srv.EventsHandler)

    // Inbound provider callbacks (signature is the auth)
    mux.HandleFunc("/v1/callbacks/payment", api.RequireSignature(cfg.InboundSecret, srv.PaymentCallbackHandler))

    // Live delivery outcomes for the settings UI
    mux.HandleFunc("/v1/deliveries/stream", srv.DeliveryStreamHandler)

    // Admin
    mux.HandleFunc("/v1/admin/webhook-deliveries", srv.WebhookDeliveriesHandler)
    mux.HandleFunc("/v1/admin/webhook-deliveries/", srv.WebhookDeliveryRetryHandler)

    // Health & observability
    mux.HandleFunc("/healthz", srv.HealthHandler)
    mux.HandleFunc("/readyz", srv.ReadyHandler)
    mux.HandleFunc("/debug/info", srv.DebugJSON)
    mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

    addr := ":" + cfg.Port

    httpSrv := &http.Server{
        Addr:              addr,
        Handler:           logMiddleware(metricsMiddleware(mux)),
        ReadHeaderTimeout: 5 * time.Second,
    }

    srv.Scheduler.Start()
    defer srv.Scheduler.Stop()

    log.Printf("webhook service listening on %s", addr)
    if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
        log.Fatalf("server error: %v", err)
    }
}

func logMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        start := time.Now()
        next.ServeHTTP(w, r)
        dur := time.Since(start)
        log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, dur)
    })
}

type statusRecorder struct {
    http.ResponseWriter
    status int
}

func (sr *statusRecorder) WriteHeader(code int) {
    sr.status = code
    sr.ResponseWriter.WriteHeader(code)
}

func metricsMiddleware(next http.Handler) http.Handler {
    return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
        start := time.Now()
        next.ServeHTTP(sr, r)
        status := strconv.Itoa(sr.status)
        metrics.HTTPRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
        metrics.HTTPDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
    })
}
