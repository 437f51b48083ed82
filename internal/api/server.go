package api

import (
    "log"

    "stocklane/internal/auth"
    "stocklane/internal/config"
    "stocklane/internal/store"
    "stocklane/internal/webhooks"
)

type Server struct {
    Store     store.Store
    Pub       *webhooks.Publisher
    Worker    *webhooks.Worker
    Scheduler *webhooks.Scheduler
    Broker    *webhooks.Broker
    Auth      *auth.Verifier
    // InboundSecret verifies signatures on provider callbacks we receive.
    InboundSecret string
}

// NewServer wires the store, delivery pipeline, and auth from config. With
// no DATABASE_URL the in-memory store is used.
func NewServer(cfg config.Config) (*Server, error) {
    var s store.Store
    if cfg.DatabaseURL == "" {
        s = store.NewMemory()
    } else {
        sp, err := store.NewPostgres(cfg.DatabaseURL)
        if err != nil {
            return nil, err
        }
        s = sp
    }

    var notify webhooks.Notifier
    if cfg.RedisURL != "" {
        if rn, err := webhooks.NewRedisNotifier(cfg.RedisURL); err == nil {
            notify = rn
        } else {
            log.Printf("redis notifier unavailable, using in-process: %v", err)
            notify = webhooks.NewChanNotifier()
        }
    } else {
        notify = webhooks.NewChanNotifier()
    }

    broker := webhooks.NewBroker()
    worker := webhooks.NewWorker(s, broker, cfg.DeliveryRPS)
    sched := webhooks.NewScheduler(s, worker, notify, cfg.Tick())
    pub := webhooks.NewPublisher(s, notify)
    pub.Max = cfg.MaxAttempts
    return &Server{
        Store:         s,
        Pub:           pub,
        Worker:        worker,
        Scheduler:     sched,
        Broker:        broker,
        Auth:          auth.NewVerifier(cfg.AuthMode, cfg.AuthSecret),
        InboundSecret: cfg.InboundSecret,
    }, nil
}
