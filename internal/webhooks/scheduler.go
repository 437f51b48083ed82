package webhooks

import (
    "context"
    "log"
    "sync"
    "time"

    "stocklane/internal/metrics"
    "stocklane/internal/store"
)

const (
    // DefaultTick is the fixed scheduler interval.
    DefaultTick = 60 * time.Second
    // ClaimLease is how long a claimed attempt may sit unresolved before
    // it is handed back to the queue (crash recovery).
    ClaimLease = 5 * time.Minute

    defaultBatch   = 50
    defaultWorkers = 4
)

// Scheduler owns the delivery loop: a periodic tick plus best-effort wakes
// from the publisher. Claims are atomic in the store, so overlapping passes
// (or passes in other replicas) never double-deliver an attempt.
type Scheduler struct {
    Store   store.Store
    Worker  *Worker
    Notify  Notifier
    Tick    time.Duration
    Batch   int
    Workers int

    stop    chan struct{}
    stopped sync.WaitGroup
    passing sync.Mutex // one pass at a time per process
}

func NewScheduler(s store.Store, w *Worker, n Notifier, tick time.Duration) *Scheduler {
    if tick <= 0 {
        tick = DefaultTick
    }
    return &Scheduler{
        Store:   s,
        Worker:  w,
        Notify:  n,
        Tick:    tick,
        Batch:   defaultBatch,
        Workers: defaultWorkers,
        stop:    make(chan struct{}),
    }
}

// Start launches the scheduling loop.
func (s *Scheduler) Start() {
    s.stopped.Add(1)
    go func() {
        defer s.stopped.Done()
        ticker := time.NewTicker(s.Tick)
        defer ticker.Stop()
        for {
            select {
            case <-s.stop:
                return
            case <-ticker.C:
                s.ProcessOnce(context.Background())
            case <-s.Notify.C():
                s.ProcessOnce(context.Background())
            }
        }
    }()
}

// Stop halts the loop and waits for the current pass to finish.
func (s *Scheduler) Stop() {
    close(s.stop)
    s.stopped.Wait()
}

// ProcessOnce runs a single pass: release expired claims, claim due
// attempts, and deliver them over a bounded worker pool. Each claimed
// attempt runs to completion before its record is rewritten.
func (s *Scheduler) ProcessOnce(ctx context.Context) {
    s.passing.Lock()
    defer s.passing.Unlock()

    now := time.Now().UTC()
    if n, err := s.Store.ReleaseStaleClaims(ctx, now.Add(-ClaimLease)); err != nil {
        log.Printf("webhooks: release stale claims: %v", err)
        return
    } else if n > 0 {
        log.Printf("webhooks: released %d stale claims", n)
    }

    attempts, err := s.Store.ClaimDueDeliveries(ctx, now, s.Batch)
    if err != nil {
        // abort the pass; claimed nothing, nothing is lost
        log.Printf("webhooks: claim due deliveries: %v", err)
        return
    }
    if len(attempts) == 0 {
        s.observeDepth(ctx)
        return
    }

    sem := make(chan struct{}, s.Workers)
    var wg sync.WaitGroup
    for _, a := range attempts {
        sem <- struct{}{}
        wg.Add(1)
        go func() {
            defer wg.Done()
            defer func() { <-sem }()
            s.Worker.Deliver(ctx, a)
        }()
    }
    wg.Wait()
    s.observeDepth(ctx)
}

func (s *Scheduler) observeDepth(ctx context.Context) {
    if n, err := s.Store.CountQueuedDeliveries(ctx); err == nil {
        metrics.QueueDepth.Set(float64(n))
    }
}
