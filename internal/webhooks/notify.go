package webhooks

import (
    "context"
    "time"

    redis "github.com/redis/go-redis/v9"
)

// Notifier wakes the scheduler ahead of its next tick. Kick is best-effort
// and never blocks the caller.
type Notifier interface {
    Kick()
    C() <-chan struct{}
}

// ChanNotifier is the in-process notifier used when no REDIS_URL is set.
type ChanNotifier struct {
    ch chan struct{}
}

func NewChanNotifier() *ChanNotifier {
    return &ChanNotifier{ch: make(chan struct{}, 1)}
}

func (n *ChanNotifier) Kick() {
    select { case n.ch <- struct{}{}: default: }
}

func (n *ChanNotifier) C() <-chan struct{} { return n.ch }

// RedisNotifier carries the wake signal over Redis Pub/Sub so a publish in
// one replica kicks the scheduler wherever it runs.
type RedisNotifier struct {
    rdb *redis.Client
    ch  chan struct{}
}

const wakeChannel = "webhooks:wake"

func NewRedisNotifier(url string) (*RedisNotifier, error) {
    opt, err := redis.ParseURL(url)
    if err != nil { return nil, err }
    rdb := redis.NewClient(opt)
    n := &RedisNotifier{rdb: rdb, ch: make(chan struct{}, 1)}
    ps := rdb.Subscribe(context.Background(), wakeChannel)
    // initial consume to ensure subscription
    _, _ = ps.Receive(context.Background())
    go func() {
        for range ps.Channel() {
            select { case n.ch <- struct{}{}: default: }
        }
    }()
    return n, nil
}

func (n *RedisNotifier) Kick() {
    ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
    defer cancel()
    _ = n.rdb.Publish(ctx, wakeChannel, "1").Err()
}

func (n *RedisNotifier) C() <-chan struct{} { return n.ch }
