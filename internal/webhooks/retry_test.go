package webhooks

import (
    "testing"
    "time"
)

func TestBackoffTable(t *testing.T) {
    want := []time.Duration{
        60 * time.Second,
        300 * time.Second,
        900 * time.Second,
        3600 * time.Second,
        21600 * time.Second,
    }
    for i, w := range want {
        if got := Backoff(i + 1); got != w {
            t.Fatalf("attempt %d: got %v want %v", i+1, got, w)
        }
    }
}

func TestBackoffClamps(t *testing.T) {
    if got := Backoff(0); got != 60*time.Second {
        t.Fatalf("underflow: got %v", got)
    }
    if got := Backoff(99); got != 21600*time.Second {
        t.Fatalf("overflow: got %v", got)
    }
}

func TestExhausted(t *testing.T) {
    for n := 1; n < MaxAttempts; n++ {
        if Exhausted(n, MaxAttempts) {
            t.Fatalf("attempt %d should not be terminal", n)
        }
    }
    if !Exhausted(MaxAttempts, MaxAttempts) {
        t.Fatalf("attempt %d should be terminal", MaxAttempts)
    }
    if !Exhausted(MaxAttempts+1, MaxAttempts) {
        t.Fatalf("past max should be terminal")
    }
    // zero maxAttempts falls back to the default
    if Exhausted(1, 0) || !Exhausted(5, 0) {
        t.Fatalf("default maxAttempts not applied")
    }
}
