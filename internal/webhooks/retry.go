package webhooks

import "time"

// MaxAttempts is how many times one delivery is tried before it is dropped.
const MaxAttempts = 5

// backoffTable holds the delay after the nth failed attempt (1-based).
var backoffTable = []time.Duration{
    60 * time.Second,
    300 * time.Second,
    900 * time.Second,
    3600 * time.Second,
    21600 * time.Second,
}

// Backoff returns the retry delay after a failure of the given attempt
// number. The index clamps to the last table entry.
func Backoff(attemptNumber int) time.Duration {
    if attemptNumber < 1 {
        attemptNumber = 1
    }
    if attemptNumber > len(backoffTable) {
        attemptNumber = len(backoffTable)
    }
    return backoffTable[attemptNumber-1]
}

// Exhausted reports whether a failure at attemptNumber is terminal.
func Exhausted(attemptNumber, maxAttempts int) bool {
    if maxAttempts <= 0 {
        maxAttempts = MaxAttempts
    }
    return attemptNumber >= maxAttempts
}
