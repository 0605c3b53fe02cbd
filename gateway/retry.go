package gateway

import (
	"math/rand"
	"time"
)

// retryConfig mirrors spec §4.6 step 7 exactly: base 100ms, factor 2, cap
// 2s, full jitter. Grounded on the teacher's
// infrastructure/resilience/retry.go RetryConfig/nextDelay/addJitter, which
// uses the identical base/multiplier/cap/full-jitter shape.
type retryConfig struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	multiplier  float64
}

func defaultRetryConfig(budget int) retryConfig {
	return retryConfig{
		maxAttempts: budget,
		baseDelay:   100 * time.Millisecond,
		maxDelay:    2 * time.Second,
		multiplier:  2,
	}
}

// nextDelay returns the full-jitter backoff for the given zero-based
// attempt index.
func (c retryConfig) nextDelay(attempt int) time.Duration {
	delay := float64(c.baseDelay)
	for i := 0; i < attempt; i++ {
		delay *= c.multiplier
	}
	if delay > float64(c.maxDelay) {
		delay = float64(c.maxDelay)
	}
	return time.Duration(rand.Int63n(int64(delay) + 1))
}

// isIdempotent reports whether method is safe to retry without an explicit
// override.
func isIdempotent(method string) bool {
	switch method {
	case "GET", "HEAD", "PUT", "DELETE", "OPTIONS":
		return true
	default:
		return false
	}
}
