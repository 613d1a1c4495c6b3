package llm

import (
	"math/rand/v2"
	"time"
)

// RetryConfig controls how chat-completion requests are retried on transient
// failures.
type RetryConfig struct {
	// MaxAttempts bounds the total number of attempts, including the first.
	MaxAttempts int

	// BackoffBase is the delay before the first retry.
	BackoffBase time.Duration

	// BackoffMultiplier grows the delay on each subsequent retry.
	BackoffMultiplier float64

	// MaxBackoff caps the delay regardless of attempt count.
	MaxBackoff time.Duration
}

// DefaultRetryConfig returns the defaults used by NewClient. Three attempts
// with a 2s base keeps total worst-case latency under the extraction deadline.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		BackoffBase:       2 * time.Second,
		BackoffMultiplier: 2.0,
		MaxBackoff:        30 * time.Second,
	}
}

// backoff returns the delay to wait after the given attempt, with +/- 25%
// jitter so concurrent workers do not retry in lockstep.
func (r RetryConfig) backoff(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= r.BackoffMultiplier
	}

	d := time.Duration(float64(r.BackoffBase) * multiplier)
	if d > r.MaxBackoff {
		d = r.MaxBackoff
	}

	jitter := float64(d) * 0.25 * (rand.Float64()*2 - 1)
	return d + time.Duration(jitter)
}
