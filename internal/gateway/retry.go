package gateway

import (
	"math/rand/v2"
	"time"
)

// #region policy
// RetryPolicy bounds transport retries. MaxRetries counts retries after the first
// attempt; Jitter is a fraction of the delay applied in both directions.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     float64
}

// DefaultRetryPolicy allows 2 retries (3 total attempts).
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Jitter:     0.1,
	}
}

// #endregion policy

// #region delay
// Delay returns the backoff before retry number attempt (0-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt > 30 {
		attempt = 30
	}
	delay := p.BaseDelay * time.Duration(1<<attempt)
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	jitter := int64(float64(delay) * p.Jitter)
	if jitter > 0 {
		//nolint:gosec // jitter does not need a secure source
		delay += time.Duration(rand.Int64N(2*jitter) - jitter)
	}
	return delay
}

// #endregion delay

// #region should-retry
// ShouldRetry reports whether another attempt is allowed after attempts calls
// ended in err. Only transport failures are retried.
func (p RetryPolicy) ShouldRetry(attempts int, err error) bool {
	if err == nil || attempts > p.MaxRetries {
		return false
	}
	kind, ok := KindOf(err)
	return ok && kind == KindTransport
}

// #endregion should-retry
