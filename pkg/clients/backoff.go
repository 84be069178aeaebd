package clients

import "time"

// BackoffPolicy computes retry delays for failed requests. Delays are
// deterministic (no jitter): the pipeline issues requests strictly
// sequentially, so there is no thundering-herd concern, and deterministic
// waits keep rate-limit behavior reproducible.
type BackoffPolicy struct {
	// Initial is the delay before the first retry
	Initial time.Duration
	// Max caps the delay growth
	Max time.Duration
	// Multiplier scales the delay each attempt
	Multiplier float64
}

// NewBackoffPolicy returns an exponential policy doubling from initial up
// to max.
func NewBackoffPolicy(initial, max time.Duration) *BackoffPolicy {
	return &BackoffPolicy{
		Initial:    initial,
		Max:        max,
		Multiplier: 2.0,
	}
}

// Delay returns the wait duration before retrying after the given failed
// attempt (zero-based). Pure: no clock access, no sleeping.
func (p *BackoffPolicy) Delay(attempt int) time.Duration {
	delay := float64(p.Initial)
	for i := 0; i < attempt; i++ {
		delay *= p.Multiplier
		if delay >= float64(p.Max) {
			return p.Max
		}
	}
	if delay > float64(p.Max) {
		return p.Max
	}
	return time.Duration(delay)
}
