package transport

import (
	"slices"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	// DefaultMaxRetries is the number of re-attempts after the first request.
	DefaultMaxRetries = 5

	// DefaultBackoffFactor is the base of the exponential backoff.
	DefaultBackoffFactor = time.Second

	// DefaultMaxBackoff caps a single wait between attempts.
	DefaultMaxBackoff = 120 * time.Second
)

// DefaultRetryStatuses are the server errors that trigger a re-attempt.
var DefaultRetryStatuses = []int{500, 502, 503, 504}

// RetryPolicy controls how many times and how quickly a request is re-attempted.
// Only responses whose status is listed in RetryStatuses are retried.
type RetryPolicy struct {
	MaxRetries    int
	BackoffFactor time.Duration
	MaxBackoff    time.Duration
	RetryStatuses []int
}

// DefaultRetryPolicy returns 5 retries with 1s exponential backoff on 500/502/503/504.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    DefaultMaxRetries,
		BackoffFactor: DefaultBackoffFactor,
		MaxBackoff:    DefaultMaxBackoff,
		RetryStatuses: slices.Clone(DefaultRetryStatuses),
	}
}

// MaxAttempts returns the total number of requests the policy allows.
func (p RetryPolicy) MaxAttempts() int {
	if p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Retryable reports whether a response status should be re-attempted.
func (p RetryPolicy) Retryable(status int) bool {
	return slices.Contains(p.RetryStatuses, status)
}

// newBackOff builds a fresh backoff sequence: factor, 2*factor, 4*factor, ... capped at MaxBackoff.
func (p RetryPolicy) newBackOff() backoff.BackOff {
	if p.BackoffFactor <= 0 {
		return &backoff.ZeroBackOff{}
	}
	maxInterval := p.MaxBackoff
	if maxInterval <= 0 {
		maxInterval = DefaultMaxBackoff
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.BackoffFactor,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxInterval,
	}
	b.Reset()
	return b
}
