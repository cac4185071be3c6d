package durable

import (
	"math"
	"slices"
	"time"
)

const (
	DefaultInitialInterval     = time.Second
	DefaultBackoffCoefficient  = 2.0
	DefaultMaximumAttempts     = 3
	DefaultStartToCloseTimeout = 10 * time.Minute
)

// RetryPolicy controls how a failed activity attempt is retried.
// MaximumAttempts counts the first attempt.
type RetryPolicy struct {
	InitialInterval        time.Duration
	BackoffCoefficient     float64
	MaximumInterval        time.Duration
	MaximumAttempts        int
	NonRetryableErrorTypes []string
}

type ActivityOptions struct {
	StartToCloseTimeout time.Duration
	HeartbeatTimeout    time.Duration
	RetryPolicy         RetryPolicy
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.InitialInterval <= 0 {
		p.InitialInterval = DefaultInitialInterval
	}

	if p.BackoffCoefficient < 1 {
		p.BackoffCoefficient = DefaultBackoffCoefficient
	}

	if p.MaximumInterval <= 0 {
		p.MaximumInterval = 100 * p.InitialInterval
	}

	if p.MaximumAttempts <= 0 {
		p.MaximumAttempts = DefaultMaximumAttempts
	}

	return p
}

// Backoff returns the delay after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	p = p.withDefaults()
	if attempt < 1 {
		attempt = 1
	}

	delay := float64(p.InitialInterval) * math.Pow(p.BackoffCoefficient, float64(attempt-1))
	if delay > float64(p.MaximumInterval) || math.IsInf(delay, 0) {
		return p.MaximumInterval
	}

	return time.Duration(delay)
}

// ShouldRetry reports whether another attempt follows the given failed attempt.
func (p RetryPolicy) ShouldRetry(failure *Failure, attempt int) bool {
	p = p.withDefaults()

	if failure == nil || failure.NonRetryable {
		return false
	}

	if slices.Contains(p.NonRetryableErrorTypes, failure.Type) {
		return false
	}

	return attempt < p.MaximumAttempts
}
