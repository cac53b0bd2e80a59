package trader

import (
	"errors"
	"time"

	"gridbot/logger"
)

// RetryPolicy retries transient failures with exponential backoff. The
// Retryable and Sleep hooks are injectable for tests.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	BackoffFactor float64
	Retryable     func(error) bool
	Sleep         func(time.Duration)
}

// DefaultRetryPolicy retries up to 3 times with 1s, 2s delays.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:   3,
		BaseDelay:     time.Second,
		BackoffFactor: 2,
		Retryable:     IsRetryable,
		Sleep:         time.Sleep,
	}
}

// Do runs fn, retrying transient errors. A rate-limit error's RetryAfter
// overrides the computed backoff when it is longer.
func (p *RetryPolicy) Do(op string, fn func() error) error {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	delay := p.BaseDelay
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) {
			return lastErr
		}
		if attempt == p.MaxAttempts {
			break
		}

		wait := delay
		var exchErr *ExchangeError
		if errors.As(lastErr, &exchErr) && exchErr.RetryAfter > wait {
			wait = exchErr.RetryAfter
		}

		logger.Warnf("⚠️  %s failed (attempt %d/%d): %v, retrying in %v",
			op, attempt, p.MaxAttempts, lastErr, wait)
		sleep(wait)
		delay = time.Duration(float64(delay) * p.BackoffFactor)
	}
	return lastErr
}
