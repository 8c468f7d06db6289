package providers

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds retries of rate-limit and transport failures.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy retries three times starting at one second.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// Retryable reports whether err is worth another attempt.
func Retryable(err error) bool {
	var rl *RateLimitError
	var te *TransportError
	return errors.As(err, &rl) || errors.As(err, &te)
}

// Retry calls fn until it succeeds, returns a non-retryable error, or the
// policy is exhausted. Delays double from BaseDelay; a longer Retry-After
// from the server wins, capped at MaxDelay.
func Retry(ctx context.Context, p RetryPolicy, fn func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) || ctx.Err() != nil {
			return lastErr
		}
		if attempt == p.MaxRetries {
			break
		}

		backoff := p.BaseDelay << uint(attempt)
		var rl *RateLimitError
		if errors.As(lastErr, &rl) && rl.RetryAfter > backoff {
			backoff = rl.RetryAfter
		}
		if p.MaxDelay > 0 && backoff > p.MaxDelay {
			backoff = p.MaxDelay
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
