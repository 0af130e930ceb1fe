// Package retry runs an operation with a bounded number of attempts, a fixed
// backoff between attempts and an overall timeout.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Policy configures Do.
type Policy struct {
	// Attempts is the maximum number of calls (default 3).
	Attempts int
	// Backoff is the fixed delay between attempts (default 2s).
	Backoff time.Duration
	// Timeout bounds all attempts and backoffs together. Zero means no
	// timeout beyond the caller's context.
	Timeout time.Duration
	// Name labels log lines.
	Name string
}

// DefaultPolicy returns 3 attempts with a 2s backoff under a 30s timeout.
func DefaultPolicy() Policy {
	return Policy{
		Attempts: 3,
		Backoff:  2 * time.Second,
		Timeout:  30 * time.Second,
	}
}

// Func is one attempt. It should return promptly once ctx is done.
type Func func(ctx context.Context) error

// ErrExhausted is wrapped by the error Do returns after every attempt failed.
var ErrExhausted = errors.New("retries exhausted")

// Do calls fn until it succeeds, the attempts are used up, or the timeout or
// parent context expires. It returns the number of attempts made. On
// failure the error wraps both the last attempt's error and either
// ErrExhausted or the context error.
func Do(ctx context.Context, p Policy, fn Func) (int, error) {
	if p.Attempts < 1 {
		p.Attempts = 1
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, wrap(p, err, lastErr)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return attempt, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt, wrap(p, ctxErr, lastErr)
		}

		if attempt >= p.Attempts {
			return attempt, fmt.Errorf("%w after %d attempts: %w", ErrExhausted, attempt, lastErr)
		}

		log.Printf("%s attempt %d/%d failed: %v; retrying in %s", label(p), attempt, p.Attempts, lastErr, p.Backoff)

		if p.Backoff > 0 {
			timer := time.NewTimer(p.Backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return attempt, wrap(p, ctx.Err(), lastErr)
			}
		}
	}
}

func wrap(p Policy, ctxErr, lastErr error) error {
	if lastErr == nil {
		return fmt.Errorf("%s: %w", label(p), ctxErr)
	}
	return fmt.Errorf("%s: %w: %w", label(p), ctxErr, lastErr)
}

func label(p Policy) string {
	if p.Name == "" {
		return "operation"
	}
	return p.Name
}
