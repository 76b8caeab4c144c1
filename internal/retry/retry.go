package retry

import (
	"context"
	"fmt"
	"log"
	"time"
)

// Policy retries an operation with exponential backoff. Errors for which
// Retryable returns false surface immediately.
type Policy struct {
	MaxAttempts int
	Base        time.Duration
	Retryable   func(error) bool
	// Sleep waits between attempts; nil means a context-aware time.After.
	Sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Policy. A nil predicate retries every error.
func New(maxAttempts int, base time.Duration, retryable func(error) bool) *Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Policy{MaxAttempts: maxAttempts, Base: base, Retryable: retryable}
}

// Always retries every error.
func Always(error) bool { return true }

// Backoff returns the wait after the given failed attempt (1-based): Base * 2^(attempt-1).
func (p *Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.Base * time.Duration(1<<uint(attempt-1))
}

// With returns a copy of the policy using a different predicate.
func (p *Policy) With(retryable func(error) bool) *Policy {
	cp := *p
	cp.Retryable = retryable
	return &cp
}

// Do runs fn until it succeeds, returns a non-retryable error, or attempts are exhausted.
func (p *Policy) Do(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		if attempt == p.MaxAttempts {
			break
		}
		backoff := p.Backoff(attempt)
		log.Printf("[WARN] %s failed (attempt %d/%d): %v, retrying in %v", op, attempt, p.MaxAttempts, err, backoff)
		if err := p.sleep(ctx, backoff); err != nil {
			return err
		}
	}
	log.Printf("[ERROR] %s failed after %d attempts: %v", op, p.MaxAttempts, lastErr)
	return fmt.Errorf("%s: all %d attempts exhausted: %w", op, p.MaxAttempts, lastErr)
}

func (p *Policy) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
