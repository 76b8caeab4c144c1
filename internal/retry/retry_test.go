package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errFlaky = errors.New("connection reset")

func noSleep(_ context.Context, _ time.Duration) error { return nil }

func TestDo_RetriesTransientUntilSuccess(t *testing.T) {
	p := New(3, time.Second, Always)
	var waits []time.Duration
	p.Sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	calls := 0
	err := p.Do(context.Background(), "fetch", func() error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if len(waits) != 2 || waits[0] != time.Second || waits[1] != 2*time.Second {
		t.Errorf("unexpected backoff sequence: %v", waits)
	}
}

func TestDo_ExhaustionWrapsLastError(t *testing.T) {
	p := New(3, time.Millisecond, Always)
	p.Sleep = noSleep
	calls := 0
	err := p.Do(context.Background(), "fetch", func() error {
		calls++
		return errFlaky
	})
	if !errors.Is(err, errFlaky) {
		t.Fatalf("expected wrapped errFlaky, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_NonRetryableSurfacesImmediately(t *testing.T) {
	rejected := errors.New("insufficient margin")
	p := New(5, time.Millisecond, func(err error) bool { return !errors.Is(err, rejected) })
	p.Sleep = noSleep
	calls := 0
	err := p.Do(context.Background(), "order", func() error {
		calls++
		return rejected
	})
	if err != rejected {
		t.Fatalf("expected the rejection unwrapped, got %v", err)
	}
	if calls != 1 {
		t.Errorf("rejections must not be retried, got %d calls", calls)
	}
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	p := New(3, time.Hour, Always)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Do(ctx, "fetch", func() error { return errFlaky })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBackoff(t *testing.T) {
	p := New(4, 2*time.Second, nil)
	for attempt, want := range map[int]time.Duration{1: 2 * time.Second, 2: 4 * time.Second, 3: 8 * time.Second} {
		if got := p.Backoff(attempt); got != want {
			t.Errorf("attempt %d: expected %v, got %v", attempt, want, got)
		}
	}
}
