package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	r := NewRetryStrategy(Config{
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
	})

	attempts := 0
	err := r.Do(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	r := NewRetryStrategy(Config{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	})

	attempts := 0
	err := r.Do(context.Background(), func() error {
		attempts++
		return errors.New("door stays shut")
	})
	if !errors.Is(err, ErrRetryExhausted) {
		t.Fatalf("expected ErrRetryExhausted, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected exactly MaxRetries attempts, got %d", attempts)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	r := NewRetryStrategy(Config{
		MaxRetries:     5,
		InitialBackoff: time.Hour,
		MaxBackoff:     time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := r.Do(ctx, func() error {
		attempts++
		return errors.New("still failing")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected cancellation during first backoff, got %d attempts", attempts)
	}
}
