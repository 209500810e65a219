package resilience

import (
	"context"
	"fmt"
	"time"
)

// RetryStrategy retries an operation with exponential backoff. It is used by
// sink adapters for connection establishment; the pipeline driver never
// sleeps on it, so backoff cannot stall batch dispatch.
type RetryStrategy struct {
	cfg Config
}

// NewRetryStrategy builds a strategy from the resilience config.
func NewRetryStrategy(cfg Config) *RetryStrategy {
	cfg.ApplyDefaults()
	return &RetryStrategy{cfg: cfg}
}

// Do runs fn up to MaxRetries times, sleeping between attempts with the
// backoff doubling (capped at MaxBackoff). Returns ErrRetryExhausted wrapping
// the last error once the attempts are spent, or the context error if the
// context is cancelled while waiting.
func (r *RetryStrategy) Do(ctx context.Context, fn func() error) error {
	backoff := r.cfg.InitialBackoff
	var lastErr error

	for attempt := 0; attempt < r.cfg.MaxRetries; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}

		if attempt == r.cfg.MaxRetries-1 {
			break
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		backoff = time.Duration(float64(backoff) * r.cfg.BackoffMultiplier)
		if backoff > r.cfg.MaxBackoff {
			backoff = r.cfg.MaxBackoff
		}
	}

	return fmt.Errorf("%w: %v", ErrRetryExhausted, lastErr)
}
