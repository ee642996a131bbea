package errs

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig configures Retry's exponential backoff.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultRetryConfig is the per-request policy the embedding client uses:
// a handful of retries with a capped exponential backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry runs fn until it succeeds, ctx is done, or MaxRetries is exhausted.
// The context is checked before every attempt and during every wait so a
// cancellation token trips immediately rather than after the next delay.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return New(Cancelled, "retry aborted", ctx.Err())
		default:
		}

		if err := fn(); err != nil {
			lastErr = err
			if attempt >= cfg.MaxRetries {
				break
			}
			wait := delay
			if cfg.Jitter {
				wait = time.Duration(float64(delay) * (0.5 + rand.Float64()*0.5))
			}
			select {
			case <-ctx.Done():
				return New(Cancelled, "retry aborted", ctx.Err())
			case <-time.After(wait):
			}
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
			continue
		}
		return nil
	}
	return New(EmbeddingTransient, "exhausted retries", lastErr)
}
