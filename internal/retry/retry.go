// internal/retry/retry.go
package retry

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
)

// Config defines retry behavior with exponential backoff
type Config struct {
	MaxAttempts    int           // Maximum number of attempts, including the first
	InitialBackoff time.Duration // Initial backoff duration
	MaxBackoff     time.Duration // Maximum backoff duration
	Multiplier     float64       // Backoff multiplier
}

// DefaultConfig returns the configuration used for state writes
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2.0,
	}
}

// permanentError marks an error that must not be retried
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so WithRetry returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// WithRetry executes fn until it succeeds, returns a Permanent error,
// the attempts are exhausted, or ctx is done.
func WithRetry(ctx context.Context, cfg Config, logger zerolog.Logger, fn func() error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 0 {
				logger.Debug().
					Int("attempts", attempt+1).
					Msg("Retry succeeded")
			}
			return nil
		}

		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			logger.Debug().
				Err(err).
				Msg("Error is not retryable")
			return perm.err
		}

		// Don't sleep after the last attempt
		if attempt < cfg.MaxAttempts-1 {
			backoff := calculateBackoff(attempt, cfg)

			logger.Debug().
				Int("attempt", attempt+1).
				Int("max_attempts", cfg.MaxAttempts).
				Dur("backoff", backoff).
				Err(err).
				Msg("Retrying after backoff")

			timer := time.NewTimer(backoff)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			}
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
}

// calculateBackoff calculates the backoff duration for the given attempt
func calculateBackoff(attempt int, cfg Config) time.Duration {
	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	// Exponential backoff: initialBackoff * (multiplier ^ attempt)
	backoff := float64(cfg.InitialBackoff) * math.Pow(multiplier, float64(attempt))

	if cfg.MaxBackoff > 0 && backoff > float64(cfg.MaxBackoff) {
		backoff = float64(cfg.MaxBackoff)
	}

	return time.Duration(backoff)
}
