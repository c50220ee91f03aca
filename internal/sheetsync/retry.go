package sheetsync

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig controls redelivery of a failed intent. MaxRetries 0 means one
// attempt only.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
	Jitter     bool
	Retryable  func(error) bool
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 0,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

type retrier struct {
	cfg RetryConfig
	log zerolog.Logger
}

// execute runs fn until it succeeds, the retries are used up, the error is not
// retryable or ctx ends.
func (r *retrier) execute(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				r.log.Info().Int("attempt", attempt+1).Msg("delivered after retries")
			}
			return nil
		}
		lastErr = err

		if r.cfg.Retryable != nil && !r.cfg.Retryable(err) {
			return err
		}
		if attempt == r.cfg.MaxRetries {
			break
		}

		delay := r.delay(attempt)
		r.log.Debug().Err(err).Int("attempt", attempt+1).Dur("delay", delay).Msg("delivery failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	if r.cfg.MaxRetries == 0 {
		return lastErr
	}
	return fmt.Errorf("retry limit exceeded after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}

func (r *retrier) delay(attempt int) time.Duration {
	mult := r.cfg.Multiplier
	if mult <= 0 {
		mult = 2
	}
	d := float64(r.cfg.BaseDelay) * math.Pow(mult, float64(attempt))
	if r.cfg.MaxDelay > 0 && d > float64(r.cfg.MaxDelay) {
		d = float64(r.cfg.MaxDelay)
	}
	if r.cfg.Jitter {
		d += d * 0.1 * rand.Float64()
	}
	return time.Duration(d)
}
