package upstream

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// RetryConfig holds the backoff parameters.
type RetryConfig struct {
	// MaxAttempts counts the initial request.
	MaxAttempts int

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	BackoffMultiplier float64

	// RateLimitFactor scales the backoff after a 429.
	RateLimitFactor float64
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		RateLimitFactor:   4.0,
	}
}

// backoffFor returns the wait before the attempt following attempt (1-based).
func (c RetryConfig) backoffFor(class ErrorClass, attempt int) time.Duration {
	backoff := float64(c.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= c.BackoffMultiplier
	}
	if class == ErrorClassRateLimit && c.RateLimitFactor > 0 {
		backoff *= c.RateLimitFactor
	}
	if limit := float64(c.MaxBackoff); c.MaxBackoff > 0 && backoff > limit {
		backoff = limit
	}
	return time.Duration(backoff)
}

// attemptFunc performs one attempt and reports how it failed.
type attemptFunc func() (ErrorClass, error)

// retryWithBackoff runs fn until it succeeds, fails with a non-retriable
// class, or MaxAttempts is reached. Waits use ±20% jitter and end early
// when ctx is done.
func retryWithBackoff(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, fn attemptFunc) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		lastErr error
		class   ErrorClass
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		class, lastErr = fn()
		if lastErr == nil {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Upstream request succeeded after retry")
			}
			return nil
		}

		if !shouldRetry(class) {
			return lastErr
		}
		if attempt == attempts {
			break
		}

		retriesTotal.WithLabelValues(string(class)).Inc()

		backoff := cfg.backoffFor(class, attempt)
		jitter := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		retryBackoffSeconds.WithLabelValues(string(class)).Observe(jitter.Seconds())

		logger.Warn().
			Err(lastErr).
			Str("error_class", string(class)).
			Int("attempt", attempt).
			Dur("backoff", jitter).
			Msg("Retrying upstream request")

		timer := time.NewTimer(jitter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %w", ErrContextCancelled, ctx.Err())
		case <-timer.C:
		}
	}

	retryExhaustedTotal.WithLabelValues(string(class)).Inc()
	logger.Warn().
		Str("error_class", string(class)).
		Int("max_attempts", attempts).
		Msg("Upstream retry attempts exhausted")

	return fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, lastErr)
}
