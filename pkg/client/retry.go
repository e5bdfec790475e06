package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for retry operations.
var (
	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetchpipe_retries_total",
		Help: "Total number of retry attempts by error kind",
	}, []string{"error_kind"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fetchpipe_retry_backoff_seconds",
		Help:    "Backoff duration between attempts by error kind",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"error_kind"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetchpipe_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error kind",
	}, []string{"error_kind"})
)

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts (including the first).
	MaxAttempts int

	// BaseDelay is the wait unit between attempts. The wait before
	// attempt n+1 is BaseDelay * n (linear backoff).
	BaseDelay time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
	}
}

func (c RetryConfig) validate() error {
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be >= 1 (got %d)", c.MaxAttempts)
	}
	if c.BaseDelay <= 0 {
		return fmt.Errorf("base delay must be positive (got %v)", c.BaseDelay)
	}
	return nil
}

// errKind labels an attempt error for metrics and logs.
func errKind(err error) string {
	if errors.Is(err, ErrAttemptTimeout) {
		return "timeout"
	}
	return "transfer"
}

// retryLinear executes fn with linear backoff. Cancellation is never
// retried; it aborts remaining attempts immediately, including during a
// backoff wait. Returns the number of attempts used alongside the final
// error.
func retryLinear(ctx context.Context, cfg RetryConfig, logger zerolog.Logger, fn func(attempt int) error) (int, error) {
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info().
					Int("attempt", attempt).
					Msg("Fetch succeeded after retry")
			}
			return attempt, nil
		}

		lastErr = err

		if !shouldRetry(err) {
			return attempt, err
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		kind := errKind(err)
		wait := cfg.BaseDelay * time.Duration(attempt)
		retriesTotal.WithLabelValues(kind).Inc()
		retryBackoffSeconds.WithLabelValues(kind).Observe(wait.Seconds())

		logger.Warn().
			Err(err).
			Str("error_kind", kind).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("Retrying after backoff")

		select {
		case <-ctx.Done():
			logger.Warn().
				Int("attempt", attempt).
				Msg("Cancelled during retry backoff")
			return attempt, ctx.Err()
		case <-time.After(wait):
		}
	}

	kind := errKind(lastErr)
	retryExhaustedTotal.WithLabelValues(kind).Inc()
	logger.Warn().
		Err(lastErr).
		Str("error_kind", kind).
		Int("max_attempts", cfg.MaxAttempts).
		Msg("Retry attempts exhausted")

	// Keep the last error's kind inspectable through the wrap.
	return cfg.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, cfg.MaxAttempts, lastErr)
}
