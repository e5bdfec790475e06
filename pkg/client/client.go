// Package client provides the resilient fetch client: a concurrency-limited,
// rate-limited, retried and timeout-bounded wrapper around a transfer
// collaborator.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/RNFS/fetchpipe/pkg/logging"
	"github.com/RNFS/fetchpipe/pkg/throttle"
)

// Prometheus metrics for fetch operations.
var (
	fetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetchpipe_fetches_total",
		Help: "Total fetches by outcome",
	}, []string{"outcome"})

	fetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fetchpipe_fetch_duration_seconds",
		Help:    "Fetch duration in seconds, including retries",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	})

	inflightTransfers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fetchpipe_inflight_transfers",
		Help: "Number of transfer attempts currently holding a permit",
	})
)

// Transferer performs the underlying transfer for one item. The client
// treats it as an opaque, retryable, cancellable operation; implementations
// must honor context cancellation.
type Transferer interface {
	Transfer(ctx context.Context, item WorkItem) ([]byte, error)
}

// Lifecycle states of the client.
const (
	stateNew = iota
	stateOpen
	stateClosed
)

// Client is the resilient fetch client. It owns a fixed-size concurrency
// semaphore bounding in-flight transfers, independent of any queue feeding
// it, and applies retry, throttling and a per-attempt timeout around a
// Transferer.
type Client struct {
	transfer Transferer
	permits  chan struct{}
	config   Config
	logger   zerolog.Logger

	mu    sync.Mutex
	state int
}

// Config holds the client configuration.
type Config struct {
	// Transfer is the collaborator performing the actual transfers.
	Transfer Transferer

	// MaxConcurrency bounds in-flight transfer attempts.
	MaxConcurrency int

	// Timeout bounds each individual attempt.
	Timeout time.Duration

	// Retry configures attempts and linear backoff.
	Retry RetryConfig

	// Throttle optionally enforces a minimum interval between attempts.
	// A shared Limiter paces all callers together; nil disables pacing.
	Throttle *throttle.Limiter
}

// DefaultConfig returns a safe default configuration around the given
// transfer collaborator.
func DefaultConfig(transfer Transferer) Config {
	return Config{
		Transfer:       transfer,
		MaxConcurrency: 5,
		Timeout:        10 * time.Second,
		Retry:          DefaultRetryConfig(),
	}
}

// New creates a new client. The client starts closed; call Open before
// fetching.
func New(cfg Config) (*Client, error) {
	if cfg.Transfer == nil {
		return nil, fmt.Errorf("transfer collaborator is required")
	}
	if cfg.MaxConcurrency < 1 {
		return nil, fmt.Errorf("max concurrency must be >= 1 (got %d)", cfg.MaxConcurrency)
	}
	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %v)", cfg.Timeout)
	}
	if err := cfg.Retry.validate(); err != nil {
		return nil, fmt.Errorf("retry config: %w", err)
	}

	return &Client{
		transfer: cfg.Transfer,
		permits:  make(chan struct{}, cfg.MaxConcurrency),
		config:   cfg,
		logger:   logging.NewLogger("client"),
	}, nil
}

// Open transitions the client to its open state. Opening an already open
// client is a no-op; a client that has been closed cannot be reopened.
func (c *Client) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case stateOpen:
		return nil
	case stateClosed:
		return ErrClosed
	}

	c.state = stateOpen
	c.logger.Debug().Int("max_concurrency", c.config.MaxConcurrency).Msg("Client opened")
	return nil
}

// Close transitions the client to closed. Safe to call on every exit path;
// closing an already closed or never opened client does not fail.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != stateClosed {
		c.state = stateClosed
		c.logger.Debug().Msg("Client closed")
	}
	return nil
}

func (c *Client) isOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateOpen
}

// Fetch performs the resilient fetch for one item: acquire a permit,
// bound the attempt by the configured timeout, retry transient failures
// with linear backoff, and classify the terminal outcome. Fails with
// ErrClosed when the client is not open. Cancellation aborts remaining
// attempts and propagates; the returned Result is populated either way so
// callers can report it.
func (c *Client) Fetch(ctx context.Context, item WorkItem) (Result, error) {
	if !c.isOpen() {
		return Result{Item: item}, ErrClosed
	}

	logger := c.logger.With().Str("item_id", item.ID).Str("url", item.URL).Logger()

	start := time.Now()
	var size int
	attempts, err := retryLinear(ctx, c.config.Retry, logger, func(attempt int) error {
		n, attemptErr := c.attempt(ctx, item)
		if attemptErr != nil {
			return attemptErr
		}
		size = n
		return nil
	})

	result := Result{
		Item:     item,
		Attempts: attempts,
		Size:     size,
		Duration: time.Since(start),
	}
	fetchDuration.Observe(result.Duration.Seconds())

	if err != nil {
		if IsCancellation(err) {
			fetchesTotal.WithLabelValues("cancelled").Inc()
			return result, err
		}
		result.Outcome = outcomeFor(err)
		result.Err = err
		fetchesTotal.WithLabelValues(string(result.Outcome)).Inc()
		return result, err
	}

	result.Outcome = OutcomeSuccess
	fetchesTotal.WithLabelValues(string(OutcomeSuccess)).Inc()
	logger.Debug().
		Int("attempts", attempts).
		Int("size", size).
		Dur("duration", result.Duration).
		Msg("Fetch succeeded")
	return result, nil
}

// attempt runs one permit-guarded, timeout-bounded transfer attempt.
func (c *Client) attempt(ctx context.Context, item WorkItem) (int, error) {
	select {
	case c.permits <- struct{}{}:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	inflightTransfers.Inc()
	release := func() {
		<-c.permits
		inflightTransfers.Dec()
	}

	if c.config.Throttle != nil {
		if err := c.config.Throttle.Allow(ctx); err != nil {
			release()
			return 0, err
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	type transferResult struct {
		size int
		err  error
	}
	resc := make(chan transferResult, 1)
	// The transfer goroutine owns the permit: a timed-out attempt can
	// return while a transfer that ignores its context is still running,
	// and that transfer keeps counting against the concurrency cap until
	// it returns.
	go func() {
		defer release()
		data, err := c.transfer.Transfer(attemptCtx, item)
		resc <- transferResult{size: len(data), err: err}
	}()

	select {
	case res := <-resc:
		if res.err == nil {
			return res.size, nil
		}
		// The whole task being cancelled propagates as-is; the attempt
		// deadline alone surfaces as the retryable timeout kind.
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if attemptCtx.Err() == context.DeadlineExceeded {
			return 0, fmt.Errorf("%w: %v", ErrAttemptTimeout, res.err)
		}
		return 0, &TransferError{ItemID: item.ID, URL: item.URL, Err: res.err}
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, ErrAttemptTimeout
	}
}
