// Package pipeline wires the bounded fetch pipeline: a producer streams
// work items into a bounded queue, a fixed pool of workers pulls items and
// fetches them through the resilient client, and the orchestrator owns the
// shutdown protocol and error aggregation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/RNFS/fetchpipe/pkg/client"
	"github.com/RNFS/fetchpipe/pkg/logging"
	"github.com/RNFS/fetchpipe/pkg/queue"
	"github.com/RNFS/fetchpipe/pkg/report"
)

// Prometheus metrics for pipeline runs.
var (
	workersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fetchpipe_workers_active",
		Help: "Number of worker loops currently running",
	})

	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetchpipe_runs_total",
		Help: "Total pipeline runs by result",
	}, []string{"result"})
)

// State is the orchestrator's lifecycle state.
type State string

const (
	// StateIdle is the state before Run is called.
	StateIdle State = "idle"

	// StateRunning means producer and workers are active.
	StateRunning State = "running"

	// StateDraining means the producer finished and the orchestrator is
	// waiting for all admitted work to be acknowledged.
	StateDraining State = "draining"

	// StateShuttingDown means workers have been cancelled and the
	// orchestrator is waiting for them to exit.
	StateShuttingDown State = "shutting_down"

	// StateDone is the terminal state.
	StateDone State = "done"
)

// Summary aggregates per-item outcomes of one pipeline run.
type Summary struct {
	Succeeded int
	TimedOut  int
	Failed    int

	// Failures holds the result of every item that did not succeed.
	Failures []client.Result
}

// Total returns the number of processed items.
func (s Summary) Total() int {
	return s.Succeeded + s.TimedOut + s.Failed
}

// Config holds the orchestrator configuration.
type Config struct {
	// Source streams the work items.
	Source Source

	// Client performs the resilient fetches. The orchestrator opens it
	// on start and closes it on every exit path.
	Client *client.Client

	// Reporter receives per-item outcome events. Defaults to log plus
	// metrics reporting.
	Reporter report.Reporter

	// QueueCapacity bounds buffered work (backpressure threshold C).
	QueueCapacity int

	// Workers is the consumer pool size N.
	Workers int
}

// Orchestrator runs one bounded fetch pipeline. It is one-shot: a second
// Run on the same Orchestrator fails.
type Orchestrator struct {
	cfg      Config
	queue    *queue.Bounded[client.WorkItem]
	reporter report.Reporter
	logger   zerolog.Logger

	mu        sync.Mutex
	state     State
	succeeded int
	timedOut  int
	failed    int
	failures  []client.Result
}

// New creates an orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("client is required")
	}
	if cfg.Workers < 1 {
		return nil, fmt.Errorf("workers must be >= 1 (got %d)", cfg.Workers)
	}

	q, err := queue.NewBounded[client.WorkItem](cfg.QueueCapacity)
	if err != nil {
		return nil, fmt.Errorf("queue: %w", err)
	}

	reporter := cfg.Reporter
	if reporter == nil {
		reporter = report.NewMulti(report.NewLogReporter(), report.NewMetricsReporter())
	}

	return &Orchestrator{
		cfg:      cfg,
		queue:    q,
		reporter: reporter,
		logger:   logging.NewLogger("pipeline"),
		state:    StateIdle,
	}, nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(state State) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
	o.logger.Info().Str("state", string(state)).Msg("State transition")
}

// Run executes the pipeline: open the client, start workers and producer,
// wait for the producer to finish, drain the queue, cancel workers and
// wait for clean shutdown. A fatal failure in the producer or any worker
// cancels every sibling; all non-cancellation failures observed during the
// run are aggregated into the returned error, inspectable via
// multierr.Errors. Per-item retry exhaustion is not fatal; it lands in the
// Summary instead.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	// Claiming the run must be atomic with the idle check, so the
	// transition to Running happens under the same lock.
	o.mu.Lock()
	if o.state != StateIdle {
		state := o.state
		o.mu.Unlock()
		return Summary{}, fmt.Errorf("pipeline already started (state %s)", state)
	}
	o.state = StateRunning
	o.mu.Unlock()
	o.logger.Info().Str("state", string(StateRunning)).Msg("State transition")

	start := time.Now()

	if err := o.cfg.Client.Open(); err != nil {
		o.setState(StateDone)
		runsTotal.WithLabelValues("error").Inc()
		return Summary{}, fmt.Errorf("open client: %w", err)
	}
	defer o.cfg.Client.Close()

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	workerCtx, cancelWorkers := context.WithCancel(runCtx)
	defer cancelWorkers()

	fatals := make(chan error, o.cfg.Workers+1)

	var wg sync.WaitGroup
	for i := 0; i < o.cfg.Workers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := o.runWorker(workerCtx, id); err != nil && !client.IsCancellation(err) {
				fatals <- fmt.Errorf("worker %d: %w", id, err)
				// A fatal worker failure takes down producer and
				// siblings immediately.
				cancelRun()
			}
		}(i)
	}

	producerErr := make(chan error, 1)
	go func() {
		producerErr <- o.produce(runCtx)
	}()

	if err := <-producerErr; err != nil && !client.IsCancellation(err) {
		fatals <- fmt.Errorf("producer: %w", err)
		cancelRun()
	}

	// All produced work must be acknowledged before workers are told to
	// stop. Skipped when the run is already being torn down.
	if runCtx.Err() == nil {
		o.setState(StateDraining)
		if err := o.queue.Drain(runCtx); err == nil {
			o.logger.Info().Msg("Queue drained")
		}
	}

	o.setState(StateShuttingDown)
	cancelWorkers()
	wg.Wait()
	close(fatals)

	var err error
	for fatal := range fatals {
		err = multierr.Append(err, fatal)
	}
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}

	o.setState(StateDone)
	summary := o.summary()

	result := "ok"
	if err != nil {
		result = "error"
	}
	runsTotal.WithLabelValues(result).Inc()

	o.logger.Info().
		Int("succeeded", summary.Succeeded).
		Int("timed_out", summary.TimedOut).
		Int("failed", summary.Failed).
		Dur("duration", time.Since(start)).
		Msg("Pipeline finished")

	return summary, err
}

// produce streams items from the source into the queue, blocking under
// backpressure. Finishing the source normally is the completion signal.
func (o *Orchestrator) produce(ctx context.Context) error {
	count := 0
	for {
		item, err := o.cfg.Source.Next(ctx)
		if errors.Is(err, ErrExhausted) {
			o.logger.Info().Int("items", count).Msg("Producer finished")
			return nil
		}
		if err != nil {
			if client.IsCancellation(err) {
				return err
			}
			return fmt.Errorf("source: %w", err)
		}

		if err := o.queue.Put(ctx, item); err != nil {
			return err
		}
		count++
	}
}

// runWorker is one consumer loop. It terminates only on cancellation or a
// fatal error, and never swallows the cancellation: the error is returned
// so the orchestrator can confirm termination.
func (o *Orchestrator) runWorker(ctx context.Context, id int) error {
	logger := o.logger.With().Int("worker_id", id).Logger()
	logger.Debug().Msg("Worker started")
	workersActive.Inc()
	defer workersActive.Dec()

	for {
		item, err := o.queue.Get(ctx)
		if err != nil {
			logger.Debug().Msg("Worker stopping")
			return err
		}

		if err := o.processItem(ctx, item); err != nil {
			return err
		}
	}
}

// processItem fetches one item and acknowledges its completion on every
// path, including fetch failure and cancellation mid-transfer.
func (o *Orchestrator) processItem(ctx context.Context, item client.WorkItem) (err error) {
	defer func() {
		if doneErr := o.queue.Done(); doneErr != nil && err == nil {
			err = doneErr
		}
	}()

	result, fetchErr := o.cfg.Client.Fetch(ctx, item)
	if fetchErr != nil {
		if client.IsCancellation(fetchErr) {
			return fetchErr
		}
		if errors.Is(fetchErr, client.ErrClosed) {
			return fetchErr
		}
		// Retry exhaustion is a per-item outcome; record and move on.
	}

	o.record(ctx, result)
	return nil
}

// record updates the run counters and hands the outcome to the reporter.
// Reporter failures are logged and dropped; they must not affect the
// pipeline.
func (o *Orchestrator) record(ctx context.Context, result client.Result) {
	o.mu.Lock()
	switch result.Outcome {
	case client.OutcomeSuccess:
		o.succeeded++
	case client.OutcomeTimeout:
		o.timedOut++
		o.failures = append(o.failures, result)
	default:
		o.failed++
		o.failures = append(o.failures, result)
	}
	o.mu.Unlock()

	if err := o.reporter.Report(ctx, result); err != nil {
		o.logger.Warn().
			Err(err).
			Str("item_id", result.Item.ID).
			Msg("Reporter failed, outcome event dropped")
	}
}

func (o *Orchestrator) summary() Summary {
	o.mu.Lock()
	defer o.mu.Unlock()

	failures := make([]client.Result, len(o.failures))
	copy(failures, o.failures)

	return Summary{
		Succeeded: o.succeeded,
		TimedOut:  o.timedOut,
		Failed:    o.failed,
		Failures:  failures,
	}
}
