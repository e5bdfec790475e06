// Package report delivers per-item outcome events to observability sinks.
// Reporters are fire-and-forget from the pipeline's point of view: a
// failing sink is logged and never affects pipeline correctness.
package report

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/RNFS/fetchpipe/pkg/client"
	"github.com/RNFS/fetchpipe/pkg/logging"
)

// Prometheus metrics for reported outcomes.
var (
	itemsReportedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fetchpipe_items_reported_total",
		Help: "Total reported items by outcome",
	}, []string{"outcome"})

	itemAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fetchpipe_item_attempts",
		Help:    "Attempts used per item",
		Buckets: []float64{1, 2, 3, 4, 5, 8},
	})
)

// Reporter receives one outcome event per processed item.
type Reporter interface {
	Report(ctx context.Context, result client.Result) error
}

// LogReporter writes outcome events to the structured log.
type LogReporter struct {
	logger zerolog.Logger
}

// NewLogReporter creates a LogReporter on the global logger.
func NewLogReporter() *LogReporter {
	return &LogReporter{logger: logging.NewLogger("report")}
}

// Report logs one outcome event. Successes log at info, everything else
// at warn.
func (r *LogReporter) Report(ctx context.Context, result client.Result) error {
	event := r.logger.Info()
	if result.Outcome != client.OutcomeSuccess {
		event = r.logger.Warn().Err(result.Err)
	}

	event.
		Str("item_id", result.Item.ID).
		Str("url", result.Item.URL).
		Str("outcome", string(result.Outcome)).
		Int("attempts", result.Attempts).
		Int("size", result.Size).
		Dur("duration", result.Duration).
		Msg("Item processed")
	return nil
}

// MetricsReporter records outcome events as Prometheus metrics.
type MetricsReporter struct{}

// NewMetricsReporter creates a MetricsReporter.
func NewMetricsReporter() *MetricsReporter {
	return &MetricsReporter{}
}

// Report updates the outcome counters.
func (r *MetricsReporter) Report(ctx context.Context, result client.Result) error {
	itemsReportedTotal.WithLabelValues(string(result.Outcome)).Inc()
	itemAttempts.Observe(float64(result.Attempts))
	return nil
}

// Multi fans one outcome event out to several reporters. Every reporter
// is invoked even when earlier ones fail; their errors are combined.
type Multi struct {
	reporters []Reporter
}

// NewMulti creates a fan-out reporter.
func NewMulti(reporters ...Reporter) *Multi {
	return &Multi{reporters: reporters}
}

// Report delivers the event to all reporters.
func (m *Multi) Report(ctx context.Context, result client.Result) error {
	var err error
	for _, r := range m.reporters {
		err = multierr.Append(err, r.Report(ctx, result))
	}
	return err
}
