// Package queue implements a capacity-bounded FIFO work queue with
// completion tracking. Producers block when the queue is full, consumers
// block when it is empty, and Drain waits until every admitted item has
// been acknowledged complete.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for queue state. The gauges are updated by deltas so
// concurrently live queues aggregate instead of overwriting each other.
var (
	queueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fetchpipe_queue_depth",
		Help: "Number of items buffered across all live queues",
	})

	queueOutstanding = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fetchpipe_queue_outstanding",
		Help: "Number of admitted items not yet acknowledged complete, across all live queues",
	})
)

// ErrProtocol is returned when Done is called more times than items were
// admitted. Every Get must be paired with exactly one later Done.
var ErrProtocol = errors.New("done called without matching admission")

// Bounded is a fixed-capacity FIFO queue.
//
// The buffer and the outstanding counter are internally synchronized; a
// producer and any number of consumers may use one queue concurrently.
// "Outstanding" counts items admitted but not yet acknowledged via Done,
// which includes items a consumer currently holds outside the buffer.
// The queue is drained when outstanding reaches zero, a distinct condition
// from the buffer being empty.
type Bounded[T any] struct {
	items chan T

	mu          sync.Mutex
	outstanding int
	drained     chan struct{} // closed while outstanding == 0
}

// NewBounded creates a queue with the given capacity.
func NewBounded[T any](capacity int) (*Bounded[T], error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive (got %d)", capacity)
	}

	drained := make(chan struct{})
	close(drained)

	return &Bounded[T]{
		items:   make(chan T, capacity),
		drained: drained,
	}, nil
}

// Put admits an item, blocking while the queue is full. Backpressure is
// purely temporal: items are never dropped. Returns the context error if
// ctx is cancelled while waiting for space.
func (q *Bounded[T]) Put(ctx context.Context, item T) error {
	// Reserve the outstanding slot before the send so a consumer that
	// receives the item immediately cannot observe a stale count.
	q.track(1)

	select {
	case q.items <- item:
		queueDepth.Inc()
		return nil
	case <-ctx.Done():
		q.untrack()
		return ctx.Err()
	}
}

// Get removes and returns the FIFO head, blocking while the queue is
// empty. Concurrent callers each receive a distinct item.
func (q *Bounded[T]) Get(ctx context.Context) (T, error) {
	select {
	case item := <-q.items:
		queueDepth.Dec()
		return item, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done acknowledges completion of one previously admitted item. Returns
// ErrProtocol if called more times than items were admitted.
func (q *Bounded[T]) Done() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.outstanding == 0 {
		return ErrProtocol
	}

	q.outstanding--
	queueOutstanding.Dec()
	if q.outstanding == 0 {
		close(q.drained)
	}
	return nil
}

// Drain blocks until every admitted item has been acknowledged via Done.
// Returns immediately when nothing is outstanding.
func (q *Bounded[T]) Drain(ctx context.Context) error {
	q.mu.Lock()
	drained := q.drained
	q.mu.Unlock()

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len returns the number of currently buffered items.
func (q *Bounded[T]) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *Bounded[T]) Cap() int {
	return cap(q.items)
}

// Outstanding returns the number of admitted items not yet acknowledged.
func (q *Bounded[T]) Outstanding() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.outstanding
}

// track reserves n outstanding slots, re-arming the drained signal on the
// zero to non-zero transition.
func (q *Bounded[T]) track(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.outstanding == 0 {
		q.drained = make(chan struct{})
	}
	q.outstanding += n
	queueOutstanding.Add(float64(n))
}

// untrack rolls back a reservation made by track when the corresponding
// admission did not happen (cancelled Put).
func (q *Bounded[T]) untrack() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.outstanding--
	queueOutstanding.Dec()
	if q.outstanding == 0 {
		close(q.drained)
	}
}
