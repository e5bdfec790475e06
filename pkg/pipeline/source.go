package pipeline

import (
	"context"
	"errors"
	"sync"

	"github.com/RNFS/fetchpipe/pkg/client"
)

// ErrExhausted is returned by a Source once its sequence is fully
// traversed. One-shot sources keep returning it on every later call.
var ErrExhausted = errors.New("source exhausted")

// Source streams WorkItems to the producer. Next may block (on I/O, on a
// paginated API) and must honor context cancellation; such suspensions
// compose with the producer's own backpressure waits.
type Source interface {
	Next(ctx context.Context) (client.WorkItem, error)
}

// SliceSource serves a fixed set of items. It is one-shot: after one full
// traversal it stays exhausted, it does not restart.
type SliceSource struct {
	mu    sync.Mutex
	items []client.WorkItem
	pos   int
}

// NewSliceSource builds a one-shot source over the given URLs.
func NewSliceSource(urls ...string) *SliceSource {
	items := make([]client.WorkItem, 0, len(urls))
	for _, url := range urls {
		items = append(items, client.NewWorkItem(url))
	}
	return &SliceSource{items: items}
}

// FromItems builds a one-shot source over prepared items.
func FromItems(items []client.WorkItem) *SliceSource {
	return &SliceSource{items: items}
}

// Next returns the next item or ErrExhausted at the terminal state.
func (s *SliceSource) Next(ctx context.Context) (client.WorkItem, error) {
	if err := ctx.Err(); err != nil {
		return client.WorkItem{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pos >= len(s.items) {
		return client.WorkItem{}, ErrExhausted
	}

	item := s.items[s.pos]
	s.pos++
	return item, nil
}

// Remaining returns how many items have not been handed out yet.
func (s *SliceSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items) - s.pos
}
