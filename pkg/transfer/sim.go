package transfer

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/RNFS/fetchpipe/pkg/client"
)

// SimConfig parameterizes the simulated transfer.
type SimConfig struct {
	// Latency is how long each transfer takes.
	Latency time.Duration

	// FailureRate is the probability in [0, 1] that a transfer fails
	// with a transient error.
	FailureRate float64

	// Seed fixes the random source; 0 seeds from the clock.
	Seed int64
}

// Sim simulates a transfer collaborator. Latency waits honor context
// cancellation, so a simulated transfer behaves like real network I/O
// under timeouts and shutdown.
type Sim struct {
	cfg SimConfig

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSim creates the simulated transfer variant.
func NewSim(cfg SimConfig) (*Sim, error) {
	if cfg.FailureRate < 0 || cfg.FailureRate > 1 {
		return nil, fmt.Errorf("failure rate must be in [0, 1] (got %v)", cfg.FailureRate)
	}
	if cfg.Latency < 0 {
		return nil, fmt.Errorf("latency must not be negative (got %v)", cfg.Latency)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Sim{
		cfg: cfg,
		rng: rand.New(rand.NewSource(seed)),
	}, nil
}

// Transfer waits the configured latency, then either fails with a
// transient error or returns a synthetic payload for the item URL.
func (s *Sim) Transfer(ctx context.Context, item client.WorkItem) ([]byte, error) {
	if s.cfg.Latency > 0 {
		timer := time.NewTimer(s.cfg.Latency)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	failed := s.rng.Float64() < s.cfg.FailureRate
	s.mu.Unlock()

	if failed {
		return nil, fmt.Errorf("simulated transfer failure for %s", item.URL)
	}
	return []byte(fmt.Sprintf("simulated response for %s", item.URL)), nil
}
