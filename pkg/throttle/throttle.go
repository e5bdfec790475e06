// Package throttle enforces a minimum interval between operations.
//
// A Limiter owns its own pacing state. Sharing one Limiter across several
// wrapped operations gives the shared variant (all callers contend on the
// same interval window); giving each operation its own Limiter gives the
// per-caller variant (callers of different operations never contend).
package throttle

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Limiter delays callers so that consecutive permitted invocations are at
// least one interval apart. The first invocation always proceeds
// immediately. Safe for concurrent use; concurrent callers of a shared
// Limiter serialize on the internal pacing state so no two callers compute
// overlapping wait windows.
type Limiter struct {
	limiter  *rate.Limiter
	interval time.Duration
}

// New creates a Limiter with the given minimum interval between calls.
func New(interval time.Duration) (*Limiter, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be positive (got %v)", interval)
	}

	// Burst 1 keeps strict spacing: one call per interval, no catch-up.
	return &Limiter{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		interval: interval,
	}, nil
}

// PerUnit creates a Limiter from a "calls per unit time" rate. The delay
// applied is unit/calls, not the rate value itself.
func PerUnit(calls int, unit time.Duration) (*Limiter, error) {
	if calls <= 0 {
		return nil, fmt.Errorf("calls must be positive (got %d)", calls)
	}
	return New(unit / time.Duration(calls))
}

// Allow blocks the caller until at least one interval has elapsed since
// the last permitted invocation, then records the new permission. Returns
// the context error if ctx is cancelled while waiting.
func (l *Limiter) Allow(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Interval returns the configured minimum interval.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// Op is the call contract shared by throttled operations.
type Op func(ctx context.Context) error

// Wrap returns op gated by l. Composition happens at construction time:
// the returned Op satisfies the same contract as op and can be wrapped
// again by further decorators.
func Wrap(l *Limiter, op Op) Op {
	return func(ctx context.Context) error {
		if err := l.Allow(ctx); err != nil {
			return err
		}
		return op(ctx)
	}
}
