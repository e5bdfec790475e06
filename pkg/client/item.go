package client

import (
	"time"

	"github.com/google/uuid"
)

// WorkItem is one unit of fetch work. Items are created by a producer,
// held by the queue while pending, owned by exactly one worker while being
// processed and discarded after completion.
type WorkItem struct {
	// ID is the correlation id carried through logs and reports.
	ID string

	// URL is the fetch target.
	URL string

	// Meta carries optional per-item hints (proxy, source page, ...).
	Meta map[string]string
}

// NewWorkItem creates a WorkItem for the given URL with a fresh
// correlation id.
func NewWorkItem(url string) WorkItem {
	return WorkItem{
		ID:  uuid.NewString(),
		URL: url,
	}
}

// Outcome classifies the result of a fetch for reporting.
type Outcome string

const (
	// OutcomeSuccess means the transfer completed within the allowed attempts.
	OutcomeSuccess Outcome = "success"

	// OutcomeTimeout means every attempt hit the per-attempt timeout.
	OutcomeTimeout Outcome = "timeout"

	// OutcomeFailure means retries were exhausted on transfer errors.
	OutcomeFailure Outcome = "failure"
)

// Result records the outcome of one Fetch call. Immutable once produced;
// consumed by workers for reporting, not persisted by the pipeline.
type Result struct {
	Item     WorkItem
	Outcome  Outcome
	Attempts int
	Size     int
	Duration time.Duration
	Err      error
}
