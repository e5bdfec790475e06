package client

import (
	"context"
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrClosed is returned when an operation is attempted on a client
	// that is not open.
	ErrClosed = errors.New("client is closed")

	// ErrAttemptTimeout is returned when a single transfer attempt did
	// not complete within the configured timeout. It is a retryable
	// condition, reported distinctly from other transfer failures.
	ErrAttemptTimeout = errors.New("attempt timed out")

	// ErrRetryExhausted wraps the last attempt error once all attempts
	// are used up.
	ErrRetryExhausted = errors.New("retry attempts exhausted")
)

// TransferError wraps a failure from the transfer collaborator with the
// item it belonged to.
type TransferError struct {
	ItemID string
	URL    string
	Err    error
}

// Error implements the error interface.
func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s (%s): %v", e.URL, e.ItemID, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransferError) Unwrap() error {
	return e.Err
}

// IsCancellation reports whether err represents "we were told to stop"
// rather than an operation failure. Cancellation is never retried and
// always propagates.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// shouldRetry determines if an attempt error is eligible for another
// attempt. Cancellation aborts immediately; everything else, including
// per-attempt timeouts, is transient.
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAttemptTimeout) {
		return true
	}
	return !IsCancellation(err)
}

// outcomeFor maps a terminal fetch error to its reporting outcome,
// preserving the timeout kind for the caller.
func outcomeFor(err error) Outcome {
	if err == nil {
		return OutcomeSuccess
	}
	if errors.Is(err, ErrAttemptTimeout) {
		return OutcomeTimeout
	}
	return OutcomeFailure
}
