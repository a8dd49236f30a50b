package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrBackendUnavailable reports an unreachable or timed-out index
	// backend. Retryable from the caller's perspective; the index itself
	// does not retry beyond its bounded internal backoff.
	ErrBackendUnavailable = errors.New("vector index backend unavailable")

	// ErrDimensionMismatch reports a vector whose length differs from the
	// collection's configured dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// UpsertError reports a failed upsert along with how many points were
// attempted, so callers can decide whether to retry the batch.
type UpsertError struct {
	Attempted int
	Err       error
}

func (e *UpsertError) Error() string {
	return fmt.Sprintf("upsert of %d points failed: %v", e.Attempted, e.Err)
}

func (e *UpsertError) Unwrap() error { return e.Err }
