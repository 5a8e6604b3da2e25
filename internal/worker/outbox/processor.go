package outbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/wordloom/wordloom/internal/storage"
)

// Processor applies one claimed outbox row. A nil error acks the row as done;
// a DeterministicError fails it terminally; any other error schedules a retry.
type Processor interface {
	Process(ctx context.Context, row storage.OutboxEvent) error
}

// BatchProcessor applies a whole claimed batch in one external call. Loops
// prefer it over Processor when the concrete type implements it.
type BatchProcessor interface {
	Processor
	ProcessBatch(ctx context.Context, rows []storage.OutboxEvent) []Outcome
}

// Outcome reports one row's result from a batch call.
type Outcome struct {
	ID  string
	Err error
}

// DeterministicError marks a failure that will recur on every attempt, such as
// a missing source event or an unknown op. Rows failing deterministically go
// straight to failed without retries.
type DeterministicError struct {
	Reason string
	Err    error
}

func (e *DeterministicError) Error() string {
	if e.Err == nil {
		return e.Reason
	}
	return fmt.Sprintf("%s: %v", e.Reason, e.Err)
}

func (e *DeterministicError) Unwrap() error { return e.Err }

// Deterministic wraps err as non-retryable with a stable reason label.
func Deterministic(reason string, err error) error {
	return &DeterministicError{Reason: reason, Err: err}
}

// AsDeterministic reports whether err is (or wraps) a deterministic failure.
func AsDeterministic(err error) (*DeterministicError, bool) {
	var det *DeterministicError
	if errors.As(err, &det) {
		return det, true
	}
	return nil, false
}
