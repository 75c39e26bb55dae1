package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by point lookups that miss.
	ErrNotFound = errors.New("not found")

	// ErrFlowClosed is returned when a flow is used after completion or cancel.
	ErrFlowClosed = errors.New("intervention flow already closed")

	// ErrWrongStage is returned when a flow step is called out of order.
	ErrWrongStage = errors.New("intervention flow step out of order")

	// ErrInvalidReason is returned for an empty reason.
	ErrInvalidReason = errors.New("reason must not be empty")

	// ErrInvalidDuration is returned for a duration that is not on the menu.
	ErrInvalidDuration = errors.New("duration not on menu")

	// ErrChallengeNotComplete is returned when a challenge attempt fails.
	ErrChallengeNotComplete = errors.New("challenge not complete")
)

// StorageError wraps any failure from a durable store. Callers treat it as
// transient: reads fall back to the last cached snapshot, writes surface to
// the caller for retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError wraps err, returning nil when err is nil.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// IsStorageError reports whether err came from a store.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
