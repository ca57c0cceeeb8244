package engine

import (
	"errors"
	"fmt"

	"github.com/Skryldev/appointments/db"
)

var (
	// ErrInvalidStatus is returned when a status string names no member of
	// the appointment status enum. The store is never called in that case.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrNotFound wraps db.ErrNotFound so callers may test for either.
	ErrNotFound = fmt.Errorf("appointment not found: %w", db.ErrNotFound)
)

// StoreError reports a record store failure other than not-found.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("engine: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
