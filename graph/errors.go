package graph

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreRequired indicates a Sink was created without a Store.
	ErrStoreRequired = errors.New("graph store is required")

	// ErrNotFound indicates a record does not exist.
	ErrNotFound = errors.New("record not found")
)

// TransientError marks a store failure that may succeed on retry,
// such as a write conflict or brief unavailability.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// PermanentError marks a store failure that will not succeed on retry,
// such as a record missing required fields.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Transient wraps err as a TransientError. Nil stays nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// Permanent wraps err as a PermanentError. Nil stays nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsTransient reports whether err, or any error it wraps, is a TransientError.
func IsTransient(err error) bool {
	var t *TransientError
	return errors.As(err, &t)
}
