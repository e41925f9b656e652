package model

import (
	"github.com/pkg/errors"
)

var (
	// ValidationError is the cause of all configuration validation failures.
	ValidationError = errors.New("validation failed")
	// ErrIncompatibleCapability is returned when a pin lacks a function
	// required by the operation.
	ErrIncompatibleCapability = errors.New("incompatible capability")
	// ErrInvalidState is returned when an operation is not allowed in the
	// current state (for example reading a pin that is not open).
	ErrInvalidState = errors.New("invalid state")
	// ErrOutOfRange is returned when a numeric input is outside of its
	// accepted domain.
	ErrOutOfRange = errors.New("out of range")
	// ErrObjectDisposed is returned for any operation on a closed object.
	ErrObjectDisposed = errors.New("object disposed")

	maskAny = errors.WithStack
)

// IncompatibleCapability creates an error with ErrIncompatibleCapability as cause.
func IncompatibleCapability(format string, args ...interface{}) error {
	return errors.Wrapf(ErrIncompatibleCapability, format, args...)
}

// InvalidState creates an error with ErrInvalidState as cause.
func InvalidState(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidState, format, args...)
}

// OutOfRange creates an error with ErrOutOfRange as cause.
func OutOfRange(format string, args ...interface{}) error {
	return errors.Wrapf(ErrOutOfRange, format, args...)
}

// ObjectDisposed creates an error with ErrObjectDisposed as cause.
func ObjectDisposed(format string, args ...interface{}) error {
	return errors.Wrapf(ErrObjectDisposed, format, args...)
}

// IsIncompatibleCapability returns true if the cause of the given error
// is ErrIncompatibleCapability.
func IsIncompatibleCapability(err error) bool {
	return errors.Cause(err) == ErrIncompatibleCapability
}

// IsInvalidState returns true if the cause of the given error is ErrInvalidState.
func IsInvalidState(err error) bool {
	return errors.Cause(err) == ErrInvalidState
}

// IsOutOfRange returns true if the cause of the given error is ErrOutOfRange.
func IsOutOfRange(err error) bool {
	return errors.Cause(err) == ErrOutOfRange
}

// IsObjectDisposed returns true if the cause of the given error is ErrObjectDisposed.
func IsObjectDisposed(err error) bool {
	return errors.Cause(err) == ErrObjectDisposed
}

// IsValidation returns true if the cause of the given error is ValidationError.
func IsValidation(err error) bool {
	return errors.Cause(err) == ValidationError
}
