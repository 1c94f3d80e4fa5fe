// Package errs contains sentinel errors shared by the store, service and HTTP
// layers. Callers wrap them with %w and the HTTP edge maps them to statuses.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation indicates a malformed request or rule (start >= end,
	// inconsistent recurrence fields, unsupported frequency token).
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates an unknown identity, RFID id or rule index.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a uniqueness violation, e.g. an RFID id that is
	// already assigned to another identity.
	ErrConflict = errors.New("conflict")

	// ErrStorage indicates that persisting rules or audit entries failed.
	// It is fatal to the call that triggered it.
	ErrStorage = errors.New("storage failure")
)

// IsDomain reports whether err carries one of the caller-facing sentinels
// other than ErrStorage.
func IsDomain(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict)
}

// Validationf formats a message and wraps it with ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
