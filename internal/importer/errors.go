package importer

import (
	"errors"
	"fmt"
)

// Sentinel errors for session lookups and lifecycle conflicts. The web
// layer maps these to HTTP statuses.
var (
	ErrSessionNotFound = errors.New("import session not found")
	ErrRunActive       = errors.New("an import is already running for this user")
	ErrWrongState      = errors.New("session is not in the required state")
	ErrInvalidOptions  = errors.New("invalid import options")
)

// ErrorKind classifies a row-level import failure.
type ErrorKind string

const (
	// KindValidation is a structurally parseable row failing business
	// rules (amount <= 0, invalid date).
	KindValidation ErrorKind = "validation"
	// KindCategory is an unmatched category label with auto-creation
	// disabled.
	KindCategory ErrorKind = "category"
	// KindStorage is a failed remote write for one row (network, quota,
	// timeout). Never aborts the run.
	KindStorage ErrorKind = "storage"
)

// ImportError is one row-indexed failure. Row is the 1-based position in
// the uploaded file with the header counted as row 1, so the user can map
// it back to the exact source line.
type ImportError struct {
	Row     int       `json:"row"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e ImportError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Message)
}

// FatalError stops the pipeline before any row is processed: unreadable
// file, wrong extension, required sheet missing, storage unreachable.
// Every other error kind is accumulated and the run continues.
type FatalError struct {
	Reason string
	Err    error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as a FatalError with context.
func Fatal(reason string, err error) *FatalError {
	return &FatalError{Reason: reason, Err: err}
}

// IsFatal reports whether err is (or wraps) a FatalError.
func IsFatal(err error) bool {
	var fe *FatalError
	return errors.As(err, &fe)
}
