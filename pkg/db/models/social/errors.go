package social

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. Each typed error below matches exactly one of them.
var (
	ErrValidation       = errors.New("validation error")
	ErrNotFound         = errors.New("not found")
	ErrStorage          = errors.New("storage error")
	ErrScheduleConflict = errors.New("schedule conflict")
)

// ValidationError reports a malformed snapshot row or request parameter.
// Row is the zero-based row index, or -1 when the error is not tied to a row.
type ValidationError struct {
	Row    int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("invalid row %d: %s: %s", e.Row, e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// NotFoundError reports an unknown username.
type NotFoundError struct {
	Platform Platform
	Username string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s account %q not found", e.Platform, e.Username)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// StorageError wraps a connection or query failure. Op names the operation, not the SQL.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// ScheduleConflictError reports that another ingestion for the platform holds the lock.
type ScheduleConflictError struct {
	Platform Platform
}

func (e *ScheduleConflictError) Error() string {
	return fmt.Sprintf("ingestion already running for %s", e.Platform)
}

func (e *ScheduleConflictError) Is(target error) bool { return target == ErrScheduleConflict }

// NewStorageError wraps err unless it is nil or already typed.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStorage) || errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrNotFound) || errors.Is(err, ErrScheduleConflict) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
