package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAccountNotFound is returned when no account matches the given id or username.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAlreadyAttempted is returned when an account has already submitted its attempt.
	ErrAlreadyAttempted = errors.New("exam already attempted")
	// ErrStorageUnavailable wraps failures of the relational store. Nothing was committed.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrExportFailed matches every *ExportError.
	ErrExportFailed = errors.New("submission export failed")
	// ErrLogNotFound indicates no submission has been exported yet.
	ErrLogNotFound = errors.New("submission log not found")
	// ErrInvalidCredentials is returned when a login password does not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidQuestion indicates a catalog entry that cannot be graded.
	ErrInvalidQuestion = errors.New("invalid question")
)

// ExportError reports a submission that was graded and committed but not written
// to the export log. Record is kept so the row can be reconciled later.
type ExportError struct {
	Record SubmissionRecord
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export submission for %q: %v", e.Record.Username, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrExportFailed) match any export error.
func (e *ExportError) Is(target error) bool {
	return target == ErrExportFailed
}
