// Package errors defines the sentinel error kinds shared by the indexing and
// search packages, plus an AppError wrapper that records the failing
// operation.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrDirectoryNotFound = errors.New("directory not found")
	ErrIndexNotFound     = errors.New("index not found")
	ErrConcurrency       = errors.New("index is locked by another writer")
	ErrFileAccess        = errors.New("file access failed")
	ErrIO                = errors.New("index i/o failure")
	ErrInvalidOperation  = errors.New("invalid operation")
)

// Exit codes returned by the command-line tools.
const (
	ExitOK = iota
	ExitFailure
	ExitUsage
	ExitNotFound
	ExitLocked
)

type AppError struct {
	Err     error
	Op      string
	Message string
}

func (e *AppError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, op string, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Op:      op,
		Message: message,
	}
}

func Newf(sentinel error, op string, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// Is reports whether err matches target. It mirrors errors.Is so callers
// importing this package under its own name don't need both.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As mirrors errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrInvalidArgument):
		return ExitUsage
	case errors.Is(err, ErrDirectoryNotFound), errors.Is(err, ErrIndexNotFound):
		return ExitNotFound
	case errors.Is(err, ErrConcurrency):
		return ExitLocked
	default:
		return ExitFailure
	}
}
