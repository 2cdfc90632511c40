package process

import (
	"fmt"

	cperrors "github.com/butter-bot-machines/childproc/pkg/errors"
)

// Error types for process operations
var (
	ErrAlreadyRunning    = Error{"process already running", cperrors.StateError}
	ErrNotRunning        = Error{"process not running", cperrors.StateError}
	ErrCurrentProcess    = Error{"operation not permitted on the current process", cperrors.StateError}
	ErrUnknownSignal     = Error{"unknown signal", cperrors.SignalError}
	ErrUnsupportedSignal = Error{"signal not supported on this platform", cperrors.SignalError}
	ErrOutputLimit       = Error{"output limit exceeded", cperrors.StateError}
	ErrNoBackend         = Error{"no process backend registered", cperrors.PlatformError}
)

// Error represents a process error
type Error struct {
	Message string
	Type    cperrors.ErrorType
}

func (e Error) Error() string {
	return e.Message
}

// ErrorType reports the error category
func (e Error) ErrorType() cperrors.ErrorType {
	return e.Type
}

// Is matches on the message so copies of a sentinel compare equal
func (e Error) Is(target error) bool {
	t, ok := target.(Error)
	return ok && t.Message == e.Message
}

// SpawnReason classifies why the OS refused to start a child
type SpawnReason int

const (
	SpawnUnknown SpawnReason = iota
	SpawnNotFound
	SpawnPermissionDenied
	SpawnResourceExhausted
	SpawnInvalidArguments
)

// String returns the reason name
func (r SpawnReason) String() string {
	switch r {
	case SpawnNotFound:
		return "not_found"
	case SpawnPermissionDenied:
		return "permission_denied"
	case SpawnResourceExhausted:
		return "resource_exhausted"
	case SpawnInvalidArguments:
		return "invalid_arguments"
	default:
		return "unknown"
	}
}

// SpawnError is returned when a child could not be created
type SpawnError struct {
	Reason  SpawnReason
	Program string
	Err     error
}

func (e *SpawnError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("spawn %s: %s", e.Program, e.Reason)
	}
	return fmt.Sprintf("spawn %s: %s: %v", e.Program, e.Reason, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ErrorType reports the error category
func (e *SpawnError) ErrorType() cperrors.ErrorType {
	return cperrors.SpawnError
}

// PlatformError is returned when querying the OS about the current process
// fails
type PlatformError struct {
	Op  string
	Err error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("platform %s: %v", e.Op, e.Err)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// ErrorType reports the error category
func (e *PlatformError) ErrorType() cperrors.ErrorType {
	return cperrors.PlatformError
}
