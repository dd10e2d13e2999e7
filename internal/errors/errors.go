package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the reconciliation taxonomy
var (
	// ErrMalformedIdentifier indicates a catalog entry whose name does not
	// match the flavor-prefix grammar; the entry is skipped, never fatal
	ErrMalformedIdentifier = errors.New("malformed identifier")

	// ErrUnparsableVersion indicates a version string that PEP 440 parsing
	// rejected; the affected match is skipped, never fatal
	ErrUnparsableVersion = errors.New("unparsable version")

	// ErrFeedUnavailable indicates the vulnerability feed could not be
	// queried for one package; the package is reported as not found
	ErrFeedUnavailable = errors.New("feed unavailable")

	// ErrSnapshotLoad indicates the VuXML snapshot or a suppression list
	// could not be loaded; this is fatal, duplicate detection would be
	// unsafe without it
	ErrSnapshotLoad = errors.New("snapshot load failure")

	// ErrNotFound indicates a resource was not found
	ErrNotFound = errors.New("not found")

	// ErrTimeout indicates an operation timed out
	ErrTimeout = errors.New("timeout")

	// ErrRateLimit indicates rate limiting
	ErrRateLimit = errors.New("rate limit exceeded")
)

// TransientError wraps an error to mark it as transient (retryable)
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("transient error: %v", e.Cause)
	}
	return "transient error"
}

func (e *TransientError) Unwrap() error {
	return e.Cause
}

// NewTransient creates a new transient error
func NewTransient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Cause: err}
}

// NewTransientf creates a new transient error with formatting
func NewTransientf(format string, args ...interface{}) error {
	return &TransientError{Cause: fmt.Errorf(format, args...)}
}

// PermanentError wraps an error to mark it as permanent (not retryable)
type PermanentError struct {
	Cause error
}

func (e *PermanentError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("permanent error: %v", e.Cause)
	}
	return "permanent error"
}

func (e *PermanentError) Unwrap() error {
	return e.Cause
}

// NewPermanent creates a new permanent error
func NewPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Cause: err}
}

// NewPermanentf creates a new permanent error with formatting
func NewPermanentf(format string, args ...interface{}) error {
	return &PermanentError{Cause: fmt.Errorf(format, args...)}
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// IsTransient checks if an error is transient using errors.As
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	// Check if explicitly marked as transient
	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}

	// Check if explicitly marked as permanent
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return false
	}

	// Check for known sentinel errors
	if errors.Is(err, ErrMalformedIdentifier) ||
		errors.Is(err, ErrUnparsableVersion) ||
		errors.Is(err, ErrSnapshotLoad) ||
		errors.Is(err, ErrNotFound) {
		return false
	}

	if errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimit) ||
		errors.Is(err, ErrFeedUnavailable) {
		return true
	}

	// Default to non-transient for safety (don't retry unknown errors)
	return false
}

// IsPermanent checks if an error is permanent (not retryable)
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	var permanentErr *PermanentError
	return errors.As(err, &permanentErr)
}

// IsFatal reports whether an error must abort the whole reconciliation pass.
// Only structural failures qualify: everything else is a per-item error and
// the pass continues with the next package.
func IsFatal(err error) bool {
	return errors.Is(err, ErrSnapshotLoad)
}
