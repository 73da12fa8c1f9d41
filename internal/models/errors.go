package models

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of failure categories produced at the point
// of failure. Behavior decisions are made on the kind, never on message text.
type ErrorKind string

const (
	// ErrAuthentication covers bad or expired credentials. Not retried
	// automatically; requires user action.
	ErrAuthentication ErrorKind = "authentication"
	// ErrNavigation covers transient network/UI latency including timeouts.
	// Eligible for a bounded number of retries at the orchestrator level.
	ErrNavigation ErrorKind = "navigation"
	// ErrExtraction covers page schema drift on a single record. Caught,
	// logged and counted as skipped; never escalated to run-level failure.
	ErrExtraction ErrorKind = "extraction"
	// ErrPersistence covers storage write failures. Fatal to the run.
	ErrPersistence ErrorKind = "persistence"
)

// RunError is a categorized failure carrying the operation that produced it.
type RunError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *RunError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *RunError) Unwrap() error {
	return e.Err
}

// NewAuthenticationError wraps err as a credential failure.
func NewAuthenticationError(op string, err error) *RunError {
	return &RunError{Kind: ErrAuthentication, Op: op, Err: err}
}

// NewNavigationError wraps err as a transient navigation/timeout failure.
func NewNavigationError(op string, err error) *RunError {
	return &RunError{Kind: ErrNavigation, Op: op, Err: err}
}

// NewExtractionError wraps err as a single-record extraction failure.
func NewExtractionError(op string, err error) *RunError {
	return &RunError{Kind: ErrExtraction, Op: op, Err: err}
}

// NewPersistenceError wraps err as a storage failure.
func NewPersistenceError(op string, err error) *RunError {
	return &RunError{Kind: ErrPersistence, Op: op, Err: err}
}

// KindOf returns the error kind of err, or "" when err carries no RunError.
func KindOf(err error) ErrorKind {
	var re *RunError
	if errors.As(err, &re) {
		return re.Kind
	}
	return ""
}

// IsAuthentication reports whether err is a credential failure.
func IsAuthentication(err error) bool {
	return KindOf(err) == ErrAuthentication
}

// IsNavigation reports whether err is a transient navigation failure.
func IsNavigation(err error) bool {
	return KindOf(err) == ErrNavigation
}

// IsExtraction reports whether err is a per-record extraction failure.
func IsExtraction(err error) bool {
	return KindOf(err) == ErrExtraction
}

// IsPersistence reports whether err is a storage failure.
func IsPersistence(err error) bool {
	return KindOf(err) == ErrPersistence
}
