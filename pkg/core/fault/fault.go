// Package fault defines the error taxonomy for the ingestion pipeline.
// Retry and terminal decisions are made by error kind, never by matching
// message strings.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry/terminal policy.
type Kind string

const (
	// Transient covers I/O, network, LLM hiccups, database deadlocks.
	// Retried with exponential backoff up to max_attempts.
	Transient Kind = "transient"
	// RateLimited is an LLM throttle response. Retryable like Transient.
	RateLimited Kind = "rate_limited"
	// EncodingIssue is a decode failure after all fallbacks. Terminal.
	EncodingIssue Kind = "encoding_issue"
	// ParseError is a malformed file. Terminal.
	ParseError Kind = "parse_error"
	// ClassificationLow means best confidence fell below the floor.
	// Not a failure: the document persists as Other.
	ClassificationLow Kind = "classification_low"
	// ExtractionIncomplete means required fields are missing.
	// Not a failure: partial persistence with Critical audits.
	ExtractionIncomplete Kind = "extraction_incomplete"
	// ValidationInconsistent means an identity/tolerance violation.
	// Not a failure: persisted with Inconsistent status.
	ValidationInconsistent Kind = "validation_inconsistent"
	// PersistenceConflict is a duplicate doc_id at write time.
	PersistenceConflict Kind = "persistence_conflict"
	// Invalid is a malformed request or LLM response. Not retryable.
	Invalid Kind = "invalid"
	// Fatal is a programming or invariant violation. Terminal.
	Fatal Kind = "fatal"
)

// Error carries a kind, the operation that failed, and the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a fault with a formatted message.
func New(kind Kind, op string, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind and operation to an existing error.
// A nil cause returns nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf extracts the kind from an error chain. Unclassified errors are
// treated as Transient so unknown failures remain retryable.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Transient
}

// Retryable reports whether the error kind permits a retry.
func Retryable(err error) bool {
	switch KindOf(err) {
	case Transient, RateLimited:
		return true
	}
	return false
}

// HardFailure reports whether the error terminates the document's pipeline
// run (as opposed to the degraded-but-persisted kinds).
func HardFailure(err error) bool {
	switch KindOf(err) {
	case EncodingIssue, ParseError, Fatal:
		return true
	}
	return false
}
