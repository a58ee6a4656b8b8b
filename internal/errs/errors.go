// Package errs provides the unified error type used across portfolio-db.
//
// Every subsystem (loader, graph builder, seeder, verifier) wraps its
// failures into *errs.Error before returning them to callers. Callers use
// the Is* predicates (or Kind switches in the CLI exit-code mapping)
// without importing subsystem packages.
package errs

import (
	"errors"
	"fmt"
)

// Kind categorises a failure without exposing subsystem-specific detail.
type Kind int

const (
	KindUnknown          Kind = iota
	KindSchemaValidation      // malformed table declaration (load time, fatal)
	KindCyclicDependency      // foreign keys form a cycle across tables (graph time, fatal)
	KindDanglingReference     // seed row references a missing parent row (per-table fatal)
	KindConstraintConflict    // constraint violated outside the skip-on-conflict policy (per-table fatal)
	KindVerificationFailure   // assertion did not hold (recorded, non-fatal)
	KindVerificationError     // assertion could not be evaluated (recorded, non-fatal)
	KindConnection            // cannot reach the target datastore
	KindQuery                 // statement execution failed for another reason
)

func (k Kind) String() string {
	switch k {
	case KindSchemaValidation:
		return "schema_validation"
	case KindCyclicDependency:
		return "cyclic_dependency"
	case KindDanglingReference:
		return "dangling_reference"
	case KindConstraintConflict:
		return "constraint_conflict"
	case KindVerificationFailure:
		return "verification_failure"
	case KindVerificationError:
		return "verification_error"
	case KindConnection:
		return "connection"
	case KindQuery:
		return "query"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all portfolio-db subsystems.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error { return e.Cause }

// New creates an *Error with the given kind and formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and underlying cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from any error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsSchemaValidation reports whether err is a load-time declaration failure.
func IsSchemaValidation(err error) bool { return KindOf(err) == KindSchemaValidation }

// IsCyclicDependency reports whether err is a graph-build cycle failure.
func IsCyclicDependency(err error) bool { return KindOf(err) == KindCyclicDependency }

// IsDanglingReference reports whether err is a seed-time missing-parent failure.
func IsDanglingReference(err error) bool { return KindOf(err) == KindDanglingReference }

// IsVerificationFailure reports whether err represents one or more
// assertions that did not hold.
func IsVerificationFailure(err error) bool { return KindOf(err) == KindVerificationFailure }
