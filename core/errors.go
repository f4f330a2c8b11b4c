package core

import (
	stderrors "errors"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// Kind is the stable, machine-checkable category of an error.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindConflict        Kind = "conflict"
	KindAuthentication  Kind = "authentication"
	KindPendingApproval Kind = "pending_approval"
	KindAccountRejected Kind = "account_rejected"
	KindAuthorization   Kind = "authorization"
	KindNotFound        Kind = "not_found"
	KindEligibility     Kind = "eligibility"
	KindPollClosed      Kind = "poll_closed"
	KindInvalidOption   Kind = "invalid_option"
	KindDuplicateVote   Kind = "duplicate_vote"
	KindEventFull       Kind = "event_full"
	KindDependency      Kind = "dependency"
)

// Error is a domain error with a stable Kind.
type Error struct {
	Kind Kind
	Msg  string
}

func NewError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func (err *Error) Error() string {
	return err.Msg
}

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// ConflictError reports a uniqueness violation on the named fields.
type ConflictError struct {
	Err    error
	Fields []FieldError
}

func NewConflictError(err error, flds ...FieldError) error {
	return &ConflictError{err, flds}
}

func (err ConflictError) Error() string {
	if err.Err == nil {
		return "conflict"
	}
	return err.Err.Error()
}

func (err ConflictError) Unwrap() error { return err.Err }

// DependencyError wraps a storage or external service failure.
type DependencyError struct {
	Op  string
	Err error
}

func NewDependencyError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &DependencyError{Op: op, Err: err}
}

func (err *DependencyError) Error() string {
	return err.Op + ": " + err.Err.Error()
}

func (err *DependencyError) Unwrap() error { return err.Err }

// KindOf returns the Kind of err, looking through wrapped errors.
// Unclassified errors are dependency errors.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var (
		kindErr *Error
		valErr  *ValidationError
		confErr *ConflictError
		vErrs   validator.ValidationErrors
	)
	switch {
	case stderrors.As(err, &kindErr):
		return kindErr.Kind
	case stderrors.As(err, &valErr), stderrors.As(err, &vErrs):
		return KindValidation
	case stderrors.As(err, &confErr):
		return KindConflict
	default:
		return KindDependency
	}
}

// Is reports whether err is of the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
