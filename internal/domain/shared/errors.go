// Package shared contains the error taxonomy and pagination used by every
// domain package.
package shared

import (
	"context"
	"errors"
	"strings"
)

// Kinds. Match with errors.Is.
var (
	ErrNotFound      = errors.New("entity not found")
	ErrAlreadyExists = errors.New("entity already exists")

	ErrValidation    = errors.New("validation error")
	ErrInvalidID     = errors.New("invalid ID")
	ErrInvalidInput  = errors.New("invalid input")
	ErrEmptyValue    = errors.New("value cannot be empty")
	ErrNegativeValue = errors.New("value cannot be negative")

	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	ErrStorage            = errors.New("storage failure")
	ErrServiceUnavailable = errors.New("service unavailable")
)

// validationKinds are reported to clients as bad input.
var validationKinds = []error{ErrValidation, ErrInvalidID, ErrInvalidInput, ErrEmptyValue, ErrNegativeValue}

// DomainError attaches the failing domain operation to an error kind.
//
//	stats.AddPoints: storage operation failed: connection reset
type DomainError struct {
	Domain  string // "stats", "streak", "achievement", ...
	Op      string // "AddPoints"
	Kind    error  // one of the Err* kinds above
	Message string // safe to show to clients
	Err     error  // cause, optional
}

func (e *DomainError) Error() string {
	var b strings.Builder
	b.WriteString(e.Domain)
	b.WriteByte('.')
	b.WriteString(e.Op)
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *DomainError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewDomainError builds an error without a cause.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError builds an error around cause.
func WrapError(domain, op string, kind error, message string, cause error) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message, Err: cause}
}

// StorageError wraps a store failure of the given operation.
func StorageError(domain, op string, cause error) *DomainError {
	return WrapError(domain, op, ErrStorage, "storage operation failed", cause)
}

func IsNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
func IsAlreadyExists(err error) bool { return errors.Is(err, ErrAlreadyExists) }
func IsStorage(err error) bool       { return errors.Is(err, ErrStorage) }

func IsAuth(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}

// IsValidation reports whether err was caused by caller input.
func IsValidation(err error) bool {
	for _, kind := range validationKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether the same call may succeed later unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrServiceUnavailable) || errors.Is(err, context.DeadlineExceeded)
}
