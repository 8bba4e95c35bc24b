// Package calcerr defines the error taxonomy shared by the calculation
// packages. Every failure a calculation can return unwraps to exactly one of
// the sentinel errors below, so callers classify with errors.Is.
package calcerr

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned for a missing or malformed field, before any computation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownJurisdiction is returned when an address does not resolve to a rate entry.
	ErrUnknownJurisdiction = errors.New("unknown jurisdiction")

	// ErrUnsupportedState is returned when a state has no implemented rule module
	// or its rule table lacks an entry the calculation needs.
	ErrUnsupportedState = errors.New("unsupported state")

	// ErrNegativeAmountFinanced is returned when deductions exceed the financed total.
	ErrNegativeAmountFinanced = errors.New("negative amount financed")

	// ErrInvalidTerm is returned for a non-positive term length.
	ErrInvalidTerm = errors.New("invalid term")

	// ErrReciprocityPolicyMissing is returned when no policy covers a state pair
	// and no default policy is configured.
	ErrReciprocityPolicyMissing = errors.New("reciprocity policy missing")
)

// Error attributes a failure to the field or entity that caused it.
type Error struct {
	Kind   error
	Field  string
	Detail string
}

func (e *Error) Error() string {
	switch {
	case e.Field != "" && e.Detail != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Field, e.Detail)
	case e.Field != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Field)
	case e.Detail != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	default:
		return e.Kind.Error()
	}
}

func (e *Error) Unwrap() error { return e.Kind }

// New builds an attributable error of the given kind.
func New(kind error, field, format string, args ...any) error {
	return &Error{Kind: kind, Field: field, Detail: fmt.Sprintf(format, args...)}
}

// Invalid is shorthand for an ErrInvalidInput on field.
func Invalid(field, format string, args ...any) error {
	return New(ErrInvalidInput, field, format, args...)
}

// Field returns the attributed field of err, if any.
func Field(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Field
	}
	return ""
}
