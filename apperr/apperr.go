// Package apperr defines the request-scoped error taxonomy shared by the
// prediction pipeline and the HTTP layer.
package apperr

import (
	"errors"
	"net/http"
)

// Kind classifies a failure.
type Kind uint8

const (
	Internal Kind = iota
	Validation
	NoReferenceData
	Persistence
	ModelUnavailable
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "ValidationError"
	case NoReferenceData:
		return "NoReferenceDataError"
	case Persistence:
		return "PersistenceError"
	case ModelUnavailable:
		return "ModelUnavailableError"
	default:
		return "InternalError"
	}
}

// HTTPStatus maps a kind to the status code returned to API callers.
func (k Kind) HTTPStatus() int {
	switch k {
	case Validation:
		return http.StatusBadRequest
	case ModelUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrNoReferenceData is returned when the selected dataset has nothing to match against.
var ErrNoReferenceData = errors.New("no reference data")

// Error carries a Kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// E builds an *Error. A nil err yields a nil error.
func E(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the outermost *Error in the chain, Internal otherwise.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(kind Kind, err error) bool {
	return err != nil && KindOf(err) == kind
}

// ValidationError describes one rejected request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (v *ValidationError) Error() string {
	if v.Field == "" {
		return v.Reason
	}
	return v.Field + ": " + v.Reason
}

// Invalid returns a Validation-kind error for field.
func Invalid(op, field, reason string) error {
	return E(Validation, op, &ValidationError{Field: field, Reason: reason})
}
