package core

import (
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
)

// kindError is a sentinel error with its own message that still matches its kind under errors.Is.
type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string        { return e.msg }
func (e *kindError) Is(target error) bool { return target == e.kind }

// NewNotFoundError returns a sentinel error matching ErrNotFound.
func NewNotFoundError(msg string) error {
	return &kindError{msg: msg, kind: ErrNotFound}
}

// NewPermissionError returns a sentinel error matching ErrPermissionDenied.
func NewPermissionError(msg string) error {
	return &kindError{msg: msg, kind: ErrPermissionDenied}
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

func (err ValidationError) Unwrap() error { return err.Err }

// ExternalServiceError reports a failure of a collaborator outside the process (persistence, AI, data).
type ExternalServiceError struct {
	Service string
	Err     error
}

func NewExternalServiceError(service string, err error) error {
	return &ExternalServiceError{Service: service, Err: err}
}

func (err ExternalServiceError) Error() string {
	if err.Err == nil {
		return err.Service + " unavailable"
	}
	return err.Service + ": " + err.Err.Error()
}

func (err ExternalServiceError) Unwrap() error { return err.Err }

// IsNotFound reports whether err (or any error it wraps) is a not-found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsPermissionDenied(err error) bool {
	return errors.Is(err, ErrPermissionDenied)
}

// IsValidation reports whether err is a *ValidationError or a validator.ValidationErrors.
func IsValidation(err error) bool {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return true
	}
	var fErrs validator.ValidationErrors
	return errors.As(err, &fErrs)
}

func IsExternalService(err error) bool {
	var eErr *ExternalServiceError
	return errors.As(err, &eErr)
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
