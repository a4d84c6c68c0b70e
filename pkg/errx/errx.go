package errx

import (
	"errors"
	"fmt"
	"net/http"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindForbidden
	KindUnauthorized
	KindTooManyRequests
)

// SystemErrorMessage is what clients see for any internal failure.
const SystemErrorMessage = "internal server error"

// AppError carries a kind, a machine readable code and a client-safe message
// on top of the underlying error.
type AppError struct {
	Kind    Kind
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches another AppError by code, so package level sentinels work with errors.Is.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// HTTPStatus resolves the status code for the error kind. An explicit Status wins.
func (e *AppError) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	switch e.Kind {
	case KindValidation, KindConflict:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, code, message string) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message}
}

func Validation(code, message string) *AppError {
	return New(KindValidation, code, message)
}

func NotFound(code, message string) *AppError {
	return New(KindNotFound, code, message)
}

func Conflict(code, message string) *AppError {
	return New(KindConflict, code, message)
}

func Forbidden(code, message string) *AppError {
	return New(KindForbidden, code, message)
}

// WithStatus returns a copy of e that reports the given HTTP status.
func (e *AppError) WithStatus(status int) *AppError {
	cp := *e
	cp.Status = status
	return &cp
}

// Wrap returns a copy of e carrying err as its cause.
func (e *AppError) Wrap(err error) *AppError {
	cp := *e
	cp.Err = err
	return &cp
}

// Internal hides err behind the generic message. The detail stays reachable
// through Unwrap for logging.
func Internal(err error) *AppError {
	return &AppError{Kind: KindInternal, Code: "internal", Message: SystemErrorMessage, Err: err}
}

// From extracts the AppError in err's chain, treating anything else as internal.
func From(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// IsKind reports whether err carries an AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}
