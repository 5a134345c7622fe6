package util

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies failures crossing the service boundary.
type ErrorKind string

const (
	KindValidation        ErrorKind = "VALIDATION"
	KindThrottled         ErrorKind = "THROTTLED"
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindCredentialInvalid ErrorKind = "CREDENTIAL_INVALID"
	KindConflict          ErrorKind = "CONFLICT"
	KindInfrastructure    ErrorKind = "INFRASTRUCTURE"
	KindPrecondition      ErrorKind = "PRECONDITION"
	KindUnauthenticated   ErrorKind = "UNAUTHENTICATED"
)

var kindStatus = map[ErrorKind]int{
	KindValidation:        http.StatusBadRequest,
	KindThrottled:         http.StatusTooManyRequests,
	KindNotFound:          http.StatusNotFound,
	KindCredentialInvalid: http.StatusUnauthorized,
	KindConflict:          http.StatusConflict,
	KindInfrastructure:    http.StatusInternalServerError,
	KindPrecondition:      http.StatusNotAcceptable,
	KindUnauthenticated:   http.StatusUnauthorized,
}

// DomainError standardizes application errors.
type DomainError struct {
	Kind       ErrorKind
	Type       string
	Message    string
	HTTPStatus int
	// RetryAfter is set in seconds for throttled errors.
	RetryAfter int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Code is the kind rendered as a response code.
func (e *DomainError) Code() string {
	return string(e.Kind)
}

// NewDomainError constructs a DomainError with the HTTP status of its kind.
func NewDomainError(kind ErrorKind, errType, message string, cause error) *DomainError {
	status, ok := kindStatus[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	return &DomainError{Kind: kind, Type: errType, Message: message, HTTPStatus: status, Err: cause}
}

// WithStatus overrides the HTTP status derived from the kind.
func (e *DomainError) WithStatus(status int) *DomainError {
	e.HTTPStatus = status
	return e
}

func NewValidationError(errType, message string, cause error) error {
	return NewDomainError(KindValidation, errType, message, cause)
}

// NewThrottled builds a 429 error; retryAfter is clamped to at least one second.
func NewThrottled(errType, message string, retryAfter int) error {
	if retryAfter < 1 {
		retryAfter = 1
	}
	de := NewDomainError(KindThrottled, errType, message, nil)
	de.RetryAfter = retryAfter
	return de
}

func NewNotFound(errType, message string) error {
	return NewDomainError(KindNotFound, errType, message, nil)
}

func NewCredentialInvalid(errType, message string, cause error) error {
	return NewDomainError(KindCredentialInvalid, errType, message, cause)
}

func NewConflict(errType, message string) error {
	return NewDomainError(KindConflict, errType, message, nil)
}

func NewPrecondition(errType, message string) error {
	return NewDomainError(KindPrecondition, errType, message, nil)
}

func NewUnauthenticated(errType, message string) error {
	return NewDomainError(KindUnauthenticated, errType, message, nil)
}

func NewInfrastructure(errType, message string, cause error) error {
	return NewDomainError(KindInfrastructure, errType, message, cause)
}

func NewInternalError(err error) error {
	return NewInfrastructure("/errors/server/unknown-server-error", "An unknown error occurred", err)
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return NewDomainError(KindInfrastructure, "/errors/server/unknown-server-error", "An unknown error occurred", err)
}

// IsKind reports whether err is a DomainError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Kind == kind
}
