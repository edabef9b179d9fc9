package errors

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the session subsystem
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRefreshRejected    = errors.New("refresh rejected")
	ErrNotAuthenticated   = errors.New("not authenticated")
	ErrForbidden          = errors.New("forbidden")

	// Transport and payload errors
	ErrTransport  = errors.New("transport error")
	ErrValidation = errors.New("validation error")

	// Input errors
	ErrInvalidInput = errors.New("invalid input")

	// Session errors
	ErrSessionNotFound = errors.New("session not found")
)

// Error decorates one of the kinds above with the failing operation and,
// when the failure came from the backend, its HTTP status.
type Error struct {
	Kind   error
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is matches on Kind so callers can write errors.Is(err, ErrRefreshRejected).
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an *Error of the given kind.
func New(kind error, op string, status int, cause error) *Error {
	return &Error{Kind: kind, Op: op, Status: status, Err: cause}
}

// NotAuthenticatedError is terminal: the caller should send the user to SignInURL and not retry.
type NotAuthenticatedError struct {
	SignInURL string
	Reason    string
}

func (e *NotAuthenticatedError) Error() string {
	if e.Reason == "" {
		return ErrNotAuthenticated.Error()
	}
	return ErrNotAuthenticated.Error() + ": " + e.Reason
}

func (e *NotAuthenticatedError) Is(target error) bool {
	return target == ErrNotAuthenticated
}

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
