package auth

import (
	"context"
	"errors"
)

// Kind classifies a failure. Callers branch on the kind, never on messages.
type Kind string

const (
	KindInvalidCredentials Kind = "InvalidCredentials"
	KindAccountInactive    Kind = "AccountInactive"
	KindConflict           Kind = "Conflict"
	KindWriteError         Kind = "WriteError"
	KindNotFound           Kind = "NotFound"
	KindTokenNotExpired    Kind = "TokenNotExpired"
	KindTokenExpired       Kind = "TokenExpired"
	KindBadInput           Kind = "BadInput"
	KindRevokeFailed       Kind = "RevokeFailed"
	KindTimeout            Kind = "Timeout"
	KindInternal           Kind = "Internal"
)

// Error is returned by every Manager operation. Message is safe to show to
// callers, Err keeps the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
// regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "invalid email or password"}
	ErrAccountInactive    = &Error{Kind: KindAccountInactive, Message: "account is inactive"}
	ErrConflict           = &Error{Kind: KindConflict, Message: "email is already registered"}
	ErrWriteError         = &Error{Kind: KindWriteError, Message: "failed to save changes"}
	ErrNotFound           = &Error{Kind: KindNotFound, Message: "session not found"}
	ErrTokenNotExpired    = &Error{Kind: KindTokenNotExpired, Message: "access token has not expired yet"}
	ErrTokenExpired       = &Error{Kind: KindTokenExpired, Message: "access token has expired"}
	ErrBadInput           = &Error{Kind: KindBadInput, Message: "bad input"}
	ErrRevokeFailed       = &Error{Kind: KindRevokeFailed, Message: "failed to revoke session"}
	ErrTimeout            = &Error{Kind: KindTimeout, Message: "operation timed out"}
	ErrInternal           = &Error{Kind: KindInternal, Message: "internal error"}
)

func newError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// KindOf returns the kind carried by err. Context expiry maps to KindTimeout
// and anything unrecognised to KindInternal. A nil error has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	if isContextErr(err) {
		return KindTimeout
	}
	return KindInternal
}

func isContextErr(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
