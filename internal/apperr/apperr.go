// Package apperr defines the error kinds surfaced to callers of the booking core.
package apperr

import (
	"errors"
)

type Kind string

const (
	KindNotFound        Kind = "not_found"
	KindBadRequest      Kind = "bad_request"
	KindForbidden       Kind = "forbidden"
	KindUnauthorized    Kind = "unauthorized"
	KindSlotUnavailable Kind = "slot_unavailable"
	KindConfiguration   Kind = "configuration"
	KindInternal        Kind = "internal"
)

// Error carries a stable machine code and a message that is safe to show to callers.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on code so that wrapped copies (see With) still satisfy errors.Is
// against the package-level sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// With returns a copy of e with a more specific message.
func (e *Error) With(message string) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: message, Err: e.Err}
}

// Wrap returns a copy of e that records cause for logs. The cause is not part of
// the public message.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: cause}
}

func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func BadRequest(code, message string) *Error {
	return New(KindBadRequest, code, message)
}

func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

func Forbidden(code, message string) *Error {
	return New(KindForbidden, code, message)
}
