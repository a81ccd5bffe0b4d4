// Package apierror converts every failure the client can meet into a closed
// set of kinds, each with a fixed human readable message.
package apierror

import (
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a failure.
type Kind string

const (
	Network            Kind = "network"
	Validation         Kind = "validation"
	InvalidCredentials Kind = "invalid_credentials"
	EmailNotVerified   Kind = "email_not_verified"
	OtpInvalid         Kind = "otp_invalid"
	OtpExpired         Kind = "otp_expired"
	NotFound           Kind = "not_found"
	Server             Kind = "server"
	StorageError       Kind = "storage_error"
	Unknown            Kind = "unknown"
)

var messages = map[Kind]string{
	Network:            "Unable to reach the server. Check your connection and try again.",
	Validation:         "Some of the information entered is not valid.",
	InvalidCredentials: "Invalid email or password.",
	EmailNotVerified:   "Please verify your email before logging in.",
	OtpInvalid:         "The verification code is incorrect.",
	OtpExpired:         "The verification code has expired. Request a new one.",
	NotFound:           "The requested item could not be found.",
	Server:             "Something went wrong on our side. Please try again later.",
	StorageError:       "Your session could not be saved on this device.",
	Unknown:            "Something went wrong. Please try again.",
}

// Kinds lists every kind.
func Kinds() []Kind {
	return []Kind{Network, Validation, InvalidCredentials, EmailNotVerified, OtpInvalid, OtpExpired, NotFound, Server, StorageError, Unknown}
}

// Message returns the fixed user facing message of k.
func (k Kind) Message() string {
	if msg, ok := messages[k]; ok {
		return msg
	}
	return messages[Unknown]
}

// Error is a translated failure. Message is safe to show to users; the cause
// is kept for logging only.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string // field -> problem, set for Validation
	cause   error
}

// New builds an Error of kind with its fixed message.
func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Message: kind.Message(), cause: cause}
}

// Invalid builds a Validation error for the given fields.
func Invalid(fields map[string]string, cause error) *Error {
	e := New(Validation, cause)
	e.Fields = fields
	return e
}

func (e *Error) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s %s", name, e.Fields[name]))
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Retryable reports whether a read that failed with err may be retried.
func Retryable(err error) bool {
	switch Translate(err).Kind {
	case Network, Server:
		return true
	default:
		return false
	}
}

// KindOf returns the kind err translates to, or "" for nil.
func KindOf(err error) Kind {
	if e := Translate(err); e != nil {
		return e.Kind
	}
	return ""
}
