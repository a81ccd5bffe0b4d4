package errors

import (
	"errors"
	"fmt"
)

// Common error types for the marketplace client
var (
	// Session errors
	ErrInvalidState       = errors.New("operation not allowed in current session state")
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
	ErrNotAuthenticated   = errors.New("not authenticated")

	// Storage errors
	ErrStorage       = errors.New("token storage failure")
	ErrCorruptTokens = errors.New("stored tokens are corrupt")

	// API errors
	ErrMalformedResponse = errors.New("malformed response")

	// General errors
	ErrClosed = errors.New("closed")
)

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
