package api

import (
	"fmt"
	"net/http"

	clienterrors "github.com/jrsteele09/go-market-client/internal/errors"
)

// ErrMalformedResponse is returned when a response body does not match the
// expected envelope or payload shape.
var ErrMalformedResponse = clienterrors.ErrMalformedResponse

// StatusError is an API level failure: a non-2xx status or an envelope with
// success=false (which may arrive with HTTP 200).
type StatusError struct {
	StatusCode int
	Code       string            // machine readable code when the server sends one
	Message    string            // server message, never shown to users verbatim
	Fields     map[string]string // field -> problem, for validation failures
	Method     string
	Path       string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, msg)
}
