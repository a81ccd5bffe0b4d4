package apierror

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/jrsteele09/go-market-client/api"
	clienterrors "github.com/jrsteele09/go-market-client/internal/errors"
	"github.com/jrsteele09/go-market-client/tokens"
)

// machine codes sent by the API in the envelope
var codeKinds = map[string]Kind{
	"EMAIL_NOT_VERIFIED":  EmailNotVerified,
	"USER_NOT_VERIFIED":   EmailNotVerified,
	"INVALID_CREDENTIALS": InvalidCredentials,
	"UNAUTHORIZED":        InvalidCredentials,
	"INVALID_OTP":         OtpInvalid,
	"OTP_INVALID":         OtpInvalid,
	"OTP_EXPIRED":         OtpExpired,
	"EXPIRED_OTP":         OtpExpired,
	"NOT_FOUND":           NotFound,
	"VALIDATION_ERROR":    Validation,
	"INTERNAL_ERROR":      Server,
}

// message fragments, checked in order
var markers = []struct {
	fragment string
	kind     Kind
}{
	{"verify your email", EmailNotVerified},
	{"email not verified", EmailNotVerified},
	{"not verified", EmailNotVerified},
	{"otp expired", OtpExpired},
	{"otp has expired", OtpExpired},
	{"code has expired", OtpExpired},
	{"expired otp", OtpExpired},
	{"invalid otp", OtpInvalid},
	{"incorrect otp", OtpInvalid},
	{"invalid verification code", OtpInvalid},
	{"invalid credentials", InvalidCredentials},
	{"invalid email or password", InvalidCredentials},
}

// Translate classifies err. It is total: nil yields nil and every other
// error yields exactly one kind.
func Translate(err error) *Error {
	if err == nil {
		return nil
	}

	var translated *Error
	if errors.As(err, &translated) {
		return translated
	}

	var storageErr *tokens.StorageError
	if errors.As(err, &storageErr) {
		return New(StorageError, err)
	}
	if errors.Is(err, clienterrors.ErrNotAuthenticated) {
		return New(InvalidCredentials, err)
	}

	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		return Invalid(fieldsOf(validationErrs), err)
	}
	var fieldErr validator.FieldError
	if errors.As(err, &fieldErr) {
		return Invalid(fieldsOf(validator.ValidationErrors{fieldErr}), err)
	}

	if errors.Is(err, api.ErrMalformedResponse) {
		return New(Unknown, err)
	}

	var statusErr *api.StatusError
	if errors.As(err, &statusErr) {
		return fromStatus(statusErr)
	}

	if isNetwork(err) {
		return New(Network, err)
	}
	return New(Unknown, err)
}

func fromStatus(se *api.StatusError) *Error {
	if kind, ok := codeKinds[strings.ToUpper(se.Code)]; ok {
		return withFields(New(kind, se), se)
	}

	msg := strings.ToLower(se.Message)
	for _, m := range markers {
		if strings.Contains(msg, m.fragment) {
			return New(m.kind, se)
		}
	}

	switch {
	case se.StatusCode == http.StatusBadRequest, se.StatusCode == http.StatusUnprocessableEntity:
		return withFields(New(Validation, se), se)
	case se.StatusCode == http.StatusUnauthorized:
		return New(InvalidCredentials, se)
	case se.StatusCode == http.StatusNotFound:
		return New(NotFound, se)
	case se.StatusCode == http.StatusRequestTimeout:
		return New(Network, se)
	case se.StatusCode >= 500:
		return New(Server, se)
	default:
		return New(Unknown, se)
	}
}

func withFields(e *Error, se *api.StatusError) *Error {
	if e.Kind == Validation && len(se.Fields) > 0 {
		e.Fields = make(map[string]string, len(se.Fields))
		for k, v := range se.Fields {
			e.Fields[k] = v
		}
	}
	return e
}

func isNetwork(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func fieldsOf(errs validator.ValidationErrors) map[string]string {
	fields := make(map[string]string, len(errs))
	for _, fe := range errs {
		fields[fieldName(fe)] = problem(fe)
	}
	return fields
}

func fieldName(fe validator.FieldError) string {
	name := fe.Field()
	if name == "" {
		return fe.Tag()
	}
	return strings.ToLower(name[:1]) + name[1:]
}

func problem(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		if fe.Kind().String() == "slice" {
			return "needs at least " + fe.Param() + " entries"
		}
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "len":
		return "must be exactly " + fe.Param() + " characters"
	case "numeric":
		return "must contain only digits"
	case "gt":
		return "must be greater than " + fe.Param()
	case "latitude", "longitude":
		return "must be a valid " + fe.Tag()
	default:
		return "is invalid"
	}
}
