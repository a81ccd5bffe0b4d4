package session

import (
	"time"

	"github.com/jrsteele09/go-market-client/apierror"
)

// State is a step of the session lifecycle.
type State int

const (
	Anonymous State = iota
	Registering
	AwaitingVerification
	Verifying
	LoggingIn
	Authenticated
	Failed
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Registering:
		return "registering"
	case AwaitingVerification:
		return "awaiting_verification"
	case Verifying:
		return "verifying"
	case LoggingIn:
		return "logging_in"
	case Authenticated:
		return "authenticated"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session is an immutable snapshot of the controller's state. The pending
// password is never part of a snapshot.
type Session struct {
	State                State
	Email                string
	HasPendingPassword   bool
	EmailVerified        bool
	OTPResendAvailableAt time.Time
	FailureReason        string          // set in Failed
	LastError            *apierror.Error // outcome of the last operation
	Notice               string          // informational message for the user
}

// ResendIn returns how long until a resend is allowed again.
func (s Session) ResendIn(now time.Time) time.Duration {
	if d := s.OTPResendAvailableAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

const (
	noticeVerified    = "Email verified, please log in."
	noticeCodeSent    = "A verification code has been sent to your email."
	noticeVerifyEmail = "Please verify your email to continue."
	noticeExpired     = "Your session has expired, please log in again."
)
