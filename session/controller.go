// Package session owns the client session lifecycle: registration, email
// verification with a resend timer, login, logout and restore at start.
package session

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-market-client/api"
	"github.com/jrsteele09/go-market-client/apierror"
	clienterrors "github.com/jrsteele09/go-market-client/internal/errors"
	"github.com/jrsteele09/go-market-client/products"
	"github.com/jrsteele09/go-market-client/querycache"
	"github.com/jrsteele09/go-market-client/tokens"
	"github.com/jrsteele09/go-market-client/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultOTPLength      = 6
	DefaultResendInterval = 60 * time.Second
)

var (
	// ErrSubmissionInFlight rejects a login, register or OTP submission made
	// while another one is running.
	ErrSubmissionInFlight = clienterrors.ErrSubmissionInFlight
	// ErrInvalidState rejects an event the current state does not accept.
	ErrInvalidState = clienterrors.ErrInvalidState
)

// AuthAPI is the part of the API the controller calls.
type AuthAPI interface {
	Signup(ctx context.Context, in api.SignupRequest) error
	Login(ctx context.Context, in api.LoginRequest) (*api.LoginResponse, error)
	VerifyOTP(ctx context.Context, in api.VerifyOTPRequest) error
	ResendOTP(ctx context.Context, email string) error
}

// RegisterInput is the sign up form.
type RegisterInput struct {
	FirstName    string           `validate:"required,min=2"`
	LastName     string           `validate:"required,min=2"`
	Email        string           `validate:"required,email"`
	Password     string           `validate:"required,min=8"`
	ProfileImage *products.Upload `validate:"omitempty"`
}

type loginInput struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// Controller is the single writer of the Session.
type Controller struct {
	api            AuthAPI
	store          tokens.Store
	cache          *querycache.Cache
	nowTime        func() time.Time
	logger         zerolog.Logger
	otpLength      int
	resendInterval time.Duration
	tokenExpiresIn string
	validate       *validator.Validate

	mu              sync.Mutex
	deliver         sync.Mutex
	session         Session
	pendingPassword string
	submitting      bool
	subs            map[string]func(Session)
}

// Option configures the Controller.
type Option func(*Controller)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Controller) {
		c.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithOTPLength sets how many digits a verification code has.
func WithOTPLength(n int) Option {
	return func(c *Controller) {
		c.otpLength = n
	}
}

func WithResendInterval(d time.Duration) Option {
	return func(c *Controller) {
		c.resendInterval = d
	}
}

// WithTokenExpiresIn sets the expiry hint sent with every login.
func WithTokenExpiresIn(hint string) Option {
	return func(c *Controller) {
		c.tokenExpiresIn = hint
	}
}

// WithCache lets the controller invalidate the profile on login and clear
// every entry on logout.
func WithCache(cache *querycache.Cache) Option {
	return func(c *Controller) {
		c.cache = cache
	}
}

// New creates a Controller in the Anonymous state.
func New(authAPI AuthAPI, store tokens.Store, options ...Option) (*Controller, error) {
	if authAPI == nil {
		return nil, errors.New("[session.New] auth api is required")
	}
	if store == nil {
		return nil, errors.New("[session.New] token store is required")
	}

	c := &Controller{
		api:            authAPI,
		store:          store,
		nowTime:        time.Now,
		logger:         log.Logger,
		otpLength:      DefaultOTPLength,
		resendInterval: DefaultResendInterval,
		tokenExpiresIn: api.DefaultTokenExpiresIn,
		validate:       validator.New(validator.WithRequiredStructEnabled()),
		subs:           make(map[string]func(Session)),
	}
	for _, opt := range options {
		opt(c)
	}
	if c.otpLength <= 0 {
		return nil, errors.Errorf("[session.New] invalid otp length %d", c.otpLength)
	}
	c.logger = c.logger.With().Str("component", "session").Logger()
	return c, nil
}

// Snapshot returns the current session.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// IsAuthenticated is the signal the rest of the client reads.
func (c *Controller) IsAuthenticated() bool {
	return c.Snapshot().State == Authenticated
}

// Subscribe registers fn to receive every new snapshot. Deliveries are
// serialised in the order the snapshots were taken; fn must not call the
// controller's submitting operations.
func (c *Controller) Subscribe(fn func(Session)) (unsubscribe func()) {
	id := uuid.NewString()
	c.mu.Lock()
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

func (c *Controller) notify() {
	c.deliver.Lock()
	defer c.deliver.Unlock()

	c.mu.Lock()
	snapshot := c.session
	fns := make([]func(Session), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(snapshot)
	}
}

// transitionLocked moves to state and applies mutate. Callers hold mu.
func (c *Controller) transitionLocked(to State, mutate func(s *Session)) {
	from := c.session.State
	c.session.State = to
	if to != Failed {
		c.session.FailureReason = ""
	}
	if mutate != nil {
		mutate(&c.session)
	}
	if from != to {
		c.logger.Debug().Str("from", from.String()).Str("to", to.String()).Msg("session transition")
	}
}

func idle(s State) bool {
	return s == Anonymous || s == Failed
}

// beginSubmitLocked claims the submission slot for an event accepted in one
// of the given states.
func (c *Controller) beginSubmitLocked(accepted func(State) bool) error {
	if c.submitting {
		return ErrSubmissionInFlight
	}
	if !accepted(c.session.State) {
		return errors.Wrapf(ErrInvalidState, "state %s", c.session.State)
	}
	c.submitting = true
	return nil
}

func (c *Controller) endSubmit() {
	c.mu.Lock()
	c.submitting = false
	c.mu.Unlock()
}

func (c *Controller) check(v any) error {
	if err := c.validate.Struct(v); err != nil {
		return apierror.Translate(err)
	}
	return nil
}

// Restore seeds the session from the token store: Authenticated when a pair
// is stored and not expired, Anonymous otherwise. An expired pair is cleared.
func (c *Controller) Restore(ctx context.Context) error {
	c.mu.Lock()
	if err := c.beginSubmitLocked(idle); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()
	defer c.endSubmit()

	pair, err := c.store.Load(ctx)
	if err == nil && pair != nil && pair.Expired(c.nowTime()) {
		c.logger.Info().Time("expiry", pair.Expiry).Msg("stored tokens expired")
		pair = nil
		err = c.store.Clear(ctx)
	}

	c.mu.Lock()
	switch {
	case err != nil:
		translated := apierror.Translate(err)
		c.transitionLocked(Failed, func(s *Session) {
			*s = Session{State: Failed, FailureReason: translated.Message, LastError: translated}
		})
		c.mu.Unlock()
		c.logger.Error().Err(err).Msg("restore failed")
		c.notify()
		return translated
	case pair == nil:
		c.transitionLocked(Anonymous, func(s *Session) {
			*s = Session{State: Anonymous}
		})
	default:
		c.transitionLocked(Authenticated, func(s *Session) {
			*s = Session{State: Authenticated, EmailVerified: true}
		})
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

// Login submits credentials. EmailNotVerified moves the session to
// AwaitingVerification, keeps the credentials for the automatic login after
// verification and fires one resend.
func (c *Controller) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if err := c.check(loginInput{Email: email, Password: password}); err != nil {
		return err
	}

	c.mu.Lock()
	if err := c.beginSubmitLocked(idle); err != nil {
		c.mu.Unlock()
		return err
	}
	c.transitionLocked(LoggingIn, func(s *Session) {
		*s = Session{State: LoggingIn, Email: email}
	})
	c.mu.Unlock()
	c.notify()
	defer c.endSubmit()

	return c.login(ctx, email, password, false)
}

// login runs the login call for a session already in LoggingIn.
func (c *Controller) login(ctx context.Context, email, password string, afterVerify bool) error {
	resp, err := c.api.Login(ctx, api.LoginRequest{Email: email, Password: password, TokenExpiresIn: c.tokenExpiresIn})
	if err == nil {
		pair := tokens.NewPair(resp.AccessToken, resp.RefreshToken, c.tokenExpiresIn, c.nowTime())
		err = c.store.Save(ctx, pair)
	}

	if err == nil {
		c.mu.Lock()
		c.pendingPassword = ""
		c.transitionLocked(Authenticated, func(s *Session) {
			s.HasPendingPassword = false
			s.EmailVerified = true
			s.OTPResendAvailableAt = time.Time{}
		})
		c.mu.Unlock()
		if c.cache != nil {
			c.cache.InvalidateResource(users.ProfileKey)
		}
		c.logger.Info().Msg("logged in")
		c.notify()
		return nil
	}

	translated := apierror.Translate(err)
	c.logger.Warn().Err(err).Str("kind", string(translated.Kind)).Msg("login failed")

	if translated.Kind == apierror.EmailNotVerified && !afterVerify {
		c.mu.Lock()
		c.pendingPassword = password
		c.transitionLocked(AwaitingVerification, func(s *Session) {
			s.HasPendingPassword = true
			s.EmailVerified = false
			s.LastError = translated
			s.Notice = noticeVerifyEmail
		})
		c.mu.Unlock()
		c.notify()
		c.autoResend(ctx)
		return translated
	}

	c.mu.Lock()
	c.pendingPassword = ""
	c.transitionLocked(Anonymous, func(s *Session) {
		s.HasPendingPassword = false
		s.EmailVerified = afterVerify
		s.LastError = translated
		s.Notice = ""
	})
	c.mu.Unlock()
	c.notify()
	return translated
}

// Register creates an account and moves to AwaitingVerification with the
// credentials kept for the login after verification.
func (c *Controller) Register(ctx context.Context, in RegisterInput) error {
	in.Email = strings.TrimSpace(in.Email)
	if err := c.check(in); err != nil {
		return err
	}

	c.mu.Lock()
	if err := c.beginSubmitLocked(idle); err != nil {
		c.mu.Unlock()
		return err
	}
	c.transitionLocked(Registering, func(s *Session) {
		*s = Session{State: Registering, Email: in.Email}
	})
	c.mu.Unlock()
	c.notify()
	defer c.endSubmit()

	err := c.api.Signup(ctx, api.SignupRequest{
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		Email:        in.Email,
		Password:     in.Password,
		ProfileImage: in.ProfileImage,
	})
	if err != nil {
		translated := apierror.Translate(err)
		c.logger.Warn().Err(err).Str("kind", string(translated.Kind)).Msg("registration failed")
		c.mu.Lock()
		c.transitionLocked(Anonymous, func(s *Session) {
			s.LastError = translated
		})
		c.mu.Unlock()
		c.notify()
		return translated
	}

	c.mu.Lock()
	c.pendingPassword = in.Password
	c.transitionLocked(AwaitingVerification, func(s *Session) {
		s.HasPendingPassword = in.Password != ""
	})
	c.mu.Unlock()
	c.notify()
	c.autoResend(ctx)
	return nil
}

// ResumeVerification enters AwaitingVerification for a user who already
// holds a code. No resend is fired.
func (c *Controller) ResumeVerification(email, password string) error {
	email = strings.TrimSpace(email)
	if err := c.check(struct {
		Email string `validate:"required,email"`
	}{Email: email}); err != nil {
		return err
	}

	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return ErrSubmissionInFlight
	}
	if !idle(c.session.State) {
		state := c.session.State
		c.mu.Unlock()
		return errors.Wrapf(ErrInvalidState, "state %s", state)
	}
	c.pendingPassword = password
	c.transitionLocked(AwaitingVerification, func(s *Session) {
		*s = Session{State: AwaitingVerification, Email: email, HasPendingPassword: password != ""}
	})
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *Controller) autoResend(ctx context.Context) {
	if _, err := c.Resend(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("automatic resend failed")
	}
}

// Resend asks for a new code. It does nothing, and reports false, while the
// resend deadline has not passed. The deadline is set before the call so
// concurrent resends make a single request; a failed request clears it.
func (c *Controller) Resend(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.session.State != AwaitingVerification {
		state := c.session.State
		c.mu.Unlock()
		return false, errors.Wrapf(ErrInvalidState, "state %s", state)
	}
	now := c.nowTime()
	if now.Before(c.session.OTPResendAvailableAt) {
		c.mu.Unlock()
		return false, nil
	}
	deadline := now.Add(c.resendInterval)
	email := c.session.Email
	c.session.OTPResendAvailableAt = deadline
	c.mu.Unlock()
	c.notify()

	if err := c.api.ResendOTP(ctx, email); err != nil {
		translated := apierror.Translate(err)
		c.mu.Lock()
		if c.session.OTPResendAvailableAt.Equal(deadline) {
			c.session.OTPResendAvailableAt = time.Time{}
		}
		c.session.LastError = translated
		c.mu.Unlock()
		c.notify()
		return false, translated
	}

	c.mu.Lock()
	c.session.Notice = noticeCodeSent
	c.mu.Unlock()
	c.notify()
	return true, nil
}

// SubmitOTP verifies code. With a pending password the verified user is
// logged in straight away; otherwise the session returns to Anonymous with a
// notice to log in.
func (c *Controller) SubmitOTP(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if !c.validCode(code) {
		return apierror.Invalid(map[string]string{
			"otp": "must be exactly " + strconv.Itoa(c.otpLength) + " digits",
		}, nil)
	}

	c.mu.Lock()
	if err := c.beginSubmitLocked(func(s State) bool { return s == AwaitingVerification }); err != nil {
		c.mu.Unlock()
		return err
	}
	email := c.session.Email
	c.transitionLocked(Verifying, func(s *Session) {
		s.LastError = nil
		s.Notice = ""
	})
	c.mu.Unlock()
	c.notify()
	defer c.endSubmit()

	if err := c.api.VerifyOTP(ctx, api.VerifyOTPRequest{Email: email, OTP: code}); err != nil {
		translated := apierror.Translate(err)
		c.logger.Warn().Err(err).Str("kind", string(translated.Kind)).Msg("verification failed")
		c.mu.Lock()
		c.transitionLocked(AwaitingVerification, func(s *Session) {
			s.LastError = translated
		})
		c.mu.Unlock()
		c.notify()
		return translated
	}

	c.mu.Lock()
	password := c.pendingPassword
	if password == "" {
		c.transitionLocked(Anonymous, func(s *Session) {
			s.EmailVerified = true
			s.OTPResendAvailableAt = time.Time{}
			s.Notice = noticeVerified
		})
		c.mu.Unlock()
		c.notify()
		return nil
	}
	c.transitionLocked(LoggingIn, func(s *Session) {
		s.EmailVerified = true
		s.OTPResendAvailableAt = time.Time{}
	})
	c.mu.Unlock()
	c.notify()

	return c.login(ctx, email, password, true)
}

func (c *Controller) validCode(code string) bool {
	if len(code) != c.otpLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Logout clears the stored tokens and every cache entry. The session becomes
// Anonymous even when clearing the store fails; that failure is returned.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	if c.session.State != Authenticated {
		state := c.session.State
		c.mu.Unlock()
		return errors.Wrapf(ErrInvalidState, "state %s", state)
	}
	c.transitionLocked(Anonymous, func(s *Session) {
		*s = Session{State: Anonymous}
	})
	c.mu.Unlock()

	err := c.store.Clear(ctx)
	if c.cache != nil {
		c.cache.Clear()
	}
	if err != nil {
		translated := apierror.Translate(err)
		c.mu.Lock()
		c.session.LastError = translated
		c.mu.Unlock()
		c.logger.Error().Err(err).Msg("clearing tokens on logout failed")
		c.notify()
		return translated
	}
	c.logger.Info().Msg("logged out")
	c.notify()
	return nil
}

// Expire ends an authenticated session the server no longer accepts. It is a
// no-op in any other state.
func (c *Controller) Expire(ctx context.Context, cause error) {
	c.mu.Lock()
	if c.session.State != Authenticated {
		c.mu.Unlock()
		return
	}
	c.transitionLocked(Anonymous, func(s *Session) {
		*s = Session{
			State:     Anonymous,
			LastError: apierror.New(apierror.InvalidCredentials, cause),
			Notice:    noticeExpired,
		}
	})
	c.mu.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		c.logger.Error().Err(err).Msg("clearing expired tokens failed")
	}
	if c.cache != nil {
		c.cache.Clear()
	}
	c.logger.Warn().AnErr("cause", cause).Msg("session expired")
	c.notify()
}
