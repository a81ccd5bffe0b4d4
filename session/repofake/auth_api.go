package sessionrepofake

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/jrsteele09/go-market-client/api"
	"github.com/jrsteele09/go-market-client/session"
)

var _ session.AuthAPI = (*FakeAuthAPI)(nil)

type account struct {
	password string
	verified bool
}

// FakeAuthAPI is an in-memory auth backend. Unknown or wrong credentials fail
// with 401, unverified accounts with the server's "verify your email" reply.
type FakeAuthAPI struct {
	accounts map[string]*account
	otp      string
	failures map[string]error
	gates    map[string]chan struct{}
	calls    map[string]int
	logins   []api.LoginRequest
	issued   int
	lock     sync.Mutex
}

func NewFakeAuthAPI(otp string) *FakeAuthAPI {
	return &FakeAuthAPI{
		accounts: make(map[string]*account),
		otp:      otp,
		failures: make(map[string]error),
		gates:    make(map[string]chan struct{}),
		calls:    make(map[string]int),
	}
}

// AddAccount creates an account directly.
func (f *FakeAuthAPI) AddAccount(email, password string, verified bool) {
	f.lock.Lock()
	defer f.lock.Unlock()
	f.accounts[email] = &account{password: password, verified: verified}
}

// Fail makes every call of op ("signup", "login", "verify", "resend") fail
// with err until Fail(op, nil).
func (f *FakeAuthAPI) Fail(op string, err error) {
	f.lock.Lock()
	defer f.lock.Unlock()
	if err == nil {
		delete(f.failures, op)
		return
	}
	f.failures[op] = err
}

// Hold blocks calls of op until the returned release func is called.
func (f *FakeAuthAPI) Hold(op string) (release func()) {
	gate := make(chan struct{})
	f.lock.Lock()
	f.gates[op] = gate
	f.lock.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.lock.Lock()
			delete(f.gates, op)
			f.lock.Unlock()
			close(gate)
		})
	}
}

func (f *FakeAuthAPI) Calls(op string) int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.calls[op]
}

// Logins returns every login request received.
func (f *FakeAuthAPI) Logins() []api.LoginRequest {
	f.lock.Lock()
	defer f.lock.Unlock()
	return append([]api.LoginRequest(nil), f.logins...)
}

// Verified reports whether email has been verified.
func (f *FakeAuthAPI) Verified(email string) bool {
	f.lock.Lock()
	defer f.lock.Unlock()
	a, ok := f.accounts[email]
	return ok && a.verified
}

func (f *FakeAuthAPI) enter(ctx context.Context, op string) error {
	f.lock.Lock()
	f.calls[op]++
	gate := f.gates[op]
	f.lock.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	return f.failures[op]
}

func statusErr(status int, path, msg string) error {
	return &api.StatusError{StatusCode: status, Message: msg, Method: http.MethodPost, Path: path}
}

func (f *FakeAuthAPI) Signup(ctx context.Context, in api.SignupRequest) error {
	if err := f.enter(ctx, "signup"); err != nil {
		return err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	if _, exists := f.accounts[in.Email]; exists {
		return statusErr(http.StatusConflict, "/auth/signup", "User already exists")
	}
	f.accounts[in.Email] = &account{password: in.Password}
	return nil
}

func (f *FakeAuthAPI) Login(ctx context.Context, in api.LoginRequest) (*api.LoginResponse, error) {
	f.lock.Lock()
	f.logins = append(f.logins, in)
	f.lock.Unlock()
	if err := f.enter(ctx, "login"); err != nil {
		return nil, err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	a, ok := f.accounts[in.Email]
	if !ok || a.password != in.Password {
		return nil, statusErr(http.StatusUnauthorized, "/auth/login", "Invalid credentials")
	}
	if !a.verified {
		return nil, statusErr(http.StatusForbidden, "/auth/login", "Please verify your email before logging in")
	}
	f.issued++
	return &api.LoginResponse{
		AccessToken:  fmt.Sprintf("access-%d", f.issued),
		RefreshToken: fmt.Sprintf("refresh-%d", f.issued),
	}, nil
}

func (f *FakeAuthAPI) VerifyOTP(ctx context.Context, in api.VerifyOTPRequest) error {
	if err := f.enter(ctx, "verify"); err != nil {
		return err
	}
	f.lock.Lock()
	defer f.lock.Unlock()
	a, ok := f.accounts[in.Email]
	if !ok {
		return statusErr(http.StatusNotFound, "/auth/verify-otp", "User not found")
	}
	if in.OTP != f.otp {
		return statusErr(http.StatusBadRequest, "/auth/verify-otp", "Invalid OTP")
	}
	a.verified = true
	return nil
}

func (f *FakeAuthAPI) ResendOTP(ctx context.Context, _ string) error {
	return f.enter(ctx, "resend")
}
