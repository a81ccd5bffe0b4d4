package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jrsteele09/go-market-client/users"
	"github.com/pkg/errors"
)

const (
	signupPath         = "/auth/signup"
	loginPath          = "/auth/login"
	verifyOTPPath      = "/auth/verify-otp"
	resendOTPPath      = "/auth/resend-otp"
	forgotPasswordPath = "/auth/forgot-password"
	profilePath        = "/auth/profile"
)

// Signup registers a new account. The server emails an OTP for verification.
func (c *Client) Signup(ctx context.Context, in SignupRequest) error {
	form := newForm()
	form.field("firstName", in.FirstName)
	form.field("lastName", in.LastName)
	form.field("email", in.Email)
	form.field("password", in.Password)
	if in.ProfileImage != nil {
		form.file("profileImage", 0, *in.ProfileImage)
	}
	req, err := form.request(http.MethodPost, signupPath, false)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, req)
	return err
}

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, in LoginRequest) (*LoginResponse, error) {
	if in.TokenExpiresIn == "" {
		in.TokenExpiresIn = DefaultTokenExpiresIn
	}
	req, err := jsonRequest(http.MethodPost, loginPath, in, false)
	if err != nil {
		return nil, err
	}
	env, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	var out LoginResponse
	if err := decodeData(env, req.method, req.path, &out); err != nil {
		return nil, err
	}
	if out.AccessToken == "" || out.RefreshToken == "" {
		return nil, errors.Wrap(ErrMalformedResponse, "login response without tokens")
	}
	return &out, nil
}

func (c *Client) VerifyOTP(ctx context.Context, in VerifyOTPRequest) error {
	req, err := jsonRequest(http.MethodPost, verifyOTPPath, in, false)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, req)
	return err
}

func (c *Client) ResendOTP(ctx context.Context, email string) error {
	req, err := jsonRequest(http.MethodPost, resendOTPPath, emailRequest{Email: email}, false)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, req)
	return err
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	req, err := jsonRequest(http.MethodPost, forgotPasswordPath, emailRequest{Email: email}, false)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, req)
	return err
}

// Profile returns the authenticated user's profile.
func (c *Client) Profile(ctx context.Context) (*users.Profile, error) {
	return c.getProfile(ctx, profilePath)
}

// ProfileByID returns another user's public profile.
func (c *Client) ProfileByID(ctx context.Context, id string) (*users.Profile, error) {
	return c.getProfile(ctx, profilePath+"/"+url.PathEscape(id))
}

func (c *Client) getProfile(ctx context.Context, path string) (*users.Profile, error) {
	req := request{method: http.MethodGet, path: path, authed: true}
	env, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	return decodeProfile(env, req)
}

// UpdateProfile patches the authenticated user's profile.
func (c *Client) UpdateProfile(ctx context.Context, patch users.ProfilePatch) (*users.Profile, error) {
	form := newForm()
	if patch.FirstName != nil {
		form.field("firstName", *patch.FirstName)
	}
	if patch.LastName != nil {
		form.field("lastName", *patch.LastName)
	}
	if patch.ProfileImage != nil {
		form.file("profileImage", 0, *patch.ProfileImage)
	}
	req, err := form.request(http.MethodPatch, profilePath, true)
	if err != nil {
		return nil, err
	}
	env, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	return decodeProfile(env, req)
}

func decodeProfile(env *envelope, req request) (*users.Profile, error) {
	var data profileData
	if err := decodeData(env, req.method, req.path, &data); err != nil {
		return nil, err
	}
	if data.User == nil || data.User.ID == "" {
		return nil, errors.Wrapf(ErrMalformedResponse, "%s %s: missing user", req.method, req.path)
	}
	return data.User, nil
}
