package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const maxResponseBytes = 10 << 20

// Client talks to the marketplace REST API. Public endpoints go through a
// plain transport; authenticated ones through an oauth2.Transport that reads
// the bearer token from the configured token source on every request.
type Client struct {
	baseURL        *url.URL
	timeout        time.Duration
	base           http.RoundTripper
	tokenSource    oauth2.TokenSource
	public         *http.Client
	authed         *http.Client
	logger         zerolog.Logger
	onUnauthorized func()
	hookLock       sync.RWMutex
}

// Option configures the Client.
type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithTokenSource supplies bearer tokens for authenticated endpoints.
func WithTokenSource(src oauth2.TokenSource) Option {
	return func(c *Client) {
		c.tokenSource = src
	}
}

// WithTransport replaces the base round tripper (primarily for testing).
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.base = rt
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, options ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "[api.New] invalid base URL")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("[api.New] base URL %q must be absolute", baseURL)
	}

	c := &Client{
		baseURL: u,
		timeout: 15 * time.Second,
		base:    http.DefaultTransport,
		logger:  log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "api").Logger()

	rt := chainTransport(c.base, withRequestID, withLogging(c.logger))
	c.public = &http.Client{Timeout: c.timeout, Transport: rt}
	if c.tokenSource != nil {
		c.authed = &http.Client{
			Timeout:   c.timeout,
			Transport: &oauth2.Transport{Source: c.tokenSource, Base: rt},
		}
	}
	return c, nil
}

// OnUnauthorized registers fn to run when an authenticated request is
// rejected with 401.
func (c *Client) OnUnauthorized(fn func()) {
	c.hookLock.Lock()
	defer c.hookLock.Unlock()
	c.onUnauthorized = fn
}

type request struct {
	method      string
	path        string
	query       url.Values
	body        io.Reader
	contentType string
	authed      bool
}

func jsonRequest(method, path string, payload any, authed bool) (request, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return request{}, errors.Wrap(err, "marshal request body")
	}
	return request{
		method:      method,
		path:        path,
		body:        bytes.NewReader(data),
		contentType: "application/json",
		authed:      authed,
	}, nil
}

// do performs the request and returns the decoded envelope of a successful
// response. Failures are transport errors, *StatusError or ErrMalformedResponse.
func (c *Client) do(ctx context.Context, r request) (*envelope, error) {
	u := *c.baseURL
	u.Path = u.Path + r.path
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), r.body)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	httpClient := c.public
	if r.authed {
		if c.authed == nil {
			return nil, errors.New("[api.Client] authenticated request without a token source")
		}
		httpClient = c.authed
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}

	if r.authed && resp.StatusCode == http.StatusUnauthorized {
		c.hookLock.RLock()
		hook := c.onUnauthorized
		c.hookLock.RUnlock()
		if hook != nil {
			hook()
		}
	}

	return decodeEnvelope(r.method, r.path, resp.StatusCode, body)
}

func decodeEnvelope(method, path string, status int, body []byte) (*envelope, error) {
	ok := status >= 200 && status < 300

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || env.Success == nil {
		if !ok {
			return nil, &StatusError{StatusCode: status, Method: method, Path: path}
		}
		return nil, errors.Wrapf(ErrMalformedResponse, "%s %s", method, path)
	}
	if ok && *env.Success {
		return &env, nil
	}
	return nil, env.statusError(method, path, status)
}

func (e *envelope) statusError(method, path string, status int) *StatusError {
	se := &StatusError{
		StatusCode: status,
		Code:       e.Code,
		Message:    e.Message,
		Method:     method,
		Path:       path,
	}
	for _, raw := range []json.RawMessage{e.Data, e.Error} {
		if len(raw) == 0 {
			continue
		}
		var msg string
		if json.Unmarshal(raw, &msg) == nil {
			if se.Message == "" {
				se.Message = msg
			}
			continue
		}
		var detail failureDetail
		if json.Unmarshal(raw, &detail) == nil {
			if se.Message == "" {
				se.Message = detail.Message
			}
			if se.Code == "" {
				se.Code = detail.Code
			}
		}
	}
	if len(e.Errors) > 0 {
		se.Fields = make(map[string]string, len(e.Errors))
		for _, issue := range e.Errors {
			field := firstNonEmpty(issue.Field, issue.Path, issue.Param)
			if field == "" {
				continue
			}
			se.Fields[field] = firstNonEmpty(issue.Message, issue.Msg)
		}
	}
	return se
}

// decodeData unmarshals the envelope data into out. Missing data is malformed.
func decodeData(env *envelope, method, path string, out any) error {
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return errors.Wrapf(ErrMalformedResponse, "%s %s: missing data", method, path)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return errors.Wrapf(ErrMalformedResponse, "%s %s: %v", method, path, err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
