package tokens

import (
	"context"
	"fmt"
	"time"

	clienterrors "github.com/jrsteele09/go-market-client/internal/errors"
	"golang.org/x/oauth2"
)

// StorageKey is the fixed key the token pair is persisted under.
const StorageKey = "market.auth.tokens"

var (
	// ErrStorage matches every *StorageError via errors.Is.
	ErrStorage = clienterrors.ErrStorage
	// ErrCorruptTokens is wrapped when a persisted pair cannot be decoded.
	ErrCorruptTokens = clienterrors.ErrCorruptTokens
)

// Pair is the access/refresh credential issued at login.
type Pair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    string    `json:"expires_in,omitempty"` // expiry hint sent at login, e.g. "1y"
	Expiry       time.Time `json:"expiry,omitempty"`     // zero when unknown
}

// NewPair builds a Pair and resolves its expiry from the access token claims
// or, failing that, from the expiresIn hint relative to issuedAt.
func NewPair(accessToken, refreshToken, expiresIn string, issuedAt time.Time) Pair {
	p := Pair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    expiresIn,
	}
	p.Expiry = ExpiryOf(p, issuedAt)
	return p
}

// Expired reports whether the pair has a known expiry at or before now.
func (p Pair) Expired(now time.Time) bool {
	return !p.Expiry.IsZero() && !now.Before(p.Expiry)
}

// OAuth2 converts the pair into a bearer token for golang.org/x/oauth2 transports.
func (p Pair) OAuth2() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  p.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: p.RefreshToken,
		Expiry:       p.Expiry,
	}
}

// Store is durable persistence for the token pair. Save, Load and Clear are
// atomic with respect to each other; Load returns nil, nil when no pair is
// stored and Clear is idempotent. Every failure is a *StorageError.
type Store interface {
	Save(ctx context.Context, pair Pair) error
	Load(ctx context.Context) (*Pair, error)
	Clear(ctx context.Context) error
}

// StorageError reports a failed store operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("token storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

type storeTokenSource struct {
	ctx   context.Context
	store Store
}

// TokenSource adapts a Store into an oauth2.TokenSource. Each call reads the
// store so a logout or re-login is picked up by the next request.
func TokenSource(ctx context.Context, store Store) oauth2.TokenSource {
	return &storeTokenSource{ctx: ctx, store: store}
}

func (s *storeTokenSource) Token() (*oauth2.Token, error) {
	pair, err := s.store.Load(s.ctx)
	if err != nil {
		return nil, err
	}
	if pair == nil || pair.AccessToken == "" {
		return nil, clienterrors.ErrNotAuthenticated
	}
	return pair.OAuth2(), nil
}
