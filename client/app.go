// Package client wires the marketplace client together from configuration.
package client

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-market-client/api"
	"github.com/jrsteele09/go-market-client/apierror"
	"github.com/jrsteele09/go-market-client/internal/config"
	"github.com/jrsteele09/go-market-client/mutation"
	"github.com/jrsteele09/go-market-client/pager"
	"github.com/jrsteele09/go-market-client/posts"
	"github.com/jrsteele09/go-market-client/products"
	"github.com/jrsteele09/go-market-client/querycache"
	"github.com/jrsteele09/go-market-client/session"
	"github.com/jrsteele09/go-market-client/tokens"
	"github.com/jrsteele09/go-market-client/users"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// App holds every component of the client.
type App struct {
	Config    config.Config
	Store     tokens.Store
	API       *api.Client
	Cache     *querycache.Cache
	Metrics   *querycache.Metrics
	Registry  *prometheus.Registry
	Session   *session.Controller
	Products  *pager.Pager[products.Product]
	Posts     *pager.Pager[posts.Post]
	Mutations *mutation.Coordinator
	Profiles  *users.ProfileReader

	logger  zerolog.Logger
	closers []func() error
}

type Option func(*options)

type options struct {
	logger    zerolog.Logger
	transport http.RoundTripper
	store     tokens.Store
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTransport replaces the HTTP transport (primarily for testing).
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) {
		o.transport = rt
	}
}

// WithStore replaces the configured token store.
func WithStore(store tokens.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// New builds the App described by cfg.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("[client.New] config is required")
	}
	o := options{logger: log.Logger}
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{Config: cfg, logger: o.logger}
	ok := false
	defer func() {
		if !ok {
			_ = app.Close()
		}
	}()

	app.Store = o.store
	if app.Store == nil {
		store, err := openStore(ctx, cfg, o.logger)
		if err != nil {
			return nil, err
		}
		app.Store = store
		if c, isCloser := store.(interface{ Close() error }); isCloser {
			app.closers = append(app.closers, c.Close)
		}
	}

	apiOpts := []api.Option{
		api.WithTimeout(cfg.GetTimeout()),
		api.WithTokenSource(tokens.TokenSource(context.WithoutCancel(ctx), app.Store)),
		api.WithLogger(o.logger),
	}
	if o.transport != nil {
		apiOpts = append(apiOpts, api.WithTransport(o.transport))
	}
	client, err := api.New(cfg.GetBaseURL(), apiOpts...)
	if err != nil {
		return nil, err
	}
	app.API = client

	app.Registry = prometheus.NewRegistry()
	app.Metrics = querycache.NewMetrics(app.Registry)
	app.Cache = querycache.New(
		querycache.WithStaleTime(cfg.GetStaleTime()),
		querycache.WithRetryPolicy(apierror.Retryable, cfg.GetRetryDelay()),
		querycache.WithMetrics(app.Metrics),
		querycache.WithLogger(o.logger),
	)

	app.Session, err = session.New(client, app.Store,
		session.WithCache(app.Cache),
		session.WithLogger(o.logger),
		session.WithOTPLength(cfg.GetOTPLength()),
		session.WithResendInterval(cfg.GetOTPResendInterval()),
		session.WithTokenExpiresIn(cfg.GetTokenExpiresIn()),
	)
	if err != nil {
		return nil, err
	}
	client.OnUnauthorized(func() {
		app.Session.Expire(context.Background(), errors.New("authenticated request rejected with 401"))
	})

	pagerOpts := []pager.Option{
		pager.WithPageSize(cfg.GetPageSize()),
		pager.WithDebounce(cfg.GetSearchDebounce()),
		pager.WithLogger(o.logger),
	}
	app.Products, err = pager.New[products.Product](products.Resource, productSource{api: client}, products.ID, app.Cache, pagerOpts...)
	if err != nil {
		return nil, err
	}
	app.Posts, err = pager.New[posts.Post](posts.Resource, postSource{api: client}, posts.ID, app.Cache, pagerOpts...)
	if err != nil {
		return nil, err
	}

	app.watchSession()

	app.Mutations, err = mutation.New(mutation.APIs{Products: client, Profiles: client}, app.Cache, mutation.WithLogger(o.logger))
	if err != nil {
		return nil, err
	}
	app.Profiles, err = users.NewProfileReader(client, app.Cache)
	if err != nil {
		return nil, err
	}

	ok = true
	return app, nil
}

// watchSession empties both lists whenever the session stops being
// authenticated, so no list outlives the user it was fetched for.
func (a *App) watchSession() {
	authenticated := a.Session.IsAuthenticated()
	unsubscribe := a.Session.Subscribe(func(s session.Session) {
		was := authenticated
		authenticated = s.State == session.Authenticated
		if !was || authenticated {
			return
		}
		a.logger.Debug().Str("state", s.State.String()).Msg("session ended, resetting lists")
		a.Products.Reset()
		a.Posts.Reset()
	})
	a.closers = append(a.closers, func() error {
		unsubscribe()
		return nil
	})
}

func openStore(ctx context.Context, cfg config.StorageConfig, logger zerolog.Logger) (tokens.Store, error) {
	opts := []tokens.Option{tokens.WithLogger(logger)}
	if secret := cfg.GetStorageSecret(); secret != "" {
		opts = append(opts, tokens.WithSecret(secret))
	}
	switch cfg.GetStorageDriver() {
	case DriverFile:
		return tokens.NewFileStore(cfg.GetStoragePath(), opts...)
	case DriverSQLite:
		return tokens.OpenSQLiteStore(ctx, cfg.GetStoragePath(), opts...)
	default:
		return nil, errors.Errorf("[client.New] unknown storage driver %q", cfg.GetStorageDriver())
	}
}

// Start restores the session persisted by a previous run.
func (a *App) Start(ctx context.Context) error {
	return a.Session.Restore(ctx)
}

// Product returns one listing, read through the cache. Errors are translated.
func (a *App) Product(ctx context.Context, id string) (*products.Product, error) {
	p, err := querycache.Get(ctx, a.Cache, querycache.ItemKey(products.ItemResource, id), func(ctx context.Context) (*products.Product, error) {
		return a.API.GetProduct(ctx, id)
	})
	if err != nil {
		return nil, apierror.Translate(err)
	}
	return p, nil
}

// Profile returns the authenticated user's profile. Errors are translated.
func (a *App) Profile(ctx context.Context) (*users.Profile, error) {
	p, err := a.Profiles.Profile(ctx)
	if err != nil {
		return nil, apierror.Translate(err)
	}
	return p, nil
}

// ForgotPassword asks the server to send password reset instructions.
func (a *App) ForgotPassword(ctx context.Context, email string) error {
	if err := a.API.ForgotPassword(ctx, strings.TrimSpace(email)); err != nil {
		return apierror.Translate(err)
	}
	return nil
}

// Close stops the pagers and releases the token store.
func (a *App) Close() error {
	if a.Products != nil {
		a.Products.Close()
	}
	if a.Posts != nil {
		a.Posts.Close()
	}
	var firstErr error
	for _, c := range a.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
