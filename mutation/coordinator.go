// Package mutation performs create, update and delete operations and marks
// the cache entries they affect stale.
package mutation

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/jrsteele09/go-market-client/apierror"
	"github.com/jrsteele09/go-market-client/products"
	"github.com/jrsteele09/go-market-client/querycache"
	"github.com/jrsteele09/go-market-client/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Op int

const (
	Create Op = iota
	Update
	Delete
)

func (o Op) String() string {
	switch o {
	case Create:
		return "create"
	case Update:
		return "update"
	case Delete:
		return "delete"
	default:
		return "unknown"
	}
}

// Mutation describes one write. On success every key of Resource is
// invalidated, and ItemKey too when set.
type Mutation struct {
	Resource string
	ItemKey  string
	Op       Op
	Do       func(ctx context.Context) (any, error)
}

// ProductAPI performs product writes.
type ProductAPI interface {
	CreateProduct(ctx context.Context, draft products.Draft) (*products.Product, error)
	UpdateProduct(ctx context.Context, id string, patch products.Patch) (*products.Product, error)
	DeleteProduct(ctx context.Context, id string) (string, error)
}

// ProfileAPI performs profile writes.
type ProfileAPI interface {
	UpdateProfile(ctx context.Context, patch users.ProfilePatch) (*users.Profile, error)
}

// APIs holds the write endpoints the Coordinator calls.
type APIs struct {
	Products ProductAPI
	Profiles ProfileAPI
}

// Coordinator never retries a mutation and leaves the cache untouched when
// one fails.
type Coordinator struct {
	apis     APIs
	cache    *querycache.Cache
	validate *validator.Validate
	logger   zerolog.Logger
}

type Option func(*Coordinator)

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func New(apis APIs, cache *querycache.Cache, options ...Option) (*Coordinator, error) {
	if apis.Products == nil {
		return nil, errors.New("[mutation.New] Products api is required")
	}
	if apis.Profiles == nil {
		return nil, errors.New("[mutation.New] Profiles api is required")
	}
	if cache == nil {
		return nil, errors.New("[mutation.New] cache is required")
	}
	c := &Coordinator{
		apis:     apis,
		cache:    cache,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	c.logger = c.logger.With().Str("component", "mutation").Logger()
	return c, nil
}

// Run performs m. The error, if any, is an *apierror.Error.
func (c *Coordinator) Run(ctx context.Context, m Mutation) (any, error) {
	if m.Do == nil || m.Resource == "" {
		return nil, apierror.New(apierror.Unknown, errors.New("[Coordinator.Run] incomplete mutation"))
	}

	result, err := m.Do(ctx)
	if err != nil {
		translated := apierror.Translate(err)
		c.logger.Warn().Err(err).Str("resource", m.Resource).Str("op", m.Op.String()).Str("kind", string(translated.Kind)).Msg("mutation failed")
		return nil, translated
	}

	n := c.cache.InvalidateResource(m.Resource)
	if m.ItemKey != "" {
		n += c.cache.Invalidate(querycache.ExactPredicate(m.ItemKey))
	}
	c.logger.Debug().Str("resource", m.Resource).Str("op", m.Op.String()).Int("invalidated", n).Msg("mutation applied")
	return result, nil
}

func run[T any](ctx context.Context, c *Coordinator, m Mutation, do func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	m.Do = func(ctx context.Context) (any, error) {
		return do(ctx)
	}
	v, err := c.Run(ctx, m)
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

func (c *Coordinator) check(v any) error {
	if err := c.validate.Struct(v); err != nil {
		return apierror.Translate(err)
	}
	return nil
}

func requireID(id string) error {
	if id == "" {
		return apierror.Invalid(map[string]string{"id": "is required"}, nil)
	}
	return nil
}

// CreateProduct validates draft and creates the listing.
func (c *Coordinator) CreateProduct(ctx context.Context, draft products.Draft) (*products.Product, error) {
	if err := c.check(draft); err != nil {
		return nil, err
	}
	return run(ctx, c, Mutation{Resource: products.Resource, Op: Create}, func(ctx context.Context) (*products.Product, error) {
		return c.apis.Products.CreateProduct(ctx, draft)
	})
}

func (c *Coordinator) UpdateProduct(ctx context.Context, id string, patch products.Patch) (*products.Product, error) {
	if err := requireID(id); err != nil {
		return nil, err
	}
	if err := c.check(patch); err != nil {
		return nil, err
	}
	m := Mutation{Resource: products.Resource, ItemKey: querycache.ItemKey(products.ItemResource, id), Op: Update}
	return run(ctx, c, m, func(ctx context.Context) (*products.Product, error) {
		return c.apis.Products.UpdateProduct(ctx, id, patch)
	})
}

// DeleteProduct removes the listing and returns the server's confirmation.
func (c *Coordinator) DeleteProduct(ctx context.Context, id string) (string, error) {
	if err := requireID(id); err != nil {
		return "", err
	}
	m := Mutation{Resource: products.Resource, ItemKey: querycache.ItemKey(products.ItemResource, id), Op: Delete}
	return run(ctx, c, m, func(ctx context.Context) (string, error) {
		return c.apis.Products.DeleteProduct(ctx, id)
	})
}

// UpdateProfile patches the user's profile and invalidates every cached profile.
func (c *Coordinator) UpdateProfile(ctx context.Context, patch users.ProfilePatch) (*users.Profile, error) {
	if patch.Empty() {
		return nil, apierror.Invalid(map[string]string{"profile": "has no changes"}, nil)
	}
	if err := c.check(patch); err != nil {
		return nil, err
	}
	return run(ctx, c, Mutation{Resource: users.ProfileKey, Op: Update}, func(ctx context.Context) (*users.Profile, error) {
		return c.apis.Profiles.UpdateProfile(ctx, patch)
	})
}
