package users

import (
	"context"
	"strings"
	"time"

	"github.com/jrsteele09/go-market-client/products"
	"github.com/jrsteele09/go-market-client/querycache"
	"github.com/pkg/errors"
)

// ProfileKey is the fixed cache key of the authenticated user's profile.
const ProfileKey = "user-profile"

type ProfileImage struct {
	URL string `json:"url" yaml:"url"`
}

// Profile is the read-only projection of a user returned by the API.
type Profile struct {
	ID              string        `json:"id" yaml:"id"`                                          // Unique identifier for the user
	Email           string        `json:"email" yaml:"email"`                                    // User's email address
	FirstName       string        `json:"firstName" yaml:"first_name"`                           // First name of the user
	LastName        string        `json:"lastName" yaml:"last_name"`                             // Last name of the user
	ProfileImage    *ProfileImage `json:"profileImage,omitempty" yaml:"profile_image,omitempty"` // Avatar, relative to the API host
	IsEmailVerified bool          `json:"isEmailVerified" yaml:"email_verified"`                 // Has the user proven control of the address
	CreatedAt       *time.Time    `json:"createdAt,omitempty" yaml:"created_at,omitempty"`
}

func (p Profile) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// ProfilePatch carries the fields of a profile update; nil fields are left unchanged.
type ProfilePatch struct {
	FirstName    *string          `validate:"omitempty,min=2"`
	LastName     *string          `validate:"omitempty,min=2"`
	ProfileImage *products.Upload `validate:"omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p ProfilePatch) Empty() bool {
	return p.FirstName == nil && p.LastName == nil && p.ProfileImage == nil
}

// ProfileAPI fetches profiles from the server.
type ProfileAPI interface {
	Profile(ctx context.Context) (*Profile, error)
	ProfileByID(ctx context.Context, id string) (*Profile, error)
}

// ProfileReader reads profiles through the query cache.
type ProfileReader struct {
	api   ProfileAPI
	cache *querycache.Cache
}

func NewProfileReader(api ProfileAPI, cache *querycache.Cache) (*ProfileReader, error) {
	if api == nil {
		return nil, errors.New("[NewProfileReader] api is required")
	}
	if cache == nil {
		return nil, errors.New("[NewProfileReader] cache is required")
	}
	return &ProfileReader{api: api, cache: cache}, nil
}

// Profile returns the authenticated user's profile.
func (r *ProfileReader) Profile(ctx context.Context) (*Profile, error) {
	return querycache.Get(ctx, r.cache, ProfileKey, r.api.Profile)
}

// ProfileByID returns another user's public profile.
func (r *ProfileReader) ProfileByID(ctx context.Context, id string) (*Profile, error) {
	if id == "" {
		return nil, errors.New("[ProfileReader.ProfileByID] id is required")
	}
	return querycache.Get(ctx, r.cache, querycache.ItemKey(ProfileKey, id), func(ctx context.Context) (*Profile, error) {
		return r.api.ProfileByID(ctx, id)
	})
}
