package users_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jrsteele09/go-market-client/querycache"
	"github.com/jrsteele09/go-market-client/users"
	"github.com/stretchr/testify/require"
)

type fakeProfileAPI struct {
	mu      sync.Mutex
	profile *users.Profile
	others  map[string]*users.Profile
	err     error
	calls   int
	idCalls int
}

func (f *fakeProfileAPI) Profile(context.Context) (*users.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	p := *f.profile
	return &p, nil
}

func (f *fakeProfileAPI) ProfileByID(_ context.Context, id string) (*users.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idCalls++
	p, ok := f.others[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return p, nil
}

func TestProfileReader(t *testing.T) {
	api := &fakeProfileAPI{
		profile: &users.Profile{ID: "u1", Email: "a@b.com", FirstName: "Ada", LastName: "Lovelace"},
		others:  map[string]*users.Profile{"u2": {ID: "u2", FirstName: "Grace"}},
	}
	cache := querycache.New()
	reader, err := users.NewProfileReader(api, cache)
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("profile is cached under the fixed key", func(t *testing.T) {
		p, err := reader.Profile(ctx)
		require.NoError(t, err)
		require.Equal(t, "Ada Lovelace", p.FullName())

		_, err = reader.Profile(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, api.calls)
		require.Equal(t, querycache.Success, cache.Read(users.ProfileKey).Status)
	})

	t.Run("invalidation refetches", func(t *testing.T) {
		require.Equal(t, 1, cache.InvalidateResource(users.ProfileKey))
		api.profile.FirstName = "Augusta"
		p, err := reader.Profile(ctx)
		require.NoError(t, err)
		require.Equal(t, "Augusta", p.FirstName)
		require.Equal(t, 2, api.calls)
	})

	t.Run("other profiles are keyed by id", func(t *testing.T) {
		p, err := reader.ProfileByID(ctx, "u2")
		require.NoError(t, err)
		require.Equal(t, "Grace", p.FirstName)
		require.Equal(t, querycache.Success, cache.Read("user-profile/u2").Status)

		_, err = reader.ProfileByID(ctx, "missing")
		require.Error(t, err)

		_, err = reader.ProfileByID(ctx, "")
		require.Error(t, err)
		require.Equal(t, 2, api.idCalls)
	})
}

func TestNewProfileReader_RequiresDependencies(t *testing.T) {
	_, err := users.NewProfileReader(nil, querycache.New())
	require.Error(t, err)
	_, err = users.NewProfileReader(&fakeProfileAPI{}, nil)
	require.Error(t, err)
}

func TestProfilePatch_Empty(t *testing.T) {
	require.True(t, users.ProfilePatch{}.Empty())
	name := "Ada"
	require.False(t, users.ProfilePatch{FirstName: &name}.Empty())
}
