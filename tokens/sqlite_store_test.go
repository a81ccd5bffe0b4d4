package tokens_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jrsteele09/go-market-client/tokens"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_SaveLoadClear(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "market.db")

	s, err := tokens.OpenSQLiteStore(ctx, path, tokens.WithSecret("k"))
	require.NoError(t, err)

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, s.Save(ctx, tokens.Pair{AccessToken: "a-1", RefreshToken: "r-1"}))
	require.NoError(t, s.Save(ctx, tokens.Pair{AccessToken: "a-2", RefreshToken: "r-2"}))
	require.NoError(t, s.Close())

	reopened, err := tokens.OpenSQLiteStore(ctx, path, tokens.WithSecret("k"))
	require.NoError(t, err)
	defer reopened.Close()

	got, err = reopened.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, "a-2", got.AccessToken)

	require.NoError(t, reopened.Clear(ctx))
	require.NoError(t, reopened.Clear(ctx))
	got, err = reopened.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, got)
}
