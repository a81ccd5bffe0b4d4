package tokens_test

import (
	"context"
	"errors"
	"testing"

	clienterrors "github.com/jrsteele09/go-market-client/internal/errors"
	"github.com/jrsteele09/go-market-client/tokens"
	tokensrepofake "github.com/jrsteele09/go-market-client/tokens/repofake"
	"github.com/stretchr/testify/require"
)

func TestTokenSource(t *testing.T) {
	store := tokensrepofake.NewMemoryStore()
	src := tokens.TokenSource(context.Background(), store)

	_, err := src.Token()
	require.ErrorIs(t, err, clienterrors.ErrNotAuthenticated)

	store.Seed(tokens.Pair{AccessToken: "access", RefreshToken: "refresh"})
	tok, err := src.Token()
	require.NoError(t, err)
	require.Equal(t, "access", tok.AccessToken)

	store.FailLoad(errors.New("disk gone"))
	_, err = src.Token()
	require.ErrorIs(t, err, tokens.ErrStorage)
}
