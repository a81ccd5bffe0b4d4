package cmd

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/go-market-client/products"
	"github.com/jrsteele09/go-market-client/session"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type testFixture struct {
	mux *http.ServeMux
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("MARKETCTL_API_BASE_URL", server.URL+"/api")
	t.Setenv("MARKETCTL_STORAGE_PATH", filepath.Join(dir, "tokens"))
	t.Setenv("MARKETCTL_LOG_LEVEL", "error")
	return &testFixture{mux: mux}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func TestLoginPersistsSessionAcrossRuns(t *testing.T) {
	f := setupTestFixture(t)
	f.mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]any{"accessToken": "acc", "refreshToken": "ref"},
		})
	})
	f.mux.HandleFunc("GET /api/products", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer acc", r.Header.Get("Authorization"))
		writeJSON(t, w, http.StatusOK, map[string]any{
			"success":    true,
			"data":       []map[string]any{{"_id": "p1", "title": "Chair", "price": 12.5, "user": "u1"}},
			"pagination": map[string]any{"currentPage": 1, "hasNextPage": false},
		})
	})

	_, err := execute(t, "login", "--email", "a@b.com", "--password", "secret123", "-o", "table")
	require.NoError(t, err)

	out, err := execute(t, "status", "-o", "json")
	require.NoError(t, err)
	var view sessionView
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	require.Equal(t, session.Authenticated.String(), view.State)

	out, err = execute(t, "products", "list", "-o", "yaml")
	require.NoError(t, err)
	var list productListView
	require.NoError(t, yaml.Unmarshal([]byte(out), &list))
	require.Len(t, list.Items, 1)
	require.Equal(t, "Chair", list.Items[0].Title)

	out, err = execute(t, "logout", "-o", "table")
	require.NoError(t, err)
	require.Contains(t, out, "Logged out.")
}

func TestProductsRequireLogin(t *testing.T) {
	setupTestFixture(t)
	_, err := execute(t, "products", "show", "p1", "-o", "table")
	require.ErrorContains(t, err, "not logged in")
}

func TestLoginFailureShowsTranslatedError(t *testing.T) {
	f := setupTestFixture(t)
	f.mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid credentials"})
	})

	out, err := execute(t, "login", "--email", "a@b.com", "--password", "wrong", "-o", "table")
	require.Error(t, err)
	require.Contains(t, out, "anonymous")
}

func TestUnknownOutputFormat(t *testing.T) {
	setupTestFixture(t)
	_, err := execute(t, "status", "-o", "xml")
	require.ErrorContains(t, err, "unknown output format")
}

func TestRenderSession_Table(t *testing.T) {
	output = outputTable
	var buf bytes.Buffer
	now := time.Now()
	s := session.Session{State: session.AwaitingVerification, Email: "a@b.com", OTPResendAvailableAt: now.Add(30 * time.Second)}
	require.NoError(t, renderSession(&buf, s, now))
	require.Contains(t, buf.String(), "awaiting_verification")
	require.Contains(t, buf.String(), "30s")
}

func TestOwnerName(t *testing.T) {
	require.Equal(t, "-", ownerName(nil))
	require.Equal(t, "u1", ownerName(&products.Owner{ID: "u1"}))
	require.Equal(t, "s@x.com", ownerName(&products.Owner{ID: "u1", Email: "s@x.com"}))
	require.Equal(t, "Ada Lovelace", ownerName(&products.Owner{ID: "u1", FirstName: "Ada", LastName: "Lovelace"}))
}
