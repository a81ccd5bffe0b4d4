package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/jrsteele09/go-market-client/api"
	clienterrors "github.com/jrsteele09/go-market-client/internal/errors"
	"github.com/jrsteele09/go-market-client/internal/utils"
	"github.com/jrsteele09/go-market-client/products"
	"github.com/jrsteele09/go-market-client/tokens"
	tokensrepofake "github.com/jrsteele09/go-market-client/tokens/repofake"
	"github.com/jrsteele09/go-market-client/users"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type testFixture struct {
	mux    *http.ServeMux
	server *httptest.Server
	client *api.Client
}

func setupTestFixture(t *testing.T, options ...api.Option) *testFixture {
	t.Helper()
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	options = append([]api.Option{
		api.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "tok-1", TokenType: "Bearer"})),
	}, options...)
	client, err := api.New(server.URL+"/api", options...)
	require.NoError(t, err)
	return &testFixture{mux: mux, server: server, client: client}
}

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	require.NoError(t, json.NewEncoder(w).Encode(body))
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	_, err := api.New("/api")
	require.Error(t, err)
}

func TestLogin(t *testing.T) {
	f := setupTestFixture(t)
	f.mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		require.Empty(t, r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "a@b.com", body["email"])
		require.Equal(t, "1y", body["token_expires_in"])
		writeJSON(t, w, http.StatusOK, map[string]any{
			"success": true,
			"data":    map[string]any{"accessToken": "acc", "refreshToken": "ref"},
		})
	})

	resp, err := f.client.Login(context.Background(), api.LoginRequest{Email: "a@b.com", Password: "pw12345678"})
	require.NoError(t, err)
	require.Equal(t, "acc", resp.AccessToken)
	require.Equal(t, "ref", resp.RefreshToken)
}

func TestLogin_WithoutTokensIsMalformed(t *testing.T) {
	f := setupTestFixture(t)
	f.mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{}})
	})

	_, err := f.client.Login(context.Background(), api.LoginRequest{Email: "a@b.com", Password: "x"})
	require.ErrorIs(t, err, api.ErrMalformedResponse)
}

func TestEnvelope(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantStatus int
		wantMsg    string
		malformed  bool
	}{
		{name: "success false on 200", status: 200, body: `{"success":false,"data":{"message":"Please verify your email"}}`, wantStatus: 200, wantMsg: "Please verify your email"},
		{name: "error string", status: 401, body: `{"success":false,"error":"Invalid credentials"}`, wantStatus: 401, wantMsg: "Invalid credentials"},
		{name: "error object", status: 400, body: `{"success":false,"error":{"message":"Invalid OTP","code":"INVALID_OTP"}}`, wantStatus: 400, wantMsg: "Invalid OTP"},
		{name: "html error page", status: 502, body: `<html>bad gateway</html>`, wantStatus: 502},
		{name: "missing success", status: 200, body: `{"data":{}}`, malformed: true},
		{name: "not json", status: 200, body: `ok`, malformed: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t)
			f.mux.HandleFunc("POST /api/auth/verify-otp", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})

			err := f.client.VerifyOTP(context.Background(), api.VerifyOTPRequest{Email: "a@b.com", OTP: "1234"})
			require.Error(t, err)
			if tt.malformed {
				require.ErrorIs(t, err, api.ErrMalformedResponse)
				return
			}
			var se *api.StatusError
			require.ErrorAs(t, err, &se)
			require.Equal(t, tt.wantStatus, se.StatusCode)
			require.Equal(t, tt.wantMsg, se.Message)
			require.Equal(t, "/auth/verify-otp", se.Path)
		})
	}
}

func TestEnvelope_FieldErrors(t *testing.T) {
	f := setupTestFixture(t)
	f.mux.HandleFunc("POST /api/auth/signup", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "Validation failed",
			"errors": []map[string]string{
				{"field": "email", "message": "Email already used"},
				{"path": "password", "msg": "Too short"},
			},
		})
	})

	err := f.client.Signup(context.Background(), api.SignupRequest{Email: "a@b.com", Password: "x"})
	var se *api.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, "Validation failed", se.Message)
	require.Equal(t, map[string]string{"email": "Email already used", "password": "Too short"}, se.Fields)
}

func TestAuthenticatedRequests(t *testing.T) {
	f := setupTestFixture(t)
	f.mux.HandleFunc("GET /api/products", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		require.NotEmpty(t, r.Header.Get("X-Request-ID"))
		q := r.URL.Query()
		require.Equal(t, "2", q.Get("page"))
		require.Equal(t, "10", q.Get("limit"))
		require.Equal(t, "price", q.Get("sortBy"))
		require.Equal(t, "asc", q.Get("order"))
		writeJSON(t, w, http.StatusOK, map[string]any{
			"success": true,
			"data": []map[string]any{
				{"_id": "p1", "title": "Chair", "price": 10, "user": map[string]string{"_id": "u1", "email": "s@x.com"}},
				{"_id": "p2", "title": "Lamp", "price": 5, "user": "u2"},
			},
			"pagination": map[string]any{"currentPage": 2, "totalPages": 3, "hasNextPage": true, "totalItems": 22, "limit": 10},
		})
	})

	page, err := f.client.ListProducts(context.Background(), products.Filter{Page: 2, Limit: 10, SortBy: "price", Order: "asc"})
	require.NoError(t, err)
	require.Len(t, page.Products, 2)
	require.Equal(t, "s@x.com", page.Products[0].Owner.Email)
	require.Equal(t, "u2", page.Products[1].Owner.ID)
	require.True(t, page.Pagination.HasNextPage)
	require.Equal(t, 2, page.Pagination.CurrentPage)
}

func TestUnauthorizedHook(t *testing.T) {
	f := setupTestFixture(t)
	f.mux.HandleFunc("GET /api/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, map[string]any{"success": false, "message": "jwt expired"})
	})
	f.mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnauthorized, map[string]any{"success": false, "message": "Invalid credentials"})
	})

	var calls atomic.Int32
	f.client.OnUnauthorized(func() { calls.Add(1) })

	_, err := f.client.Profile(context.Background())
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())

	// public endpoints never trigger it
	_, err = f.client.Login(context.Background(), api.LoginRequest{Email: "a@b.com", Password: "x"})
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())
}

func TestAuthenticatedRequest_WithoutStoredTokens(t *testing.T) {
	store := tokensrepofake.NewMemoryStore()
	f := setupTestFixture(t, api.WithTokenSource(tokens.TokenSource(context.Background(), store)))
	var hits atomic.Int32
	f.mux.HandleFunc("GET /api/posts", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})

	_, err := f.client.ListPosts(context.Background(), 1, 10)
	require.ErrorIs(t, err, clienterrors.ErrNotAuthenticated)
	require.Zero(t, hits.Load())
}

func TestCreateProduct_Multipart(t *testing.T) {
	f := setupTestFixture(t)
	img := filepath.Join(t.TempDir(), "chair.png")
	require.NoError(t, os.WriteFile(img, []byte("png-bytes"), 0o600))

	f.mux.HandleFunc("POST /api/products", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "Chair", r.FormValue("title"))
		require.Equal(t, "12.5", r.FormValue("price"))

		var loc products.Location
		require.NoError(t, json.Unmarshal([]byte(r.FormValue("location")), &loc))
		require.Equal(t, "Beirut", loc.Name)

		files := r.MultipartForm.File["images"]
		require.Len(t, files, 1)
		require.Equal(t, "chair.png", files[0].Filename)
		require.Equal(t, "image/png", files[0].Header.Get("Content-Type"))

		writeJSON(t, w, http.StatusCreated, map[string]any{
			"success": true,
			"data":    map[string]any{"_id": "p9", "title": "Chair", "price": 12.5},
		})
	})

	p, err := f.client.CreateProduct(context.Background(), products.Draft{
		Title:       "Chair",
		Description: "Oak",
		Price:       12.5,
		Location:    products.Location{Name: "Beirut", Latitude: 33.9, Longitude: 35.5},
		Images:      []products.Upload{{Path: img, ContentType: "image/png"}},
	})
	require.NoError(t, err)
	require.Equal(t, "p9", p.ID)
}

func TestUpdateProduct_SendsOnlySetFields(t *testing.T) {
	f := setupTestFixture(t)
	f.mux.HandleFunc("PUT /api/products/p1", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "Table", r.FormValue("title"))
		_, hasPrice := r.MultipartForm.Value["price"]
		require.False(t, hasPrice)
		writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"_id": "p1", "title": "Table"}})
	})

	p, err := f.client.UpdateProduct(context.Background(), "p1", products.Patch{Title: utils.Ptr("Table")})
	require.NoError(t, err)
	require.Equal(t, "Table", p.Title)
}

func TestDeleteAndGetProduct(t *testing.T) {
	f := setupTestFixture(t)
	f.mux.HandleFunc("DELETE /api/products/p1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{"message": "Product deleted"}})
	})
	f.mux.HandleFunc("GET /api/products/missing", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusNotFound, map[string]any{"success": false, "message": "Product not found"})
	})

	msg, err := f.client.DeleteProduct(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, "Product deleted", msg)

	_, err = f.client.GetProduct(context.Background(), "missing")
	var se *api.StatusError
	require.ErrorAs(t, err, &se)
	require.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestSearchProducts(t *testing.T) {
	f := setupTestFixture(t)
	f.mux.HandleFunc("GET /api/products/search", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "red chair", r.URL.Query().Get("query"))
		writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "data": []map[string]any{}})
	})

	items, err := f.client.SearchProducts(context.Background(), "red chair")
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestProfile(t *testing.T) {
	f := setupTestFixture(t)
	f.mux.HandleFunc("GET /api/auth/profile/u2", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{
			"user": map[string]any{"id": "u2", "email": "g@h.com", "firstName": "Grace", "isEmailVerified": true},
		}})
	})
	f.mux.HandleFunc("PATCH /api/auth/profile", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "Ada", r.FormValue("firstName"))
		writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "data": map[string]any{
			"user": map[string]any{"id": "u1", "firstName": "Ada"},
		}})
	})

	p, err := f.client.ProfileByID(context.Background(), "u2")
	require.NoError(t, err)
	require.Equal(t, "Grace", p.FirstName)
	require.True(t, p.IsEmailVerified)

	p, err = f.client.UpdateProfile(context.Background(), users.ProfilePatch{FirstName: utils.Ptr("Ada")})
	require.NoError(t, err)
	require.Equal(t, "u1", p.ID)
}

func TestListPosts(t *testing.T) {
	f := setupTestFixture(t)
	f.mux.HandleFunc("GET /api/posts", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "3", r.URL.Query().Get("page"))
		writeJSON(t, w, http.StatusOK, map[string]any{
			"success":    true,
			"data":       []map[string]any{{"_id": "n1", "title": "News"}},
			"pagination": map[string]any{"currentPage": 3, "hasNextPage": false},
		})
	})

	page, err := f.client.ListPosts(context.Background(), 3, 10)
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	require.Equal(t, 3, page.Pagination.CurrentPage)
}

func TestEmailEndpoints(t *testing.T) {
	f := setupTestFixture(t)
	var hits atomic.Int32
	for _, path := range []string{"/api/auth/resend-otp", "/api/auth/forgot-password"} {
		f.mux.HandleFunc("POST "+path, func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			require.Empty(t, r.Header.Get("Authorization"))
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			require.Equal(t, "a@b.com", body["email"])
			writeJSON(t, w, http.StatusOK, map[string]any{"success": true, "message": "sent"})
		})
	}

	require.NoError(t, f.client.ResendOTP(context.Background(), "a@b.com"))
	require.NoError(t, f.client.ForgotPassword(context.Background(), "a@b.com"))
	require.EqualValues(t, 2, hits.Load())
}
