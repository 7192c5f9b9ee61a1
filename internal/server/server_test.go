package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/dishub/internal/auth"
	"github.com/sakif/dishub/internal/config"
)

const testSecret = "test-secret-at-least-16"

func newTestServer(t *testing.T) *Server {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{Port: 0, CORSAllowedOrigins: []string{"http://localhost:5173"}},
		Store:  config.StoreConfig{Driver: config.DriverMemory},
		Auth:   config.AuthConfig{JWTSecret: testSecret, SessionTTL: time.Hour},
		Discord: config.DiscordConfig{
			ClientID:    "client",
			RedirectURL: "http://localhost/auth/discord/callback",
		},
	}

	store, err := OpenStore(cfg.Store)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv, err := New(cfg, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return srv
}

func sessionCookie(t *testing.T, userID string) *http.Cookie {
	t.Helper()
	tokens, err := auth.NewTokenService(testSecret, time.Hour)
	require.NoError(t, err)
	token, err := tokens.Generate(userID)
	require.NoError(t, err)
	return &http.Cookie{Name: auth.CookieName, Value: token}
}

func TestOpenStore(t *testing.T) {
	_, err := OpenStore(config.StoreConfig{Driver: "postgres"})
	assert.Error(t, err)

	store, err := OpenStore(config.StoreConfig{Driver: config.DriverSQLite, DBPath: ":memory:"})
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}

func TestNew_RequiresJWTSecret(t *testing.T) {
	store, err := OpenStore(config.StoreConfig{Driver: config.DriverMemory})
	require.NoError(t, err)
	defer store.Close()

	_, err = New(&config.Config{}, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestRoutes(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		authed bool
		want   int
	}{
		{"health", http.MethodGet, "/healthz", "", false, http.StatusOK},
		{"public list", http.MethodGet, "/api/servers", "", false, http.StatusOK},
		{"public tags", http.MethodGet, "/api/tags", "", false, http.StatusOK},
		{"unknown server", http.MethodGet, "/api/servers/nope", "", false, http.StatusNotFound},
		{"create needs a session", http.MethodPost, "/api/servers", "{}", false, http.StatusUnauthorized},
		{"bump needs a session", http.MethodPost, "/api/servers/nope/bump", "", false, http.StatusUnauthorized},
		{"me needs a session", http.MethodGet, "/api/me/servers", "", false, http.StatusUnauthorized},
		{"my servers", http.MethodGet, "/api/me/servers", "", true, http.StatusOK},
		{"create validates", http.MethodPost, "/api/servers", `{"name":""}`, true, http.StatusBadRequest},
		{"login redirects", http.MethodGet, "/auth/discord/login", "", false, http.StatusTemporaryRedirect},
		{"logout", http.MethodPost, "/auth/logout", "", false, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.authed {
				req.AddCookie(sessionCookie(t, "user-1"))
			}
			rr := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rr, req)

			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t)

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/servers", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rr := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rr, req)

		assert.Equal(t, "http://localhost:5173", rr.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rr.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("other origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/servers", nil)
		req.Header.Set("Origin", "https://evil.example")
		rr := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
	})
}
