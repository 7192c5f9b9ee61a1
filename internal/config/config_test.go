package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// t.Setenv restores every variable after the test. No .env file exists in
// the package directory, so godotenv.Load is a no-op here.

var keys = []string{
	"PORT", "STORE_DRIVER", "DB_PATH", "JWT_SECRET", "SESSION_TTL", "COOKIE_SECURE",
	"CORS_ALLOWED_ORIGINS", "DISCORD_CLIENT_ID", "DISCORD_CLIENT_SECRET",
	"DISCORD_REDIRECT_URL", "DISCORD_BOT_TOKEN", "BUMP_RATE_INTERVAL",
	"BUMP_RATE_BURST", "LOG_LEVEL",
}

// clearEnv unsets every variable Load reads, so the machine's own
// environment can't leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "a-secret-of-enough-length")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "data/dishub.db", cfg.Store.DBPath)
	assert.Equal(t, 168*time.Hour, cfg.Auth.SessionTTL)
	assert.False(t, cfg.Auth.CookieSecure)
	assert.Equal(t, 30*time.Second, cfg.Bump.RateInterval)
	assert.Equal(t, 2, cfg.Bump.RateBurst)
	assert.Equal(t, slog.LevelInfo, cfg.Log.Level)
	assert.Equal(t, "http://localhost:8080/auth/discord/callback", cfg.Discord.RedirectURL)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "a-secret-of-enough-length")
	t.Setenv("PORT", "9000")
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://dishub.gg, https://www.dishub.gg,")
	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("BUMP_RATE_INTERVAL", "1m")
	t.Setenv("BUMP_RATE_BURST", "5")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DISCORD_BOT_TOKEN", "bot-token")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, []string{"https://dishub.gg", "https://www.dishub.gg"}, cfg.Server.CORSAllowedOrigins)
	assert.True(t, cfg.Auth.CookieSecure)
	assert.Equal(t, time.Minute, cfg.Bump.RateInterval)
	assert.Equal(t, 5, cfg.Bump.RateBurst)
	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
	assert.Equal(t, "bot-token", cfg.Discord.BotToken)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"port", "PORT", "eighty"},
		{"driver", "STORE_DRIVER", "postgres"},
		{"session ttl", "SESSION_TTL", "a week"},
		{"cookie secure", "COOKIE_SECURE", "maybe"},
		{"rate interval", "BUMP_RATE_INTERVAL", "30"},
		{"rate burst", "BUMP_RATE_BURST", "0"},
		{"log level", "LOG_LEVEL", "verbose"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("JWT_SECRET", "a-secret-of-enough-length")
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_WithoutSecret(t *testing.T) {
	clearEnv(t)
	t.Setenv("DISCORD_BOT_TOKEN", "bot-token")

	cfg, err := Load()
	require.NoError(t, err, "the bot runs without JWT_SECRET")
	assert.Empty(t, cfg.Auth.JWTSecret)
	assert.Error(t, cfg.Auth.Validate(), "the web API does not")
}

func TestAuthConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr string
	}{
		{"empty", "", "required"},
		{"short", "short", "at least 16"},
		{"ok", "a-secret-of-enough-length", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := AuthConfig{JWTSecret: tt.secret}.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
