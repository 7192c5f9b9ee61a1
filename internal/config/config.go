// Package config loads runtime settings from the environment.
//
// A .env file in the working directory is loaded first if present, for local
// development; real environment variables always win over it.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

type Config struct {
	Server  ServerConfig
	Store   StoreConfig
	Auth    AuthConfig
	Discord DiscordConfig
	Bump    BumpConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port               int
	CORSAllowedOrigins []string
}

type StoreConfig struct {
	Driver string // "sqlite" or "memory"
	DBPath string
}

type AuthConfig struct {
	JWTSecret    string
	SessionTTL   time.Duration
	CookieSecure bool // set in production, where the site is served over HTTPS
}

// Validate checks the settings the web API needs to issue sessions. The bot
// never signs tokens and doesn't call it.
func (c AuthConfig) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET environment variable is required")
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT_SECRET must be at least 16 characters")
	}
	return nil
}

type DiscordConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	BotToken     string // only the bot binary needs this
}

// BumpConfig is the per-user !bump throttle: Burst commands back to back,
// then one more every RateInterval.
type BumpConfig struct {
	RateInterval time.Duration
	RateBurst    int
}

type LogConfig struct {
	Level slog.Level
}

// Load reads the environment. Every malformed value is an error; missing
// values fall back to development defaults. Settings only one binary needs
// (JWT_SECRET, DISCORD_BOT_TOKEN) are checked by that binary, not here.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	driver := strings.ToLower(getEnv("STORE_DRIVER", DriverSQLite))
	if driver != DriverSQLite && driver != DriverMemory {
		return nil, fmt.Errorf("invalid STORE_DRIVER %q: want %q or %q", driver, DriverSQLite, DriverMemory)
	}

	sessionTTL, err := time.ParseDuration(getEnv("SESSION_TTL", "168h"))
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_TTL: %w", err)
	}

	cookieSecure, err := strconv.ParseBool(getEnv("COOKIE_SECURE", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid COOKIE_SECURE: %w", err)
	}

	rateInterval, err := time.ParseDuration(getEnv("BUMP_RATE_INTERVAL", "30s"))
	if err != nil {
		return nil, fmt.Errorf("invalid BUMP_RATE_INTERVAL: %w", err)
	}
	rateBurst, err := strconv.Atoi(getEnv("BUMP_RATE_BURST", "2"))
	if err != nil || rateBurst < 1 {
		return nil, fmt.Errorf("invalid BUMP_RATE_BURST %q: must be a positive integer", getEnv("BUMP_RATE_BURST", ""))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(getEnv("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	return &Config{
		Server: ServerConfig{
			Port:               port,
			CORSAllowedOrigins: splitList(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		},
		Store: StoreConfig{
			Driver: driver,
			DBPath: getEnv("DB_PATH", "data/dishub.db"),
		},
		Auth: AuthConfig{
			JWTSecret:    getEnv("JWT_SECRET", ""),
			SessionTTL:   sessionTTL,
			CookieSecure: cookieSecure,
		},
		Discord: DiscordConfig{
			ClientID:     getEnv("DISCORD_CLIENT_ID", ""),
			ClientSecret: getEnv("DISCORD_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("DISCORD_REDIRECT_URL", fmt.Sprintf("http://localhost:%d/auth/discord/callback", port)),
			BotToken:     getEnv("DISCORD_BOT_TOKEN", ""),
		},
		Bump: BumpConfig{
			RateInterval: rateInterval,
			RateBurst:    rateBurst,
		},
		Log: LogConfig{Level: level},
	}, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
