// Package server is the composition root of the HTTP API: it opens the
// store, builds services and handlers, mounts routes and runs the listener
// with graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/sakif/dishub/internal/auth"
	"github.com/sakif/dishub/internal/config"
	"github.com/sakif/dishub/internal/handler"
	"github.com/sakif/dishub/internal/middleware"
	"github.com/sakif/dishub/internal/repository"
	"github.com/sakif/dishub/internal/repository/memory"
	sqliteRepo "github.com/sakif/dishub/internal/repository/sqlite"
	"github.com/sakif/dishub/internal/service"
)

// Store is what both adapters provide. The server owns it and closes it on
// shutdown.
type Store interface {
	repository.ServerRepository
	repository.UserRepository
	Ping(ctx context.Context) error
	Close() error
}

// OpenStore picks the adapter named by cfg.Driver.
func OpenStore(cfg config.StoreConfig) (Store, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverSQLite:
		db, err := sqliteRepo.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening database: %w", err)
		}
		return db, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

type Server struct {
	router http.Handler
	config *config.Config
	logger *slog.Logger
	store  Store
}

// New wires every dependency:
//
//	Store → DirectoryService / AuthService → handlers → chi routes → CORS
func New(cfg *config.Config, store Store, logger *slog.Logger) (*Server, error) {
	if err := cfg.Auth.Validate(); err != nil {
		return nil, err
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.SessionTTL)
	if err != nil {
		return nil, fmt.Errorf("creating token service: %w", err)
	}

	directory := service.NewDirectoryService(store, store, logger)
	accounts := service.NewAuthService(store, tokens, logger)
	discord := auth.NewDiscordProvider(cfg.Discord.ClientID, cfg.Discord.ClientSecret, cfg.Discord.RedirectURL)

	servers := handler.NewServerHandler(directory, logger)
	sessions := handler.NewAuthHandler(discord, accounts, tokens, cfg.Auth.CookieSecure, logger)

	s := &Server{
		config: cfg,
		logger: logger,
		store:  store,
	}
	s.router = s.routes(tokens, servers, sessions)
	return s, nil
}

// routes builds the router.
//
// MIDDLEWARE ORDER:
//  1. RequestID: before Logger so every log line has request_id
//  2. RealIP
//  3. Logger
//  4. Recoverer: inside Logger so a panic is still logged as a 500
//
// Per group: RequireAuth/OptionalAuth, then RecordUser to hand the user ID
// back to the logger.
func (s *Server) routes(tokens *auth.TokenService, servers *handler.ServerHandler, sessions *handler.AuthHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/discord/login", sessions.HandleDiscordLogin)
		r.Get("/discord/callback", sessions.HandleDiscordCallback)
		r.Post("/logout", sessions.HandleLogout)
	})

	r.Route("/api", func(r chi.Router) {
		// Public
		r.Group(func(r chi.Router) {
			r.Use(auth.OptionalAuth(tokens), middleware.RecordUser)
			r.Get("/servers", servers.HandleList)
			r.Get("/servers/{id}", servers.HandleGet)
			r.Get("/tags", servers.HandleTags)
		})

		// Signed in
		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAuth(tokens), middleware.RecordUser)
			r.Get("/me", sessions.HandleMe)
			r.Get("/me/servers", servers.HandleMine)
			r.Post("/servers", servers.HandleCreate)
			r.Put("/servers/{id}", servers.HandleUpdate)
			r.Delete("/servers/{id}", servers.HandleDelete)
			r.Post("/servers/{id}/bump", servers.HandleBump)
		})
	})

	// The SPA runs on a different origin in development and sends the
	// session cookie, hence AllowCredentials.
	c := cors.New(cors.Options{
		AllowedOrigins:   s.config.Server.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type"},
		ExposedHeaders:   []string{"Retry-After", "X-Request-Id"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

// Handler exposes the full middleware stack for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	w.Header().Set("Content-Type", "application/json")
	if err := s.store.Ping(ctx); err != nil {
		s.logger.ErrorContext(ctx, "health check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.Write([]byte(`{"status":"ok"}`))
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests for up
// to 30s and closes the store.
func (s *Server) Start() error {
	defer s.store.Close()

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Server.Port),
			slog.String("store", s.config.Store.Driver),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
