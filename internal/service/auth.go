package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sakif/dishub/internal/auth"
	"github.com/sakif/dishub/internal/model"
	"github.com/sakif/dishub/internal/repository"
)

// AuthService turns a verified Discord profile into a directory account
// and a session token.
//
//	AuthHandler (HTTP) → AuthService → UserRepository
//	                               ↘ TokenService (JWT)
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenService
	logger *slog.Logger
}

func NewAuthService(users repository.UserRepository, tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		logger: logger,
	}
}

// AuthResult bundles the user and the issued session token so the handler
// can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// LoginOrRegisterDiscord upserts the user keyed by Discord ID (first login
// inserts, later logins refresh the profile and the managed-guild set) and
// issues a session token for the internal user ID.
func (s *AuthService) LoginOrRegisterDiscord(ctx context.Context, du *auth.DiscordUser) (*AuthResult, error) {
	if du == nil || du.ID == "" {
		return nil, errors.New("service/auth: discord user must have an id")
	}

	user := &model.User{
		DiscordID:  du.ID,
		Username:   du.Username,
		GlobalName: du.GlobalName,
		Email:      du.Email,
		AvatarURL:  du.AvatarURL(),

		ManagedGuildIDs: du.ManagedGuildIDs,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (discordID=%s): %w", du.ID, err)
	}

	s.logger.InfoContext(ctx, "user authenticated via Discord",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}

	return &AuthResult{User: user, Token: token}, nil
}

// GetUserByID backs /api/me once the middleware has resolved the cookie.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, errors.New("service/auth: user ID must not be empty")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}
