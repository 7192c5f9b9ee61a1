package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/dishub/internal/apperror"
	"github.com/sakif/dishub/internal/auth"
	"github.com/sakif/dishub/internal/model"
	"github.com/sakif/dishub/internal/repository"
	"github.com/sakif/dishub/internal/repository/memory"
)

// brokenUsers fails every write, simulating a database outage.
type brokenUsers struct {
	repository.UserRepository
}

func (brokenUsers) Upsert(context.Context, *model.User) error {
	return errDisk
}

func newTestAuthService(t *testing.T, users repository.UserRepository) (*AuthService, *auth.TokenService) {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!", time.Hour)
	require.NoError(t, err)
	return NewAuthService(users, tokens, quietLogger()), tokens
}

func TestLoginOrRegisterDiscord_NewUser(t *testing.T) {
	store := memory.New()
	svc, tokens := newTestAuthService(t, store)

	res, err := svc.LoginOrRegisterDiscord(context.Background(), &auth.DiscordUser{
		ID:         "80351110224678912",
		Username:   "nelly",
		GlobalName: "Nelly",
		Avatar:     "abc",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, res.User.ID)
	assert.Equal(t, "https://cdn.discordapp.com/avatars/80351110224678912/abc.png", res.User.AvatarURL)

	// The token carries the internal ID, not the Discord snowflake.
	sub, err := tokens.Validate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, sub)
}

func TestLoginOrRegisterDiscord_ReturningUserKeepsID(t *testing.T) {
	store := memory.New()
	svc, _ := newTestAuthService(t, store)
	ctx := context.Background()

	first, err := svc.LoginOrRegisterDiscord(ctx, &auth.DiscordUser{
		ID:              "42",
		Username:        "before",
		ManagedGuildIDs: []string{"81384788765712384", "41771983423143937"},
	})
	require.NoError(t, err)
	assert.True(t, first.User.Manages("41771983423143937"))

	second, err := svc.LoginOrRegisterDiscord(ctx, &auth.DiscordUser{
		ID:              "42",
		Username:        "after",
		ManagedGuildIDs: []string{"81384788765712384"},
	})
	require.NoError(t, err)

	assert.Equal(t, first.User.ID, second.User.ID)

	got, err := svc.GetUserByID(ctx, first.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Username)
	assert.Equal(t, []string{"81384788765712384"}, got.ManagedGuildIDs, "guilds refresh on every login")
}

func TestLoginOrRegisterDiscord_Errors(t *testing.T) {
	svc, _ := newTestAuthService(t, memory.New())

	_, err := svc.LoginOrRegisterDiscord(context.Background(), nil)
	assert.Error(t, err)

	_, err = svc.LoginOrRegisterDiscord(context.Background(), &auth.DiscordUser{Username: "no-id"})
	assert.Error(t, err)

	broken, _ := newTestAuthService(t, brokenUsers{})
	_, err = broken.LoginOrRegisterDiscord(context.Background(), &auth.DiscordUser{ID: "1"})
	assert.True(t, errors.Is(err, errDisk), "got %v", err)
}

func TestGetUserByID(t *testing.T) {
	svc, _ := newTestAuthService(t, memory.New())

	_, err := svc.GetUserByID(context.Background(), "")
	assert.Error(t, err)

	_, err = svc.GetUserByID(context.Background(), "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}
