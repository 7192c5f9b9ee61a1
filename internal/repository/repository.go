// Package repository declares the storage contracts the directory service
// depends on. Two adapters implement them: repository/sqlite (durable) and
// repository/memory (tests and throwaway deployments). The service never
// sees which one it got.
package repository

import (
	"context"
	"time"

	"github.com/sakif/dishub/internal/model"
)

type ListOptions struct {
	OwnerID string // empty = every server
}

// ServerRepository persists servers together with their tags.
//
// ATOMICITY:
// Create, Update and Delete each write the server row and its tag rows as
// one unit. A failure part-way leaves the previous state untouched.
type ServerRepository interface {
	// Create assigns ID and tag IDs and stores server with its tags.
	Create(ctx context.Context, server *model.Server) error
	GetByID(ctx context.Context, id string) (*model.Server, error)
	GetByGuildID(ctx context.Context, guildID string) (*model.Server, error)
	List(ctx context.Context, opts ListOptions) ([]model.Server, error)
	// Update writes the mutable fields and replaces the whole tag set.
	// OwnerID, CreatedAt and LastBumpedAt are never changed here.
	Update(ctx context.Context, server *model.Server) error
	// Delete removes the server and all of its tags.
	Delete(ctx context.Context, id string) error
	// BumpIfEligible sets last_bumped_at = now only if it is currently NULL
	// or <= cutoff, as a single conditional write. It reports whether the
	// write happened; (false, nil) means the cooldown was still active or the
	// server no longer exists.
	BumpIfEligible(ctx context.Context, id string, now, cutoff time.Time) (bool, error)
}

type UserRepository interface {
	// Upsert inserts a user keyed by DiscordID, or refreshes the profile of
	// the existing one. On return user.ID is set.
	Upsert(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByDiscordID(ctx context.Context, discordID string) (*model.User, error)
}
