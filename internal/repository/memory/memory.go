// Package memory implements the repository interfaces with plain maps behind
// a mutex. It backs the test suites and STORE_DRIVER=memory deployments;
// nothing survives a restart.
//
// COPY ON THE WAY IN AND OUT:
// Every server handed to or returned from the store is cloned, so a caller
// mutating a *model.Server (or its Tags slice) can never change stored state
// without going through Update.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/dishub/internal/apperror"
	"github.com/sakif/dishub/internal/model"
	"github.com/sakif/dishub/internal/repository"
)

var (
	_ repository.ServerRepository = (*Store)(nil)
	_ repository.UserRepository   = (*Store)(nil)
)

type Store struct {
	mu      sync.RWMutex
	servers map[string]*model.Server
	guilds  map[string]string // discord guild id -> server id
	users   map[string]*model.User
	byDisc  map[string]string // discord user id -> user id

	// now is swappable so tests can pin user timestamps.
	now func() time.Time
}

func New() *Store {
	return &Store{
		servers: make(map[string]*model.Server),
		guilds:  make(map[string]string),
		users:   make(map[string]*model.User),
		byDisc:  make(map[string]string),
		now:     time.Now,
	}
}

// Ping always succeeds; it exists so the health check can treat both
// adapters the same way.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error { return nil }

// =========================================================================
// SERVERS
// =========================================================================

func (s *Store) Create(ctx context.Context, server *model.Server) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if server.DiscordGuildID != "" {
		if _, taken := s.guilds[server.DiscordGuildID]; taken {
			return apperror.Conflict("discord guild", server.DiscordGuildID)
		}
	}

	server.ID = xid.New().String()
	if server.CreatedAt.IsZero() {
		server.CreatedAt = s.now()
	}
	server.CreatedAt = normalize(server.CreatedAt)
	if server.LastBumpedAt != nil {
		t := normalize(*server.LastBumpedAt)
		server.LastBumpedAt = &t
	}
	linkTags(server)

	s.servers[server.ID] = server.Clone()
	if server.DiscordGuildID != "" {
		s.guilds[server.DiscordGuildID] = server.ID
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*model.Server, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	server, ok := s.servers[id]
	if !ok {
		return nil, apperror.NotFound("server", id)
	}
	return server.Clone(), nil
}

func (s *Store) GetByGuildID(ctx context.Context, guildID string) (*model.Server, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.guilds[guildID]
	if !ok {
		return nil, apperror.NotRegistered(guildID)
	}
	return s.servers[id].Clone(), nil
}

func (s *Store) List(ctx context.Context, opts repository.ListOptions) ([]model.Server, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Server, 0, len(s.servers))
	for _, server := range s.servers {
		if opts.OwnerID != "" && server.OwnerID != opts.OwnerID {
			continue
		}
		out = append(out, *server.Clone())
	}
	return out, nil
}

// Update swaps in the new mutable fields and tag set under the write lock.
// OwnerID, CreatedAt and LastBumpedAt are carried over from the stored copy.
func (s *Store) Update(ctx context.Context, server *model.Server) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.servers[server.ID]
	if !ok {
		return apperror.NotFound("server", server.ID)
	}
	if server.DiscordGuildID != "" {
		if holder, taken := s.guilds[server.DiscordGuildID]; taken && holder != server.ID {
			return apperror.Conflict("discord guild", server.DiscordGuildID)
		}
	}

	linkTags(server)
	next := server.Clone()
	next.OwnerID = current.OwnerID
	next.CreatedAt = current.CreatedAt
	next.LastBumpedAt = current.Clone().LastBumpedAt

	if current.DiscordGuildID != "" {
		delete(s.guilds, current.DiscordGuildID)
	}
	if next.DiscordGuildID != "" {
		s.guilds[next.DiscordGuildID] = next.ID
	}
	s.servers[next.ID] = next
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	server, ok := s.servers[id]
	if !ok {
		return apperror.NotFound("server", id)
	}
	if server.DiscordGuildID != "" {
		delete(s.guilds, server.DiscordGuildID)
	}
	// Tags live inside the server value, so they go with it.
	delete(s.servers, id)
	return nil
}

// BumpIfEligible is a compare-and-set under the write lock: the read of
// LastBumpedAt and the write of now can't interleave with another bump.
func (s *Store) BumpIfEligible(ctx context.Context, id string, now, cutoff time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	server, ok := s.servers[id]
	if !ok {
		return false, nil
	}
	if server.LastBumpedAt != nil && server.LastBumpedAt.After(cutoff) {
		return false, nil
	}
	t := normalize(now)
	server.LastBumpedAt = &t
	return true, nil
}

// =========================================================================
// USERS
// =========================================================================

func (s *Store) Upsert(ctx context.Context, user *model.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if id, ok := s.byDisc[user.DiscordID]; ok {
		existing := s.users[id]
		existing.Username = user.Username
		existing.GlobalName = user.GlobalName
		existing.Email = user.Email
		existing.AvatarURL = user.AvatarURL
		existing.ManagedGuildIDs = append([]string{}, user.ManagedGuildIDs...)
		existing.UpdatedAt = now
		*user = *cloneUser(existing)
		return nil
	}

	user.ID = xid.New().String()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.ManagedGuildIDs = append([]string{}, user.ManagedGuildIDs...)
	s.users[user.ID] = cloneUser(user)
	s.byDisc[user.DiscordID] = user.ID
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return cloneUser(u), nil
}

func (s *Store) GetUserByDiscordID(ctx context.Context, discordID string) (*model.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byDisc[discordID]
	if !ok {
		return nil, apperror.NotFound("user", discordID)
	}
	return cloneUser(s.users[id]), nil
}

// normalize matches the SQLite adapter's precision so both stores hand back
// identical instants.
func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// cloneUser copies u including its guild slice, which is never nil on
// the way out so both stores encode it as [].
func cloneUser(u *model.User) *model.User {
	c := *u
	c.ManagedGuildIDs = append([]string{}, u.ManagedGuildIDs...)
	return &c
}

func linkTags(server *model.Server) {
	for i := range server.Tags {
		server.Tags[i].ID = xid.New().String()
		server.Tags[i].ServerID = server.ID
	}
	if server.Tags == nil {
		server.Tags = []model.Tag{}
	}
}
