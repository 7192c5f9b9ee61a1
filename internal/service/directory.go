// Package service contains the business logic layer of the application.
//
// THE THREE-LAYER ARCHITECTURE:
//
//	Handler / Bot (transport) → Service (rules) → Repository (storage)
//
// DirectoryService is the single boundary both the HTTP API and the chat bot
// call. It owns validation, ownership checks and the bump sequence; it knows
// nothing about HTTP or Discord messages, and it depends only on the
// repository interfaces, so the SQLite and in-memory stores are swappable.
//
// ACTING USER:
// Every mutating method takes the acting owner ID as an explicit argument.
// There is no ambient "current user"; the caller resolves identity first
// (session cookie or Discord author ID) and passes it in.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sakif/dishub/internal/apperror"
	"github.com/sakif/dishub/internal/bump"
	"github.com/sakif/dishub/internal/listing"
	"github.com/sakif/dishub/internal/model"
	"github.com/sakif/dishub/internal/repository"
)

const (
	errNotOwner      = "only the server owner can do that"
	errGuildNotOwned = "you can only link a Discord server you own or manage"
)

type DirectoryService struct {
	servers repository.ServerRepository
	users   repository.UserRepository
	logger  *slog.Logger
}

func NewDirectoryService(
	servers repository.ServerRepository,
	users repository.UserRepository,
	logger *slog.Logger,
) *DirectoryService {
	return &DirectoryService{
		servers: servers,
		users:   users,
		logger:  logger,
	}
}

// ListResult is one page of the directory plus the size of the whole
// filtered set, so clients can paginate.
type ListResult struct {
	Servers []model.Server
	Total   int
}

// CreateServer validates in and stores a new listing owned by ownerID.
//
// "JUST LISTED":
// LastBumpedAt starts at now, so a fresh listing sits at the top of the
// directory and can't be bumped again for one cooldown.
func (s *DirectoryService) CreateServer(ctx context.Context, ownerID string, in ServerInput, now time.Time) (*model.Server, error) {
	if ownerID == "" {
		return nil, apperror.Forbidden("sign in to list a server")
	}

	in, err := in.normalize()
	if err != nil {
		return nil, err
	}
	if err := s.checkGuildLink(ctx, ownerID, in.DiscordGuildID); err != nil {
		return nil, err
	}

	now = normalizeTime(now)
	server := &model.Server{
		Name:           in.Name,
		Description:    in.Description,
		BannerURL:      in.BannerURL,
		InviteURL:      in.InviteURL,
		MemberCount:    in.MemberCount,
		OwnerID:        ownerID,
		DiscordGuildID: in.DiscordGuildID,
		CreatedAt:      now,
		LastBumpedAt:   &now,
		Tags:           tagsFrom(in.Tags),
	}

	if err := s.servers.Create(ctx, server); err != nil {
		return nil, s.storeError(ctx, "creating server", err)
	}

	s.logger.InfoContext(ctx, "server listed",
		slog.String("serverID", server.ID),
		slog.String("ownerID", ownerID),
		slog.Int("tags", len(server.Tags)),
	)
	return server, nil
}

// UpdateServer replaces the editable fields and the whole tag set.
// NotFound is reported before Forbidden: existence has to be known before
// ownership can be checked.
func (s *DirectoryService) UpdateServer(ctx context.Context, ownerID, serverID string, in ServerInput) (*model.Server, error) {
	server, err := s.ownedServer(ctx, ownerID, serverID)
	if err != nil {
		return nil, err
	}

	in, err = in.normalize()
	if err != nil {
		return nil, err
	}
	// An already linked guild stays linked even if the owner has since lost
	// Manage Server; only a change has to be re-verified.
	if in.DiscordGuildID != server.DiscordGuildID {
		if err := s.checkGuildLink(ctx, ownerID, in.DiscordGuildID); err != nil {
			return nil, err
		}
	}

	server.Name = in.Name
	server.Description = in.Description
	server.BannerURL = in.BannerURL
	server.InviteURL = in.InviteURL
	server.MemberCount = in.MemberCount
	server.DiscordGuildID = in.DiscordGuildID
	server.Tags = tagsFrom(in.Tags)

	if err := s.servers.Update(ctx, server); err != nil {
		return nil, s.storeError(ctx, "updating server", err)
	}

	s.logger.InfoContext(ctx, "server updated", slog.String("serverID", serverID))
	return server, nil
}

// DeleteServer removes the listing and all of its tags.
func (s *DirectoryService) DeleteServer(ctx context.Context, ownerID, serverID string) error {
	if _, err := s.ownedServer(ctx, ownerID, serverID); err != nil {
		return err
	}

	if err := s.servers.Delete(ctx, serverID); err != nil {
		return s.storeError(ctx, "deleting server", err)
	}

	s.logger.InfoContext(ctx, "server deleted", slog.String("serverID", serverID))
	return nil
}

// BumpServer moves the listing to the top of the directory if the cooldown
// has passed.
//
// SEQUENCE:
//  1. load the server (NotFound) and check ownership (Forbidden)
//  2. bump.Check on the loaded timestamp: the common rejection, no write
//  3. conditional write in the store: succeeds for exactly one caller
//  4. if the write didn't apply, someone else bumped between 1 and 3;
//     re-read and report the cooldown from their timestamp
func (s *DirectoryService) BumpServer(ctx context.Context, ownerID, serverID string, now time.Time) (*model.Server, error) {
	server, err := s.ownedServer(ctx, ownerID, serverID)
	if err != nil {
		return nil, err
	}

	now = normalizeTime(now)
	if err := bump.Check(server.LastBumpedAt, now); err != nil {
		return nil, err
	}

	ok, err := s.servers.BumpIfEligible(ctx, serverID, now, bump.Cutoff(now))
	if err != nil {
		return nil, s.storeError(ctx, "bumping server", err)
	}
	if !ok {
		return nil, s.lostBumpRace(ctx, serverID, now)
	}

	server.LastBumpedAt = &now
	s.logger.InfoContext(ctx, "server bumped",
		slog.String("serverID", serverID),
		slog.Time("at", now),
	)
	return server, nil
}

func (s *DirectoryService) lostBumpRace(ctx context.Context, serverID string, now time.Time) error {
	fresh, err := s.servers.GetByID(ctx, serverID)
	if err != nil {
		return s.storeError(ctx, "re-reading server after bump", err)
	}
	if err := bump.Check(fresh.LastBumpedAt, now); err != nil {
		s.logger.DebugContext(ctx, "concurrent bump lost", slog.String("serverID", serverID))
		return err
	}
	return s.storeError(ctx, "bumping server",
		fmt.Errorf("conditional bump of %s matched no row", serverID))
}

// BumpGuild is the chat-command path: the Discord guild picks the server and
// the Discord author must map to that server's owner.
func (s *DirectoryService) BumpGuild(ctx context.Context, guildID, discordUserID string, now time.Time) (*model.Server, error) {
	server, err := s.servers.GetByGuildID(ctx, guildID)
	if err != nil {
		return nil, s.storeError(ctx, "looking up guild", err)
	}

	user, err := s.users.GetUserByDiscordID(ctx, discordUserID)
	if errors.Is(err, apperror.ErrNotFound) {
		// Never signed in to the directory, so can't own anything.
		return nil, apperror.Forbidden(errNotOwner)
	}
	if err != nil {
		return nil, s.storeError(ctx, "looking up discord user", err)
	}

	return s.BumpServer(ctx, user.ID, server.ID, now)
}

func (s *DirectoryService) GetServer(ctx context.Context, id string) (*model.Server, error) {
	server, err := s.servers.GetByID(ctx, id)
	if err != nil {
		return nil, s.storeError(ctx, "getting server", err)
	}
	return server, nil
}

// ListServers returns one page of the directory in bump order.
// limit and offset are clamped by listing.Page.
func (s *DirectoryService) ListServers(ctx context.Context, filter listing.Filter, limit, offset int) (*ListResult, error) {
	all, err := s.servers.List(ctx, repository.ListOptions{OwnerID: filter.OwnerID})
	if err != nil {
		return nil, s.storeError(ctx, "listing servers", err)
	}

	ordered := listing.Apply(all, filter)
	return &ListResult{
		Servers: listing.Page(ordered, limit, offset),
		Total:   len(ordered),
	}, nil
}

func (s *DirectoryService) ownedServer(ctx context.Context, ownerID, serverID string) (*model.Server, error) {
	server, err := s.servers.GetByID(ctx, serverID)
	if err != nil {
		return nil, s.storeError(ctx, "getting server", err)
	}
	if ownerID == "" || server.OwnerID != ownerID {
		s.logger.WarnContext(ctx, "ownership check failed",
			slog.String("serverID", serverID),
			slog.String("actingUserID", ownerID),
		)
		return nil, apperror.Forbidden(errNotOwner)
	}
	return server, nil
}

// checkGuildLink rejects linking a Discord guild the user didn't own or
// manage at their last sign-in. No guild means nothing to check.
func (s *DirectoryService) checkGuildLink(ctx context.Context, userID, guildID string) error {
	if guildID == "" {
		return nil
	}

	user, err := s.users.GetUserByID(ctx, userID)
	if errors.Is(err, apperror.ErrNotFound) {
		return apperror.Forbidden(errGuildNotOwned)
	}
	if err != nil {
		return s.storeError(ctx, "getting user", err)
	}

	if !user.Manages(guildID) {
		s.logger.WarnContext(ctx, "guild link rejected",
			slog.String("userID", userID),
			slog.String("guildID", guildID),
		)
		return apperror.Forbidden(errGuildNotOwned)
	}
	return nil
}

// storeError passes typed errors through and turns anything else (I/O,
// driver, cancelled context) into StoreUnavailable after logging it.
func (s *DirectoryService) storeError(ctx context.Context, op string, err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	s.logger.ErrorContext(ctx, "store failure", slog.String("op", op), slog.Any("error", err))
	return apperror.Unavailable(fmt.Errorf("%s: %w", op, err))
}

// normalizeTime matches store precision so the instant returned to the
// caller equals the one persisted.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
