// Package bot implements the !bump chat command.
//
// The command logic (Bot.HandleMessage) is transport-free: it takes a
// Message and returns the reply text. Session adapts it to a discordgo
// gateway connection.
//
// ORDER OF CHECKS:
//  1. ignore bots and anything that isn't exactly !bump
//  2. direct messages are refused (no guild to bump)
//  3. per-user rate limit, before touching the store
//  4. DirectoryService.BumpGuild: guild lookup, owner check, cooldown, write
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/sakif/dishub/internal/apperror"
	"github.com/sakif/dishub/internal/model"
	"github.com/sakif/dishub/internal/ratelimit"
)

// Command is matched case-insensitively after trimming whitespace.
const Command = "!bump"

const (
	replyGuildOnly     = "This command can only be used in a server!"
	replyNotRegistered = "This server is not registered on Dishub!"
	replyNotOwner      = "Only the server owner can bump this server!"
	replyBumped        = "Server bumped successfully! 🚀"
	replyFailed        = "An error occurred while bumping the server."
)

// Message is the part of a chat message the command looks at.
type Message struct {
	GuildID     string // empty for direct messages
	AuthorID    string // Discord user snowflake
	AuthorIsBot bool
	Content     string
}

// Bumper is the directory operation the command drives.
// *service.DirectoryService implements it.
type Bumper interface {
	BumpGuild(ctx context.Context, guildID, discordUserID string, now time.Time) (*model.Server, error)
}

type Bot struct {
	directory Bumper
	limiter   *ratelimit.Limiter
	logger    *slog.Logger
	now       func() time.Time
}

func New(directory Bumper, limiter *ratelimit.Limiter, logger *slog.Logger) *Bot {
	return &Bot{
		directory: directory,
		limiter:   limiter,
		logger:    logger,
		now:       time.Now,
	}
}

// HandleMessage returns the reply for msg, or ok=false when the message is
// not a command and should be ignored.
func (b *Bot) HandleMessage(ctx context.Context, msg Message) (reply string, ok bool) {
	if msg.AuthorIsBot || !strings.EqualFold(strings.TrimSpace(msg.Content), Command) {
		return "", false
	}
	if msg.GuildID == "" {
		return replyGuildOnly, true
	}

	now := b.now()
	if wait, allowed := b.limiter.Allow(msg.AuthorID, now); !allowed {
		b.logger.DebugContext(ctx, "bump command rate limited",
			slog.String("discordUserID", msg.AuthorID),
			slog.Duration("wait", wait),
		)
		return b.errorReply(ctx, msg, apperror.RateLimited(wait)), true
	}

	server, err := b.directory.BumpGuild(ctx, msg.GuildID, msg.AuthorID, now)
	if err != nil {
		return b.errorReply(ctx, msg, err), true
	}

	b.logger.InfoContext(ctx, "server bumped from chat",
		slog.String("serverID", server.ID),
		slog.String("guildID", msg.GuildID),
		slog.String("discordUserID", msg.AuthorID),
	)
	return replyBumped, true
}

func (b *Bot) errorReply(ctx context.Context, msg Message, err error) string {
	var appErr *apperror.AppError
	switch {
	case errors.Is(err, apperror.ErrNotFound):
		return replyNotRegistered
	case errors.Is(err, apperror.ErrForbidden):
		return replyNotOwner
	case errors.Is(err, apperror.ErrCooldown) && errors.As(err, &appErr):
		return fmt.Sprintf("You can bump again in %d hour(s)!", appErr.HoursRemaining)
	case errors.Is(err, apperror.ErrRateLimited) && errors.As(err, &appErr):
		return fmt.Sprintf("Please wait %d minute(s) before bumping again.", waitMinutes(appErr.RetryAfter))
	}

	b.logger.ErrorContext(ctx, "bump command failed",
		slog.String("guildID", msg.GuildID),
		slog.String("discordUserID", msg.AuthorID),
		slog.String("error", err.Error()),
	)
	return replyFailed
}

// waitMinutes rounds up to whole minutes, never below one.
func waitMinutes(d time.Duration) int {
	return max(int(math.Ceil(d.Minutes())), 1)
}
