package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

// handleTimeout bounds one command, store round trips included.
const handleTimeout = 10 * time.Second

// Session connects a Bot to the Discord gateway.
type Session struct {
	dg     *discordgo.Session
	bot    *Bot
	logger *slog.Logger
}

// NewSession prepares a gateway session; call Open to connect.
//
// Reading message text needs the privileged MESSAGE_CONTENT intent, which
// must also be enabled for the application in the developer portal.
func NewSession(token string, b *Bot, logger *slog.Logger) (*Session, error) {
	if token == "" {
		return nil, errors.New("bot: DISCORD_BOT_TOKEN is required")
	}

	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("bot: creating session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	s := &Session{dg: dg, bot: b, logger: logger}
	dg.AddHandler(s.onReady)
	dg.AddHandler(s.onMessageCreate)
	return s, nil
}

func (s *Session) Open() error {
	if err := s.dg.Open(); err != nil {
		return fmt.Errorf("bot: opening gateway: %w", err)
	}
	return nil
}

func (s *Session) Close() error {
	return s.dg.Close()
}

func (s *Session) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	s.logger.Info("bot is ready",
		slog.String("user", r.User.Username),
		slog.Int("guilds", len(r.Guilds)),
	)
}

func (s *Session) onMessageCreate(dg *discordgo.Session, m *discordgo.MessageCreate) {
	msg, ok := messageFrom(m)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	reply, ok := s.bot.HandleMessage(ctx, msg)
	if !ok {
		return
	}

	if _, err := dg.ChannelMessageSendReply(m.ChannelID, reply, m.Reference()); err != nil {
		s.logger.Error("bot: sending reply failed",
			slog.String("channelID", m.ChannelID),
			slog.String("error", err.Error()),
		)
	}
}

// messageFrom extracts the command fields from a gateway event. Events
// without an author (system messages) are skipped.
func messageFrom(m *discordgo.MessageCreate) (Message, bool) {
	if m == nil || m.Message == nil || m.Author == nil {
		return Message{}, false
	}
	return Message{
		GuildID:     m.GuildID,
		AuthorID:    m.Author.ID,
		AuthorIsBot: m.Author.Bot,
		Content:     m.Content,
	}, true
}
