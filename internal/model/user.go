// Package model defines the data structures used throughout the application.
package model

import (
	"slices"
	"time"
)

// User represents a registered user account.
//
// We use Discord OAuth as the identity provider, so the primary external
// identifier is the Discord user ID (a "snowflake"). We still generate our
// own internal string ID (xid) and use it as Server.OwnerID, to avoid tying
// our primary keys to a third-party's numbering scheme.
//
// WHY DiscordID string?
// Discord snowflakes are 64-bit integers but the API always sends them as
// JSON strings, because JavaScript clients can't represent them exactly.
// We keep them as strings end to end.
type User struct {
	ID         string    `json:"id"`
	DiscordID  string    `json:"discordId"`  // Discord's user snowflake, e.g. "80351110224678912"
	Username   string    `json:"username"`   // unique Discord handle
	GlobalName string    `json:"globalName"` // display name (may be empty)
	Email      string    `json:"email"`      // may be empty if the email scope was refused
	AvatarURL  string    `json:"avatarUrl"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	// ManagedGuildIDs are the Discord guilds the user owns or holds Manage
	// Server in, as of their last sign-in. Only these can be linked to a
	// listing. The frontend offers them as the guild picker.
	ManagedGuildIDs []string `json:"managedGuildIds"`
}

// Manages reports whether guildID was among the user's managed guilds at
// their last sign-in.
func (u *User) Manages(guildID string) bool {
	return guildID != "" && slices.Contains(u.ManagedGuildIDs, guildID)
}
