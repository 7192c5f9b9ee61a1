// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data, similar to classes in other languages
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// Server is a directory listing for one Discord server.
//
// OWNERSHIP:
// OwnerID is the internal user ID (not the Discord snowflake) of whoever
// created the listing. It is written once by the store on Create and no
// update path touches it.
//
// WHY *time.Time FOR LastBumpedAt?
// A nil pointer means "never bumped", which the bump policy treats as
// infinitely long ago. A zero time.Time would be ambiguous with a real
// (if unlikely) instant and would serialise as "0001-01-01T00:00:00Z".
type Server struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Description    string     `json:"description"`
	BannerURL      string     `json:"bannerUrl"`
	InviteURL      string     `json:"inviteUrl"`
	MemberCount    int        `json:"memberCount"`
	OwnerID        string     `json:"ownerId"`
	DiscordGuildID string     `json:"discordGuildId,omitempty"` // optional, unique across the directory
	CreatedAt      time.Time  `json:"createdAt"`
	LastBumpedAt   *time.Time `json:"lastBumpedAt"`
	Tags           []Tag      `json:"tags"`
}

// TagValues returns the tag labels in stored order.
func (s *Server) TagValues() []string {
	values := make([]string, 0, len(s.Tags))
	for _, t := range s.Tags {
		values = append(values, t.Value)
	}
	return values
}

// Clone returns a deep copy, so a store can hand out servers without
// callers mutating its internal state through the Tags slice or the
// LastBumpedAt pointer.
func (s *Server) Clone() *Server {
	c := *s
	if s.LastBumpedAt != nil {
		t := *s.LastBumpedAt
		c.LastBumpedAt = &t
	}
	c.Tags = append([]Tag(nil), s.Tags...)
	return &c
}
