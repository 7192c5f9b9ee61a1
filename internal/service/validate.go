package service

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sakif/dishub/internal/apperror"
	"github.com/sakif/dishub/internal/model"
)

const (
	MaxNameLength        = 100
	MaxDescriptionLength = 1000

	// DefaultBannerURL is shown for listings that didn't upload a banner.
	DefaultBannerURL = "https://images.unsplash.com/photo-1614422982208-51274e106c1e"
)

var (
	invitePattern  = regexp.MustCompile(`^https://discord\.gg/[a-zA-Z0-9]+$`)
	snowflakeRegex = regexp.MustCompile(`^[0-9]{17,20}$`)
)

// ServerInput is the owner-editable part of a listing, shared by create and
// update. Everything else (ID, owner, timestamps) is decided by the service.
type ServerInput struct {
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	BannerURL      string   `json:"bannerUrl"`
	InviteURL      string   `json:"inviteUrl"`
	MemberCount    int      `json:"memberCount"`
	DiscordGuildID string   `json:"discordGuildId"`
	Tags           []string `json:"tags"`
}

// normalize trims and validates in, returning the cleaned copy. The first
// failing field wins; its name is carried in the error's Field so the form
// can highlight it.
func (in ServerInput) normalize() (ServerInput, error) {
	out := ServerInput{
		Name:           strings.TrimSpace(in.Name),
		Description:    strings.TrimSpace(in.Description),
		BannerURL:      strings.TrimSpace(in.BannerURL),
		InviteURL:      strings.TrimSpace(in.InviteURL),
		MemberCount:    in.MemberCount,
		DiscordGuildID: strings.TrimSpace(in.DiscordGuildID),
	}

	switch {
	case out.Name == "":
		return out, apperror.ValidationFailed("name", "server name is required")
	case utf8.RuneCountInString(out.Name) > MaxNameLength:
		return out, apperror.ValidationFailed("name",
			fmt.Sprintf("server name must be %d characters or less", MaxNameLength))
	case out.Description == "":
		return out, apperror.ValidationFailed("description", "description is required")
	case utf8.RuneCountInString(out.Description) > MaxDescriptionLength:
		return out, apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	case !invitePattern.MatchString(out.InviteURL):
		return out, apperror.ValidationFailed("inviteUrl",
			"invite URL must look like https://discord.gg/<code>")
	case out.MemberCount < 0:
		return out, apperror.ValidationFailed("memberCount", "member count cannot be negative")
	case out.DiscordGuildID != "" && !snowflakeRegex.MatchString(out.DiscordGuildID):
		return out, apperror.ValidationFailed("discordGuildId", "discord guild id must be a numeric snowflake")
	}

	if out.BannerURL == "" {
		out.BannerURL = DefaultBannerURL
	} else if !isHTTPURL(out.BannerURL) {
		return out, apperror.ValidationFailed("bannerUrl", "banner URL must be an http(s) URL")
	}

	tags, err := normalizeTags(in.Tags)
	if err != nil {
		return out, err
	}
	out.Tags = tags

	return out, nil
}

// normalizeTags maps each value onto its palette casing and drops duplicates,
// keeping first-seen order.
func normalizeTags(values []string) ([]string, error) {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))

	for _, v := range values {
		canonical, ok := paletteValue(v)
		if !ok {
			return nil, apperror.ValidationFailed("tags", fmt.Sprintf("unknown tag %q", strings.TrimSpace(v)))
		}
		if seen[canonical] {
			continue
		}
		seen[canonical] = true
		out = append(out, canonical)
	}

	if len(out) == 0 {
		return nil, apperror.ValidationFailed("tags", "at least one tag is required")
	}
	return out, nil
}

func paletteValue(v string) (string, bool) {
	v = strings.TrimSpace(v)
	for _, p := range model.TagPalette {
		if strings.EqualFold(p, v) {
			return p, true
		}
	}
	return "", false
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func tagsFrom(values []string) []model.Tag {
	tags := make([]model.Tag, len(values))
	for i, v := range values {
		tags[i] = model.Tag{Value: v}
	}
	return tags
}
