package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
)

// DiscordEndpoint is Discord's OAuth2 authorization server. x/oauth2 has no
// endpoints package for Discord, so it's declared here.
//
// Discord expects client_id/client_secret in the form body of the token
// request, not as HTTP Basic auth; AuthStyleInParams skips the auto-detect
// round trip.
var DiscordEndpoint = oauth2.Endpoint{
	AuthURL:   "https://discord.com/oauth2/authorize",
	TokenURL:  "https://discord.com/api/oauth2/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

const discordAPIBase = "https://discord.com/api/v10"

// DiscordUser is the subset of GET /users/@me we store.
// Snowflake IDs arrive as JSON strings.
type DiscordUser struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	GlobalName string `json:"global_name"` // null in JSON decodes to ""
	Email      string `json:"email"`       // requires the "email" scope
	Avatar     string `json:"avatar"`      // hash, not a URL

	// ManagedGuildIDs is filled from GET /users/@me/guilds by Exchange.
	ManagedGuildIDs []string `json:"-"`
}

// AvatarURL builds the CDN URL for the user's avatar, or "" if they use the
// default one.
func (u *DiscordUser) AvatarURL() string {
	if u.Avatar == "" {
		return ""
	}
	return fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", u.ID, u.Avatar)
}

// Permission bits from Discord's permission bitfield.
const (
	permAdministrator = 1 << 3
	permManageGuild   = 1 << 5
)

// DiscordGuild is one entry of GET /users/@me/guilds.
type DiscordGuild struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Owner       bool   `json:"owner"`
	Permissions string `json:"permissions"` // bitfield as a decimal string
}

// CanManage reports whether the user may link this guild to a listing:
// they own it, or hold Manage Server or Administrator in it.
func (g DiscordGuild) CanManage() bool {
	if g.Owner {
		return true
	}
	perms, err := strconv.ParseUint(g.Permissions, 10, 64)
	if err != nil {
		return false
	}
	return perms&(permAdministrator|permManageGuild) != 0
}

// DiscordProvider runs the authorization code flow against Discord.
//
// Scopes:
//   - identify: id, username, avatar
//   - email:    the verified email address
//   - guilds:   the user's guild list; only guilds they manage can be linked
type DiscordProvider struct {
	config  *oauth2.Config
	apiBase string
}

func NewDiscordProvider(clientID, clientSecret, redirectURL string) *DiscordProvider {
	return &DiscordProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"identify", "email", "guilds"},
			Endpoint:     DiscordEndpoint,
		},
		apiBase: discordAPIBase,
	}
}

// AuthURL is where /auth/discord/login redirects. state must be echoed back
// by Discord and checked against the state cookie on callback.
func (p *DiscordProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the callback code for an access token, then fetches the
// signed-in user's profile and the guilds they manage with it. The access
// token itself is not kept.
func (p *DiscordProvider) Exchange(ctx context.Context, code string) (*DiscordUser, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	var user DiscordUser
	if err := p.get(ctx, token, "/users/@me", &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		return nil, errors.New("auth: Discord returned a user without an id")
	}

	guilds, err := p.Guilds(ctx, token)
	if err != nil {
		return nil, err
	}
	user.ManagedGuildIDs = []string{}
	for _, g := range guilds {
		if g.CanManage() {
			user.ManagedGuildIDs = append(user.ManagedGuildIDs, g.ID)
		}
	}

	return &user, nil
}

// Guilds lists every guild the token's user is a member of.
func (p *DiscordProvider) Guilds(ctx context.Context, token *oauth2.Token) ([]DiscordGuild, error) {
	var guilds []DiscordGuild
	if err := p.get(ctx, token, "/users/@me/guilds", &guilds); err != nil {
		return nil, err
	}
	return guilds, nil
}

// get calls a Discord API path with the user's token and decodes the JSON
// body into dst.
func (p *DiscordProvider) get(ctx context.Context, token *oauth2.Token, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+path, nil)
	if err != nil {
		return fmt.Errorf("auth: building %s request: %w", path, err)
	}

	// config.Client adds "Authorization: Bearer <token>" to every request.
	resp, err := p.config.Client(ctx, token).Do(req)
	if err != nil {
		return fmt.Errorf("auth: calling Discord %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("auth: Discord %s returned status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("auth: decoding Discord %s response: %w", path, err)
	}
	return nil
}
