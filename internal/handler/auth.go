package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/rs/xid"

	"github.com/sakif/dishub/internal/auth"
	"github.com/sakif/dishub/internal/service"
)

const stateCookie = "oauth_state"

// oauthProvider is the part of auth.DiscordProvider the handler needs.
type oauthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.DiscordUser, error)
}

// AuthHandler runs the Discord sign-in flow and the session endpoints.
//
//	GET  /auth/discord/login     → redirect to Discord
//	GET  /auth/discord/callback  → exchange code, set session cookie
//	POST /auth/logout            → clear session cookie
//	GET  /api/me                 → current user
type AuthHandler struct {
	discord      oauthProvider
	accounts     *service.AuthService
	cookieSecure bool
	cookieMaxAge int
	logger       *slog.Logger
}

func NewAuthHandler(
	discord oauthProvider,
	accounts *service.AuthService,
	tokens *auth.TokenService,
	cookieSecure bool,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		discord:      discord,
		accounts:     accounts,
		cookieSecure: cookieSecure,
		cookieMaxAge: int(tokens.TTL().Seconds()),
		logger:       logger,
	}
}

// HandleDiscordLogin stores a random state in a short-lived cookie and
// redirects to Discord. The callback only proceeds if Discord echoes the
// same state back, which ties the callback to a login this browser started.
func (h *AuthHandler) HandleDiscordLogin(w http.ResponseWriter, r *http.Request) {
	state := xid.New().String()

	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.discord.AuthURL(state), http.StatusTemporaryRedirect)
}

// HandleDiscordCallback completes sign-in.
//
// FLOW:
//  1. state query param must match the state cookie (single use)
//  2. ?error=access_denied means the user clicked Cancel
//  3. exchange ?code for the Discord profile
//  4. upsert the user and issue the session cookie
//  5. redirect home
func (h *AuthHandler) HandleDiscordCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || q.Get("state") != cookie.Value {
		h.logger.WarnContext(r.Context(), "auth callback: state mismatch")
		http.Error(w, "invalid OAuth state", http.StatusBadRequest)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:   stateCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	if errParam := q.Get("error"); errParam != "" {
		h.logger.InfoContext(r.Context(), "auth callback: authorization denied", slog.String("error", errParam))
		http.Redirect(w, r, "/?auth=denied", http.StatusSeeOther)
		return
	}

	code := q.Get("code")
	if code == "" {
		http.Error(w, "missing OAuth code", http.StatusBadRequest)
		return
	}

	du, err := h.discord.Exchange(r.Context(), code)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "auth callback: Discord exchange failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusBadGateway)
		return
	}

	res, err := h.accounts.LoginOrRegisterDiscord(r.Context(), du)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "auth callback: login failed", slog.String("error", err.Error()))
		http.Error(w, "authentication failed", http.StatusInternalServerError)
		return
	}

	h.setSession(w, res.Token, h.cookieMaxAge)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleLogout deletes the session cookie. The JWT stays valid until it
// expires, but the browser no longer sends it.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.setSession(w, "", -1)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	user, err := h.accounts.GetUserByID(r.Context(), userID)
	if err != nil {
		h.logger.WarnContext(r.Context(), "HandleMe: user lookup failed", slog.String("userID", userID))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) setSession(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}
