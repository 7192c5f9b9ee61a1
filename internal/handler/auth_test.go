package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/dishub/internal/auth"
	"github.com/sakif/dishub/internal/repository/memory"
	"github.com/sakif/dishub/internal/service"
)

type fakeDiscord struct {
	user    *auth.DiscordUser
	err     error
	gotCode string
}

func (f *fakeDiscord) AuthURL(state string) string {
	return "https://discord.example/authorize?state=" + url.QueryEscape(state)
}

func (f *fakeDiscord) Exchange(ctx context.Context, code string) (*auth.DiscordUser, error) {
	f.gotCode = code
	if f.err != nil {
		return nil, f.err
	}
	return f.user, nil
}

func newTestAuthHandler(t *testing.T, discord *fakeDiscord) (*AuthHandler, *auth.TokenService) {
	t.Helper()
	tokens, err := auth.NewTokenService("test-secret-at-least-16", time.Hour)
	require.NoError(t, err)

	store := memory.New()
	accounts := service.NewAuthService(store, tokens, quietLogger())
	return NewAuthHandler(discord, accounts, tokens, false, quietLogger()), tokens
}

func findCookie(rr *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rr.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func callback(h *AuthHandler, query, state string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/auth/discord/callback?"+query, nil)
	if state != "" {
		req.AddCookie(&http.Cookie{Name: stateCookie, Value: state})
	}
	rr := httptest.NewRecorder()
	h.HandleDiscordCallback(rr, req)
	return rr
}

func TestAuthHandler_Login(t *testing.T) {
	h, _ := newTestAuthHandler(t, &fakeDiscord{})

	rr := httptest.NewRecorder()
	h.HandleDiscordLogin(rr, httptest.NewRequest(http.MethodGet, "/auth/discord/login", nil))

	assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)

	state := findCookie(rr, stateCookie)
	require.NotNil(t, state)
	assert.NotEmpty(t, state.Value)
	assert.True(t, state.HttpOnly)

	loc, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, state.Value, loc.Query().Get("state"))
}

func TestAuthHandler_Callback(t *testing.T) {
	discordUser := &auth.DiscordUser{ID: "80351110224678912", Username: "nelly"}

	t.Run("success issues a session", func(t *testing.T) {
		discord := &fakeDiscord{user: discordUser}
		h, tokens := newTestAuthHandler(t, discord)

		rr := callback(h, "code=abc&state=s1", "s1")
		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/", rr.Header().Get("Location"))
		assert.Equal(t, "abc", discord.gotCode)

		session := findCookie(rr, auth.CookieName)
		require.NotNil(t, session)
		assert.Equal(t, 3600, session.MaxAge)

		userID, err := tokens.Validate(session.Value)
		require.NoError(t, err)
		assert.NotEmpty(t, userID)

		cleared := findCookie(rr, stateCookie)
		require.NotNil(t, cleared)
		assert.Negative(t, cleared.MaxAge)
	})

	t.Run("state mismatch", func(t *testing.T) {
		discord := &fakeDiscord{user: discordUser}
		h, _ := newTestAuthHandler(t, discord)

		rr := callback(h, "code=abc&state=forged", "s1")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Empty(t, discord.gotCode)
	})

	t.Run("missing state cookie", func(t *testing.T) {
		h, _ := newTestAuthHandler(t, &fakeDiscord{user: discordUser})

		rr := callback(h, "code=abc&state=s1", "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("user cancelled", func(t *testing.T) {
		h, _ := newTestAuthHandler(t, &fakeDiscord{user: discordUser})

		rr := callback(h, "error=access_denied&state=s1", "s1")
		assert.Equal(t, http.StatusSeeOther, rr.Code)
		assert.Equal(t, "/?auth=denied", rr.Header().Get("Location"))
		assert.Nil(t, findCookie(rr, auth.CookieName))
	})

	t.Run("missing code", func(t *testing.T) {
		h, _ := newTestAuthHandler(t, &fakeDiscord{user: discordUser})

		rr := callback(h, "state=s1", "s1")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("exchange failure", func(t *testing.T) {
		h, _ := newTestAuthHandler(t, &fakeDiscord{err: errors.New("discord is down")})

		rr := callback(h, "code=abc&state=s1", "s1")
		assert.Equal(t, http.StatusBadGateway, rr.Code)
		assert.Nil(t, findCookie(rr, auth.CookieName))
	})
}

func TestAuthHandler_MeAndLogout(t *testing.T) {
	discord := &fakeDiscord{user: &auth.DiscordUser{ID: "80351110224678912", Username: "nelly"}}
	h, tokens := newTestAuthHandler(t, discord)

	rr := callback(h, "code=abc&state=s1", "s1")
	require.Equal(t, http.StatusSeeOther, rr.Code)
	userID, err := tokens.Validate(findCookie(rr, auth.CookieName).Value)
	require.NoError(t, err)

	t.Run("me", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req = req.WithContext(auth.WithUserID(req.Context(), userID))
		rr := httptest.NewRecorder()
		h.HandleMe(rr, req)

		require.Equal(t, http.StatusOK, rr.Code)
		var v struct {
			ID        string `json:"id"`
			DiscordID string `json:"discordId"`
			Username  string `json:"username"`
		}
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
		assert.Equal(t, userID, v.ID)
		assert.Equal(t, "80351110224678912", v.DiscordID)
		assert.Equal(t, "nelly", v.Username)
	})

	t.Run("me for a deleted user", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
		req = req.WithContext(auth.WithUserID(req.Context(), "gone"))
		rr := httptest.NewRecorder()
		h.HandleMe(rr, req)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("logout", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.HandleLogout(rr, httptest.NewRequest(http.MethodPost, "/auth/logout", nil))

		assert.Equal(t, http.StatusOK, rr.Code)
		session := findCookie(rr, auth.CookieName)
		require.NotNil(t, session)
		assert.Empty(t, session.Value)
		assert.Negative(t, session.MaxAge)
	})
}
