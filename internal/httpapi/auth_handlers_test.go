package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parsascontentcorner/guilddesk/internal/auth"
	"github.com/parsascontentcorner/guilddesk/internal/testutil"
)

func TestLoginRedirectsAndSetsCookie(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/auth/discord/login", "")

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://discord.com/oauth2/authorize?state=abc", w.Header().Get("Location"))

	cookie := sessionCookieFrom(w)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.Equal(t, 168*3600, cookie.MaxAge)
}

func TestCallbackCompletesLogin(t *testing.T) {
	env := newTestEnv(t)

	login := env.do(t, http.MethodGet, "/auth/discord/login", "")
	cookie := sessionCookieFrom(login)
	require.NotNil(t, cookie)

	w := env.do(t, http.MethodGet, "/auth/discord/callback?code=abc&state=xyz", "", cookie)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, env.cfg.Server.FrontendURL, w.Header().Get("Location"))
	require.Len(t, env.sessions.completed, 1)
	assert.Equal(t, env.sessions.pending, env.sessions.completed[0])

	session := env.do(t, http.MethodGet, "/auth/session", "", sessionCookieFrom(w))
	require.Equal(t, http.StatusOK, session.Code)
	body := decode(t, session.Body.Bytes())
	assert.Equal(t, true, body["authenticated"])
	assert.Equal(t, testutil.MockUsername, body["user"].(map[string]interface{})["username"])
}

func TestCallbackDiscordError(t *testing.T) {
	env := newTestEnv(t)
	env.sessions.add(testutil.GenerateAuthenticatedSession())
	login := env.do(t, http.MethodGet, "/auth/discord/login", "")

	w := env.do(t, http.MethodGet, "/auth/discord/callback?error=access_denied&error_description=denied", "", sessionCookieFrom(login))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "Authentication failed")
	assert.Empty(t, env.sessions.completed)

	cookie := sessionCookieFrom(w)
	require.NotNil(t, cookie)
	assert.Equal(t, -1, cookie.MaxAge)
}

func TestCallbackMissingParameters(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/auth/discord/callback?code=abc", "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Missing required parameters")
}

func TestCallbackFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		contains string
	}{
		{"invalid state", auth.ErrInvalidState, http.StatusBadRequest, "invalid or has expired"},
		{"exchange failure", fmt.Errorf("failed to exchange authorization code: %w", errors.New("boom")), http.StatusBadGateway, "Failed to complete authentication"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.sessions.completeErr = tt.err

			w := env.do(t, http.MethodGet, "/auth/discord/callback?code=abc&state=xyz", "")

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.contains)
			cookie := sessionCookieFrom(w)
			require.NotNil(t, cookie)
			assert.Equal(t, -1, cookie.MaxAge)
		})
	}
}

func TestCurrentSessionAnonymous(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/auth/session", "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Not authenticated"}`, w.Body.String())
}

func TestCurrentSessionRejectsTamperedCookie(t *testing.T) {
	env := newTestEnv(t)
	session := testutil.GenerateAuthenticatedSession()
	env.sessions.add(session)

	w := env.do(t, http.MethodGet, "/auth/session", "", &http.Cookie{Name: sessionCookieName, Value: session.SessionID})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCurrentSessionAnnotatesGuilds(t *testing.T) {
	env := newTestEnv(t)
	session := testutil.GenerateAuthenticatedSession(testutil.DefaultGuilds()...)
	env.sessions.add(session)

	w := env.do(t, http.MethodGet, "/auth/session", "", env.cookieFor(t, session.SessionID))

	require.Equal(t, http.StatusOK, w.Code)
	var body sessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Guilds, 3)
	assert.True(t, body.Guilds[0].CanManage)
	assert.False(t, body.Guilds[1].CanManage)
	assert.True(t, body.Guilds[2].CanManage)
	assert.Equal(t, testutil.MockUserID, body.User.ID)
}

func TestRefreshSession(t *testing.T) {
	env := newTestEnv(t)
	session := testutil.GenerateAuthenticatedSession(testutil.DefaultGuilds()...)
	env.sessions.add(session)

	w := env.do(t, http.MethodPost, "/auth/session/refresh", "", env.cookieFor(t, session.SessionID))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.sessions.has(session.SessionID))
}

func TestRefreshSessionFailureClearsSession(t *testing.T) {
	env := newTestEnv(t)
	session := testutil.GenerateAuthenticatedSession()
	env.sessions.add(session)
	env.sessions.refreshErr = errors.New("discord unavailable")

	w := env.do(t, http.MethodPost, "/auth/session/refresh", "", env.cookieFor(t, session.SessionID))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.sessions.has(session.SessionID))
	cookie := sessionCookieFrom(w)
	require.NotNil(t, cookie)
	assert.Equal(t, -1, cookie.MaxAge)
}

func TestRefreshSessionWithoutCookie(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/auth/session/refresh", "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	session := testutil.GenerateAuthenticatedSession()
	env.sessions.add(session)
	cookie := env.cookieFor(t, session.SessionID)

	w := env.do(t, http.MethodPost, "/auth/logout", "", cookie)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())
	assert.False(t, env.sessions.has(session.SessionID))

	w = env.do(t, http.MethodGet, "/auth/session", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, http.MethodPost, "/auth/logout", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestListGuilds(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/guilds", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	session := testutil.GenerateAuthenticatedSession(testutil.DefaultGuilds()...)
	env.sessions.add(session)

	w = env.do(t, http.MethodGet, "/api/guilds", "", env.cookieFor(t, session.SessionID))
	require.Equal(t, http.StatusOK, w.Code)

	var guilds []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &guilds))
	require.Len(t, guilds, 3)
	assert.Equal(t, testutil.OwnedGuildID, guilds[0]["id"])
	assert.Equal(t, true, guilds[0]["can_manage"])
	assert.Equal(t, false, guilds[1]["can_manage"])
}

func TestBotPresence(t *testing.T) {
	session := testutil.GenerateAuthenticatedSession()

	tests := []struct {
		name     string
		present  bool
		err      error
		status   int
		expected string
	}{
		{"present", true, nil, http.StatusOK, `{"present":true}`},
		{"absent", false, nil, http.StatusOK, `{"present":false}`},
		{"not configured", false, auth.ErrBotNotConfigured, http.StatusServiceUnavailable, `{"error":"Bot is not configured"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.sessions.add(session)
			env.sessions.botPresent = tt.present
			env.sessions.botErr = tt.err

			w := env.do(t, http.MethodGet, "/api/guilds/42/bot", "", env.cookieFor(t, session.SessionID))

			assert.Equal(t, tt.status, w.Code)
			assert.JSONEq(t, tt.expected, w.Body.String())
		})
	}

	t.Run("anonymous", func(t *testing.T) {
		env := newTestEnv(t)

		w := env.do(t, http.MethodGet, "/api/guilds/42/bot", "")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}
