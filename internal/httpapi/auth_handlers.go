package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/guilddesk/internal/auth"
	"github.com/parsascontentcorner/guilddesk/internal/models"
	"github.com/parsascontentcorner/guilddesk/internal/permissions"
)

type sessionUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Avatar   string `json:"avatar,omitempty"`
}

type sessionResponse struct {
	Authenticated bool                       `json:"authenticated"`
	User          sessionUser                `json:"user"`
	Guilds        []permissions.ManagedGuild `json:"guilds"`
	ExpiresAt     time.Time                  `json:"expires_at"`
}

func newSessionResponse(session *models.DiscordSession) sessionResponse {
	return sessionResponse{
		Authenticated: true,
		User: sessionUser{
			ID:       session.DiscordUserID.String,
			Username: session.Username.String,
			Avatar:   session.Avatar.String,
		},
		Guilds:    permissions.ManageableGuilds(session.Guilds),
		ExpiresAt: session.ExpiresAt,
	}
}

// Login handles GET /auth/discord/login
func (h *Handlers) Login(c *gin.Context) {
	attempt, err := h.deps.Sessions.Begin(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to start login", zap.Error(err))
		h.renderError(c, http.StatusInternalServerError, "Login unavailable", "Could not start Discord login. Please try again.")
		return
	}

	if err := h.setSessionCookie(c, attempt.SessionID); err != nil {
		h.logger.Error("failed to encode session cookie", zap.Error(err))
		h.renderError(c, http.StatusInternalServerError, "Login unavailable", "Could not start Discord login. Please try again.")
		return
	}

	c.Redirect(http.StatusFound, attempt.AuthURL)
}

// Callback handles GET /auth/discord/callback
func (h *Handlers) Callback(c *gin.Context) {
	cookieSessionID, _ := h.readSessionCookie(c)

	if errParam := c.Query("error"); errParam != "" {
		h.logger.Warn("oauth error from discord",
			zap.String("error", errParam),
			zap.String("description", c.Query("error_description")),
		)
		h.abandonLogin(c, cookieSessionID)
		h.renderError(c, http.StatusBadRequest, "Authentication failed", "Discord did not authorize the login.")
		return
	}

	code := c.Query("code")
	state := c.Query("state")
	if code == "" || state == "" {
		h.logger.Warn("oauth callback missing parameters",
			zap.Bool("has_code", code != ""),
			zap.Bool("has_state", state != ""),
		)
		h.abandonLogin(c, cookieSessionID)
		h.renderError(c, http.StatusBadRequest, "Invalid request", "Missing required parameters (code or state).")
		return
	}

	session, err := h.deps.Sessions.Complete(c.Request.Context(), code, state, cookieSessionID)
	if err != nil {
		h.clearSessionCookie(c)
		if errors.Is(err, auth.ErrInvalidState) {
			h.renderError(c, http.StatusBadRequest, "Authentication failed", "The login link is invalid or has expired. Please try again.")
			return
		}
		h.renderError(c, http.StatusBadGateway, "Authentication failed", "Failed to complete authentication. Please try again.")
		return
	}

	if err := h.setSessionCookie(c, session.SessionID); err != nil {
		h.logger.Error("failed to encode session cookie", zap.Error(err))
		h.renderError(c, http.StatusInternalServerError, "Authentication failed", "Failed to complete authentication. Please try again.")
		return
	}

	c.Redirect(http.StatusFound, h.cfg.Server.FrontendURL)
}

// CurrentSession handles GET /auth/session
func (h *Handlers) CurrentSession(c *gin.Context) {
	session, ok := auth.SessionFromContext(c.Request.Context())
	if !ok {
		unauthorized(c)
		return
	}
	c.JSON(http.StatusOK, newSessionResponse(session))
}

// RefreshSession handles POST /auth/session/refresh
func (h *Handlers) RefreshSession(c *gin.Context) {
	sessionID, ok := h.readSessionCookie(c)
	if !ok {
		unauthorized(c)
		return
	}

	session, err := h.deps.Sessions.Refresh(c.Request.Context(), sessionID)
	if err != nil {
		if !errors.Is(err, auth.ErrNoSession) {
			h.logger.Warn("session refresh failed", zap.Error(err))
		}
		h.clearSessionCookie(c)
		unauthorized(c)
		return
	}

	c.JSON(http.StatusOK, newSessionResponse(session))
}

// Logout handles POST /auth/logout
func (h *Handlers) Logout(c *gin.Context) {
	sessionID, _ := h.readSessionCookie(c)

	if err := h.deps.Sessions.Logout(c.Request.Context(), sessionID); err != nil {
		h.internalError(c, "failed to log out", err)
		return
	}

	h.clearSessionCookie(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// abandonLogin drops the pending login named by the cookie
func (h *Handlers) abandonLogin(c *gin.Context, sessionID string) {
	if sessionID != "" {
		if err := h.deps.Sessions.Logout(c.Request.Context(), sessionID); err != nil {
			h.logger.Warn("failed to drop pending login", zap.Error(err))
		}
	}
	h.clearSessionCookie(c)
}
