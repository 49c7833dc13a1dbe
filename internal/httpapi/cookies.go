package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// sessionCookieName names the signed cookie carrying the session ID
const sessionCookieName = "guilddesk_session"

func (h *Handlers) setSessionCookie(c *gin.Context, sessionID string) error {
	value, err := h.cookies.Encode(sessionCookieName, sessionID)
	if err != nil {
		return err
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   h.cfg.Security.SessionExpiryHours * 3600,
		HttpOnly: true,
		Secure:   h.cfg.Server.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (h *Handlers) clearSessionCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.Server.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
}

// readSessionCookie returns the session ID from a validly signed cookie
func (h *Handlers) readSessionCookie(c *gin.Context) (string, bool) {
	raw, err := c.Cookie(sessionCookieName)
	if err != nil || raw == "" {
		return "", false
	}

	var sessionID string
	if err := h.cookies.Decode(sessionCookieName, raw, &sessionID); err != nil {
		h.logger.Debug("rejected session cookie", zap.Error(err))
		return "", false
	}
	return sessionID, sessionID != ""
}
