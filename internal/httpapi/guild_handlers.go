package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/parsascontentcorner/guilddesk/internal/auth"
	"github.com/parsascontentcorner/guilddesk/internal/permissions"
)

// ListGuilds handles GET /api/guilds
func (h *Handlers) ListGuilds(c *gin.Context) {
	session, ok := auth.SessionFromContext(c.Request.Context())
	if !ok {
		unauthorized(c)
		return
	}
	c.JSON(http.StatusOK, permissions.ManageableGuilds(session.Guilds))
}

// BotPresence handles GET /api/guilds/:serverId/bot
func (h *Handlers) BotPresence(c *gin.Context) {
	if _, ok := auth.SessionFromContext(c.Request.Context()); !ok {
		unauthorized(c)
		return
	}

	present, err := h.deps.Sessions.BotInGuild(c.Request.Context(), c.Param("serverId"))
	if errors.Is(err, auth.ErrBotNotConfigured) {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Bot is not configured"})
		return
	}
	if err != nil {
		h.internalError(c, "failed to check bot membership", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"present": present})
}
