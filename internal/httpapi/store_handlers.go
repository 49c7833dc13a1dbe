package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/guilddesk/internal/auth"
	"github.com/parsascontentcorner/guilddesk/internal/models"
	"github.com/parsascontentcorner/guilddesk/internal/notify"
	"github.com/parsascontentcorner/guilddesk/internal/permissions"
)

type saveSetupRequest struct {
	ServerID  string    `json:"serverId"`
	SetupType string    `json:"setupType"`
	ChannelID snowflake `json:"channelId"`
}

type addQARequest struct {
	ServerID string `json:"serverId"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type importQARequest struct {
	ServerID string `json:"serverId"`
	Text     string `json:"text"`
}

type removeQABulkRequest struct {
	Questions []string `json:"questions"`
}

// snowflake accepts a Discord ID sent either as a JSON string or a JSON number
type snowflake string

// UnmarshalJSON implements json.Unmarshaler
func (s *snowflake) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = snowflake(str)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("channelId must be a string or a number")
	}
	*s = snowflake(n.String())
	return nil
}

// GetSetup handles GET /api/setup/:serverId
func (h *Handlers) GetSetup(c *gin.Context) {
	record, err := h.deps.Setup.Get(c.Request.Context(), c.Param("serverId"))
	if err != nil {
		h.internalError(c, "failed to load setup", err)
		return
	}

	if record == nil {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, record)
}

// SaveSetup handles POST /api/setup
func (h *Handlers) SaveSetup(c *gin.Context) {
	var req saveSetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.ServerID) == "" {
		badRequest(c, "serverId is required")
		return
	}

	setupType, err := models.ParseSetupType(req.SetupType)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	channelID, err := models.ParseChannelID(string(req.ChannelID))
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	if !h.authorizeGuild(c, req.ServerID) {
		return
	}

	if err := h.deps.Setup.Save(c.Request.Context(), req.ServerID, setupType, channelID); err != nil {
		h.internalError(c, "failed to save setup", err)
		return
	}

	h.publish(c, req.ServerID, notify.KindSetup, notify.ActionSave)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// GetQA handles GET /api/qa/:serverId
func (h *Handlers) GetQA(c *gin.Context) {
	qa, err := h.deps.QA.Get(c.Request.Context(), c.Param("serverId"))
	if err != nil {
		h.internalError(c, "failed to load Q&A", err)
		return
	}
	c.JSON(http.StatusOK, qa)
}

// AddQA handles POST /api/qa
func (h *Handlers) AddQA(c *gin.Context) {
	var req addQARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.ServerID) == "" {
		badRequest(c, "serverId is required")
		return
	}

	if !h.authorizeGuild(c, req.ServerID) {
		return
	}

	if err := h.deps.QA.Add(c.Request.Context(), req.ServerID, req.Question, req.Answer); err != nil {
		h.internalError(c, "failed to add Q&A", err)
		return
	}

	h.publish(c, req.ServerID, notify.KindQA, notify.ActionAdd)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// ImportQA handles POST /api/qa/import
func (h *Handlers) ImportQA(c *gin.Context) {
	var req importQARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.ServerID) == "" {
		badRequest(c, "serverId is required")
		return
	}

	if !h.authorizeGuild(c, req.ServerID) {
		return
	}

	pairs := models.ParseBulkQA(req.Text)
	if err := h.deps.QA.AddPairs(c.Request.Context(), req.ServerID, pairs); err != nil {
		h.internalError(c, "failed to import Q&A", err)
		return
	}

	if len(pairs) > 0 {
		h.publish(c, req.ServerID, notify.KindQA, notify.ActionImport)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "imported": len(pairs)})
}

// ExportQA handles GET /api/qa/:serverId/export
func (h *Handlers) ExportQA(c *gin.Context) {
	serverID := c.Param("serverId")

	qa, err := h.deps.QA.Get(c.Request.Context(), serverID)
	if err != nil {
		h.internalError(c, "failed to export Q&A", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="qa-%s.txt"`, serverID))
	c.String(http.StatusOK, models.FormatQAExport(qa))
}

// RemoveQA handles DELETE /api/qa/:serverId/:question
func (h *Handlers) RemoveQA(c *gin.Context) {
	serverID := c.Param("serverId")
	if !h.authorizeGuild(c, serverID) {
		return
	}

	if err := h.deps.QA.Remove(c.Request.Context(), serverID, c.Param("question")); err != nil {
		h.internalError(c, "failed to remove Q&A", err)
		return
	}

	h.publish(c, serverID, notify.KindQA, notify.ActionRemove)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RemoveQABulk handles DELETE /api/qa/bulk/:serverId
func (h *Handlers) RemoveQABulk(c *gin.Context) {
	serverID := c.Param("serverId")

	var req removeQABulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid JSON body")
		return
	}

	if !h.authorizeGuild(c, serverID) {
		return
	}

	if err := h.deps.QA.RemoveBulk(c.Request.Context(), serverID, req.Questions); err != nil {
		h.internalError(c, "failed to remove Q&A in bulk", err)
		return
	}

	if len(req.Questions) > 0 {
		h.publish(c, serverID, notify.KindQA, notify.ActionRemoveBulk)
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// authorizeGuild applies the optional guild access guard. It responds and
// returns false when the caller may not manage serverID.
func (h *Handlers) authorizeGuild(c *gin.Context, serverID string) bool {
	if !h.cfg.Security.EnforceGuildAccess {
		return true
	}

	session, ok := auth.SessionFromContext(c.Request.Context())
	if !ok {
		unauthorized(c)
		return false
	}

	guild, found := session.Guilds.Find(serverID)
	if !found || !permissions.CanManage(guild) {
		h.logger.Warn("guild access denied",
			zap.String("session_id", session.SessionID),
			zap.String("server_id", serverID),
		)
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You do not have permission to manage this server"})
		return false
	}

	return true
}

func (h *Handlers) publish(c *gin.Context, serverID string, kind notify.Kind, action notify.Action) {
	event := notify.NewEvent(serverID, kind, action)
	if err := h.deps.Notifier.Publish(c.Request.Context(), event); err != nil {
		h.logger.Warn("failed to publish change event",
			zap.String("server_id", serverID),
			zap.Error(err),
		)
	}
}
