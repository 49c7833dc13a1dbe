// Package httpapi serves the dashboard REST API and the Discord login routes.
package httpapi

import (
	"context"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"

	"github.com/parsascontentcorner/guilddesk/internal/auth"
	"github.com/parsascontentcorner/guilddesk/internal/config"
	"github.com/parsascontentcorner/guilddesk/internal/models"
	"github.com/parsascontentcorner/guilddesk/internal/notify"
	"github.com/parsascontentcorner/guilddesk/internal/ratelimit"
)

// QAStore is the per-guild Q&A persistence used by the API
type QAStore interface {
	Get(ctx context.Context, serverID string) (map[string]string, error)
	Add(ctx context.Context, serverID, question, answer string) error
	AddPairs(ctx context.Context, serverID string, pairs []models.QAPair) error
	Remove(ctx context.Context, serverID, question string) error
	RemoveBulk(ctx context.Context, serverID string, questions []string) error
}

// SetupStore is the per-guild bot setup persistence used by the API
type SetupStore interface {
	Get(ctx context.Context, serverID string) (*models.SetupRecord, error)
	Save(ctx context.Context, serverID string, setupType models.SetupType, channelID int64) error
}

// Sessions is the Discord login flow used by the auth routes
type Sessions interface {
	Begin(ctx context.Context) (*auth.LoginAttempt, error)
	Complete(ctx context.Context, code, state, cookieSessionID string) (*models.DiscordSession, error)
	Load(ctx context.Context, sessionID string) (*models.DiscordSession, error)
	Refresh(ctx context.Context, sessionID string) (*models.DiscordSession, error)
	Logout(ctx context.Context, sessionID string) error
	BotInGuild(ctx context.Context, guildID string) (bool, error)
}

// HealthChecker reports whether a backing service is reachable
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps are the services the router dispatches to
type Deps struct {
	QA       QAStore
	Setup    SetupStore
	Sessions Sessions
	Limiter  ratelimit.IPLimiter
	Notifier notify.Notifier
	Checks   map[string]HealthChecker
}

// Handlers holds the route handlers and their dependencies
type Handlers struct {
	deps    Deps
	cfg     *config.Config
	cookies *securecookie.SecureCookie
	logger  *zap.Logger
}

// NewHandlers creates the handlers. A nil notifier publishes nothing.
func NewHandlers(cfg *config.Config, deps Deps, logger *zap.Logger) *Handlers {
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}

	cookies := securecookie.New(cfg.Security.CookieHashKey, nil)
	cookies.MaxAge(cfg.Security.SessionExpiryHours * 3600)

	return &Handlers{
		deps:    deps,
		cfg:     cfg,
		cookies: cookies,
		logger:  logger,
	}
}

// NewRouter builds the gin engine with middleware and every route
func NewRouter(cfg *config.Config, deps Deps, logger *zap.Logger) *gin.Engine {
	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	h := NewHandlers(cfg, deps, logger)

	r := gin.New()
	// Path values come from the escaped path so a question may contain "/".
	r.UseRawPath = true
	r.UnescapePathValues = true

	r.Use(recovery(logger))
	r.Use(requestLogger(logger))
	r.Use(securityHeaders())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins(&cfg.Server),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           10 * time.Minute,
	}))
	if deps.Limiter != nil {
		r.Use(rateLimit(deps.Limiter, logger))
	}
	r.Use(h.loadSession())

	api := r.Group("/api")
	{
		api.GET("/health", h.Health)
		api.GET("/ready", h.Ready)

		api.GET("/setup/:serverId", h.GetSetup)
		api.POST("/setup", h.SaveSetup)

		api.GET("/qa/:serverId", h.GetQA)
		api.GET("/qa/:serverId/export", h.ExportQA)
		api.POST("/qa", h.AddQA)
		api.POST("/qa/import", h.ImportQA)
		api.DELETE("/qa/bulk/:serverId", h.RemoveQABulk)
		api.DELETE("/qa/:serverId/:question", h.RemoveQA)

		api.GET("/guilds", h.ListGuilds)
		api.GET("/guilds/:serverId/bot", h.BotPresence)
	}

	authGroup := r.Group("/auth")
	{
		authGroup.GET("/discord/login", h.Login)
		authGroup.GET("/discord/callback", h.Callback)
		authGroup.GET("/session", h.CurrentSession)
		authGroup.POST("/session/refresh", h.RefreshSession)
		authGroup.POST("/logout", h.Logout)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(404, gin.H{"error": "Not Found"})
	})

	return r
}

// allowedOrigins falls back to the frontend URL when no CORS origins are configured
func allowedOrigins(cfg *config.ServerConfig) []string {
	if len(cfg.CORSAllowedOrigins) > 0 {
		return cfg.CORSAllowedOrigins
	}
	return []string{cfg.FrontendURL}
}
