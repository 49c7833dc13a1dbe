package auth

import (
	"context"

	"github.com/parsascontentcorner/guilddesk/internal/models"
)

type sessionKey struct{}

// WithSession returns a copy of ctx carrying the authenticated session
func WithSession(ctx context.Context, session *models.DiscordSession) context.Context {
	return context.WithValue(ctx, sessionKey{}, session)
}

// SessionFromContext returns the session stored by WithSession, if any
func SessionFromContext(ctx context.Context) (*models.DiscordSession, bool) {
	session, ok := ctx.Value(sessionKey{}).(*models.DiscordSession)
	return session, ok && session != nil
}
