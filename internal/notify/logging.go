package notify

import (
	"context"

	"go.uber.org/zap"
)

// Logged wraps a Notifier so publish failures are logged and never returned
type Logged struct {
	next   Notifier
	logger *zap.Logger
}

// NewLogged wraps next
func NewLogged(next Notifier, logger *zap.Logger) *Logged {
	return &Logged{next: next, logger: logger}
}

// Publish implements Notifier and always returns nil
func (l *Logged) Publish(ctx context.Context, event Event) error {
	if err := l.next.Publish(ctx, event); err != nil {
		l.logger.Warn("failed to publish change event",
			zap.String("event_id", event.ID),
			zap.String("server_id", event.ServerID),
			zap.String("kind", string(event.Kind)),
			zap.String("action", string(event.Action)),
			zap.Error(err),
		)
		return nil
	}

	l.logger.Debug("change event published",
		zap.String("event_id", event.ID),
		zap.String("server_id", event.ServerID),
	)
	return nil
}
