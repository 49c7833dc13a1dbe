// Package notify publishes guild data change events for the Discord bot.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Kind is the kind of guild data that changed
type Kind string

// Event kinds
const (
	KindQA    Kind = "qa"
	KindSetup Kind = "setup"
)

// Action is what happened to the data
type Action string

// Event actions
const (
	ActionAdd        Action = "add"
	ActionRemove     Action = "remove"
	ActionRemoveBulk Action = "remove_bulk"
	ActionImport     Action = "import"
	ActionSave       Action = "save"
)

// Event describes one change to a guild's Q&A or setup data
type Event struct {
	ID         string    `json:"id"`
	ServerID   string    `json:"server_id"`
	Kind       Kind      `json:"kind"`
	Action     Action    `json:"action"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent creates an event with a fresh ID stamped with the current time
func NewEvent(serverID string, kind Kind, action Action) Event {
	return Event{
		ID:         uuid.New().String(),
		ServerID:   serverID,
		Kind:       kind,
		Action:     action,
		OccurredAt: time.Now().UTC(),
	}
}

// Notifier publishes change events
type Notifier interface {
	Publish(ctx context.Context, event Event) error
}

// Nop discards every event
type Nop struct{}

// Publish implements Notifier
func (Nop) Publish(context.Context, Event) error { return nil }
