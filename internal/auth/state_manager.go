package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/parsascontentcorner/guilddesk/internal/models"
)

// StateValidator consumes a single-use OAuth state
type StateValidator interface {
	ValidateAndDeleteOAuthState(ctx context.Context, state string) (*models.OAuthState, error)
}

// StateManager handles OAuth state generation and validation
type StateManager struct {
	store StateValidator
}

// NewStateManager creates a new state manager
func NewStateManager(store StateValidator) *StateManager {
	return &StateManager{store: store}
}

// GenerateState generates a cryptographically secure random state
func (sm *StateManager) GenerateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random state: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ValidateState consumes a state and returns the session it was issued for
func (sm *StateManager) ValidateState(ctx context.Context, state string) (string, error) {
	oauthState, err := sm.store.ValidateAndDeleteOAuthState(ctx, state)
	if err != nil {
		return "", fmt.Errorf("state validation failed: %w", err)
	}

	return oauthState.SessionID, nil
}
