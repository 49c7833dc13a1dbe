// Package models defines the data structures shared by the stores, the
// Discord session manager and the HTTP API.
package models

import (
	"database/sql"
	"time"
)

// Session status values. A missing session row is the anonymous state.
const (
	SessionStatusAwaitingCode    = "awaiting_code"
	SessionStatusExchangingToken = "exchanging_token"
	SessionStatusAuthenticated   = "authenticated"
)

// DiscordSession is a server-side Discord login session
type DiscordSession struct {
	SessionID     string         `json:"session_id"`
	Status        string         `json:"status"`
	DiscordUserID sql.NullString `json:"discord_user_id"`
	Username      sql.NullString `json:"username"`
	Avatar        sql.NullString `json:"avatar"`
	Guilds        GuildList      `json:"guilds"`
	AccessToken   sql.NullString `json:"-"` // Encrypted
	RefreshToken  sql.NullString `json:"-"` // Encrypted
	TokenExpiry   sql.NullTime   `json:"token_expiry"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	ExpiresAt     time.Time      `json:"expires_at"`
}

// OAuthState represents a temporary OAuth state for CSRF protection
type OAuthState struct {
	State     string    `json:"state"`
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsExpired checks if the session has expired
func (s *DiscordSession) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// IsAuthenticated reports whether the session completed login and is still valid
func (s *DiscordSession) IsAuthenticated() bool {
	return s.Status == SessionStatusAuthenticated && !s.IsExpired()
}

// IsExpired checks if the OAuth state has expired
func (s *OAuthState) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}
