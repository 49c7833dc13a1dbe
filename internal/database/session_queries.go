package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/guilddesk/internal/models"
)

// Lookup errors returned by the session queries
var (
	ErrSessionNotFound = errors.New("discord session not found")
	ErrStateNotFound   = errors.New("invalid state: not found")
	ErrStateExpired    = errors.New("state has expired")
)

const sessionColumns = `
	session_id, status, discord_user_id, username, avatar, guilds,
	access_token, refresh_token, token_expiry, created_at, updated_at, expires_at
`

// CreateLoginAttempt stores a new awaiting_code session together with its OAuth state
func (db *DB) CreateLoginAttempt(ctx context.Context, session *models.DiscordSession, state *models.OAuthState) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sessionQuery := `
		INSERT INTO discord_sessions (session_id, status, guilds, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, sessionQuery,
		session.SessionID,
		session.Status,
		session.Guilds,
		session.ExpiresAt,
	).Scan(&session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}

	stateQuery := `
		INSERT INTO oauth_states (state, session_id, expires_at)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`
	err = tx.QueryRowContext(ctx, stateQuery,
		state.State,
		state.SessionID,
		state.ExpiresAt,
	).Scan(&state.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create oauth state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetDiscordSession retrieves a session by ID
func (db *DB) GetDiscordSession(ctx context.Context, sessionID string) (*models.DiscordSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM discord_sessions WHERE session_id = $1`

	session := &models.DiscordSession{}
	err := db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.SessionID,
		&session.Status,
		&session.DiscordUserID,
		&session.Username,
		&session.Avatar,
		&session.Guilds,
		&session.AccessToken,
		&session.RefreshToken,
		&session.TokenExpiry,
		&session.CreatedAt,
		&session.UpdatedAt,
		&session.ExpiresAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get discord session: %w", err)
	}

	return session, nil
}

// UpdateDiscordSessionStatus moves a session to another status
func (db *DB) UpdateDiscordSessionStatus(ctx context.Context, sessionID, status string) error {
	query := `
		UPDATE discord_sessions
		SET status = $2, updated_at = NOW()
		WHERE session_id = $1
	`

	result, err := db.ExecContext(ctx, query, sessionID, status)
	if err != nil {
		return fmt.Errorf("failed to update discord session status: %w", err)
	}

	return requireAffected(result)
}

// SaveAuthenticatedSession writes the user, guilds and encrypted tokens of a
// session and marks it authenticated until session.ExpiresAt
func (db *DB) SaveAuthenticatedSession(ctx context.Context, session *models.DiscordSession) error {
	query := `
		UPDATE discord_sessions
		SET status = $2,
			discord_user_id = $3,
			username = $4,
			avatar = $5,
			guilds = $6,
			access_token = $7,
			refresh_token = $8,
			token_expiry = $9,
			expires_at = $10,
			updated_at = NOW()
		WHERE session_id = $1
		RETURNING updated_at
	`

	err := db.QueryRowContext(ctx, query,
		session.SessionID,
		models.SessionStatusAuthenticated,
		session.DiscordUserID,
		session.Username,
		session.Avatar,
		session.Guilds,
		session.AccessToken,
		session.RefreshToken,
		session.TokenExpiry,
		session.ExpiresAt,
	).Scan(&session.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return ErrSessionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to save authenticated session: %w", err)
	}

	session.Status = models.SessionStatusAuthenticated
	return nil
}

// DeleteDiscordSession deletes a session and any pending OAuth state
func (db *DB) DeleteDiscordSession(ctx context.Context, sessionID string) error {
	query := `DELETE FROM discord_sessions WHERE session_id = $1`

	result, err := db.ExecContext(ctx, query, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete discord session: %w", err)
	}

	return requireAffected(result)
}

// ValidateAndDeleteOAuthState validates and deletes an OAuth state (single-use)
func (db *DB) ValidateAndDeleteOAuthState(ctx context.Context, state string) (*models.OAuthState, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Row lock so two callbacks with the same state cannot both succeed
	query := `
		SELECT state, session_id, created_at, expires_at
		FROM oauth_states
		WHERE state = $1
		FOR UPDATE
	`

	oauthState := &models.OAuthState{}
	err = tx.QueryRowContext(ctx, query, state).Scan(
		&oauthState.State,
		&oauthState.SessionID,
		&oauthState.CreatedAt,
		&oauthState.ExpiresAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to validate oauth state: %w", err)
	}

	if _, err = tx.ExecContext(ctx, `DELETE FROM oauth_states WHERE state = $1`, state); err != nil {
		return nil, fmt.Errorf("failed to delete oauth state: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if oauthState.IsExpired() {
		return nil, ErrStateExpired
	}

	return oauthState, nil
}

// CleanupExpiredSessions deletes expired sessions and states
func (db *DB) CleanupExpiredSessions(ctx context.Context) error {
	sessions, err := db.ExecContext(ctx, `DELETE FROM discord_sessions WHERE expires_at < NOW()`)
	if err != nil {
		return fmt.Errorf("failed to cleanup expired discord sessions: %w", err)
	}

	states, err := db.ExecContext(ctx, `DELETE FROM oauth_states WHERE expires_at < NOW()`)
	if err != nil {
		return fmt.Errorf("failed to cleanup expired oauth states: %w", err)
	}

	sessionCount, _ := sessions.RowsAffected()
	stateCount, _ := states.RowsAffected()
	db.logger.Debug("cleaned up expired sessions and states",
		zap.Int64("sessions", sessionCount),
		zap.Int64("states", stateCount),
	)
	return nil
}

// StartCleanupJob starts a background job to periodically cleanup expired sessions
func (db *DB) StartCleanupJob(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				if err := db.CleanupExpiredSessions(ctx); err != nil {
					db.logger.Error("failed to cleanup expired sessions", zap.Error(err))
				}
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()

	db.logger.Info("started cleanup job", zap.Duration("interval", interval))
}

func requireAffected(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrSessionNotFound
	}

	return nil
}
