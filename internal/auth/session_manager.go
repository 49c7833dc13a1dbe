package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/parsascontentcorner/guilddesk/internal/config"
	"github.com/parsascontentcorner/guilddesk/internal/database"
	"github.com/parsascontentcorner/guilddesk/internal/models"
)

// Session manager errors
var (
	ErrNoSession    = errors.New("no authenticated session")
	ErrInvalidState = errors.New("invalid or expired OAuth state")
)

// tokenRefreshWindow is how close to expiry an access token gets refreshed
const tokenRefreshWindow = 5 * time.Minute

// SessionStore persists login attempts and sessions
type SessionStore interface {
	StateValidator
	CreateLoginAttempt(ctx context.Context, session *models.DiscordSession, state *models.OAuthState) error
	GetDiscordSession(ctx context.Context, sessionID string) (*models.DiscordSession, error)
	UpdateDiscordSessionStatus(ctx context.Context, sessionID, status string) error
	SaveAuthenticatedSession(ctx context.Context, session *models.DiscordSession) error
	DeleteDiscordSession(ctx context.Context, sessionID string) error
}

// LoginAttempt is a started login waiting for the Discord redirect
type LoginAttempt struct {
	SessionID string
	AuthURL   string
}

// SessionManager drives a session through
// anonymous -> awaiting_code -> exchanging_token -> authenticated.
// Any failure after the login started returns the session to anonymous by deleting it.
type SessionManager struct {
	store      SessionStore
	discord    *DiscordClient
	cipher     *TokenCipher
	states     *StateManager
	sessionTTL time.Duration
	stateTTL   time.Duration
	logger     *zap.Logger
}

// NewSessionManager creates a new session manager
func NewSessionManager(store SessionStore, discord *DiscordClient, cipher *TokenCipher, cfg *config.SecurityConfig, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		store:      store,
		discord:    discord,
		cipher:     cipher,
		states:     NewStateManager(store),
		sessionTTL: time.Duration(cfg.SessionExpiryHours) * time.Hour,
		stateTTL:   time.Duration(cfg.StateExpiryMinutes) * time.Minute,
		logger:     logger,
	}
}

// Begin creates an awaiting_code session and the Discord authorize URL for it
func (sm *SessionManager) Begin(ctx context.Context) (*LoginAttempt, error) {
	state, err := sm.states.GenerateState()
	if err != nil {
		return nil, err
	}

	sessionID := uuid.New().String()
	expiresAt := time.Now().Add(sm.stateTTL)

	session := &models.DiscordSession{
		SessionID: sessionID,
		Status:    models.SessionStatusAwaitingCode,
		Guilds:    models.GuildList{},
		ExpiresAt: expiresAt,
	}
	oauthState := &models.OAuthState{
		State:     state,
		SessionID: sessionID,
		ExpiresAt: expiresAt,
	}

	if err := sm.store.CreateLoginAttempt(ctx, session, oauthState); err != nil {
		return nil, fmt.Errorf("failed to start login: %w", err)
	}

	sm.logger.Info("login started", zap.String("session_id", sessionID))

	return &LoginAttempt{
		SessionID: sessionID,
		AuthURL:   sm.discord.GetAuthURL(state),
	}, nil
}

// Complete finishes the OAuth callback. When cookieSessionID is set, the state
// must have been issued for that session.
func (sm *SessionManager) Complete(ctx context.Context, code, state, cookieSessionID string) (*models.DiscordSession, error) {
	sessionID, err := sm.states.ValidateState(ctx, state)
	if err != nil {
		sm.logger.Warn("state validation failed", zap.Error(err))
		sm.discard(ctx, cookieSessionID)
		return nil, ErrInvalidState
	}

	if cookieSessionID != "" && cookieSessionID != sessionID {
		sm.logger.Warn("state issued for another session", zap.String("session_id", sessionID))
		sm.discard(ctx, sessionID)
		sm.discard(ctx, cookieSessionID)
		return nil, ErrInvalidState
	}

	session, err := sm.store.GetDiscordSession(ctx, sessionID)
	if err != nil {
		return nil, sm.fail(ctx, sessionID, "failed to load login session", err)
	}
	if session.Status != models.SessionStatusAwaitingCode {
		return nil, sm.fail(ctx, sessionID, "login session is not awaiting a code", fmt.Errorf("status %s", session.Status))
	}

	if err := sm.store.UpdateDiscordSessionStatus(ctx, sessionID, models.SessionStatusExchangingToken); err != nil {
		return nil, sm.fail(ctx, sessionID, "failed to mark session exchanging", err)
	}

	sm.logger.Debug("exchanging code for token", zap.String("session_id", sessionID))
	token, err := sm.discord.ExchangeCode(ctx, code)
	if err != nil {
		return nil, sm.fail(ctx, sessionID, "failed to exchange authorization code", err)
	}

	if err := sm.populate(ctx, session, token); err != nil {
		return nil, sm.fail(ctx, sessionID, "failed to complete login", err)
	}

	sm.logger.Info("authentication completed",
		zap.String("session_id", sessionID),
		zap.String("discord_id", session.DiscordUserID.String),
		zap.Int("owned_guilds", len(session.Guilds)),
	)

	return session, nil
}

// Load returns the authenticated, unexpired session or ErrNoSession
func (sm *SessionManager) Load(ctx context.Context, sessionID string) (*models.DiscordSession, error) {
	if sessionID == "" {
		return nil, ErrNoSession
	}

	session, err := sm.store.GetDiscordSession(ctx, sessionID)
	if errors.Is(err, database.ErrSessionNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if session.IsExpired() {
		sm.discard(ctx, sessionID)
		return nil, ErrNoSession
	}
	if !session.IsAuthenticated() {
		return nil, ErrNoSession
	}

	return session, nil
}

// Refresh renews the OAuth token when it is about to expire and refetches
// the user and guilds. Any failure deletes the session.
func (sm *SessionManager) Refresh(ctx context.Context, sessionID string) (*models.DiscordSession, error) {
	session, err := sm.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	token, err := sm.currentToken(ctx, session)
	if err != nil {
		return nil, sm.fail(ctx, sessionID, "failed to refresh token", err)
	}

	if err := sm.populate(ctx, session, token); err != nil {
		return nil, sm.fail(ctx, sessionID, "failed to refresh session", err)
	}

	sm.logger.Info("session refreshed",
		zap.String("session_id", sessionID),
		zap.Int("owned_guilds", len(session.Guilds)),
	)

	return session, nil
}

// Logout deletes the session. Unknown sessions are ignored.
func (sm *SessionManager) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	if err := sm.store.DeleteDiscordSession(ctx, sessionID); err != nil && !errors.Is(err, database.ErrSessionNotFound) {
		return fmt.Errorf("failed to log out: %w", err)
	}

	sm.logger.Info("session logged out", zap.String("session_id", sessionID))
	return nil
}

// BotInGuild reports whether the configured bot is a member of the guild
func (sm *SessionManager) BotInGuild(ctx context.Context, guildID string) (bool, error) {
	return sm.discord.BotInGuild(ctx, guildID)
}

// currentToken decrypts the stored token pair, refreshing it when it is near expiry
func (sm *SessionManager) currentToken(ctx context.Context, session *models.DiscordSession) (*oauth2.Token, error) {
	accessToken, err := sm.cipher.Decrypt(session.AccessToken.String)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	refreshToken, err := sm.cipher.Decrypt(session.RefreshToken.String)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}

	token := &oauth2.Token{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Expiry:       session.TokenExpiry.Time,
	}

	if session.TokenExpiry.Valid && time.Now().Add(tokenRefreshWindow).Before(session.TokenExpiry.Time) {
		return token, nil
	}

	sm.logger.Info("OAuth token expiring soon, refreshing",
		zap.String("session_id", session.SessionID),
		zap.Time("expiry", session.TokenExpiry.Time),
	)

	return sm.discord.RefreshToken(ctx, refreshToken)
}

// populate fetches the user and owned guilds for token and stores them on the session
func (sm *SessionManager) populate(ctx context.Context, session *models.DiscordSession, token *oauth2.Token) error {
	user, err := sm.discord.GetUserInfo(ctx, token.AccessToken)
	if err != nil {
		return err
	}

	guilds, err := sm.discord.GetUserGuilds(ctx, token.AccessToken)
	if err != nil {
		return err
	}

	encryptedAccess, err := sm.cipher.Encrypt(token.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	encryptedRefresh, err := sm.cipher.Encrypt(token.RefreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	session.DiscordUserID = sql.NullString{String: user.ID, Valid: user.ID != ""}
	session.Username = sql.NullString{String: user.Username, Valid: user.Username != ""}
	session.Avatar = sql.NullString{String: user.Avatar, Valid: user.Avatar != ""}
	session.Guilds = models.OwnedGuilds(guilds)
	session.AccessToken = sql.NullString{String: encryptedAccess, Valid: true}
	session.RefreshToken = sql.NullString{String: encryptedRefresh, Valid: true}
	session.TokenExpiry = sql.NullTime{Time: token.Expiry, Valid: !token.Expiry.IsZero()}
	session.ExpiresAt = time.Now().Add(sm.sessionTTL)

	return sm.store.SaveAuthenticatedSession(ctx, session)
}

// fail deletes the session and returns a wrapped error
func (sm *SessionManager) fail(ctx context.Context, sessionID, message string, err error) error {
	sm.logger.Error(message, zap.String("session_id", sessionID), zap.Error(err))
	sm.discard(ctx, sessionID)
	return fmt.Errorf("%s: %w", message, err)
}

func (sm *SessionManager) discard(ctx context.Context, sessionID string) {
	if sessionID == "" {
		return
	}
	if err := sm.store.DeleteDiscordSession(ctx, sessionID); err != nil && !errors.Is(err, database.ErrSessionNotFound) {
		sm.logger.Warn("failed to delete session", zap.String("session_id", sessionID), zap.Error(err))
	}
}
