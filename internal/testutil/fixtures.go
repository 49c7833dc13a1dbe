package testutil

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/parsascontentcorner/guilddesk/internal/config"
	"github.com/parsascontentcorner/guilddesk/internal/models"
)

// Guild IDs used by DefaultGuilds
const (
	OwnedGuildID  = "42"
	MemberGuildID = "43"
	AdminGuildID  = "44"
)

// DefaultGuilds is the guild list the mock Discord server returns:
// one owned guild, one plain membership and one administrator membership.
func DefaultGuilds() []models.Guild {
	return []models.Guild{
		{ID: OwnedGuildID, Name: "Owned Guild", Icon: "icon42", Owner: true, Permissions: "2147483647"},
		{ID: MemberGuildID, Name: "Member Guild", Owner: false, Permissions: "104324673"},
		{ID: AdminGuildID, Name: "Admin Guild", Owner: false, Permissions: "8"},
	}
}

// GenerateSessionID generates a random session ID (UUID).
func GenerateSessionID() string {
	return uuid.New().String()
}

// GenerateLoginAttempt creates an awaiting_code session and its state, expiring after ttl.
func GenerateLoginAttempt(ttl time.Duration) (*models.DiscordSession, *models.OAuthState) {
	sessionID := GenerateSessionID()
	expiresAt := time.Now().UTC().Add(ttl)

	return &models.DiscordSession{
			SessionID: sessionID,
			Status:    models.SessionStatusAwaitingCode,
			Guilds:    models.GuildList{},
			ExpiresAt: expiresAt,
		}, &models.OAuthState{
			State:     uuid.New().String(),
			SessionID: sessionID,
			ExpiresAt: expiresAt,
		}
}

// GenerateAuthenticatedSession creates an authenticated session holding guilds.
// Token fields are left empty.
func GenerateAuthenticatedSession(guilds ...models.Guild) *models.DiscordSession {
	now := time.Now().UTC()
	return &models.DiscordSession{
		SessionID:     GenerateSessionID(),
		Status:        models.SessionStatusAuthenticated,
		DiscordUserID: nullString(MockUserID),
		Username:      nullString(MockUsername),
		Guilds:        models.GuildList(guilds),
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(7 * 24 * time.Hour),
	}
}

// GenerateEncryptionKey generates a 32-byte encryption key for testing.
func GenerateEncryptionKey() []byte {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		panic(fmt.Sprintf("failed to generate encryption key: %v", err))
	}
	return key
}

// GenerateTestConfig creates a valid configuration pointing Discord at the mock bot.
func GenerateTestConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			HTTPPort:           "8080",
			GRPCPort:           "50051",
			Host:               "localhost",
			Env:                config.EnvDevelopment,
			FrontendURL:        "http://localhost:5173",
			CORSAllowedOrigins: []string{"http://localhost:5173"},
		},
		Discord: config.DiscordConfig{
			ClientID:     "test_client_id",
			ClientSecret: "test_client_secret",
			RedirectURI:  "http://localhost:8080/auth/discord/callback",
			Scopes:       []string{"identify", "guilds"},
			BotToken:     MockBotToken,
			BotID:        MockBotID,
		},
		Database: config.DatabaseConfig{
			Host:         "localhost",
			Port:         "5432",
			User:         "testuser",
			Password:     "testpass",
			Name:         "testdb",
			SSLMode:      "disable",
			MaxOpenConns: 5,
			MaxIdleConns: 2,
		},
		Mongo: config.MongoConfig{
			URI:      "mongodb://localhost:27017",
			Database: "guilddesk_test",
		},
		Security: config.SecurityConfig{
			TokenEncryptionKey: GenerateEncryptionKey(),
			CookieHashKey:      GenerateEncryptionKey(),
			SessionExpiryHours: 168,
			StateExpiryMinutes: 10,
		},
		RateLimit: config.RateLimitConfig{
			Requests:      100,
			WindowMinutes: 15,
		},
		Logging: config.LoggingConfig{
			Level:  "debug",
			Format: "console",
		},
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
