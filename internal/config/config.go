// Package config provides application configuration management using environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Environment names
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Discord   DiscordConfig
	Database  DatabaseConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	AMQP      AMQPConfig
	Security  SecurityConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPPort           string
	GRPCPort           string
	Host               string
	Env                string
	FrontendURL        string
	CORSAllowedOrigins []string
}

// DiscordConfig holds Discord OAuth configuration
type DiscordConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	BotToken     string
	BotID        string
}

// DatabaseConfig holds PostgreSQL connection configuration (sessions, OAuth states)
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	MigrationsPath string
}

// MongoConfig holds the document store connection configuration
type MongoConfig struct {
	URI      string
	Database string
}

// RedisConfig holds the optional Redis connection used by the client IP limiter.
// An empty Addr selects the in-memory limiter.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AMQPConfig holds the optional RabbitMQ connection used for change events.
// An empty URL disables publishing.
type AMQPConfig struct {
	URL   string
	Queue string
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	TokenEncryptionKey []byte
	CookieHashKey      []byte
	SessionExpiryHours int
	StateExpiryMinutes int
	EnforceGuildAccess bool
}

// RateLimitConfig holds the per-client-IP request budget
type RateLimitConfig struct {
	Requests      int
	WindowMinutes int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// ApplyDefaults registers defaults and environment bindings on v.
func ApplyDefaults(v *viper.Viper) {
	v.AutomaticEnv()

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("GRPC_PORT", "50051")
	v.SetDefault("SERVER_HOST", "localhost")
	v.SetDefault("ENVIRONMENT", EnvDevelopment)
	v.SetDefault("FRONTEND_URL", "http://localhost:5173")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173,http://127.0.0.1:5173")

	v.SetDefault("DISCORD_OAUTH_SCOPES", "identify guilds")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "guilddesk")
	v.SetDefault("DB_NAME", "guilddesk_db")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_MIGRATIONS_PATH", "internal/database/migrations")

	v.SetDefault("MONGO_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGO_DATABASE", "guilddesk")

	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("AMQP_QUEUE", "guilddesk.guild_changes")

	v.SetDefault("SESSION_EXPIRY_HOURS", 168)
	v.SetDefault("STATE_EXPIRY_MINUTES", 10)
	v.SetDefault("ENFORCE_GUILD_ACCESS", false)

	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_MINUTES", 15)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
}

// Load loads configuration from the environment through v.
// It optionally loads from a .env file if it exists.
func Load(v *viper.Viper) (*Config, error) {
	// Try to load .env file (optional, ignore error if not found)
	_ = godotenv.Load()

	ApplyDefaults(v)

	cfg := &Config{}

	cfg.Server = ServerConfig{
		HTTPPort:           v.GetString("HTTP_PORT"),
		GRPCPort:           v.GetString("GRPC_PORT"),
		Host:               v.GetString("SERVER_HOST"),
		Env:                v.GetString("ENVIRONMENT"),
		FrontendURL:        v.GetString("FRONTEND_URL"),
		CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS"), ","),
	}

	cfg.Discord = DiscordConfig{
		ClientID:     v.GetString("DISCORD_CLIENT_ID"),
		ClientSecret: v.GetString("DISCORD_CLIENT_SECRET"),
		RedirectURI:  v.GetString("DISCORD_REDIRECT_URI"),
		Scopes:       splitList(v.GetString("DISCORD_OAUTH_SCOPES"), " "),
		BotToken:     v.GetString("DISCORD_BOT_TOKEN"),
		BotID:        v.GetString("DISCORD_BOT_ID"),
	}

	cfg.Database = DatabaseConfig{
		Host:           v.GetString("DB_HOST"),
		Port:           v.GetString("DB_PORT"),
		User:           v.GetString("DB_USER"),
		Password:       v.GetString("DB_PASSWORD"),
		Name:           v.GetString("DB_NAME"),
		SSLMode:        v.GetString("DB_SSLMODE"),
		MaxOpenConns:   v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:   v.GetInt("DB_MAX_IDLE_CONNS"),
		MigrationsPath: v.GetString("DB_MIGRATIONS_PATH"),
	}

	cfg.Mongo = MongoConfig{
		URI:      v.GetString("MONGO_URI"),
		Database: v.GetString("MONGO_DATABASE"),
	}

	cfg.Redis = RedisConfig{
		Addr:     v.GetString("REDIS_ADDR"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.AMQP = AMQPConfig{
		URL:   v.GetString("AMQP_URL"),
		Queue: v.GetString("AMQP_QUEUE"),
	}

	encryptionKey, err := hex.DecodeString(v.GetString("TOKEN_ENCRYPTION_KEY"))
	if err != nil {
		return nil, fmt.Errorf("invalid TOKEN_ENCRYPTION_KEY: must be a hex-encoded string: %w", err)
	}

	cookieKey, err := hex.DecodeString(v.GetString("COOKIE_HASH_KEY"))
	if err != nil {
		return nil, fmt.Errorf("invalid COOKIE_HASH_KEY: must be a hex-encoded string: %w", err)
	}

	cfg.Security = SecurityConfig{
		TokenEncryptionKey: encryptionKey,
		CookieHashKey:      cookieKey,
		SessionExpiryHours: v.GetInt("SESSION_EXPIRY_HOURS"),
		StateExpiryMinutes: v.GetInt("STATE_EXPIRY_MINUTES"),
		EnforceGuildAccess: v.GetBool("ENFORCE_GUILD_ACCESS"),
	}

	cfg.RateLimit = RateLimitConfig{
		Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
		WindowMinutes: v.GetInt("RATE_LIMIT_WINDOW_MINUTES"),
	}

	cfg.Logging = LoggingConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	// Validate Discord Config
	if c.Discord.ClientID == "" {
		return fmt.Errorf("DISCORD_CLIENT_ID is required")
	}
	if c.Discord.ClientSecret == "" {
		return fmt.Errorf("DISCORD_CLIENT_SECRET is required")
	}
	if c.Discord.RedirectURI == "" {
		return fmt.Errorf("DISCORD_REDIRECT_URI is required")
	}
	if c.Discord.BotToken != "" && c.Discord.BotID == "" {
		return fmt.Errorf("DISCORD_BOT_ID is required when DISCORD_BOT_TOKEN is set")
	}

	// Validate Database Config
	if c.Database.User == "" {
		return fmt.Errorf("DB_USER is required")
	}
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}

	if c.Mongo.URI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if c.Mongo.Database == "" {
		return fmt.Errorf("MONGO_DATABASE is required")
	}

	if c.AMQP.URL != "" && c.AMQP.Queue == "" {
		return fmt.Errorf("AMQP_QUEUE is required when AMQP_URL is set")
	}

	// Validate Security Config
	if len(c.Security.TokenEncryptionKey) != 32 {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be exactly 32 bytes (64 hex characters) for AES-256")
	}
	if len(c.Security.CookieHashKey) < 32 {
		return fmt.Errorf("COOKIE_HASH_KEY must be at least 32 bytes (64 hex characters)")
	}
	if c.Security.SessionExpiryHours <= 0 {
		return fmt.Errorf("SESSION_EXPIRY_HOURS must be positive")
	}
	if c.Security.StateExpiryMinutes <= 0 {
		return fmt.Errorf("STATE_EXPIRY_MINUTES must be positive")
	}

	if c.RateLimit.Requests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive")
	}
	if c.RateLimit.WindowMinutes <= 0 {
		return fmt.Errorf("RATE_LIMIT_WINDOW_MINUTES must be positive")
	}

	// Validate Logging Config
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}

	return nil
}

// IsProduction reports whether the service runs with ENVIRONMENT=production
func (c *ServerConfig) IsProduction() bool {
	return c.Env == EnvProduction
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// splitList splits s on sep and drops empty entries
func splitList(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
