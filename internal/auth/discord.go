// Package auth implements the Discord login flow: OAuth2 code exchange,
// user and guild lookup, token encryption and the server-side session lifecycle.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/parsascontentcorner/guilddesk/internal/config"
	"github.com/parsascontentcorner/guilddesk/internal/models"
	"github.com/parsascontentcorner/guilddesk/internal/ratelimit"
)

const (
	discordAPIEndpoint = "https://discord.com/api/v10"
	discordAuthURL     = "https://discord.com/oauth2/authorize"
	discordTokenURL    = "https://discord.com/api/oauth2/token" //nolint:gosec // Not a hardcoded credential, just an API endpoint URL
)

// ErrBotNotConfigured is returned by bot calls when DISCORD_BOT_TOKEN is unset
var ErrBotNotConfigured = errors.New("discord bot token is not configured")

// APIError is a non-success response from the Discord REST API
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord API returned status %d: %s", e.StatusCode, e.Body)
}

// DiscordClient calls the Discord OAuth2 and REST endpoints
type DiscordClient struct {
	config      *oauth2.Config
	httpClient  *http.Client
	logger      *zap.Logger
	baseURL     string // Discord API base URL (configurable for testing)
	rateLimiter *ratelimit.RouteLimiter
	botToken    string
	botID       string
}

// NewDiscordClient creates a new Discord client from the application config
func NewDiscordClient(cfg *config.Config, logger *zap.Logger) *DiscordClient {
	oauthConfig := &oauth2.Config{
		ClientID:     cfg.Discord.ClientID,
		ClientSecret: cfg.Discord.ClientSecret,
		RedirectURL:  cfg.Discord.RedirectURI,
		Scopes:       cfg.Discord.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   discordAuthURL,
			TokenURL:  discordTokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	return &DiscordClient{
		config:     oauthConfig,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		baseURL:    discordAPIEndpoint,
		botToken:   cfg.Discord.BotToken,
		botID:      cfg.Discord.BotID,
	}
}

// SetRateLimiter sets the route limiter used for REST calls
func (dc *DiscordClient) SetRateLimiter(rl *ratelimit.RouteLimiter) {
	dc.rateLimiter = rl
}

// SetBaseURL points the client at another API root (used for testing)
func (dc *DiscordClient) SetBaseURL(url string) {
	dc.baseURL = url
	dc.config.Endpoint.TokenURL = url + "/oauth2/token"
}

// GetAuthURL constructs the Discord OAuth authorization URL
func (dc *DiscordClient) GetAuthURL(state string) string {
	return dc.config.AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for an access token
func (dc *DiscordClient) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := dc.config.Exchange(dc.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code for token: %w", err)
	}

	dc.logger.Debug("exchanged code for token",
		zap.String("token_type", token.TokenType),
		zap.Time("expiry", token.Expiry),
	)

	return token, nil
}

// RefreshToken obtains a new token pair from a refresh token
func (dc *DiscordClient) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	tokenSource := dc.config.TokenSource(dc.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	newToken, err := tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	dc.logger.Debug("refreshed OAuth token", zap.Time("new_expiry", newToken.Expiry))

	return newToken, nil
}

// GetUserInfo fetches the token owner's user object
func (dc *DiscordClient) GetUserInfo(ctx context.Context, accessToken string) (*discordgo.User, error) {
	var user discordgo.User
	if err := dc.getJSON(ctx, "/users/@me", "/users/@me", "Bearer "+accessToken, &user); err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}

	dc.logger.Debug("fetched user info from Discord",
		zap.String("discord_id", user.ID),
		zap.String("username", user.Username),
	)

	return &user, nil
}

// GetUserGuilds fetches the guilds the token owner is a member of
func (dc *DiscordClient) GetUserGuilds(ctx context.Context, accessToken string) ([]models.Guild, error) {
	var guilds []models.Guild
	if err := dc.getJSON(ctx, "/users/@me/guilds", "/users/@me/guilds", "Bearer "+accessToken, &guilds); err != nil {
		return nil, fmt.Errorf("failed to fetch user guilds: %w", err)
	}

	dc.logger.Debug("fetched user guilds from Discord", zap.Int("guild_count", len(guilds)))

	return guilds, nil
}

// BotInGuild reports whether the configured bot is a member of the guild
func (dc *DiscordClient) BotInGuild(ctx context.Context, guildID string) (bool, error) {
	if dc.botToken == "" {
		return false, ErrBotNotConfigured
	}

	endpoint := "/guilds/" + url.PathEscape(guildID) + "/members/" + url.PathEscape(dc.botID)
	resp, err := dc.do(ctx, "/guilds/"+guildID+"/members", endpoint, "Bot "+dc.botToken)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, readAPIError(resp)
	}
}

// oauthContext makes the oauth2 package use the client's HTTP client
func (dc *DiscordClient) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, dc.httpClient)
}

func (dc *DiscordClient) getJSON(ctx context.Context, route, endpoint, authorization string, out interface{}) error {
	resp, err := dc.do(ctx, route, endpoint, authorization)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			dc.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// do makes a rate-limited GET request. Bot tokens use the "Bot" prefix, user tokens "Bearer".
func (dc *DiscordClient) do(ctx context.Context, route, endpoint, authorization string) (*http.Response, error) {
	if dc.rateLimiter != nil {
		if err := dc.rateLimiter.Wait(ctx, route); err != nil {
			return nil, fmt.Errorf("rate limit wait failed: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, dc.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", authorization)

	resp, err := dc.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}

	if dc.rateLimiter != nil {
		dc.rateLimiter.UpdateFromHeaders(route, resp.Header)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		defer func() { _ = resp.Body.Close() }()
		retryAfter := time.Duration(0)
		if dc.rateLimiter != nil {
			retryAfter = dc.rateLimiter.HandleRateLimitResponse(route, resp.Header)
		}
		return nil, fmt.Errorf("rate limited by Discord API, retry after %v", retryAfter)
	}

	return resp, nil
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{StatusCode: resp.StatusCode, Body: string(body)}
}
