package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/parsascontentcorner/guilddesk/internal/models"
)

// Tokens and codes understood by MockDiscordServer
const (
	MockValidCode        = "valid_code"
	MockAccessToken      = "mock_access_token_123"
	MockRefreshToken     = "mock_refresh_token_456"
	MockRefreshedAccess  = "mock_access_token_refreshed"
	MockRefreshedRefresh = "mock_refresh_token_789"
	MockBotToken         = "mock_bot_token"
	MockBotID            = "999999999999999999"
	MockUserID           = "123456789012345678"
	MockUsername         = "TestUser"
)

// MockDiscordServer is an httptest Discord API serving the OAuth token
// endpoint, /users/@me, /users/@me/guilds and bot guild membership.
//
// Codes: "valid_code" succeeds, "error_code" is rejected, "server_error" fails with 500.
// Tokens: MockAccessToken and MockRefreshedAccess are accepted, "rate_limited" gets a 429.
type MockDiscordServer struct {
	Server *httptest.Server

	mu sync.Mutex
	// Guilds is returned by /users/@me/guilds
	Guilds []models.Guild
	// BotGuilds holds the guild IDs the bot is a member of
	BotGuilds map[string]bool
	// TokenExpiresIn is the expires_in of issued tokens, in seconds
	TokenExpiresIn int
	// FailGuilds makes /users/@me/guilds return 500
	FailGuilds bool

	tokenCalls   int
	refreshCalls int
	userCalls    int
	guildCalls   int
}

// DiscordErrorResponse represents an error response from Discord.
type DiscordErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// NewMockDiscordServer creates and starts a mock Discord API server.
func NewMockDiscordServer() *MockDiscordServer {
	mds := &MockDiscordServer{
		Guilds:         DefaultGuilds(),
		BotGuilds:      map[string]bool{},
		TokenExpiresIn: 604800,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v10/oauth2/token", mds.handleToken)
	mux.HandleFunc("GET /api/v10/users/@me", mds.handleUser)
	mux.HandleFunc("GET /api/v10/users/@me/guilds", mds.handleGuilds)
	mux.HandleFunc("GET /api/v10/guilds/{guildID}/members/{userID}", mds.handleMember)

	mds.Server = httptest.NewServer(mux)
	return mds
}

// BaseURL is the API root to pass to DiscordClient.SetBaseURL.
func (mds *MockDiscordServer) BaseURL() string {
	return mds.Server.URL + "/api/v10"
}

// Close closes the mock server.
func (mds *MockDiscordServer) Close() {
	if mds.Server != nil {
		mds.Server.Close()
	}
}

// SetGuilds replaces the guild list returned to users.
func (mds *MockDiscordServer) SetGuilds(guilds []models.Guild) {
	mds.mu.Lock()
	defer mds.mu.Unlock()
	mds.Guilds = guilds
}

// SetFailGuilds toggles a 500 response on the guild list.
func (mds *MockDiscordServer) SetFailGuilds(fail bool) {
	mds.mu.Lock()
	defer mds.mu.Unlock()
	mds.FailGuilds = fail
}

// SetTokenExpiresIn sets the lifetime of issued tokens.
func (mds *MockDiscordServer) SetTokenExpiresIn(seconds int) {
	mds.mu.Lock()
	defer mds.mu.Unlock()
	mds.TokenExpiresIn = seconds
}

// AddBotGuild marks the bot as a member of guildID.
func (mds *MockDiscordServer) AddBotGuild(guildID string) {
	mds.mu.Lock()
	defer mds.mu.Unlock()
	mds.BotGuilds[guildID] = true
}

// CallCounts returns how often each endpoint was hit.
func (mds *MockDiscordServer) CallCounts() (token, refresh, user, guilds int) {
	mds.mu.Lock()
	defer mds.mu.Unlock()
	return mds.tokenCalls, mds.refreshCalls, mds.userCalls, mds.guildCalls
}

func (mds *MockDiscordServer) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	mds.mu.Lock()
	expiresIn := mds.TokenExpiresIn
	if r.FormValue("grant_type") == "refresh_token" {
		mds.refreshCalls++
	} else {
		mds.tokenCalls++
	}
	mds.mu.Unlock()

	switch r.FormValue("grant_type") {
	case "authorization_code":
		switch r.FormValue("code") {
		case MockValidCode:
			writeToken(w, MockAccessToken, MockRefreshToken, expiresIn)
		case "server_error":
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("Internal Server Error"))
		default:
			writeJSON(w, http.StatusBadRequest, DiscordErrorResponse{
				Error:            "invalid_grant",
				ErrorDescription: "Invalid authorization code",
			})
		}

	case "refresh_token":
		if r.FormValue("refresh_token") != MockRefreshToken {
			writeJSON(w, http.StatusBadRequest, DiscordErrorResponse{
				Error:            "invalid_grant",
				ErrorDescription: "Invalid refresh token",
			})
			return
		}
		writeToken(w, MockRefreshedAccess, MockRefreshedRefresh, expiresIn)

	default:
		writeJSON(w, http.StatusBadRequest, DiscordErrorResponse{
			Error:            "unsupported_grant_type",
			ErrorDescription: "Unsupported grant type",
		})
	}
}

func (mds *MockDiscordServer) handleUser(w http.ResponseWriter, r *http.Request) {
	mds.mu.Lock()
	mds.userCalls++
	mds.mu.Unlock()

	if !mds.authorizeUser(w, r) {
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":          MockUserID,
		"username":    MockUsername,
		"global_name": "Test User",
		"avatar":      "avatar_hash_123",
	})
}

func (mds *MockDiscordServer) handleGuilds(w http.ResponseWriter, r *http.Request) {
	mds.mu.Lock()
	mds.guildCalls++
	guilds := mds.Guilds
	fail := mds.FailGuilds
	mds.mu.Unlock()

	if !mds.authorizeUser(w, r) {
		return
	}

	if fail {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("Internal Server Error"))
		return
	}

	writeJSON(w, http.StatusOK, guilds)
}

func (mds *MockDiscordServer) handleMember(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bot "+MockBotToken {
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"message": "401: Unauthorized", "code": 0})
		return
	}

	guildID := r.PathValue("guildID")
	if guildID == "500" {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	mds.mu.Lock()
	present := mds.BotGuilds[guildID] && r.PathValue("userID") == MockBotID
	mds.mu.Unlock()

	if !present {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"message": "Unknown Member", "code": 10007})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":  map[string]string{"id": MockBotID, "username": "GuildDesk"},
		"roles": []string{},
	})
}

// authorizeUser checks the bearer token, writing the failure response itself
func (mds *MockDiscordServer) authorizeUser(w http.ResponseWriter, r *http.Request) bool {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	switch token {
	case MockAccessToken, MockRefreshedAccess:
		return true
	case "rate_limited":
		w.Header().Set("Retry-After", "1.5")
		w.Header().Set("X-RateLimit-Global", "false")
		writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{"message": "You are being rate limited.", "retry_after": 1.5})
		return false
	default:
		writeJSON(w, http.StatusUnauthorized, map[string]interface{}{"message": "401: Unauthorized", "code": 0})
		return false
	}
}

func writeToken(w http.ResponseWriter, access, refresh string, expiresIn int) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  access,
		"token_type":    "Bearer",
		"expires_in":    expiresIn,
		"refresh_token": refresh,
		"scope":         "identify guilds",
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
