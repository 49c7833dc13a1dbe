package logger

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"email", "contact admin@example.com now", "contact [EMAIL] now"},
		{"ip", "request from 192.168.1.20 failed", "request from [IP] failed"},
		{"bearer token", "Authorization: Bearer abc.DEF-123_x==", "Authorization: [TOKEN]"},
		{"api key", "using key-0123456789abcdef0123456789abcdef", "using [API_KEY]"},
		{"url with params", "GET https://discord.com/api/oauth2/token?code=secret failed", "GET [URL_WITH_PARAMS] failed"},
		{"url without params", "GET https://discord.com/api/users/@me", "GET https://discord.com/api/users/@me"},
		{"plain", "nothing to hide", "nothing to hide"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeString(tt.input))
		})
	}
}

func TestSanitizingCore_RedactsMessageAndFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(NewSanitizingCore(core))

	log.Info("user user@example.com logged in",
		zap.String("remote_addr", "10.0.0.1"),
		zap.Error(errors.New("token Bearer abcdef rejected")),
		zap.String("name", "me@example.com"),
		zap.Int("count", 3),
	)

	entries := logs.All()
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, "user [EMAIL] logged in", entry.Message)

	fields := entry.ContextMap()
	assert.Equal(t, "[IP]", fields["remote_addr"])
	assert.Equal(t, "token [TOKEN] rejected", fields["error"])
	assert.Equal(t, "me@example.com", fields["name"], "safe keys are left untouched")
	assert.Equal(t, int64(3), fields["count"])
}

func TestSanitizingCore_With(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(NewSanitizingCore(core)).With(zap.String("client", "203.0.113.9"))

	log.Info("hello")
	log.Debug("filtered")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "[IP]", entries[0].ContextMap()["client"])
}
