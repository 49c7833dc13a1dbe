package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/parsascontentcorner/guilddesk/internal/models"
)

// AssertSessionEqual compares the identifying fields of two sessions.
// Timestamps are compared with a tolerance.
func AssertSessionEqual(t *testing.T, expected, actual *models.DiscordSession) {
	t.Helper()

	assert.Equal(t, expected.SessionID, actual.SessionID, "SessionID should match")
	assert.Equal(t, expected.Status, actual.Status, "Status should match")
	assert.Equal(t, expected.DiscordUserID, actual.DiscordUserID, "DiscordUserID should match")
	assert.Equal(t, expected.Username, actual.Username, "Username should match")
	assert.Equal(t, expected.Guilds, actual.Guilds, "Guilds should match")

	AssertTimeAlmostEqual(t, expected.ExpiresAt, actual.ExpiresAt, 2*time.Second)
}

// AssertGuildIDs checks the guild IDs of a list in order.
func AssertGuildIDs(t *testing.T, expected []string, guilds models.GuildList) {
	t.Helper()

	ids := make([]string, 0, len(guilds))
	for _, g := range guilds {
		ids = append(ids, g.ID)
	}
	assert.Equal(t, expected, ids, "guild IDs should match")
}

// AssertTimeAlmostEqual checks if two times are within a specified delta.
func AssertTimeAlmostEqual(t *testing.T, expected, actual time.Time, delta time.Duration) {
	t.Helper()

	diff := expected.Sub(actual)
	if diff < 0 {
		diff = -diff
	}

	assert.True(t,
		diff <= delta,
		"Times should be within %v of each other. Expected: %v, Actual: %v, Diff: %v",
		delta, expected, actual, diff,
	)
}
