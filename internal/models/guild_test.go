package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOwnedGuilds(t *testing.T) {
	guilds := []Guild{
		{ID: "1", Name: "Owned", Owner: true, Permissions: "0"},
		{ID: "2", Name: "Admin", Owner: false, Permissions: "8"},
		{ID: "3", Name: "Also Owned", Owner: true, Permissions: "2147483647"},
	}

	owned := OwnedGuilds(guilds)

	require.Len(t, owned, 2)
	assert.Equal(t, "1", owned[0].ID)
	assert.Equal(t, "3", owned[1].ID)
}

func TestOwnedGuilds_NoneOwned(t *testing.T) {
	owned := OwnedGuilds([]Guild{{ID: "2", Owner: false}})

	assert.NotNil(t, owned, "empty list should encode as [] rather than null")
	assert.Empty(t, owned)
}

func TestGuildList_Find(t *testing.T) {
	gl := GuildList{{ID: "1", Name: "One"}, {ID: "2", Name: "Two"}}

	g, ok := gl.Find("2")
	assert.True(t, ok)
	assert.Equal(t, "Two", g.Name)

	_, ok = gl.Find("3")
	assert.False(t, ok)
}

func TestGuildList_ValueScan(t *testing.T) {
	original := GuildList{
		{ID: "123456789012345678", Name: "Test Guild", Icon: "hash", Owner: true, Permissions: "17179869192"},
	}

	value, err := original.Value()
	require.NoError(t, err)

	var scanned GuildList
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, original, scanned)

	var fromString GuildList
	require.NoError(t, fromString.Scan(`[{"id":"1","name":"n","owner":false,"permissions":"8"}]`))
	assert.Equal(t, "8", fromString[0].Permissions)
}

func TestGuildList_ScanNilAndInvalid(t *testing.T) {
	var gl GuildList
	require.NoError(t, gl.Scan(nil))
	assert.Empty(t, gl)

	assert.Error(t, gl.Scan([]byte("not json")))
	assert.Error(t, gl.Scan(42))
}

func TestGuildList_NilValue(t *testing.T) {
	var gl GuildList
	value, err := gl.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), value)
}
