package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Guild is a Discord guild (server) as listed by /users/@me/guilds.
// It is held in the user's session and never written to the document store.
type Guild struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon,omitempty"`
	Owner       bool   `json:"owner"`
	Permissions string `json:"permissions"`
}

// GuildList is the JSONB representation of a session's guilds
type GuildList []Guild

// Value implements driver.Valuer
func (gl GuildList) Value() (driver.Value, error) {
	if gl == nil {
		return []byte("[]"), nil
	}
	b, err := json.Marshal(gl)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal guild list: %w", err)
	}
	return b, nil
}

// Scan implements sql.Scanner
func (gl *GuildList) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*gl = GuildList{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported guild list source type %T", src)
	}

	var guilds GuildList
	if err := json.Unmarshal(data, &guilds); err != nil {
		return fmt.Errorf("failed to unmarshal guild list: %w", err)
	}
	*gl = guilds
	return nil
}

// Find returns the guild with the given ID
func (gl GuildList) Find(guildID string) (Guild, bool) {
	for _, g := range gl {
		if g.ID == guildID {
			return g, true
		}
	}
	return Guild{}, false
}

// OwnedGuilds keeps only the guilds the session user owns
func OwnedGuilds(guilds []Guild) GuildList {
	owned := GuildList{}
	for _, g := range guilds {
		if g.Owner {
			owned = append(owned, g)
		}
	}
	return owned
}
