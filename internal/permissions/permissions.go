// Package permissions decides whether a session user may manage a guild's data.
package permissions

import (
	"math/big"

	"github.com/bwmarrin/discordgo"

	"github.com/parsascontentcorner/guilddesk/internal/models"
)

var administrator = big.NewInt(discordgo.PermissionAdministrator)

// ManagedGuild is a guild annotated with the caller's management right
type ManagedGuild struct {
	models.Guild
	CanManage bool `json:"can_manage"`
}

// CanManage reports whether the guild's owner flag or Administrator bit grants
// management rights. Permission strings are decoded with arbitrary precision
// so bitmasks beyond 2^53 keep every bit; unparsable strings grant nothing.
func CanManage(guild models.Guild) bool {
	if guild.Owner {
		return true
	}

	perms, ok := new(big.Int).SetString(guild.Permissions, 10)
	if !ok || perms.Sign() < 0 {
		return false
	}

	return new(big.Int).And(perms, administrator).Cmp(administrator) == 0
}

// ManageableGuilds annotates each guild with CanManage
func ManageableGuilds(guilds []models.Guild) []ManagedGuild {
	out := make([]ManagedGuild, 0, len(guilds))
	for _, g := range guilds {
		out = append(out, ManagedGuild{Guild: g, CanManage: CanManage(g)})
	}
	return out
}
