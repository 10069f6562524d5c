package models

import "github.com/uptrace/bun"

// GuildConfig holds per-guild settings. TicketSeq is a monotonic counter
// whose values are never reused, even after a ticket closes.
type GuildConfig struct {
	bun.BaseModel `bun:"table:guild_configs,alias:gc"`

	GuildID          string   `bun:"guild_id,pk"`
	PermissionsRoles []string `bun:"permissions_roles,type:jsonb"`

	BlackjackCooldownSeconds int64 `bun:"blackjack_cooldown_seconds,notnull,default:0"`
	WorkCooldownSeconds      int64 `bun:"work_cooldown_seconds,notnull,default:0"`

	CannotCountRole string `bun:"cannot_count_role"`
	TicketSeq       int64  `bun:"ticket_seq,notnull,default:0"`
}
