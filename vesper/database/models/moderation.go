package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Phrase rule kinds, in pipeline evaluation order.
const (
	RuleKindBan  = "ban"
	RuleKindKick = "kick"
	RuleKindMute = "mute"
)

// PhraseRule is one auto-moderation entry. GuildID is empty for global
// rules. DurationSeconds only applies to mute rules; zero means the mute
// never expires on its own.
type PhraseRule struct {
	bun.BaseModel `bun:"table:phrase_rules,alias:pr"`

	ID              int64  `bun:"id,pk,autoincrement"`
	Kind            string `bun:"kind,notnull"`
	Phrase          string `bun:"phrase,notnull"`
	Reason          string `bun:"reason"`
	DurationSeconds int64  `bun:"duration_seconds,notnull,default:0"`
	GuildID         string `bun:"guild_id"`
}

// MuteSchedule persists a pending unmute so the timer survives restarts.
type MuteSchedule struct {
	bun.BaseModel `bun:"table:mute_schedules,alias:ms"`

	ID              int64     `bun:"id,pk,autoincrement"`
	GuildID         string    `bun:"guild_id,notnull"`
	UserID          string    `bun:"user_id,notnull"`
	UnmuteAt        time.Time `bun:"unmute_at,notnull"`
	DurationSeconds int64     `bun:"duration_seconds,notnull"`
	ChannelID       string    `bun:"channel_id"`
}

// CountingChannel is the per-channel counting state. LastUser is empty
// exactly when LastCount is zero. Chances is nil for unlimited mistakes.
type CountingChannel struct {
	bun.BaseModel `bun:"table:counting_channels,alias:cc"`

	ChannelID string           `bun:"channel_id,pk"`
	GuildID   string           `bun:"guild_id,notnull"`
	LastCount int64            `bun:"last_count,notnull,default:0"`
	LastUser  string           `bun:"last_user"`
	Chances   *int64           `bun:"chances"`
	Mistakes  map[string]int64 `bun:"mistakes,type:jsonb"`
}
