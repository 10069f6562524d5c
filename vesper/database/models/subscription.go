package models

import "github.com/uptrace/bun"

// Subscription platforms.
const (
	PlatformYouTube = "youtube"
	PlatformTwitch  = "twitch"
)

// Ping policies for subscription posts.
const (
	PingNone     = "none"
	PingEveryone = "everyone"
	PingRole     = "role"
)

// Subscription is one upstream content source a guild follows. ID is
// "platform:identifier:destination" and is unique; registering the same
// triple twice is rejected.
type Subscription struct {
	bun.BaseModel `bun:"table:subscriptions,alias:sub"`

	ID            string `bun:"id,pk"`
	GuildID       string `bun:"guild_id,notnull"`
	Platform      string `bun:"platform,notnull"`
	Identifier    string `bun:"identifier,notnull"`
	NormalizedID  string `bun:"normalized_id,notnull"`
	PostChannelID string `bun:"post_channel_id,notnull"`
	Message       string `bun:"message"`
	PingPolicy    string `bun:"ping_policy,notnull,default:'none'"`
	PingRoleID    string `bun:"ping_role_id"`
	Thumbnail     string `bun:"thumbnail"`
	LastSeen      string `bun:"last_seen"`

	// Cached uploads-playlist id for YouTube; avoids one API round trip
	// per poll.
	UploadsPlaylist string `bun:"uploads_playlist"`
}
