// Package platform is the boundary between the core engines and the chat
// platform. Engines depend on Client; the disgo adapter implements it.
// Tests drive the engines with an in-memory fake.
package platform

import "context"

// Embed is the platform-independent shape of a rich message.
type Embed struct {
	Title       string
	Description string
	Color       int
	Thumbnail   string
	URL         string
}

// Message is an outbound message. Embed may be nil.
type Message struct {
	Content string
	Embed   *Embed
}

// IncomingMessage is a guild message as seen by the moderation and
// counting engines.
type IncomingMessage struct {
	GuildID   string
	ChannelID string
	MessageID string
	AuthorID  string
	AuthorBot bool
	Content   string
}

// Client is the subset of chat-platform operations the core needs. All
// calls are fallible and may suspend.
type Client interface {
	SendMessage(ctx context.Context, channelID string, msg Message) (messageID string, err error)
	SendDM(ctx context.Context, userID string, msg Message) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	React(ctx context.Context, channelID, messageID, emoji string) error

	// EnsureRole returns the id of the named role, creating it with no
	// permissions when missing.
	EnsureRole(ctx context.Context, guildID, name string) (roleID string, err error)
	// EnsureMutedRole returns the Muted role id. On first use per guild
	// it creates the role and overlays every channel with an overwrite
	// denying messaging, reactions and voice.
	EnsureMutedRole(ctx context.Context, guildID string) (roleID string, err error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
	HasRole(ctx context.Context, guildID, userID, roleID string) (bool, error)

	KickMember(ctx context.Context, guildID, userID, reason string) error
	BanMember(ctx context.Context, guildID, userID, reason string) error

	// CanSend reports whether the destination channel exists and the bot
	// may post to it.
	CanSend(ctx context.Context, channelID string) bool
	// FallbackChannel returns a guild text channel suitable for
	// announcements when the original source channel is gone.
	FallbackChannel(ctx context.Context, guildID string) (string, error)

	IsAdministrator(ctx context.Context, guildID, userID string) (bool, error)
	GuildOwner(ctx context.Context, guildID string) (string, error)
	MemberRoles(ctx context.Context, guildID, userID string) ([]string, error)
	GuildName(ctx context.Context, guildID string) string
}
