package platform

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
)

const mutedRoleName = "Muted"

// DisgoClient adapts a disgo bot.Client to the core's Client interface.
type DisgoClient struct {
	client bot.Client
}

func NewDisgoClient(client bot.Client) *DisgoClient {
	return &DisgoClient{client: client}
}

func (c *DisgoClient) SendMessage(ctx context.Context, channelID string, msg Message) (string, error) {
	id, err := snowflake.Parse(channelID)
	if err != nil {
		return "", fmt.Errorf("invalid channel id %q: %w", channelID, err)
	}
	sent, err := c.client.Rest().CreateMessage(id, toMessageCreate(msg))
	if err != nil {
		return "", err
	}
	return sent.ID.String(), nil
}

func (c *DisgoClient) SendDM(ctx context.Context, userID string, msg Message) error {
	id, err := snowflake.Parse(userID)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", userID, err)
	}
	dm, err := c.client.Rest().CreateDMChannel(id)
	if err != nil {
		return err
	}
	_, err = c.client.Rest().CreateMessage(dm.ID(), toMessageCreate(msg))
	return err
}

func (c *DisgoClient) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	chID, err := snowflake.Parse(channelID)
	if err != nil {
		return err
	}
	msgID, err := snowflake.Parse(messageID)
	if err != nil {
		return err
	}
	return c.client.Rest().DeleteMessage(chID, msgID)
}

func (c *DisgoClient) React(ctx context.Context, channelID, messageID, emoji string) error {
	chID, err := snowflake.Parse(channelID)
	if err != nil {
		return err
	}
	msgID, err := snowflake.Parse(messageID)
	if err != nil {
		return err
	}
	return c.client.Rest().AddReaction(chID, msgID, emoji)
}

func (c *DisgoClient) EnsureRole(ctx context.Context, guildID, name string) (string, error) {
	gID, err := snowflake.Parse(guildID)
	if err != nil {
		return "", err
	}
	roles, err := c.client.Rest().GetRoles(gID)
	if err != nil {
		return "", err
	}
	for _, role := range roles {
		if role.Name == name {
			return role.ID.String(), nil
		}
	}
	perms := discord.Permissions(0)
	role, err := c.client.Rest().CreateRole(gID, discord.RoleCreate{
		Name:        name,
		Permissions: &perms,
	})
	if err != nil {
		return "", err
	}
	slog.Info("Created role",
		slog.String("type", "mod"),
		slog.String("guild_id", guildID),
		slog.String("role", name))
	return role.ID.String(), nil
}

func (c *DisgoClient) EnsureMutedRole(ctx context.Context, guildID string) (string, error) {
	gID, err := snowflake.Parse(guildID)
	if err != nil {
		return "", err
	}
	roles, err := c.client.Rest().GetRoles(gID)
	if err != nil {
		return "", err
	}
	for _, role := range roles {
		if role.Name == mutedRoleName {
			return role.ID.String(), nil
		}
	}

	perms := discord.Permissions(0)
	role, err := c.client.Rest().CreateRole(gID, discord.RoleCreate{
		Name:        mutedRoleName,
		Permissions: &perms,
	})
	if err != nil {
		return "", err
	}

	deny := discord.PermissionSendMessages |
		discord.PermissionSendMessagesInThreads |
		discord.PermissionAddReactions |
		discord.PermissionSpeak |
		discord.PermissionConnect

	channels, err := c.client.Rest().GetGuildChannels(gID)
	if err != nil {
		return role.ID.String(), err
	}
	for _, ch := range channels {
		overwrite := discord.RolePermissionOverwriteUpdate{Deny: &deny}
		if err := c.client.Rest().UpdatePermissionOverwrite(ch.ID(), role.ID, overwrite); err != nil {
			// Keep going; a partially provisioned role still mutes the
			// channels that accepted the overwrite.
			slog.Warn("Failed to set muted overwrite",
				slog.String("type", "mod"),
				slog.String("guild_id", guildID),
				slog.String("channel_id", ch.ID().String()),
				slog.Any("error", err))
		}
	}

	slog.Info("Provisioned muted role",
		slog.String("type", "mod"),
		slog.String("guild_id", guildID),
		slog.Int("channels", len(channels)))
	return role.ID.String(), nil
}

func (c *DisgoClient) AddRole(ctx context.Context, guildID, userID, roleID string) error {
	gID, uID, rID, err := parseTriple(guildID, userID, roleID)
	if err != nil {
		return err
	}
	return c.client.Rest().AddMemberRole(gID, uID, rID)
}

func (c *DisgoClient) RemoveRole(ctx context.Context, guildID, userID, roleID string) error {
	gID, uID, rID, err := parseTriple(guildID, userID, roleID)
	if err != nil {
		return err
	}
	return c.client.Rest().RemoveMemberRole(gID, uID, rID)
}

func (c *DisgoClient) HasRole(ctx context.Context, guildID, userID, roleID string) (bool, error) {
	roles, err := c.MemberRoles(ctx, guildID, userID)
	if err != nil {
		return false, err
	}
	for _, r := range roles {
		if r == roleID {
			return true, nil
		}
	}
	return false, nil
}

func (c *DisgoClient) KickMember(ctx context.Context, guildID, userID, reason string) error {
	gID, err := snowflake.Parse(guildID)
	if err != nil {
		return err
	}
	uID, err := snowflake.Parse(userID)
	if err != nil {
		return err
	}
	return c.client.Rest().RemoveMember(gID, uID)
}

func (c *DisgoClient) BanMember(ctx context.Context, guildID, userID, reason string) error {
	gID, err := snowflake.Parse(guildID)
	if err != nil {
		return err
	}
	uID, err := snowflake.Parse(userID)
	if err != nil {
		return err
	}
	return c.client.Rest().AddBan(gID, uID, 0)
}

func (c *DisgoClient) CanSend(ctx context.Context, channelID string) bool {
	id, err := snowflake.Parse(channelID)
	if err != nil {
		return false
	}
	ch, err := c.client.Rest().GetChannel(id)
	if err != nil {
		return false
	}
	_, ok := ch.(discord.GuildMessageChannel)
	return ok
}

func (c *DisgoClient) FallbackChannel(ctx context.Context, guildID string) (string, error) {
	gID, err := snowflake.Parse(guildID)
	if err != nil {
		return "", err
	}
	channels, err := c.client.Rest().GetGuildChannels(gID)
	if err != nil {
		return "", err
	}
	for _, ch := range channels {
		if ch.Type() == discord.ChannelTypeGuildText {
			return ch.ID().String(), nil
		}
	}
	return "", fmt.Errorf("no text channel in guild %s", guildID)
}

func (c *DisgoClient) IsAdministrator(ctx context.Context, guildID, userID string) (bool, error) {
	gID, err := snowflake.Parse(guildID)
	if err != nil {
		return false, err
	}
	uID, err := snowflake.Parse(userID)
	if err != nil {
		return false, err
	}
	member, err := c.client.Rest().GetMember(gID, uID)
	if err != nil {
		return false, err
	}
	roles, err := c.client.Rest().GetRoles(gID)
	if err != nil {
		return false, err
	}
	byID := make(map[snowflake.ID]discord.Role, len(roles))
	for _, r := range roles {
		byID[r.ID] = r
	}
	for _, rID := range member.RoleIDs {
		if role, ok := byID[rID]; ok && role.Permissions.Has(discord.PermissionAdministrator) {
			return true, nil
		}
	}
	return false, nil
}

func (c *DisgoClient) GuildOwner(ctx context.Context, guildID string) (string, error) {
	gID, err := snowflake.Parse(guildID)
	if err != nil {
		return "", err
	}
	guild, err := c.client.Rest().GetGuild(gID, false)
	if err != nil {
		return "", err
	}
	return guild.OwnerID.String(), nil
}

func (c *DisgoClient) MemberRoles(ctx context.Context, guildID, userID string) ([]string, error) {
	gID, err := snowflake.Parse(guildID)
	if err != nil {
		return nil, err
	}
	uID, err := snowflake.Parse(userID)
	if err != nil {
		return nil, err
	}
	member, err := c.client.Rest().GetMember(gID, uID)
	if err != nil {
		return nil, err
	}
	roles := make([]string, 0, len(member.RoleIDs))
	for _, r := range member.RoleIDs {
		roles = append(roles, r.String())
	}
	return roles, nil
}

func (c *DisgoClient) GuildName(ctx context.Context, guildID string) string {
	gID, err := snowflake.Parse(guildID)
	if err != nil {
		return guildID
	}
	if guild, ok := c.client.Caches().Guild(gID); ok {
		return guild.Name
	}
	if guild, err := c.client.Rest().GetGuild(gID, false); err == nil {
		return guild.Name
	}
	return guildID
}

func toMessageCreate(msg Message) discord.MessageCreate {
	create := discord.MessageCreate{Content: msg.Content}
	if msg.Embed != nil {
		embed := discord.Embed{
			Title:       msg.Embed.Title,
			Description: msg.Embed.Description,
			Color:       msg.Embed.Color,
			URL:         msg.Embed.URL,
		}
		if msg.Embed.Thumbnail != "" {
			embed.Thumbnail = &discord.EmbedResource{URL: msg.Embed.Thumbnail}
		}
		create.Embeds = []discord.Embed{embed}
	}
	return create
}

func parseTriple(a, b, c string) (snowflake.ID, snowflake.ID, snowflake.ID, error) {
	aID, err := snowflake.Parse(a)
	if err != nil {
		return 0, 0, 0, err
	}
	bID, err := snowflake.Parse(b)
	if err != nil {
		return 0, 0, 0, err
	}
	cID, err := snowflake.Parse(c)
	if err != nil {
		return 0, 0, 0, err
	}
	return aID, bID, cID, nil
}
