package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	vesper "github.com/vesperbot/vesper/vesper"
	"github.com/vesperbot/vesper/vesper/config"
	"github.com/vesperbot/vesper/vesper/database/models"
	"github.com/vesperbot/vesper/vesper/subscriptions"
	"github.com/vesperbot/vesper/vesper/utils"
)

var platformChoices = []discord.ApplicationCommandOptionChoiceString{
	{Name: "YouTube", Value: models.PlatformYouTube},
	{Name: "Twitch", Value: models.PlatformTwitch},
}

var Follow = discord.SlashCommandCreate{
	Name:        "follow",
	Description: "📡 Follow an upstream channel and post new content here",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:        "platform",
			Description: "Where the channel lives",
			Required:    true,
			Choices:     platformChoices,
		},
		discord.ApplicationCommandOptionString{
			Name:        "identifier",
			Description: "Channel handle, URL or id",
			Required:    true,
		},
		discord.ApplicationCommandOptionChannel{
			Name:        "channel",
			Description: "Where to post (defaults to this channel)",
		},
		discord.ApplicationCommandOptionString{
			Name:        "message",
			Description: "Post template; {url} {title} {channel} are filled in",
		},
		discord.ApplicationCommandOptionString{
			Name:        "ping",
			Description: "Who to ping with each post",
			Choices: []discord.ApplicationCommandOptionChoiceString{
				{Name: "nobody", Value: models.PingNone},
				{Name: "everyone", Value: models.PingEveryone},
				{Name: "a role", Value: models.PingRole},
			},
		},
		discord.ApplicationCommandOptionRole{
			Name:        "ping-role",
			Description: "Role to ping when ping is set to a role",
		},
	},
}

var Unfollow = discord.SlashCommandCreate{
	Name:        "unfollow",
	Description: "📡 Stop following a channel",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:        "id",
			Description: "Subscription id (see /followings)",
			Required:    true,
		},
	},
}

var Followings = discord.SlashCommandCreate{
	Name:        "followings",
	Description: "📡 List this server's followed channels",
}

var ForceCheck = discord.SlashCommandCreate{
	Name:        "forcecheck",
	Description: "📡 Poll a followed channel right now",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:        "id",
			Description: "Subscription id (see /followings)",
			Required:    true,
		},
	},
}

func FollowHandler(b *vesper.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guildID, ok := requireGuild(e)
		if !ok {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if !requireBotAdmin(ctx, b, e, guildID) {
			return nil
		}

		data := e.SlashCommandInteractionData()
		postChannelID := e.ChannelID().String()
		if ch, ok := data.OptChannel("channel"); ok {
			postChannelID = ch.ID.String()
		}
		pingRoleID := ""
		if role, ok := data.OptRole("ping-role"); ok {
			pingRoleID = role.ID.String()
		}

		// Normalization may hit the network; acknowledge first.
		if err := e.DeferCreateMessage(false); err != nil {
			return err
		}

		sub, err := b.Subscriptions.Follow(ctx, subscriptions.FollowRequest{
			GuildID:       guildID,
			Platform:      data.String("platform"),
			Identifier:    data.String("identifier"),
			PostChannelID: postChannelID,
			Message:       data.String("message"),
			PingPolicy:    data.String("ping"),
			PingRoleID:    pingRoleID,
		})
		if err != nil {
			_, uErr := e.UpdateInteractionResponse(discord.MessageUpdate{
				Embeds: &[]discord.Embed{{
					Description: "❌ " + userMessage(err),
					Color:       config.ErrorColor,
				}},
			})
			return uErr
		}

		embed := discord.Embed{
			Title:       "📡 Now following",
			Description: fmt.Sprintf("**%s** on %s → <#%s>\nSubscription id: `%s`", sub.Identifier, sub.Platform, sub.PostChannelID, sub.ID),
			Color:       config.SuccessColor,
		}
		if sub.Thumbnail != "" {
			embed.Thumbnail = &discord.EmbedResource{URL: sub.Thumbnail}
		}
		_, err = e.UpdateInteractionResponse(discord.MessageUpdate{
			Embeds: &[]discord.Embed{embed},
		})
		return err
	}
}

func UnfollowHandler(b *vesper.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guildID, ok := requireGuild(e)
		if !ok {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if !requireBotAdmin(ctx, b, e, guildID) {
			return nil
		}

		id := e.SlashCommandInteractionData().String("id")
		if err := b.Subscriptions.Unfollow(ctx, id); err != nil {
			return utils.EH.CreateKindError(e, err)
		}
		return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf("📡 Unfollowed `%s`.", id))
	}
}

func FollowingsHandler(b *vesper.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guildID, ok := requireGuild(e)
		if !ok {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		subs, err := b.Subscriptions.ListByGuild(ctx, guildID)
		if err != nil {
			return utils.EH.CreateKindError(e, err)
		}
		if len(subs) == 0 {
			return utils.EH.CreateInfoEmbed(e, "This server doesn't follow anything yet. Try `/follow`.")
		}

		var description strings.Builder
		for _, sub := range subs {
			description.WriteString(fmt.Sprintf("`%s`\n**%s** on %s → <#%s>\n\n", sub.ID, sub.Identifier, sub.Platform, sub.PostChannelID))
		}
		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       "📡 Followings",
				Description: description.String(),
				Color:       config.EmbedDefaultColor,
			}},
		})
	}
}

func ForceCheckHandler(b *vesper.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guildID, ok := requireGuild(e)
		if !ok {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if !requireBotAdmin(ctx, b, e, guildID) {
			return nil
		}

		id := e.SlashCommandInteractionData().String("id")
		if err := e.DeferCreateMessage(true); err != nil {
			return err
		}

		if err := b.FeedWorker.ForceCheck(ctx, id); err != nil {
			_, uErr := e.UpdateInteractionResponse(discord.MessageUpdate{
				Embeds: &[]discord.Embed{{
					Description: "❌ " + userMessage(err),
					Color:       config.ErrorColor,
				}},
			})
			return uErr
		}

		_, err := e.UpdateInteractionResponse(discord.MessageUpdate{
			Embeds: &[]discord.Embed{{
				Description: fmt.Sprintf("📡 Checked `%s`; anything new was posted.", id),
				Color:       config.SuccessColor,
			}},
		})
		return err
	}
}
