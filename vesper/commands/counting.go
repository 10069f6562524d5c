package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	vesper "github.com/vesperbot/vesper/vesper"
	"github.com/vesperbot/vesper/vesper/config"
	"github.com/vesperbot/vesper/vesper/utils"
)

var Counting = discord.SlashCommandCreate{
	Name:        "counting",
	Description: "🔢 Manage the counting game",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "enable",
			Description: "Turn a channel into a counting channel",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionChannel{
					Name:        "channel",
					Description: "Counting channel (defaults to this one)",
				},
				discord.ApplicationCommandOptionInt{
					Name:        "chances",
					Description: "Mistakes before losing counting rights; omit for unlimited",
					MinValue:    intPtr(1),
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "disable",
			Description: "Stop counting in a channel",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionChannel{
					Name:        "channel",
					Description: "Channel to disable (defaults to this one)",
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "status",
			Description: "Show the current count",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionChannel{
					Name:        "channel",
					Description: "Channel to inspect (defaults to this one)",
				},
			},
		},
	},
}

type CountingHandler struct {
	bot *vesper.Bot
}

func NewCountingHandler(b *vesper.Bot) *CountingHandler {
	return &CountingHandler{bot: b}
}

func (h *CountingHandler) Register(r handler.Router) {
	r.Route("/counting", func(r handler.Router) {
		r.Command("/enable", h.HandleEnable)
		r.Command("/disable", h.HandleDisable)
		r.Command("/status", h.HandleStatus)
	})
}

func targetChannel(e *handler.CommandEvent) string {
	if ch, ok := e.SlashCommandInteractionData().OptChannel("channel"); ok {
		return ch.ID.String()
	}
	return e.ChannelID().String()
}

func (h *CountingHandler) HandleEnable(e *handler.CommandEvent) error {
	guildID, ok := requireGuild(e)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if !requireBotAdmin(ctx, h.bot, e, guildID) {
		return nil
	}

	channelID := targetChannel(e)
	var chances *int64
	if n, ok := e.SlashCommandInteractionData().OptInt("chances"); ok {
		v := int64(n)
		chances = &v
	}

	if err := h.bot.Counting.Configure(ctx, guildID, channelID, chances); err != nil {
		return utils.EH.CreateKindError(e, err)
	}
	return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf("🔢 Counting enabled in <#%s>. Start from 1!", channelID))
}

func (h *CountingHandler) HandleDisable(e *handler.CommandEvent) error {
	guildID, ok := requireGuild(e)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if !requireBotAdmin(ctx, h.bot, e, guildID) {
		return nil
	}

	channelID := targetChannel(e)
	if err := h.bot.Counting.Disable(ctx, channelID); err != nil {
		return utils.EH.CreateKindError(e, err)
	}
	return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf("🔢 Counting disabled in <#%s>.", channelID))
}

func (h *CountingHandler) HandleStatus(e *handler.CommandEvent) error {
	guildID, ok := requireGuild(e)
	if !ok {
		return nil
	}
	_ = guildID
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	channelID := targetChannel(e)
	state, err := h.bot.Counting.State(ctx, channelID)
	if err != nil {
		return utils.EH.CreateKindError(e, err)
	}

	description := fmt.Sprintf("Current count: **%d**\nNext number: **%d**", state.LastCount, state.LastCount+1)
	if state.LastUser != "" {
		description += fmt.Sprintf("\nLast counter: <@%s>", state.LastUser)
	}
	if state.Chances != nil {
		description += fmt.Sprintf("\nChances per member: **%d**", *state.Chances)
	}

	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{{
			Title:       "🔢 Counting",
			Description: description,
			Color:       config.EmbedDefaultColor,
		}},
	})
}
