package commands

import (
	"fmt"
	"runtime"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	vesper "github.com/vesperbot/vesper/vesper"
	"github.com/vesperbot/vesper/vesper/config"
)

var Version = discord.SlashCommandCreate{
	Name:        "version",
	Description: "🤖 Show the bot version",
}

func VersionHandler(b *vesper.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title: "🤖 Vesper",
				Description: fmt.Sprintf("Version: **%s**\nCommit: `%s`\ndisgo: %s\nGo: %s",
					b.Version, b.Commit, disgo.Version, runtime.Version()),
				Color: config.EmbedDefaultColor,
			}},
			Flags: discord.MessageFlagEphemeral,
		})
	}
}
