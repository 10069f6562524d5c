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
	"github.com/vesperbot/vesper/vesper/games/slots"
	"github.com/vesperbot/vesper/vesper/utils"
)

var Slots = discord.SlashCommandCreate{
	Name:        "slots",
	Description: "🎰 Spin the slot machine",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionInt{
			Name:        "wager",
			Description: "Total coins across all lines",
			Required:    true,
			MinValue:    intPtr(slots.MinWager),
			MaxValue:    intPtr(slots.MaxWager),
		},
		discord.ApplicationCommandOptionInt{
			Name:        "lines",
			Description: "Paylines to play (default 1)",
			MinValue:    intPtr(1),
			MaxValue:    intPtr(slots.MaxLines),
		},
	},
}

var SlotStats = discord.SlashCommandCreate{
	Name:        "slotstats",
	Description: "🎰 Your slot machine record on this server",
}

var symbolEmoji = map[slots.Symbol]string{
	slots.SymCherry: "🍒",
	slots.SymLemon:  "🍋",
	slots.SymClover: "🍀",
	slots.SymBell:   "🔔",
	slots.SymDiam:   "💎",
	slots.SymSeven:  "7️⃣",
}

func SlotsHandler(b *vesper.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guildID, ok := requireGuild(e)
		if !ok {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		data := e.SlashCommandInteractionData()
		wager := int64(data.Int("wager"))
		lines := 1
		if n, ok := data.OptInt("lines"); ok {
			lines = n
		}

		result, err := b.Slots.Spin(ctx, guildID, e.User().ID.String(), wager, lines)
		if err != nil {
			return utils.EH.CreateKindError(e, err)
		}

		var description strings.Builder
		description.WriteString(renderWindow(result.Window))
		description.WriteString("\n")

		color := config.ErrorColor
		if len(result.Wins) > 0 {
			color = config.SuccessColor
			for _, win := range result.Wins {
				if win.Consolation {
					description.WriteString(fmt.Sprintf("Line %d: two %s — **%s** back\n",
						win.Line+1, symbolEmoji[win.Symbol], utils.FormatNumber(win.Amount)))
				} else {
					description.WriteString(fmt.Sprintf("Line %d: triple %s ×%d — **%s**!\n",
						win.Line+1, symbolEmoji[win.Symbol], win.Multiplier, utils.FormatNumber(win.Amount)))
				}
			}
			description.WriteString(fmt.Sprintf("\nTotal payout: **%s** coins", utils.FormatNumber(result.Payout)))
		} else {
			description.WriteString(fmt.Sprintf("No luck. **%s** coins gone.", utils.FormatNumber(wager)))
		}

		for _, missed := range result.Missed {
			description.WriteString(fmt.Sprintf("\n💔 Triple %s landed on unplayed line %d!",
				symbolEmoji[missed.Symbol], missed.Line+1))
		}

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       fmt.Sprintf("🎰 Slots — %s on %d line(s)", utils.FormatNumber(wager), lines),
				Description: description.String(),
				Color:       color,
			}},
		})
	}
}

// renderWindow draws the 3×3 result with the paying middle row marked.
func renderWindow(w slots.Window) string {
	var sb strings.Builder
	for row := 0; row < 3; row++ {
		if row == 1 {
			sb.WriteString("▶ ")
		} else {
			sb.WriteString("   ")
		}
		for reel := 0; reel < 3; reel++ {
			sb.WriteString(symbolEmoji[w[row][reel]])
			sb.WriteString(" ")
		}
		if row == 1 {
			sb.WriteString("◀")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func SlotStatsHandler(b *vesper.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guildID, ok := requireGuild(e)
		if !ok {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		st, err := b.Slots.Stats(ctx, guildID, e.User().ID.String())
		if err != nil {
			return utils.EH.CreateKindError(e, err)
		}

		description := fmt.Sprintf(
			"Spins: **%d**\nWagered: **%s**\nWon: **%s**\nNet: **%s**\nBiggest win: **%s**\n\n"+
				"__This session__\nSpins: **%d** · Net: **%s**",
			st.Spins,
			utils.FormatNumber(st.BetTotal),
			utils.FormatNumber(st.WinTotal),
			utils.FormatNumber(st.Net),
			utils.FormatNumber(st.BiggestWin),
			st.SessionDeltaSpins,
			utils.FormatNumber(st.SessionDeltaNet),
		)

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       "🎰 Slot stats",
				Description: description,
				Color:       config.EmbedDefaultColor,
			}},
		})
	}
}
