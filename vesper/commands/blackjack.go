package commands

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	vesper "github.com/vesperbot/vesper/vesper"
	"github.com/vesperbot/vesper/vesper/config"
	"github.com/vesperbot/vesper/vesper/games/blackjack"
	"github.com/vesperbot/vesper/vesper/utils"
)

const maxBlackjackWager = 50_000

var Blackjack = discord.SlashCommandCreate{
	Name:        "blackjack",
	Description: "🃏 Play a hand of blackjack",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionInt{
			Name:        "wager",
			Description: "How many coins to put at stake",
			Required:    true,
			MinValue:    intPtr(1),
			MaxValue:    intPtr(maxBlackjackWager),
		},
	},
}

var BlackjackStats = discord.SlashCommandCreate{
	Name:        "blackjackstats",
	Description: "🃏 Your blackjack record on this server",
}

type BlackjackHandler struct {
	bot *vesper.Bot
}

func NewBlackjackHandler(b *vesper.Bot) *BlackjackHandler {
	return &BlackjackHandler{bot: b}
}

func (h *BlackjackHandler) Register(r handler.Router) {
	r.Command("/blackjack", h.HandleStart)
	r.Command("/blackjackstats", h.HandleStats)
	r.Component("/bj/hit", h.action("hit", h.bot.Blackjack.Hit))
	r.Component("/bj/stand", h.action("stand", h.bot.Blackjack.Stand))
	r.Component("/bj/double", h.action("double", h.bot.Blackjack.Double))
}

func (h *BlackjackHandler) HandleStart(e *handler.CommandEvent) error {
	guildID, ok := requireGuild(e)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	wager := int64(e.SlashCommandInteractionData().Int("wager"))
	session, result, err := h.bot.Blackjack.Begin(ctx, guildID, e.User().ID.String(), wager)
	if err != nil {
		return utils.EH.CreateKindError(e, err)
	}

	msg := discord.MessageCreate{
		Embeds: []discord.Embed{blackjackEmbed(session, result)},
	}
	if result == nil {
		msg.Components = []discord.ContainerComponent{blackjackButtons(session)}
	}
	if err := e.CreateMessage(msg); err != nil {
		// The hand is live but the player can't see it; keep the
		// fail-safe armed so the wager comes back.
		h.bot.Blackjack.RescheduleRefund(guildID, e.User().ID.String())
		return err
	}
	return nil
}

func (h *BlackjackHandler) action(
	name string,
	act func(ctx context.Context, guildID, userID string) (*blackjack.Session, *blackjack.Result, error),
) handler.ComponentHandler {
	return func(e *handler.ComponentEvent) error {
		if e.GuildID() == nil {
			return nil
		}
		guildID := e.GuildID().String()
		userID := e.User().ID.String()

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		session, result, err := act(ctx, guildID, userID)
		if err != nil {
			return utils.EH.CreateEphemeralKindError(e, err)
		}

		update := discord.MessageUpdate{
			Embeds: &[]discord.Embed{blackjackEmbed(session, result)},
		}
		components := []discord.ContainerComponent{}
		if result == nil {
			components = append(components, blackjackButtons(session))
		}
		update.Components = &components

		if err := e.UpdateMessage(update); err != nil {
			if result == nil {
				h.bot.Blackjack.RescheduleRefund(guildID, userID)
			}
			slog.Warn("Blackjack update failed",
				slog.String("type", "game"),
				slog.String("action", name),
				slog.Any("error", err))
			return err
		}
		return nil
	}
}

func (h *BlackjackHandler) HandleStats(e *handler.CommandEvent) error {
	guildID, ok := requireGuild(e)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	st, err := h.bot.Blackjack.Stats(ctx, guildID, e.User().ID.String())
	if err != nil {
		return utils.EH.CreateKindError(e, err)
	}

	description := fmt.Sprintf(
		"Hands: **%d**\nWins: **%d** (blackjacks: %d)\nLosses: **%d**\nPushes: **%d**\nDoubles: **%d**\nBiggest wager: **%s**",
		st.Hands, st.Wins, st.Blackjacks, st.Losses, st.Pushes, st.Doubles, utils.FormatNumber(st.BiggestWager))

	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{{
			Title:       "🃏 Blackjack stats",
			Description: description,
			Color:       config.EmbedDefaultColor,
		}},
	})
}

func blackjackEmbed(s *blackjack.Session, r *blackjack.Result) discord.Embed {
	dealer := fmt.Sprintf("%s ❓", s.Dealer[:1])
	dealerScore := ""
	if r != nil {
		dealer = s.Dealer.String()
		dealerScore = fmt.Sprintf(" (%d)", r.DealerTotal)
	}

	embed := discord.Embed{
		Title: fmt.Sprintf("🃏 Blackjack — %s coins", utils.FormatNumber(s.Wager)),
		Fields: []discord.EmbedField{
			{Name: "Your hand", Value: fmt.Sprintf("%s (%d)", s.Player, s.Player.Total())},
			{Name: "Dealer", Value: dealer + dealerScore},
		},
		Color: config.EmbedDefaultColor,
	}

	if r == nil {
		return embed
	}

	switch r.Outcome {
	case blackjack.OutcomeBlackjack:
		embed.Description = fmt.Sprintf("**Blackjack!** You win **%s** coins.", utils.FormatNumber(r.Payout))
		embed.Color = config.SuccessColor
	case blackjack.OutcomeWin:
		embed.Description = fmt.Sprintf("**You win!** Paid **%s** coins.", utils.FormatNumber(r.Payout))
		embed.Color = config.SuccessColor
	case blackjack.OutcomePush:
		embed.Description = fmt.Sprintf("**Push.** Your **%s** coins come back.", utils.FormatNumber(r.Payout))
		embed.Color = config.WarningColor
	default:
		embed.Description = fmt.Sprintf("**You lose %s coins.**", utils.FormatNumber(s.Wager))
		embed.Color = config.ErrorColor
	}
	return embed
}

func blackjackButtons(s *blackjack.Session) discord.ContainerComponent {
	row := discord.NewActionRow(
		discord.NewPrimaryButton("Hit", "/bj/hit"),
		discord.NewSecondaryButton("Stand", "/bj/stand"),
	)
	if s.CanDouble() {
		row = row.AddComponents(discord.NewDangerButton("Double", "/bj/double"))
	}
	return row
}
