package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"
	"github.com/disgoorg/paginator"

	vesper "github.com/vesperbot/vesper/vesper"
	"github.com/vesperbot/vesper/vesper/config"
	"github.com/vesperbot/vesper/vesper/errs"
	"github.com/vesperbot/vesper/vesper/utils"
)

const maxPayAmount = 1_000_000

var Balance = discord.SlashCommandCreate{
	Name:        "balance",
	Description: "💰 View your current balance",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionUser{
			Name:        "member",
			Description: "Whose balance to view (defaults to you)",
		},
	},
}

func BalanceHandler(b *vesper.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guildID, ok := requireGuild(e)
		if !ok {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		target := e.User()
		if member, ok := e.SlashCommandInteractionData().OptUser("member"); ok {
			target = member
		}

		bal, err := b.Economy.GetBalance(ctx, guildID, target.ID.String())
		if err != nil {
			return utils.EH.CreateKindError(e, err)
		}

		now := time.Now()
		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       "💰 Balance",
				Description: fmt.Sprintf("**%s** has **%s** coins.", target.Username, utils.FormatNumber(bal)),
				Color:       config.SuccessColor,
				Timestamp:   &now,
			}},
		})
	}
}

var Pay = discord.SlashCommandCreate{
	Name:        "pay",
	Description: "💸 Send coins to another member",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionUser{
			Name:        "member",
			Description: "Who to pay",
			Required:    true,
		},
		discord.ApplicationCommandOptionInt{
			Name:        "amount",
			Description: "How many coins to send",
			Required:    true,
			MinValue:    intPtr(1),
			MaxValue:    intPtr(maxPayAmount),
		},
	},
}

func PayHandler(b *vesper.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guildID, ok := requireGuild(e)
		if !ok {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		data := e.SlashCommandInteractionData()
		target := data.User("member")
		amount := int64(data.Int("amount"))

		if target.Bot {
			return utils.EH.CreateKindError(e, errs.New(errs.InvalidArgument, "You can't pay a bot."))
		}
		if amount < 1 || amount > maxPayAmount {
			return utils.EH.CreateKindError(e, errs.Newf(errs.InvalidArgument, "Amount must be between 1 and %s.", utils.FormatNumber(maxPayAmount)))
		}

		if err := b.Economy.Transfer(ctx, guildID, e.User().ID.String(), target.ID.String(), amount); err != nil {
			return utils.EH.CreateKindError(e, err)
		}

		return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf("💸 Sent **%s** coins to **%s**.", utils.FormatNumber(amount), target.Username))
	}
}

var Daily = discord.SlashCommandCreate{
	Name:        "daily",
	Description: "📅 Claim your daily reward",
}

func DailyHandler(b *vesper.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guildID, ok := requireGuild(e)
		if !ok {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		userID := e.User().ID.String()
		reward, err := b.Economy.ClaimDaily(ctx, guildID, userID)
		if err != nil {
			if errs.IsKind(err, errs.Conflict) {
				remaining, rErr := b.Economy.TimeUntilNextClaim(ctx, guildID, userID)
				if rErr == nil {
					return utils.EH.CreateKindError(e, errs.Newf(errs.Conflict,
						"You already claimed today. Next claim in %s.", utils.FormatDuration(remaining)))
				}
			}
			return utils.EH.CreateKindError(e, err)
		}

		bal, _ := b.Economy.GetBalance(ctx, guildID, userID)
		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       "📅 Daily Reward",
				Description: fmt.Sprintf("You claimed **%s** coins!\nBalance: **%s**", utils.FormatNumber(reward), utils.FormatNumber(bal)),
				Color:       config.SuccessColor,
			}},
		})
	}
}

var Work = discord.SlashCommandCreate{
	Name:        "work",
	Description: "💼 Put in a shift and earn some coins",
}

func WorkHandler(b *vesper.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guildID, ok := requireGuild(e)
		if !ok {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		cooldown := time.Duration(0)
		if cfg, err := b.GuildConfigs.Get(ctx, guildID); err == nil && cfg != nil {
			cooldown = time.Duration(cfg.WorkCooldownSeconds) * time.Second
		}

		reward, err := b.Economy.Work(ctx, guildID, e.User().ID.String(), cooldown)
		if err != nil {
			return utils.EH.CreateKindError(e, err)
		}

		return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf("💼 You earned **%s** coins.", utils.FormatNumber(reward)))
	}
}

var Leaderboard = discord.SlashCommandCreate{
	Name:        "leaderboard",
	Description: "🏆 Richest members of this server",
}

func LeaderboardHandler(b *vesper.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guildID, ok := requireGuild(e)
		if !ok {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		balances, err := b.Economy.ListGuildBalances(ctx, guildID)
		if err != nil {
			return utils.EH.CreateKindError(e, err)
		}
		if len(balances) == 0 {
			return utils.EH.CreateInfoEmbed(e, "Nobody has any coins here yet.")
		}

		perPage := config.LeaderboardPageSize
		totalPages := (len(balances) + perPage - 1) / perPage

		return b.Paginator.Create(e.Respond, paginator.Pages{
			ID:      e.ID().String(),
			Creator: e.User().ID,
			PageFunc: func(page int, embed *discord.EmbedBuilder) {
				start := page * perPage
				end := min(start+perPage, len(balances))

				var description strings.Builder
				for i, bal := range balances[start:end] {
					rank := start + i + 1
					medal := "▫️"
					switch rank {
					case 1:
						medal = "🥇"
					case 2:
						medal = "🥈"
					case 3:
						medal = "🥉"
					}
					description.WriteString(fmt.Sprintf("%s `#%d` <@%s> — **%s**\n",
						medal, rank, bal.UserID, utils.FormatNumber(bal.Balance)))
				}

				embed.
					SetTitle("🏆 Leaderboard").
					SetDescription(description.String()).
					SetColor(config.EmbedDefaultColor).
					SetFooter(fmt.Sprintf("Page %d/%d", page+1, totalPages), "")
			},
			Pages:      totalPages,
			ExpireMode: paginator.ExpireModeAfterLastUsage,
		}, false)
	}
}
