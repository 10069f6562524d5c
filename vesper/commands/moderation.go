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
	"github.com/vesperbot/vesper/vesper/errs"
	"github.com/vesperbot/vesper/vesper/utils"
)

var ruleKindChoices = []discord.ApplicationCommandOptionChoiceString{
	{Name: "ban", Value: models.RuleKindBan},
	{Name: "kick", Value: models.RuleKindKick},
	{Name: "mute", Value: models.RuleKindMute},
}

var Wordlist = discord.SlashCommandCreate{
	Name:        "wordlist",
	Description: "🛡️ Manage auto-moderated phrases",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "add",
			Description: "Add a phrase rule",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "kind",
					Description: "What happens on a match",
					Required:    true,
					Choices:     ruleKindChoices,
				},
				discord.ApplicationCommandOptionString{
					Name:        "phrase",
					Description: "Phrase to match (whole words, case-insensitive)",
					Required:    true,
				},
				discord.ApplicationCommandOptionString{
					Name:        "reason",
					Description: "Reason shown to the member",
				},
				discord.ApplicationCommandOptionInt{
					Name:        "duration-minutes",
					Description: "Mute length; only for mute rules, 0 = indefinite",
					MinValue:    intPtr(0),
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "remove",
			Description: "Remove a phrase rule",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "kind",
					Description: "Rule list to remove from",
					Required:    true,
					Choices:     ruleKindChoices,
				},
				discord.ApplicationCommandOptionString{
					Name:        "phrase",
					Description: "Phrase to remove",
					Required:    true,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "list",
			Description: "List phrase rules",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "kind",
					Description: "Rule list to show",
					Required:    true,
					Choices:     ruleKindChoices,
				},
			},
		},
	},
}

type WordlistHandler struct {
	bot *vesper.Bot
}

func NewWordlistHandler(b *vesper.Bot) *WordlistHandler {
	return &WordlistHandler{bot: b}
}

func (h *WordlistHandler) Register(r handler.Router) {
	r.Route("/wordlist", func(r handler.Router) {
		r.Command("/add", h.HandleAdd)
		r.Command("/remove", h.HandleRemove)
		r.Command("/list", h.HandleList)
	})
}

func (h *WordlistHandler) HandleAdd(e *handler.CommandEvent) error {
	guildID, ok := requireGuild(e)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if !requireBotAdmin(ctx, h.bot, e, guildID) {
		return nil
	}

	data := e.SlashCommandInteractionData()
	kind := data.String("kind")
	phrase := data.String("phrase")
	duration := time.Duration(0)
	if minutes, ok := data.OptInt("duration-minutes"); ok {
		duration = time.Duration(minutes) * time.Minute
	}

	if err := h.bot.Moderation.AddRule(ctx, kind, guildID, phrase, data.String("reason"), duration); err != nil {
		return utils.EH.CreateKindError(e, err)
	}
	return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf("🛡️ Added **%s** to the %s list.", phrase, kind))
}

func (h *WordlistHandler) HandleRemove(e *handler.CommandEvent) error {
	guildID, ok := requireGuild(e)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if !requireBotAdmin(ctx, h.bot, e, guildID) {
		return nil
	}

	data := e.SlashCommandInteractionData()
	kind := data.String("kind")
	phrase := data.String("phrase")
	if err := h.bot.Moderation.RemoveRule(ctx, kind, guildID, phrase); err != nil {
		return utils.EH.CreateKindError(e, err)
	}
	return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf("🛡️ Removed **%s** from the %s list.", phrase, kind))
}

func (h *WordlistHandler) HandleList(e *handler.CommandEvent) error {
	guildID, ok := requireGuild(e)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if !requireBotAdmin(ctx, h.bot, e, guildID) {
		return nil
	}

	kind := e.SlashCommandInteractionData().String("kind")
	rules, err := h.bot.Moderation.ListRules(ctx, kind, guildID)
	if err != nil {
		return utils.EH.CreateKindError(e, err)
	}
	if len(rules) == 0 {
		return utils.EH.CreateInfoEmbed(e, fmt.Sprintf("The %s list is empty.", kind))
	}

	var description strings.Builder
	for _, rule := range rules {
		description.WriteString(fmt.Sprintf("• **%s**", rule.Phrase))
		if rule.GuildID == "" {
			description.WriteString(" (global)")
		}
		if rule.Reason != "" {
			description.WriteString(" — " + rule.Reason)
		}
		if rule.Kind == models.RuleKindMute && rule.DurationSeconds > 0 {
			description.WriteString(fmt.Sprintf(" [%s]", utils.FormatDuration(time.Duration(rule.DurationSeconds)*time.Second)))
		}
		description.WriteString("\n")
	}

	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{{
			Title:       fmt.Sprintf("🛡️ %s list", strings.ToUpper(kind[:1])+kind[1:]),
			Description: description.String(),
			Color:       config.EmbedDefaultColor,
		}},
		Flags: discord.MessageFlagEphemeral,
	})
}

var Mute = discord.SlashCommandCreate{
	Name:        "mute",
	Description: "🔇 Mute a member",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionUser{
			Name:        "member",
			Description: "Who to mute",
			Required:    true,
		},
		discord.ApplicationCommandOptionInt{
			Name:        "duration-minutes",
			Description: "How long; 0 = until unmuted manually",
			MinValue:    intPtr(0),
		},
	},
}

func MuteHandler(b *vesper.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guildID, ok := requireGuild(e)
		if !ok {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if !requireBotAdmin(ctx, b, e, guildID) {
			return nil
		}

		data := e.SlashCommandInteractionData()
		target := data.User("member")
		if target.Bot {
			return utils.EH.CreateKindError(e, errs.New(errs.InvalidArgument, "You can't mute a bot."))
		}
		duration := time.Duration(0)
		if minutes, ok := data.OptInt("duration-minutes"); ok {
			duration = time.Duration(minutes) * time.Minute
		}

		if err := b.Moderation.Mute(ctx, guildID, target.ID.String(), duration, e.ChannelID().String()); err != nil {
			return utils.EH.CreateKindError(e, err)
		}

		if duration > 0 {
			return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf("🔇 Muted **%s** for %s.", target.Username, utils.FormatDuration(duration)))
		}
		return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf("🔇 Muted **%s** until further notice.", target.Username))
	}
}

var Unmute = discord.SlashCommandCreate{
	Name:        "unmute",
	Description: "🔊 Unmute a member",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionUser{
			Name:        "member",
			Description: "Who to unmute",
			Required:    true,
		},
	},
}

func UnmuteHandler(b *vesper.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guildID, ok := requireGuild(e)
		if !ok {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if !requireBotAdmin(ctx, b, e, guildID) {
			return nil
		}

		target := e.SlashCommandInteractionData().User("member")
		if err := b.Moderation.Unmute(ctx, guildID, target.ID.String()); err != nil {
			return utils.EH.CreateKindError(e, err)
		}
		return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf("🔊 Unmuted **%s**.", target.Username))
	}
}
