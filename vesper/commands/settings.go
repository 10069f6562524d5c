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
	"github.com/vesperbot/vesper/vesper/economy"
	"github.com/vesperbot/vesper/vesper/errs"
	"github.com/vesperbot/vesper/vesper/games/blackjack"
	"github.com/vesperbot/vesper/vesper/utils"
)

var Settings = discord.SlashCommandCreate{
	Name:        "settings",
	Description: "⚙️ Server settings for the bot",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "add-admin-role",
			Description: "Grant a role bot-admin rights",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionRole{
					Name:        "role",
					Description: "Role to grant",
					Required:    true,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "remove-admin-role",
			Description: "Revoke a role's bot-admin rights",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionRole{
					Name:        "role",
					Description: "Role to revoke",
					Required:    true,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "blackjack-cooldown",
			Description: "Seconds between blackjack hands",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionInt{
					Name:        "seconds",
					Description: "Minimum 10",
					Required:    true,
					MinValue:    intPtr(blackjack.MinCooldownSeconds),
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "work-cooldown",
			Description: "Seconds between /work shifts",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionInt{
					Name:        "seconds",
					Description: "Minimum 60",
					Required:    true,
					MinValue:    intPtr(int(economy.MinWorkCooldown / time.Second)),
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "counting-role",
			Description: "Name of the role given to members who run out of chances",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "name",
					Description: "Role name",
					Required:    true,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "wipe-economy",
			Description: "Erase every balance and inventory in this server",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionBool{
					Name:        "confirm",
					Description: "This cannot be undone",
					Required:    true,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "show",
			Description: "Show the current settings",
		},
	},
}

type SettingsHandler struct {
	bot *vesper.Bot
}

func NewSettingsHandler(b *vesper.Bot) *SettingsHandler {
	return &SettingsHandler{bot: b}
}

func (h *SettingsHandler) Register(r handler.Router) {
	r.Route("/settings", func(r handler.Router) {
		r.Command("/add-admin-role", h.HandleAddAdminRole)
		r.Command("/remove-admin-role", h.HandleRemoveAdminRole)
		r.Command("/blackjack-cooldown", h.HandleBlackjackCooldown)
		r.Command("/work-cooldown", h.HandleWorkCooldown)
		r.Command("/counting-role", h.HandleCountingRole)
		r.Command("/wipe-economy", h.HandleWipeEconomy)
		r.Command("/show", h.HandleShow)
	})
}

// mutate loads the guild config, applies fn and saves it, replying with
// message on success.
func (h *SettingsHandler) mutate(e *handler.CommandEvent, fn func(cfg *models.GuildConfig) error, message string) error {
	guildID, ok := requireGuild(e)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if !requireBotAdmin(ctx, h.bot, e, guildID) {
		return nil
	}

	cfg, err := h.bot.GuildConfigs.Get(ctx, guildID)
	if err != nil {
		return utils.EH.CreateKindError(e, err)
	}
	if cfg == nil {
		cfg = &models.GuildConfig{GuildID: guildID}
	}
	if err := fn(cfg); err != nil {
		return utils.EH.CreateKindError(e, err)
	}
	if err := h.bot.GuildConfigs.Save(ctx, cfg); err != nil {
		return utils.EH.CreateKindError(e, err)
	}
	return utils.EH.CreateSuccessEmbed(e, message)
}

func (h *SettingsHandler) HandleAddAdminRole(e *handler.CommandEvent) error {
	role := e.SlashCommandInteractionData().Role("role")
	roleID := role.ID.String()
	return h.mutate(e, func(cfg *models.GuildConfig) error {
		for _, id := range cfg.PermissionsRoles {
			if id == roleID {
				return nil
			}
		}
		cfg.PermissionsRoles = append(cfg.PermissionsRoles, roleID)
		return nil
	}, fmt.Sprintf("⚙️ **%s** can now manage the bot.", role.Name))
}

func (h *SettingsHandler) HandleRemoveAdminRole(e *handler.CommandEvent) error {
	role := e.SlashCommandInteractionData().Role("role")
	roleID := role.ID.String()
	return h.mutate(e, func(cfg *models.GuildConfig) error {
		kept := cfg.PermissionsRoles[:0]
		for _, id := range cfg.PermissionsRoles {
			if id != roleID {
				kept = append(kept, id)
			}
		}
		cfg.PermissionsRoles = kept
		return nil
	}, fmt.Sprintf("⚙️ **%s** can no longer manage the bot.", role.Name))
}

func (h *SettingsHandler) HandleBlackjackCooldown(e *handler.CommandEvent) error {
	seconds := int64(e.SlashCommandInteractionData().Int("seconds"))
	return h.mutate(e, func(cfg *models.GuildConfig) error {
		if seconds < blackjack.MinCooldownSeconds {
			return errs.Newf(errs.InvalidArgument, "The blackjack cooldown can't go below %d seconds.", blackjack.MinCooldownSeconds)
		}
		cfg.BlackjackCooldownSeconds = seconds
		return nil
	}, fmt.Sprintf("⚙️ Blackjack cooldown set to %ds.", seconds))
}

func (h *SettingsHandler) HandleWorkCooldown(e *handler.CommandEvent) error {
	seconds := int64(e.SlashCommandInteractionData().Int("seconds"))
	minSeconds := int64(economy.MinWorkCooldown / time.Second)
	return h.mutate(e, func(cfg *models.GuildConfig) error {
		if seconds < minSeconds {
			return errs.Newf(errs.InvalidArgument, "The work cooldown can't go below %d seconds.", minSeconds)
		}
		cfg.WorkCooldownSeconds = seconds
		return nil
	}, fmt.Sprintf("⚙️ Work cooldown set to %ds.", seconds))
}

func (h *SettingsHandler) HandleCountingRole(e *handler.CommandEvent) error {
	name := e.SlashCommandInteractionData().String("name")
	return h.mutate(e, func(cfg *models.GuildConfig) error {
		cfg.CannotCountRole = name
		return nil
	}, fmt.Sprintf("⚙️ Counting punishment role set to **%s**.", name))
}

func (h *SettingsHandler) HandleWipeEconomy(e *handler.CommandEvent) error {
	guildID, ok := requireGuild(e)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if !requireBotAdmin(ctx, h.bot, e, guildID) {
		return nil
	}
	if !e.SlashCommandInteractionData().Bool("confirm") {
		return utils.EH.CreateKindError(e, errs.New(errs.InvalidArgument, "Pass `confirm: True` to wipe the economy."))
	}
	if err := h.bot.Shop.WipeGuild(ctx, guildID); err != nil {
		return utils.EH.CreateKindError(e, err)
	}
	return utils.EH.CreateSuccessEmbed(e, "⚙️ Economy wiped. Every balance and inventory in this server is gone.")
}

func (h *SettingsHandler) HandleShow(e *handler.CommandEvent) error {
	guildID, ok := requireGuild(e)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if !requireBotAdmin(ctx, h.bot, e, guildID) {
		return nil
	}

	cfg, err := h.bot.GuildConfigs.Get(ctx, guildID)
	if err != nil {
		return utils.EH.CreateKindError(e, err)
	}
	if cfg == nil {
		cfg = &models.GuildConfig{GuildID: guildID}
	}

	roles := "none"
	if len(cfg.PermissionsRoles) > 0 {
		mentions := make([]string, len(cfg.PermissionsRoles))
		for i, id := range cfg.PermissionsRoles {
			mentions[i] = "<@&" + id + ">"
		}
		roles = strings.Join(mentions, ", ")
	}

	bjCooldown := int64(blackjack.DefaultCooldownSeconds)
	if cfg.BlackjackCooldownSeconds > 0 {
		bjCooldown = cfg.BlackjackCooldownSeconds
	}
	workCooldown := int64(economy.DefaultWorkCooldown / time.Second)
	if cfg.WorkCooldownSeconds > 0 {
		workCooldown = cfg.WorkCooldownSeconds
	}
	countRole := cfg.CannotCountRole
	if countRole == "" {
		countRole = "cannot count"
	}

	description := fmt.Sprintf(
		"Bot-admin roles: %s\nBlackjack cooldown: **%ds**\nWork cooldown: **%ds**\nCounting punishment role: **%s**",
		roles, bjCooldown, workCooldown, countRole)

	return e.CreateMessage(discord.MessageCreate{
		Embeds: []discord.Embed{{
			Title:       "⚙️ Settings",
			Description: description,
			Color:       config.EmbedDefaultColor,
		}},
		Flags: discord.MessageFlagEphemeral,
	})
}
