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
	"github.com/vesperbot/vesper/vesper/economy/shop"
	"github.com/vesperbot/vesper/vesper/utils"
)

var Shop = discord.SlashCommandCreate{
	Name:        "shop",
	Description: "🏪 Browse the shop catalog",
}

func ShopHandler(b *vesper.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guildID, ok := requireGuild(e)
		if !ok {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		catalog, err := b.Shop.EffectiveCatalog(ctx, guildID)
		if err != nil {
			return utils.EH.CreateKindError(e, err)
		}

		byCategory := make(map[string][]shop.Item)
		for _, item := range catalog {
			byCategory[item.Category] = append(byCategory[item.Category], item)
		}

		var fields []discord.EmbedField
		inline := true
		for _, category := range shop.CategoryOrder {
			items := byCategory[category]
			if len(items) == 0 {
				continue
			}
			var lines strings.Builder
			for _, item := range items {
				lines.WriteString(fmt.Sprintf("**%s** — %s coins, pays %s/interval\n",
					item.Name, utils.FormatNumber(item.Cost), utils.FormatNumber(item.Income)))
			}
			fields = append(fields, discord.EmbedField{
				Name:   category,
				Value:  lines.String(),
				Inline: &inline,
			})
		}

		interval, _ := b.Shop.Interval(ctx, guildID)
		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:  "🏪 Shop",
				Fields: fields,
				Color:  config.EmbedDefaultColor,
				Footer: &discord.EmbedFooter{
					Text: fmt.Sprintf("Items pay out every %s", utils.FormatDuration(interval)),
				},
			}},
		})
	}
}

var Buy = discord.SlashCommandCreate{
	Name:        "buy",
	Description: "🛒 Buy an item from the shop",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionString{
			Name:        "item",
			Description: "Item name",
			Required:    true,
		},
		discord.ApplicationCommandOptionInt{
			Name:        "quantity",
			Description: "How many to buy (default 1)",
			MinValue:    intPtr(1),
		},
	},
}

func BuyHandler(b *vesper.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guildID, ok := requireGuild(e)
		if !ok {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		data := e.SlashCommandInteractionData()
		qty := int64(1)
		if n, ok := data.OptInt("quantity"); ok {
			qty = int64(n)
		}

		result, err := b.Shop.Buy(ctx, guildID, e.User().ID.String(), data.String("item"), qty)
		if err != nil {
			return utils.EH.CreateKindError(e, err)
		}

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title: "🛒 Purchase complete",
				Description: fmt.Sprintf("Bought **%d× %s** for **%s** coins. You now own **%d**.",
					result.Quantity, result.Item.Name, utils.FormatNumber(result.Total), result.Owned),
				Color: config.SuccessColor,
			}},
		})
	}
}

var Inventory = discord.SlashCommandCreate{
	Name:        "inventory",
	Description: "🎒 See what you own",
}

func InventoryHandler(b *vesper.Bot) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		guildID, ok := requireGuild(e)
		if !ok {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		lines, err := b.Shop.Inventory(ctx, guildID, e.User().ID.String())
		if err != nil {
			return utils.EH.CreateKindError(e, err)
		}
		if len(lines) == 0 {
			return utils.EH.CreateInfoEmbed(e, "Your inventory is empty. Check out `/shop`.")
		}

		var description strings.Builder
		var totalIncome int64
		for _, line := range lines {
			description.WriteString(fmt.Sprintf("**%d× %s** — %s coins/interval\n",
				line.Count, line.Item.Name, utils.FormatNumber(line.Item.Income*line.Count)))
			totalIncome += line.Item.Income * line.Count
		}

		return e.CreateMessage(discord.MessageCreate{
			Embeds: []discord.Embed{{
				Title:       "🎒 Inventory",
				Description: description.String(),
				Color:       config.EmbedDefaultColor,
				Footer: &discord.EmbedFooter{
					Text: fmt.Sprintf("Total income: %s coins per payout", utils.FormatNumber(totalIncome)),
				},
			}},
		})
	}
}

var ShopAdmin = discord.SlashCommandCreate{
	Name:        "shop-admin",
	Description: "🔧 Manage this server's shop",
	Options: []discord.ApplicationCommandOption{
		discord.ApplicationCommandOptionSubCommand{
			Name:        "set-item",
			Description: "Add or replace a shop item for this server",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "name",
					Description: "Item name (shadows a default item with the same name)",
					Required:    true,
				},
				discord.ApplicationCommandOptionInt{
					Name:        "cost",
					Description: "Purchase price",
					Required:    true,
					MinValue:    intPtr(1),
				},
				discord.ApplicationCommandOptionInt{
					Name:        "income",
					Description: "Payout per interval",
					Required:    true,
					MinValue:    intPtr(0),
				},
				discord.ApplicationCommandOptionString{
					Name:        "category",
					Description: "Shop category (defaults to Other)",
				},
				discord.ApplicationCommandOptionString{
					Name:        "description",
					Description: "Flavor text",
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "delete-item",
			Description: "Remove a server item override",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "name",
					Description: "Item name",
					Required:    true,
				},
			},
		},
		discord.ApplicationCommandOptionSubCommand{
			Name:        "set-interval",
			Description: "Change how often the shop pays out",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionInt{
					Name:        "seconds",
					Description: "Payout interval in seconds (minimum 60)",
					Required:    true,
					MinValue:    intPtr(shop.MinIntervalSeconds),
				},
			},
		},
	},
}

type ShopAdminHandler struct {
	bot *vesper.Bot
}

func NewShopAdminHandler(b *vesper.Bot) *ShopAdminHandler {
	return &ShopAdminHandler{bot: b}
}

func (h *ShopAdminHandler) Register(r handler.Router) {
	r.Route("/shop-admin", func(r handler.Router) {
		r.Command("/set-item", h.HandleSetItem)
		r.Command("/delete-item", h.HandleDeleteItem)
		r.Command("/set-interval", h.HandleSetInterval)
	})
}

func (h *ShopAdminHandler) HandleSetItem(e *handler.CommandEvent) error {
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
	item := shop.Item{
		Name:        data.String("name"),
		Cost:        int64(data.Int("cost")),
		Income:      int64(data.Int("income")),
		Category:    data.String("category"),
		Description: data.String("description"),
	}
	if err := h.bot.Shop.SetItem(ctx, guildID, item); err != nil {
		return utils.EH.CreateKindError(e, err)
	}
	return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf("🔧 Shop item **%s** saved.", item.Name))
}

func (h *ShopAdminHandler) HandleDeleteItem(e *handler.CommandEvent) error {
	guildID, ok := requireGuild(e)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if !requireBotAdmin(ctx, h.bot, e, guildID) {
		return nil
	}

	name := e.SlashCommandInteractionData().String("name")
	if err := h.bot.Shop.DeleteItem(ctx, guildID, name); err != nil {
		return utils.EH.CreateKindError(e, err)
	}
	return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf("🔧 Shop item **%s** removed.", name))
}

func (h *ShopAdminHandler) HandleSetInterval(e *handler.CommandEvent) error {
	guildID, ok := requireGuild(e)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if !requireBotAdmin(ctx, h.bot, e, guildID) {
		return nil
	}

	seconds := int64(e.SlashCommandInteractionData().Int("seconds"))
	if err := h.bot.Shop.SetInterval(ctx, guildID, seconds); err != nil {
		return utils.EH.CreateKindError(e, err)
	}
	return utils.EH.CreateSuccessEmbed(e, fmt.Sprintf("🔧 Shop payout interval set to %s.",
		utils.FormatDuration(time.Duration(seconds)*time.Second)))
}
