// Package commands is the slash-command surface. Handlers validate
// input, call into the core engines and render their typed errors as
// embeds; no game or economy rule lives here.
package commands

import (
	"context"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/handler"

	vesper "github.com/vesperbot/vesper/vesper"
	"github.com/vesperbot/vesper/vesper/errs"
	"github.com/vesperbot/vesper/vesper/utils"
)

var Commands = []discord.ApplicationCommandCreate{
	Balance,
	Pay,
	Daily,
	Work,
	Leaderboard,
	Shop,
	Buy,
	Inventory,
	ShopAdmin,
	Blackjack,
	BlackjackStats,
	Slots,
	SlotStats,
	Follow,
	Unfollow,
	Followings,
	ForceCheck,
	Wordlist,
	Mute,
	Unmute,
	Counting,
	Settings,
	Version,
}

func intPtr(v int) *int { return &v }

// userMessage extracts the presentable part of an error, hiding
// internals.
func userMessage(err error) string {
	if errs.KindOf(err) == errs.Internal {
		return "Something went wrong. Please try again later."
	}
	return errs.Message(err)
}

// requireGuild returns the guild id or replies that the command only
// works inside a server.
func requireGuild(e *handler.CommandEvent) (string, bool) {
	if id := e.GuildID(); id != nil {
		return id.String(), true
	}
	_ = utils.EH.CreateErrorEmbed(e, "This command only works inside a server.")
	return "", false
}

// requireBotAdmin replies with a permission error unless the invoker
// passes the bot-admin predicate.
func requireBotAdmin(ctx context.Context, b *vesper.Bot, e *handler.CommandEvent, guildID string) bool {
	ok, err := b.Moderation.IsBotAdmin(ctx, guildID, e.User().ID.String())
	if err != nil {
		_ = utils.EH.CreateKindError(e, err)
		return false
	}
	if !ok {
		_ = utils.EH.CreateKindError(e, errs.New(errs.Forbidden, "You need a bot-admin role to do that."))
		return false
	}
	return true
}
