package handlers

import (
	"context"
	"log/slog"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"

	"github.com/vesperbot/vesper/vesper/config"
	"github.com/vesperbot/vesper/vesper/counting"
	"github.com/vesperbot/vesper/vesper/moderation"
	"github.com/vesperbot/vesper/vesper/platform"
)

// MessageHandler routes guild messages: moderation first, then the
// counting engine. A message consumed by moderation never reaches
// counting.
func MessageHandler(mod *moderation.Engine, count *counting.Engine) bot.EventListener {
	return bot.NewListenerFunc(func(e *events.MessageCreate) {
		if e.GuildID == nil {
			return
		}

		msg := platform.IncomingMessage{
			GuildID:   e.GuildID.String(),
			ChannelID: e.ChannelID.String(),
			MessageID: e.MessageID.String(),
			AuthorID:  e.Message.Author.ID.String(),
			AuthorBot: e.Message.Author.Bot,
			Content:   e.Message.Content,
		}

		ctx, cancel := context.WithTimeout(context.Background(), config.DefaultQueryTimeout)
		defer cancel()

		handled, err := mod.HandleMessage(ctx, msg)
		if err != nil {
			slog.Error("Moderation pipeline failed",
				slog.String("type", "mod"),
				slog.String("guild_id", msg.GuildID),
				slog.Any("error", err))
		}
		if handled {
			return
		}

		if _, err := count.HandleMessage(ctx, msg); err != nil {
			slog.Error("Counting pipeline failed",
				slog.String("type", "game"),
				slog.String("guild_id", msg.GuildID),
				slog.Any("error", err))
		}
	})
}
