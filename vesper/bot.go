package vesper

import (
	"context"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/paginator"

	"github.com/vesperbot/vesper/vesper/counting"
	"github.com/vesperbot/vesper/vesper/database"
	"github.com/vesperbot/vesper/vesper/database/repositories"
	"github.com/vesperbot/vesper/vesper/economy"
	"github.com/vesperbot/vesper/vesper/economy/shop"
	"github.com/vesperbot/vesper/vesper/games/blackjack"
	"github.com/vesperbot/vesper/vesper/games/slots"
	"github.com/vesperbot/vesper/vesper/moderation"
	"github.com/vesperbot/vesper/vesper/platform"
	"github.com/vesperbot/vesper/vesper/scheduler"
	"github.com/vesperbot/vesper/vesper/services"
	"github.com/vesperbot/vesper/vesper/subscriptions"
)

func New(cfg Config, version string, commit string) *Bot {
	return &Bot{
		Cfg:       cfg,
		Paginator: paginator.New(),
		Version:   version,
		Commit:    commit,
	}
}

type Bot struct {
	Cfg       Config
	Client    bot.Client
	Paginator *paginator.Manager
	Version   string
	Commit    string

	DB       *database.DB
	Platform platform.Client

	GuildConfigs repositories.GuildConfigRepository

	Economy   *economy.Service
	Shop      *shop.Service
	Blackjack *blackjack.Manager
	Slots     *slots.Engine

	Moderation *moderation.Engine
	Counting   *counting.Engine

	Subscriptions *subscriptions.Registry
	FeedWorker    *subscriptions.Worker

	Scheduler *scheduler.Scheduler
	Spaces    *services.SpacesService
}

func (b *Bot) SetupBot(listeners ...bot.EventListener) error {
	client, err := disgo.New(b.Cfg.Bot.Token,
		bot.WithGatewayConfigOpts(gateway.WithIntents(gateway.IntentGuilds, gateway.IntentGuildMessages, gateway.IntentMessageContent)),
		bot.WithCacheConfigOpts(cache.WithCaches(cache.FlagGuilds, cache.FlagChannels, cache.FlagRoles, cache.FlagMembers)),
		bot.WithEventListeners(b.Paginator),
		bot.WithEventListeners(listeners...),
	)
	if err != nil {
		return err
	}

	b.Client = client
	b.Platform = platform.NewDisgoClient(client)
	return nil
}

func (b *Bot) OnReady(_ *events.Ready) {
	slog.Info("Vesper is now ready",
		slog.String("type", "sys"),
		slog.String("version", b.Version),
		slog.String("commit", b.Commit))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := b.Client.SetPresence(ctx,
		gateway.WithWatchingActivity("the count go up"),
		gateway.WithOnlineStatus(discord.OnlineStatusOnline)); err != nil {
		slog.Error("Failed to set presence", slog.Any("error", err))
	}

	// Pending unmutes survive restarts; re-arm them as soon as the
	// gateway is up.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := b.Moderation.RearmSchedules(ctx); err != nil {
			slog.Error("Failed to re-arm unmute schedules",
				slog.String("type", "mod"),
				slog.Any("error", err))
		}
	}()
}
