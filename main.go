package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/handler"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	vesper "github.com/vesperbot/vesper/vesper"
	"github.com/vesperbot/vesper/vesper/commands"
	"github.com/vesperbot/vesper/vesper/counting"
	"github.com/vesperbot/vesper/vesper/database"
	"github.com/vesperbot/vesper/vesper/database/models"
	"github.com/vesperbot/vesper/vesper/database/repositories"
	"github.com/vesperbot/vesper/vesper/economy"
	"github.com/vesperbot/vesper/vesper/economy/shop"
	"github.com/vesperbot/vesper/vesper/games/blackjack"
	"github.com/vesperbot/vesper/vesper/games/slots"
	"github.com/vesperbot/vesper/vesper/handlers"
	"github.com/vesperbot/vesper/vesper/logger"
	"github.com/vesperbot/vesper/vesper/migration"
	"github.com/vesperbot/vesper/vesper/moderation"
	"github.com/vesperbot/vesper/vesper/scheduler"
	"github.com/vesperbot/vesper/vesper/services"
	"github.com/vesperbot/vesper/vesper/subscriptions"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	slog.SetDefault(slog.New(logger.NewHandler(slog.LevelInfo)))

	slog.Info("Starting Vesper",
		slog.String("version", version),
		slog.String("commit", commit))

	shouldSyncCommands := flag.Bool("sync-commands", false, "Whether to sync commands to discord")
	shouldMigrateLegacy := flag.Bool("migrate-legacy", false, "Import state from the legacy MongoDB deployment and exit")
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := vesper.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}
	slog.SetDefault(slog.New(logger.NewHandler(cfg.Log.Level)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	dbStartTime := time.Now()
	db, err := database.New(ctx, database.Config{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		Database: cfg.DB.Database,
		PoolSize: cfg.DB.PoolSize,
	})
	if err != nil {
		slog.Error("Database connection failed",
			slog.String("type", "db"),
			slog.Any("error", err),
			slog.Duration("attempted_for", time.Since(dbStartTime)))
		os.Exit(-1)
	}
	defer db.Close()

	if err := db.InitializeSchema(ctx); err != nil {
		slog.Error("Failed to initialize database schema",
			slog.String("type", "db"),
			slog.Any("error", err))
		os.Exit(-1)
	}
	slog.Info("Database ready",
		slog.String("type", "db"),
		slog.String("database", cfg.DB.Database),
		slog.Duration("took", time.Since(dbStartTime)))

	if *shouldMigrateLegacy {
		if err := migrateLegacy(ctx, db, cfg); err != nil {
			slog.Error("Legacy migration failed", slog.String("type", "db"), slog.Any("error", err))
			os.Exit(-1)
		}
		return
	}

	b := vesper.New(*cfg, version, commit)
	b.DB = db

	bunDB := db.BunDB()
	b.GuildConfigs = repositories.NewGuildConfigRepository(bunDB)
	subRepo := repositories.NewSubscriptionRepository(bunDB)

	b.Economy = economy.New(
		repositories.NewBalanceRepository(bunDB),
		repositories.NewDailyClaimRepository(bunDB))
	b.Shop = shop.New(
		repositories.NewShopItemRepository(bunDB),
		repositories.NewInventoryRepository(bunDB),
		repositories.NewShopConfigRepository(bunDB),
		b.Economy)
	b.Slots = slots.NewEngine(b.Economy, repositories.NewSlotStatsRepository(bunDB))

	sched, err := scheduler.New()
	if err != nil {
		slog.Error("Failed to create scheduler", slog.String("type", "sys"), slog.Any("error", err))
		os.Exit(-1)
	}
	b.Scheduler = sched
	b.Blackjack = blackjack.NewManager(
		b.Economy,
		repositories.NewBlackjackStatsRepository(bunDB),
		b.GuildConfigs,
		sched)

	if cfg.Spaces.Key != "" && cfg.Spaces.Secret != "" {
		spaces, err := services.NewSpacesService(cfg.Spaces.Key, cfg.Spaces.Secret, cfg.Spaces.Region, cfg.Spaces.Bucket)
		if err != nil {
			slog.Error("Failed to initialize Spaces", slog.String("type", "sys"), slog.Any("error", err))
			os.Exit(-1)
		}
		b.Spaces = spaces
	}

	h := handler.New()

	h.Command("/version", commands.VersionHandler(b))
	h.Command("/balance", handlers.WrapWithLogging("balance", commands.BalanceHandler(b)))
	h.Command("/pay", handlers.WrapWithLogging("pay", commands.PayHandler(b)))
	h.Command("/daily", handlers.WrapWithLogging("daily", commands.DailyHandler(b)))
	h.Command("/work", handlers.WrapWithLogging("work", commands.WorkHandler(b)))
	h.Command("/leaderboard", handlers.WrapWithLogging("leaderboard", commands.LeaderboardHandler(b)))

	h.Command("/shop", handlers.WrapWithLogging("shop", commands.ShopHandler(b)))
	h.Command("/buy", handlers.WrapWithLogging("buy", commands.BuyHandler(b)))
	h.Command("/inventory", handlers.WrapWithLogging("inventory", commands.InventoryHandler(b)))
	commands.NewShopAdminHandler(b).Register(h)

	commands.NewBlackjackHandler(b).Register(h)
	h.Command("/slots", handlers.WrapWithLogging("slots", commands.SlotsHandler(b)))
	h.Command("/slotstats", handlers.WrapWithLogging("slotstats", commands.SlotStatsHandler(b)))

	h.Command("/follow", handlers.WrapWithLogging("follow", commands.FollowHandler(b)))
	h.Command("/unfollow", handlers.WrapWithLogging("unfollow", commands.UnfollowHandler(b)))
	h.Command("/followings", handlers.WrapWithLogging("followings", commands.FollowingsHandler(b)))
	h.Command("/forcecheck", handlers.WrapWithLogging("forcecheck", commands.ForceCheckHandler(b)))

	commands.NewWordlistHandler(b).Register(h)
	h.Command("/mute", handlers.WrapWithLogging("mute", commands.MuteHandler(b)))
	h.Command("/unmute", handlers.WrapWithLogging("unmute", commands.UnmuteHandler(b)))
	commands.NewCountingHandler(b).Register(h)
	commands.NewSettingsHandler(b).Register(h)

	if err = b.SetupBot(h, bot.NewListenerFunc(b.OnReady)); err != nil {
		slog.Error("Failed to setup bot",
			slog.String("type", "sys"),
			slog.Any("error", err))
		os.Exit(-1)
	}

	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		b.Client.Close(ctx)
	}()

	// The moderation and counting engines talk to Discord through the
	// platform adapter, which only exists once the client does.
	b.Moderation = moderation.NewEngine(
		repositories.NewPhraseRuleRepository(bunDB),
		repositories.NewMuteScheduleRepository(bunDB),
		b.GuildConfigs,
		b.Platform,
		sched,
		cfg.Bot.OwnerID)
	b.Counting = counting.NewEngine(
		repositories.NewCountingRepository(bunDB),
		b.GuildConfigs,
		b.Platform)
	b.Client.AddEventListeners(handlers.MessageHandler(b.Moderation, b.Counting))

	fetcher := subscriptions.NewFetcher(cfg.Feeds.RenderFallback)
	sources := map[string]subscriptions.Source{
		models.PlatformYouTube: subscriptions.NewYouTubeSource(fetcher),
		models.PlatformTwitch:  subscriptions.NewTwitchSource(fetcher, cfg.Feeds.TwitchClientID, cfg.Feeds.TwitchClientSecret),
	}
	var thumbs subscriptions.Thumbnailer
	if b.Spaces != nil {
		thumbs = b.Spaces
	}
	b.Subscriptions = subscriptions.NewRegistry(subRepo, sources, b.Platform, thumbs)
	b.FeedWorker = subscriptions.NewWorker(subRepo, sources, subscriptions.NewPoster(b.Platform))
	if cfg.Feeds.ThrottleSeconds > 0 {
		b.FeedWorker.SetThrottle(time.Duration(cfg.Feeds.ThrottleSeconds) * time.Second)
	}

	if err := sched.Every(shop.PayoutTickInterval, "shop-payout", b.Shop.PayoutTick); err != nil {
		slog.Error("Failed to schedule shop payouts", slog.String("type", "sys"), slog.Any("error", err))
		os.Exit(-1)
	}
	if err := sched.Every(subscriptions.SweepInterval, "feed-sweep", b.FeedWorker.Sweep); err != nil {
		slog.Error("Failed to schedule feed sweeps", slog.String("type", "sys"), slog.Any("error", err))
		os.Exit(-1)
	}
	sched.Start()
	defer sched.Shutdown()

	if *shouldSyncCommands {
		slog.Info("Syncing commands",
			slog.String("type", "sys"),
			slog.Any("guild_ids", cfg.Bot.DevGuilds))
		if err = handler.SyncCommands(b.Client, commands.Commands, cfg.Bot.DevGuilds); err != nil {
			slog.Error("Failed to sync commands",
				slog.String("type", "sys"),
				slog.Any("error", err))
		}
	}

	gatewayCtx, gatewayCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer gatewayCancel()
	if err = b.Client.OpenGateway(gatewayCtx); err != nil {
		slog.Error("Failed to open gateway",
			slog.String("type", "sys"),
			slog.Any("error", err))
		os.Exit(-1)
	}

	slog.Info("Bot is running. Press CTRL-C to exit.")
	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM)
	<-s
	slog.Info("Shutting down bot...")
}

func migrateLegacy(ctx context.Context, db *database.DB, cfg *vesper.Config) error {
	if cfg.Legacy.MongoURI == "" || cfg.Legacy.MongoDatabase == "" {
		return fmt.Errorf("legacy migration requires mongo_uri and mongo_database in config")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Legacy.MongoURI))
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = client.Disconnect(disconnectCtx)
	}()

	m := migration.NewMigrator(db.BunDB())
	m.UseMongo(client, cfg.Legacy.MongoDatabase)
	return m.MigrateAll(ctx)
}
