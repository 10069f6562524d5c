package shop

import (
	"context"
	"log/slog"
	"time"
)

// PayoutTickInterval is how often the payout sweep runs. Guild
// intervals floor at 60s, so a faster tick would never pay anything.
const PayoutTickInterval = time.Minute

// PayoutTick runs the passive-income sweep. It is scheduled every
// minute; a guild pays out only once its configured interval has
// elapsed since the last payout. Per-user failures are logged and
// skipped so one bad inventory row cannot stall a guild.
func (s *Service) PayoutTick(ctx context.Context) {
	guilds, err := s.inventory.GuildsWithInventory(ctx)
	if err != nil {
		slog.Error("Payout sweep failed to list guilds",
			slog.String("type", "db"),
			slog.Any("error", err))
		return
	}
	for _, guildID := range guilds {
		if err := s.payoutGuild(ctx, guildID); err != nil {
			slog.Error("Guild payout failed",
				slog.String("type", "db"),
				slog.String("guild_id", guildID),
				slog.Any("error", err))
		}
	}
}

func (s *Service) payoutGuild(ctx context.Context, guildID string) error {
	cfg, err := s.config.Get(ctx, guildID)
	if err != nil {
		return err
	}
	interval := cfg.IntervalSeconds
	if interval < MinIntervalSeconds {
		interval = MinIntervalSeconds
	}
	now := s.now()
	if !cfg.LastPayout.IsZero() && now.Sub(cfg.LastPayout) < time.Duration(interval)*time.Second {
		return nil
	}

	catalog, err := s.EffectiveCatalog(ctx, guildID)
	if err != nil {
		return err
	}
	income := make(map[string]int64, len(catalog))
	for _, item := range catalog {
		income[item.Name] = item.Income
	}

	entries, err := s.inventory.ListByGuild(ctx, guildID)
	if err != nil {
		return err
	}
	sums := make(map[string]int64)
	for _, e := range entries {
		sums[e.UserID] += income[e.ItemName] * e.Count
	}

	var paid int
	for userID, sum := range sums {
		if sum <= 0 {
			continue
		}
		if err := s.econ.AddBalance(ctx, guildID, userID, sum); err != nil {
			slog.Error("Payout credit failed",
				slog.String("type", "db"),
				slog.String("guild_id", guildID),
				slog.String("user_id", userID),
				slog.Any("error", err))
			continue
		}
		paid++
	}

	// The marker advances even when nobody earned anything, so an
	// all-zero-income guild does not retry every minute.
	if err := s.config.SetLastPayout(ctx, guildID, now); err != nil {
		return err
	}
	if paid > 0 {
		slog.Info("Shop payout completed",
			slog.String("type", "sys"),
			slog.String("guild_id", guildID),
			slog.Int("users", paid))
	}
	return nil
}
