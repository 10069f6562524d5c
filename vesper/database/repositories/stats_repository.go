package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"github.com/vesperbot/vesper/vesper/database/models"
)

// SlotStatsRepository persists aggregate slot machine stats.
type SlotStatsRepository interface {
	Get(ctx context.Context, guildID, userID string) (*models.SlotStats, error)
	Save(ctx context.Context, stats *models.SlotStats) error
}

type slotStatsRepository struct {
	db *bun.DB
}

func NewSlotStatsRepository(db *bun.DB) SlotStatsRepository {
	return &slotStatsRepository{db: db}
}

func (r *slotStatsRepository) Get(ctx context.Context, guildID, userID string) (*models.SlotStats, error) {
	stats := new(models.SlotStats)
	err := r.db.NewSelect().
		Model(stats).
		Where("guild_id = ?", guildID).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.SlotStats{GuildID: guildID, UserID: userID}, nil
		}
		return nil, err
	}
	return stats, nil
}

func (r *slotStatsRepository) Save(ctx context.Context, stats *models.SlotStats) error {
	_, err := r.db.NewInsert().
		Model(stats).
		On("CONFLICT (guild_id, user_id) DO UPDATE").
		Set("spins = EXCLUDED.spins").
		Set("bet_total = EXCLUDED.bet_total").
		Set("win_total = EXCLUDED.win_total").
		Set("net = EXCLUDED.net").
		Set("biggest_win = EXCLUDED.biggest_win").
		Set("last_play = EXCLUDED.last_play").
		Set("session_spins = EXCLUDED.session_spins").
		Set("session_bet_total = EXCLUDED.session_bet_total").
		Set("session_win_total = EXCLUDED.session_win_total").
		Set("session_net = EXCLUDED.session_net").
		Exec(ctx)
	return err
}

// BlackjackStatsRepository persists aggregate blackjack stats.
type BlackjackStatsRepository interface {
	Get(ctx context.Context, guildID, userID string) (*models.BlackjackStats, error)
	Save(ctx context.Context, stats *models.BlackjackStats) error
}

type blackjackStatsRepository struct {
	db *bun.DB
}

func NewBlackjackStatsRepository(db *bun.DB) BlackjackStatsRepository {
	return &blackjackStatsRepository{db: db}
}

func (r *blackjackStatsRepository) Get(ctx context.Context, guildID, userID string) (*models.BlackjackStats, error) {
	stats := new(models.BlackjackStats)
	err := r.db.NewSelect().
		Model(stats).
		Where("guild_id = ?", guildID).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.BlackjackStats{GuildID: guildID, UserID: userID}, nil
		}
		return nil, err
	}
	return stats, nil
}

func (r *blackjackStatsRepository) Save(ctx context.Context, stats *models.BlackjackStats) error {
	_, err := r.db.NewInsert().
		Model(stats).
		On("CONFLICT (guild_id, user_id) DO UPDATE").
		Set("hands = EXCLUDED.hands").
		Set("wins = EXCLUDED.wins").
		Set("losses = EXCLUDED.losses").
		Set("pushes = EXCLUDED.pushes").
		Set("blackjacks = EXCLUDED.blackjacks").
		Set("doubles = EXCLUDED.doubles").
		Set("biggest_wager = EXCLUDED.biggest_wager").
		Exec(ctx)
	return err
}
