package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"github.com/vesperbot/vesper/vesper/database/models"
)

// GuildConfigRepository stores per-guild settings and the ticket counter.
type GuildConfigRepository interface {
	Get(ctx context.Context, guildID string) (*models.GuildConfig, error)
	Save(ctx context.Context, cfg *models.GuildConfig) error
	// NextTicket increments and returns the guild's ticket counter.
	// Values are monotonic and never reused.
	NextTicket(ctx context.Context, guildID string) (int64, error)
}

type guildConfigRepository struct {
	db *bun.DB
}

func NewGuildConfigRepository(db *bun.DB) GuildConfigRepository {
	return &guildConfigRepository{db: db}
}

func (r *guildConfigRepository) Get(ctx context.Context, guildID string) (*models.GuildConfig, error) {
	cfg := new(models.GuildConfig)
	err := r.db.NewSelect().
		Model(cfg).
		Where("guild_id = ?", guildID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.GuildConfig{GuildID: guildID}, nil
		}
		return nil, err
	}
	return cfg, nil
}

func (r *guildConfigRepository) Save(ctx context.Context, cfg *models.GuildConfig) error {
	_, err := r.db.NewInsert().
		Model(cfg).
		On("CONFLICT (guild_id) DO UPDATE").
		Set("permissions_roles = EXCLUDED.permissions_roles").
		Set("blackjack_cooldown_seconds = EXCLUDED.blackjack_cooldown_seconds").
		Set("work_cooldown_seconds = EXCLUDED.work_cooldown_seconds").
		Set("cannot_count_role = EXCLUDED.cannot_count_role").
		Set("ticket_seq = EXCLUDED.ticket_seq").
		Exec(ctx)
	return err
}

func (r *guildConfigRepository) NextTicket(ctx context.Context, guildID string) (int64, error) {
	cfg := &models.GuildConfig{GuildID: guildID, TicketSeq: 1}
	var seq int64
	err := r.db.NewInsert().
		Model(cfg).
		On("CONFLICT (guild_id) DO UPDATE").
		Set("ticket_seq = gc.ticket_seq + 1").
		Returning("ticket_seq").
		Scan(ctx, &seq)
	return seq, err
}
