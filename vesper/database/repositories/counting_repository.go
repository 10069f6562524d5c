package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"github.com/vesperbot/vesper/vesper/database/models"
)

// CountingRepository stores counting channel state.
type CountingRepository interface {
	// Get returns the channel state, or nil when the channel is not a
	// counting channel.
	Get(ctx context.Context, channelID string) (*models.CountingChannel, error)
	Save(ctx context.Context, state *models.CountingChannel) error
	Delete(ctx context.Context, channelID string) (bool, error)
}

type countingRepository struct {
	db *bun.DB
}

func NewCountingRepository(db *bun.DB) CountingRepository {
	return &countingRepository{db: db}
}

func (r *countingRepository) Get(ctx context.Context, channelID string) (*models.CountingChannel, error) {
	state := new(models.CountingChannel)
	err := r.db.NewSelect().
		Model(state).
		Where("channel_id = ?", channelID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return state, nil
}

func (r *countingRepository) Save(ctx context.Context, state *models.CountingChannel) error {
	_, err := r.db.NewInsert().
		Model(state).
		On("CONFLICT (channel_id) DO UPDATE").
		Set("last_count = EXCLUDED.last_count").
		Set("last_user = EXCLUDED.last_user").
		Set("chances = EXCLUDED.chances").
		Set("mistakes = EXCLUDED.mistakes").
		Exec(ctx)
	return err
}

func (r *countingRepository) Delete(ctx context.Context, channelID string) (bool, error) {
	res, err := r.db.NewDelete().
		Model((*models.CountingChannel)(nil)).
		Where("channel_id = ?", channelID).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
