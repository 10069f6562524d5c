package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"github.com/vesperbot/vesper/vesper/database/models"
)

// SubscriptionRepository stores upstream content subscriptions.
type SubscriptionRepository interface {
	Get(ctx context.Context, id string) (*models.Subscription, error)
	List(ctx context.Context) ([]*models.Subscription, error)
	ListByGuild(ctx context.Context, guildID string) ([]*models.Subscription, error)
	Add(ctx context.Context, sub *models.Subscription) error
	Remove(ctx context.Context, id string) (bool, error)
	SetLastSeen(ctx context.Context, id, lastSeen string) error
	SetUploadsPlaylist(ctx context.Context, id, playlist string) error
}

type subscriptionRepository struct {
	db *bun.DB
}

func NewSubscriptionRepository(db *bun.DB) SubscriptionRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) Get(ctx context.Context, id string) (*models.Subscription, error) {
	sub := new(models.Subscription)
	err := r.db.NewSelect().
		Model(sub).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return sub, nil
}

func (r *subscriptionRepository) List(ctx context.Context) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := r.db.NewSelect().
		Model(&subs).
		Order("guild_id ASC", "id ASC").
		Scan(ctx)
	return subs, err
}

func (r *subscriptionRepository) ListByGuild(ctx context.Context, guildID string) ([]*models.Subscription, error) {
	var subs []*models.Subscription
	err := r.db.NewSelect().
		Model(&subs).
		Where("guild_id = ?", guildID).
		Order("id ASC").
		Scan(ctx)
	return subs, err
}

func (r *subscriptionRepository) Add(ctx context.Context, sub *models.Subscription) error {
	_, err := r.db.NewInsert().Model(sub).Exec(ctx)
	return err
}

func (r *subscriptionRepository) Remove(ctx context.Context, id string) (bool, error) {
	res, err := r.db.NewDelete().
		Model((*models.Subscription)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *subscriptionRepository) SetLastSeen(ctx context.Context, id, lastSeen string) error {
	_, err := r.db.NewUpdate().
		Model((*models.Subscription)(nil)).
		Set("last_seen = ?", lastSeen).
		Where("id = ?", id).
		Exec(ctx)
	return err
}

func (r *subscriptionRepository) SetUploadsPlaylist(ctx context.Context, id, playlist string) error {
	_, err := r.db.NewUpdate().
		Model((*models.Subscription)(nil)).
		Set("uploads_playlist = ?", playlist).
		Where("id = ?", id).
		Exec(ctx)
	return err
}
