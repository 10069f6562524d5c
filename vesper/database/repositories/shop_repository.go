package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/vesperbot/vesper/vesper/database/models"
)

// ShopItemRepository stores per-guild catalog overrides.
type ShopItemRepository interface {
	ListByGuild(ctx context.Context, guildID string) ([]*models.GuildShopItem, error)
	Upsert(ctx context.Context, item *models.GuildShopItem) error
	Delete(ctx context.Context, guildID, name string) (bool, error)
}

type shopItemRepository struct {
	db *bun.DB
}

func NewShopItemRepository(db *bun.DB) ShopItemRepository {
	return &shopItemRepository{db: db}
}

func (r *shopItemRepository) ListByGuild(ctx context.Context, guildID string) ([]*models.GuildShopItem, error) {
	var items []*models.GuildShopItem
	err := r.db.NewSelect().
		Model(&items).
		Where("guild_id = ?", guildID).
		Order("name ASC").
		Scan(ctx)
	return items, err
}

func (r *shopItemRepository) Upsert(ctx context.Context, item *models.GuildShopItem) error {
	_, err := r.db.NewInsert().
		Model(item).
		On("CONFLICT (guild_id, name) DO UPDATE").
		Set("cost = EXCLUDED.cost").
		Set("income = EXCLUDED.income").
		Set("description = EXCLUDED.description").
		Set("category = EXCLUDED.category").
		Exec(ctx)
	return err
}

func (r *shopItemRepository) Delete(ctx context.Context, guildID, name string) (bool, error) {
	res, err := r.db.NewDelete().
		Model((*models.GuildShopItem)(nil)).
		Where("guild_id = ?", guildID).
		Where("name = ?", name).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// InventoryRepository stores item counts per guild member.
type InventoryRepository interface {
	Get(ctx context.Context, guildID, userID string) (map[string]int64, error)
	Add(ctx context.Context, guildID, userID, itemName string, qty int64) error
	// GuildsWithInventory lists guilds that have at least one inventory
	// row; the payout tick iterates these.
	GuildsWithInventory(ctx context.Context) ([]string, error)
	ListByGuild(ctx context.Context, guildID string) ([]*models.InventoryEntry, error)
	DeleteGuild(ctx context.Context, guildID string) error
}

type inventoryRepository struct {
	db *bun.DB
}

func NewInventoryRepository(db *bun.DB) InventoryRepository {
	return &inventoryRepository{db: db}
}

func (r *inventoryRepository) Get(ctx context.Context, guildID, userID string) (map[string]int64, error) {
	var entries []*models.InventoryEntry
	err := r.db.NewSelect().
		Model(&entries).
		Where("guild_id = ?", guildID).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(entries))
	for _, e := range entries {
		counts[e.ItemName] = e.Count
	}
	return counts, nil
}

func (r *inventoryRepository) Add(ctx context.Context, guildID, userID, itemName string, qty int64) error {
	entry := &models.InventoryEntry{
		GuildID:  guildID,
		UserID:   userID,
		ItemName: itemName,
		Count:    qty,
	}
	_, err := r.db.NewInsert().
		Model(entry).
		On("CONFLICT (guild_id, user_id, item_name) DO UPDATE").
		Set("count = inv.count + EXCLUDED.count").
		Exec(ctx)
	return err
}

func (r *inventoryRepository) GuildsWithInventory(ctx context.Context) ([]string, error) {
	var guilds []string
	err := r.db.NewSelect().
		Model((*models.InventoryEntry)(nil)).
		ColumnExpr("DISTINCT guild_id").
		Scan(ctx, &guilds)
	return guilds, err
}

func (r *inventoryRepository) ListByGuild(ctx context.Context, guildID string) ([]*models.InventoryEntry, error) {
	var entries []*models.InventoryEntry
	err := r.db.NewSelect().
		Model(&entries).
		Where("guild_id = ?", guildID).
		Scan(ctx)
	return entries, err
}

func (r *inventoryRepository) DeleteGuild(ctx context.Context, guildID string) error {
	_, err := r.db.NewDelete().
		Model((*models.InventoryEntry)(nil)).
		Where("guild_id = ?", guildID).
		Exec(ctx)
	return err
}

// ShopConfigRepository stores the per-guild payout schedule.
type ShopConfigRepository interface {
	Get(ctx context.Context, guildID string) (*models.ShopConfig, error)
	SetInterval(ctx context.Context, guildID string, seconds int64) error
	SetLastPayout(ctx context.Context, guildID string, t time.Time) error
}

type shopConfigRepository struct {
	db *bun.DB
}

func NewShopConfigRepository(db *bun.DB) ShopConfigRepository {
	return &shopConfigRepository{db: db}
}

func (r *shopConfigRepository) Get(ctx context.Context, guildID string) (*models.ShopConfig, error) {
	cfg := new(models.ShopConfig)
	err := r.db.NewSelect().
		Model(cfg).
		Where("guild_id = ?", guildID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.ShopConfig{GuildID: guildID, IntervalSeconds: 1800}, nil
		}
		return nil, err
	}
	return cfg, nil
}

func (r *shopConfigRepository) SetInterval(ctx context.Context, guildID string, seconds int64) error {
	cfg := &models.ShopConfig{GuildID: guildID, IntervalSeconds: seconds}
	_, err := r.db.NewInsert().
		Model(cfg).
		On("CONFLICT (guild_id) DO UPDATE").
		Set("interval_seconds = EXCLUDED.interval_seconds").
		Exec(ctx)
	return err
}

func (r *shopConfigRepository) SetLastPayout(ctx context.Context, guildID string, t time.Time) error {
	cfg := &models.ShopConfig{GuildID: guildID, IntervalSeconds: 1800, LastPayout: t}
	_, err := r.db.NewInsert().
		Model(cfg).
		On("CONFLICT (guild_id) DO UPDATE").
		Set("last_payout = EXCLUDED.last_payout").
		Exec(ctx)
	return err
}
