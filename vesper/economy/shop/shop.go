// Package shop implements the guild shop: a default catalog with
// per-guild overrides, purchases, and interval-based passive income.
package shop

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"

	"github.com/vesperbot/vesper/vesper/database/models"
	"github.com/vesperbot/vesper/vesper/database/repositories"
	"github.com/vesperbot/vesper/vesper/economy"
	"github.com/vesperbot/vesper/vesper/errs"
	"github.com/vesperbot/vesper/vesper/pkg/lock"
)

// MinIntervalSeconds is the floor for the payout interval.
const MinIntervalSeconds = 60

// DefaultIntervalSeconds is the payout interval for guilds that never
// configured one.
const DefaultIntervalSeconds = 1800

// Service resolves catalogs, sells items and pays out passive income.
type Service struct {
	items     repositories.ShopItemRepository
	inventory repositories.InventoryRepository
	config    repositories.ShopConfigRepository
	econ      *economy.Service
	locks     *lock.KeyedLock
	now       func() time.Time
}

func New(
	items repositories.ShopItemRepository,
	inventory repositories.InventoryRepository,
	config repositories.ShopConfigRepository,
	econ *economy.Service,
) *Service {
	return &Service{
		items:     items,
		inventory: inventory,
		config:    config,
		econ:      econ,
		locks:     lock.New(),
		now:       time.Now,
	}
}

// SetNow overrides the clock for tests.
func (s *Service) SetNow(now func() time.Time) { s.now = now }

// EffectiveCatalog returns the guild's catalog: defaults with guild
// overrides applied by name, sorted by category then cost.
func (s *Service) EffectiveCatalog(ctx context.Context, guildID string) ([]Item, error) {
	overrides, err := s.items.ListByGuild(ctx, guildID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "list shop items", err)
	}
	catalog := mergeCatalog(overrides)
	sortCatalog(catalog)
	return catalog, nil
}

// FindItem looks an item up by name, case-insensitively. When the name
// does not match, the returned error carries up to three fuzzy
// suggestions from the catalog.
func (s *Service) FindItem(ctx context.Context, guildID, name string) (Item, error) {
	catalog, err := s.EffectiveCatalog(ctx, guildID)
	if err != nil {
		return Item{}, err
	}
	for _, item := range catalog {
		if strings.EqualFold(item.Name, name) {
			return item, nil
		}
	}
	names := make([]string, len(catalog))
	for i, item := range catalog {
		names[i] = item.Name
	}
	matches := fuzzy.Find(name, names)
	if len(matches) == 0 {
		return Item{}, errs.Newf(errs.NotFound, "no item named %q in the shop", name)
	}
	if len(matches) > 3 {
		matches = matches[:3]
	}
	suggestions := make([]string, len(matches))
	for i, m := range matches {
		suggestions[i] = m.Str
	}
	return Item{}, errs.Newf(errs.NotFound, "no item named %q in the shop, did you mean: %s",
		name, strings.Join(suggestions, ", "))
}

// PurchaseResult describes a completed Buy.
type PurchaseResult struct {
	Item     Item
	Quantity int64
	Total    int64
	Owned    int64
}

// Buy sells qty copies of an item to a member. The wager deduction and
// the inventory increment happen under a per-member lock; if the
// inventory write fails the coins are returned.
func (s *Service) Buy(ctx context.Context, guildID, userID, itemName string, qty int64) (*PurchaseResult, error) {
	if qty < 1 {
		return nil, errs.New(errs.InvalidArgument, "quantity must be at least 1")
	}
	item, err := s.FindItem(ctx, guildID, itemName)
	if err != nil {
		return nil, err
	}
	total := item.Cost * qty

	var result *PurchaseResult
	err = s.locks.WithLock(guildID+"/"+userID, func() error {
		ok, err := s.econ.RemoveBalance(ctx, guildID, userID, total)
		if err != nil {
			return err
		}
		if !ok {
			return errs.Newf(errs.InsufficientFunds, "you need %d coins to buy %d× %s", total, qty, item.Name)
		}
		if err := s.inventory.Add(ctx, guildID, userID, item.Name, qty); err != nil {
			if rbErr := s.econ.AddBalance(ctx, guildID, userID, total); rbErr != nil {
				slog.Error("Purchase rollback failed",
					slog.String("type", "db"),
					slog.String("guild_id", guildID),
					slog.String("user_id", userID),
					slog.Any("error", rbErr))
			}
			return errs.Wrap(errs.Internal, "record purchase", err)
		}
		owned, err := s.inventory.Get(ctx, guildID, userID)
		if err == nil {
			result = &PurchaseResult{Item: item, Quantity: qty, Total: total, Owned: owned[item.Name]}
			return nil
		}
		result = &PurchaseResult{Item: item, Quantity: qty, Total: total, Owned: qty}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// InventoryLine pairs an owned item with its count and resolved income.
type InventoryLine struct {
	Item  Item
	Count int64
}

// Inventory returns the member's owned items resolved against the
// effective catalog. Items no longer in the catalog are listed with
// zero income.
func (s *Service) Inventory(ctx context.Context, guildID, userID string) ([]InventoryLine, error) {
	owned, err := s.inventory.Get(ctx, guildID, userID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "load inventory", err)
	}
	catalog, err := s.EffectiveCatalog(ctx, guildID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]Item, len(catalog))
	for _, item := range catalog {
		byName[item.Name] = item
	}
	var out []InventoryLine
	for _, item := range catalog {
		if count := owned[item.Name]; count > 0 {
			out = append(out, InventoryLine{Item: item, Count: count})
			delete(owned, item.Name)
		}
	}
	for name, count := range owned {
		if count > 0 {
			out = append(out, InventoryLine{Item: Item{Name: name, Category: CategoryOther}, Count: count})
		}
	}
	return out, nil
}

// SetItem creates or replaces a guild catalog entry.
func (s *Service) SetItem(ctx context.Context, guildID string, item Item) error {
	if strings.TrimSpace(item.Name) == "" {
		return errs.New(errs.InvalidArgument, "item name must not be empty")
	}
	if item.Cost < 0 || item.Income < 0 {
		return errs.New(errs.InvalidArgument, "cost and income must not be negative")
	}
	if item.Category == "" {
		item.Category = CategoryOther
	} else if categoryRank(item.Category) >= len(CategoryOrder) {
		return errs.Newf(errs.InvalidArgument, "unknown category %q, pick one of: %s",
			item.Category, strings.Join(CategoryOrder, ", "))
	}
	err := s.items.Upsert(ctx, &models.GuildShopItem{
		GuildID:     guildID,
		Name:        item.Name,
		Cost:        item.Cost,
		Income:      item.Income,
		Description: item.Description,
		Category:    item.Category,
	})
	if err != nil {
		return errs.Wrap(errs.Internal, "save shop item", err)
	}
	slog.Info("Shop item set",
		slog.String("type", "sys"),
		slog.String("guild_id", guildID),
		slog.String("item", item.Name),
		slog.Int64("cost", item.Cost),
		slog.Int64("income", item.Income))
	return nil
}

// DeleteItem removes a guild override. Default catalog items cannot be
// deleted, only shadowed.
func (s *Service) DeleteItem(ctx context.Context, guildID, name string) error {
	ok, err := s.items.Delete(ctx, guildID, name)
	if err != nil {
		return errs.Wrap(errs.Internal, "delete shop item", err)
	}
	if !ok {
		return errs.Newf(errs.NotFound, "this guild has no custom item named %q", name)
	}
	return nil
}

// ListGuildItems returns only the guild's own overrides, not the merged
// catalog.
// WipeGuild resets the guild's economy: every balance and every item
// inventory is dropped. Balances go first so a failure midway leaves no
// member holding income-producing items they could not have bought.
func (s *Service) WipeGuild(ctx context.Context, guildID string) error {
	if err := s.econ.WipeGuild(ctx, guildID); err != nil {
		return fmt.Errorf("failed to wipe balances: %w", err)
	}
	if err := s.inventory.DeleteGuild(ctx, guildID); err != nil {
		return fmt.Errorf("failed to wipe inventories: %w", err)
	}
	return nil
}

func (s *Service) ListGuildItems(ctx context.Context, guildID string) ([]*models.GuildShopItem, error) {
	items, err := s.items.ListByGuild(ctx, guildID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "list shop items", err)
	}
	return items, nil
}

// SetInterval persists the guild's payout interval. The last-payout
// marker is left untouched so an interval change never skips or doubles
// a payout.
func (s *Service) SetInterval(ctx context.Context, guildID string, seconds int64) error {
	if seconds < MinIntervalSeconds {
		return errs.Newf(errs.InvalidArgument, "payout interval must be at least %d seconds", MinIntervalSeconds)
	}
	if err := s.config.SetInterval(ctx, guildID, seconds); err != nil {
		return errs.Wrap(errs.Internal, "save payout interval", err)
	}
	return nil
}

// Interval returns the guild's effective payout interval.
func (s *Service) Interval(ctx context.Context, guildID string) (time.Duration, error) {
	cfg, err := s.config.Get(ctx, guildID)
	if err != nil {
		return 0, errs.Wrap(errs.Internal, "load shop config", err)
	}
	secs := cfg.IntervalSeconds
	if secs < MinIntervalSeconds {
		secs = MinIntervalSeconds
	}
	return time.Duration(secs) * time.Second, nil
}
