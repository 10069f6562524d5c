package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Balance is the coin count of one member in one guild. Balances are
// guild-scoped; there is no cross-guild currency.
type Balance struct {
	bun.BaseModel `bun:"table:balances,alias:bal"`

	GuildID   string    `bun:"guild_id,pk"`
	UserID    string    `bun:"user_id,pk"`
	Balance   int64     `bun:"balance,notnull,default:0"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

// DailyClaim records when a member last claimed the daily reward. The gate
// is calendar-day based: a claim succeeds only if LastClaim is strictly
// before the most recent UTC midnight.
type DailyClaim struct {
	bun.BaseModel `bun:"table:daily_claims,alias:dc"`

	GuildID   string    `bun:"guild_id,pk"`
	UserID    string    `bun:"user_id,pk"`
	LastClaim time.Time `bun:"last_claim,notnull"`
}

// InventoryEntry counts how many of one shop item a member owns.
type InventoryEntry struct {
	bun.BaseModel `bun:"table:inventories,alias:inv"`

	GuildID  string `bun:"guild_id,pk"`
	UserID   string `bun:"user_id,pk"`
	ItemName string `bun:"item_name,pk"`
	Count    int64  `bun:"count,notnull,default:0"`
}

// GuildShopItem is a per-guild catalog entry. Guild entries shadow the
// built-in default catalog by name.
type GuildShopItem struct {
	bun.BaseModel `bun:"table:guild_shop_items,alias:gsi"`

	GuildID     string `bun:"guild_id,pk"`
	Name        string `bun:"name,pk"`
	Cost        int64  `bun:"cost,notnull"`
	Income      int64  `bun:"income,notnull"`
	Description string `bun:"description"`
	Category    string `bun:"category"`
}

// ShopConfig holds the per-guild payout schedule. IntervalSeconds floors
// at 60; LastPayout is preserved across interval changes so the schedule
// keeps its continuity.
type ShopConfig struct {
	bun.BaseModel `bun:"table:shop_configs,alias:sc"`

	GuildID         string    `bun:"guild_id,pk"`
	IntervalSeconds int64     `bun:"interval_seconds,notnull,default:1800"`
	LastPayout      time.Time `bun:"last_payout"`
}
