package shop

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesperbot/vesper/vesper/database/models"
	"github.com/vesperbot/vesper/vesper/database/repositories/memory"
	"github.com/vesperbot/vesper/vesper/economy"
	"github.com/vesperbot/vesper/vesper/errs"
)

func newTestService(t *testing.T) (*Service, *memory.Store, *economy.Service) {
	t.Helper()
	store := memory.New()
	econ := economy.New(store.Balances, store.Daily)
	svc := New(store.ShopItems, store.Inventory, store.ShopCfg, econ)
	return svc, store, econ
}

func TestEffectiveCatalogShadowsDefaultsByName(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, store.ShopItems.Upsert(ctx, &models.GuildShopItem{
		GuildID: "g1",
		Name:    "Lemonade Stand",
		Cost:    99,
		Income:  9,
	}))
	require.NoError(t, store.ShopItems.Upsert(ctx, &models.GuildShopItem{
		GuildID:  "g1",
		Name:     "Haunted Mansion",
		Cost:     123_456,
		Income:   777,
		Category: CategoryEmpire,
	}))

	catalog, err := svc.EffectiveCatalog(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, catalog, len(DefaultCatalog())+1)

	byName := make(map[string]Item)
	for _, item := range catalog {
		byName[item.Name] = item
	}
	assert.Equal(t, int64(99), byName["Lemonade Stand"].Cost)
	assert.Equal(t, int64(9), byName["Lemonade Stand"].Income)
	assert.Equal(t, int64(777), byName["Haunted Mansion"].Income)

	// Another guild still sees the default.
	other, err := svc.EffectiveCatalog(ctx, "g2")
	require.NoError(t, err)
	for _, item := range other {
		if item.Name == "Lemonade Stand" {
			assert.Equal(t, int64(2000), item.Cost)
		}
		assert.NotEqual(t, "Haunted Mansion", item.Name)
	}
}

func TestFindItemSuggestsOnMiss(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.FindItem(context.Background(), "g1", "lemonade stand")
	require.NoError(t, err, "lookup is case-insensitive")

	_, err = svc.FindItem(context.Background(), "g1", "lemnade")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.NotFound))
	assert.Contains(t, err.Error(), "Lemonade Stand")
}

func TestBuyDeductsAndRecordsInventory(t *testing.T) {
	svc, store, econ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, econ.AddBalance(ctx, "g1", "u1", 10_000))

	res, err := svc.Buy(ctx, "g1", "u1", "Lemonade Stand", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(6000), res.Total)
	assert.Equal(t, int64(3), res.Owned)

	bal, err := econ.GetBalance(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(4000), bal)

	owned, err := store.Inventory.Get(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), owned["Lemonade Stand"])
}

func TestBuyInsufficientFundsLeavesStateUntouched(t *testing.T) {
	svc, store, econ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, econ.AddBalance(ctx, "g1", "u1", 1000))

	_, err := svc.Buy(ctx, "g1", "u1", "Lemonade Stand", 1)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.InsufficientFunds))

	bal, _ := econ.GetBalance(ctx, "g1", "u1")
	assert.Equal(t, int64(1000), bal)
	owned, _ := store.Inventory.Get(ctx, "g1", "u1")
	assert.Empty(t, owned)
}

func TestBuyRollsBackCoinsWhenInventoryWriteFails(t *testing.T) {
	svc, store, econ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, econ.AddBalance(ctx, "g1", "u1", 10_000))
	store.Inventory.FailWrites = errors.New("disk full")

	_, err := svc.Buy(ctx, "g1", "u1", "Lemonade Stand", 1)
	require.Error(t, err)

	bal, _ := econ.GetBalance(ctx, "g1", "u1")
	assert.Equal(t, int64(10_000), bal, "coins returned after failed inventory write")
}

func TestBuyRejectsBadQuantity(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Buy(context.Background(), "g1", "u1", "Lemonade Stand", 0)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.InvalidArgument))
}

func TestSetItemValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	assert.Error(t, svc.SetItem(ctx, "g1", Item{Name: "  ", Cost: 1, Income: 1}))
	assert.Error(t, svc.SetItem(ctx, "g1", Item{Name: "X", Cost: -1, Income: 1}))
	assert.Error(t, svc.SetItem(ctx, "g1", Item{Name: "X", Cost: 1, Income: 1, Category: "Mythic"}))

	require.NoError(t, svc.SetItem(ctx, "g1", Item{Name: "X", Cost: 1, Income: 1}))
	items, err := svc.ListGuildItems(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, CategoryOther, items[0].Category, "missing category defaults to Other")
}

func TestDeleteItemOnlyRemovesOverrides(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	err := svc.DeleteItem(ctx, "g1", "Lemonade Stand")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.NotFound), "defaults cannot be deleted")

	require.NoError(t, svc.SetItem(ctx, "g1", Item{Name: "Custom", Cost: 10, Income: 1}))
	require.NoError(t, svc.DeleteItem(ctx, "g1", "Custom"))
	err = svc.DeleteItem(ctx, "g1", "Custom")
	assert.True(t, errs.IsKind(err, errs.NotFound))
}

func TestSetIntervalPreservesLastPayout(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	mark := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.ShopCfg.SetLastPayout(ctx, "g1", mark))

	require.NoError(t, svc.SetInterval(ctx, "g1", 300))

	cfg, err := store.ShopCfg.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), cfg.IntervalSeconds)
	assert.True(t, cfg.LastPayout.Equal(mark), "interval change keeps schedule continuity")

	err = svc.SetInterval(ctx, "g1", 30)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.InvalidArgument))
}

func TestPayoutTickHonorsInterval(t *testing.T) {
	svc, store, econ := newTestService(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	now := base
	svc.SetNow(func() time.Time { return now })

	require.NoError(t, econ.AddBalance(ctx, "g1", "u1", 10_000))
	_, err := svc.Buy(ctx, "g1", "u1", "Lemonade Stand", 2)
	require.NoError(t, err)
	balAfterBuy, _ := econ.GetBalance(ctx, "g1", "u1")

	require.NoError(t, svc.SetInterval(ctx, "g1", 300))

	// First tick: no last-payout marker yet, pays immediately.
	svc.PayoutTick(ctx)
	bal, _ := econ.GetBalance(ctx, "g1", "u1")
	assert.Equal(t, balAfterBuy+2*50, bal)

	// One minute later the interval has not elapsed.
	now = base.Add(time.Minute)
	svc.PayoutTick(ctx)
	bal2, _ := econ.GetBalance(ctx, "g1", "u1")
	assert.Equal(t, bal, bal2)

	// Past the interval it pays again.
	now = base.Add(6 * time.Minute)
	svc.PayoutTick(ctx)
	bal3, _ := econ.GetBalance(ctx, "g1", "u1")
	assert.Equal(t, bal+2*50, bal3)

	cfg, _ := store.ShopCfg.Get(ctx, "g1")
	assert.True(t, cfg.LastPayout.Equal(now))
}

func TestPayoutSumsAcrossItemsAndUsers(t *testing.T) {
	svc, store, econ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, store.Inventory.Add(ctx, "g1", "u1", "Lemonade Stand", 4)) // 4*50
	require.NoError(t, store.Inventory.Add(ctx, "g1", "u1", "Food Truck", 1))    // 1*1250
	require.NoError(t, store.Inventory.Add(ctx, "g1", "u2", "Lemonade Stand", 1))
	require.NoError(t, store.Inventory.Add(ctx, "g1", "u3", "Unknown Relic", 2)) // no income

	svc.PayoutTick(ctx)

	b1, _ := econ.GetBalance(ctx, "g1", "u1")
	b2, _ := econ.GetBalance(ctx, "g1", "u2")
	b3, _ := econ.GetBalance(ctx, "g1", "u3")
	assert.Equal(t, int64(4*50+1250), b1)
	assert.Equal(t, int64(50), b2)
	assert.Equal(t, int64(0), b3)
}

func TestWipeGuildClearsBalancesAndInventories(t *testing.T) {
	svc, store, econ := newTestService(t)
	ctx := context.Background()

	require.NoError(t, econ.AddBalance(ctx, "g1", "u1", 10_000))
	require.NoError(t, econ.AddBalance(ctx, "g1", "u2", 500))
	require.NoError(t, store.Inventory.Add(ctx, "g1", "u1", "Lemonade Stand", 3))
	require.NoError(t, econ.AddBalance(ctx, "g2", "u1", 777))
	require.NoError(t, store.Inventory.Add(ctx, "g2", "u1", "Food Truck", 1))

	require.NoError(t, svc.WipeGuild(ctx, "g1"))

	b1, err := econ.GetBalance(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Zero(t, b1)
	b2, _ := econ.GetBalance(ctx, "g1", "u2")
	assert.Zero(t, b2)

	inv, err := svc.Inventory(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Empty(t, inv)

	// Other guilds are untouched.
	b3, _ := econ.GetBalance(ctx, "g2", "u1")
	assert.Equal(t, int64(777), b3)
	inv2, _ := svc.Inventory(ctx, "g2", "u1")
	assert.Len(t, inv2, 1)
}
