package shop

import (
	"sort"

	"github.com/vesperbot/vesper/vesper/database/models"
)

// Item categories. The fixed set mirrors the default catalog tiers;
// guild-added items without a category fall under Other.
const (
	CategoryStarter       = "Starter"
	CategorySmallBusiness = "Small Business"
	CategoryCorporate     = "Corporate"
	CategoryEmpire        = "Empire"
	CategoryLegendary     = "Legendary"
	CategoryOther         = "Other"
)

// CategoryOrder is the display order of shop categories.
var CategoryOrder = []string{
	CategoryStarter,
	CategorySmallBusiness,
	CategoryCorporate,
	CategoryEmpire,
	CategoryLegendary,
	CategoryOther,
}

// Item is a resolved catalog entry. Income is paid per payout interval
// for every owned copy.
type Item struct {
	Name        string
	Cost        int64
	Income      int64
	Description string
	Category    string
}

// defaultCatalog is the built-in item set every guild starts with.
// Guild overrides shadow these by name.
var defaultCatalog = []Item{
	{
		Name:        "Lemonade Stand",
		Cost:        2_000,
		Income:      50,
		Description: "A humble stand on the sidewalk. Every empire starts somewhere.",
		Category:    CategoryStarter,
	},
	{
		Name:        "Newspaper Route",
		Cost:        7_500,
		Income:      210,
		Description: "Up at dawn, papers on porches, coins in pocket.",
		Category:    CategoryStarter,
	},
	{
		Name:        "Food Truck",
		Cost:        40_000,
		Income:      1_250,
		Description: "Four wheels, one fryer, a loyal lunch crowd.",
		Category:    CategorySmallBusiness,
	},
	{
		Name:        "Arcade",
		Cost:        150_000,
		Income:      5_200,
		Description: "Quarters in, high scores out. The machines never sleep.",
		Category:    CategoryCorporate,
	},
	{
		Name:        "Skyscraper",
		Cost:        900_000,
		Income:      34_000,
		Description: "Sixty floors of tenants paying rent on the first of the month.",
		Category:    CategoryEmpire,
	},
	{
		Name:        "Moon Base",
		Cost:        5_000_000,
		Income:      210_000,
		Description: "Low gravity, high margins.",
		Category:    CategoryLegendary,
	},
}

// DefaultCatalog returns a copy of the built-in catalog.
func DefaultCatalog() []Item {
	out := make([]Item, len(defaultCatalog))
	copy(out, defaultCatalog)
	return out
}

func itemFromModel(m *models.GuildShopItem) Item {
	category := m.Category
	if category == "" {
		category = CategoryOther
	}
	return Item{
		Name:        m.Name,
		Cost:        m.Cost,
		Income:      m.Income,
		Description: m.Description,
		Category:    category,
	}
}

// mergeCatalog applies guild overrides on top of the defaults. Overrides
// replace default items by name; new names are appended.
func mergeCatalog(overrides []*models.GuildShopItem) []Item {
	byName := make(map[string]int, len(defaultCatalog))
	out := DefaultCatalog()
	for i, item := range out {
		byName[item.Name] = i
	}
	for _, m := range overrides {
		item := itemFromModel(m)
		if i, ok := byName[item.Name]; ok {
			out[i] = item
			continue
		}
		byName[item.Name] = len(out)
		out = append(out, item)
	}
	return out
}

func categoryRank(category string) int {
	for i, c := range CategoryOrder {
		if c == category {
			return i
		}
	}
	return len(CategoryOrder)
}

// sortCatalog orders items by category tier, then ascending cost.
func sortCatalog(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		ri, rj := categoryRank(items[i].Category), categoryRank(items[j].Category)
		if ri != rj {
			return ri < rj
		}
		return items[i].Cost < items[j].Cost
	})
}
