// Package memory provides in-memory repository implementations used by
// the engine tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/vesperbot/vesper/vesper/database/models"
	"github.com/vesperbot/vesper/vesper/database/repositories"
)

// Store bundles an in-memory implementation of every repository
// interface. Each field satisfies exactly one interface.
type Store struct {
	Balances  *BalanceRepo
	Daily     *DailyClaimRepo
	Inventory *InventoryRepo
	ShopItems *ShopItemRepo
	ShopCfg   *ShopConfigRepo
	SlotStats *SlotStatsRepo
	BJStats   *BlackjackStatsRepo
	Rules     *PhraseRuleRepo
	Mutes     *MuteScheduleRepo
	Counting  *CountingRepo
	Subs      *SubscriptionRepo
	GuildCfg  *GuildConfigRepo
}

func New() *Store {
	return &Store{
		Balances:  &BalanceRepo{data: map[string]int64{}},
		Daily:     &DailyClaimRepo{data: map[string]time.Time{}},
		Inventory: &InventoryRepo{data: map[string]int64{}},
		ShopItems: &ShopItemRepo{data: map[string]*models.GuildShopItem{}},
		ShopCfg:   &ShopConfigRepo{data: map[string]*models.ShopConfig{}},
		SlotStats: &SlotStatsRepo{data: map[string]*models.SlotStats{}},
		BJStats:   &BlackjackStatsRepo{data: map[string]*models.BlackjackStats{}},
		Rules:     &PhraseRuleRepo{},
		Mutes:     &MuteScheduleRepo{},
		Counting:  &CountingRepo{data: map[string]*models.CountingChannel{}},
		Subs:      &SubscriptionRepo{data: map[string]*models.Subscription{}},
		GuildCfg:  &GuildConfigRepo{data: map[string]*models.GuildConfig{}},
	}
}

func key2(a, b string) string    { return a + "/" + b }
func key3(a, b, c string) string { return a + "/" + b + "/" + c }

// BalanceRepo implements repositories.BalanceRepository.
type BalanceRepo struct {
	mu   sync.Mutex
	data map[string]int64
	// FailWrites makes the next Set return this error; tests use it to
	// exercise rollback paths.
	FailWrites error
	skipWrites int
}

// FailAfter arms a one-shot write failure: the next n Sets succeed, the
// one after that returns err, and writes recover from then on.
func (r *BalanceRepo) FailAfter(n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipWrites = n
	r.FailWrites = err
}

var _ repositories.BalanceRepository = (*BalanceRepo)(nil)

func (r *BalanceRepo) Get(_ context.Context, guildID, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.data[key2(guildID, userID)], nil
}

func (r *BalanceRepo) Set(_ context.Context, guildID, userID string, balance int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWrites != nil {
		if r.skipWrites > 0 {
			r.skipWrites--
		} else {
			err := r.FailWrites
			r.FailWrites = nil
			return err
		}
	}
	r.data[key2(guildID, userID)] = balance
	return nil
}

func (r *BalanceRepo) ListByGuild(_ context.Context, guildID string) ([]*models.Balance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Balance
	prefix := guildID + "/"
	for k, v := range r.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, &models.Balance{GuildID: guildID, UserID: strings.TrimPrefix(k, prefix), Balance: v})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Balance > out[j].Balance })
	return out, nil
}

func (r *BalanceRepo) DeleteGuild(_ context.Context, guildID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefix := guildID + "/"
	for k := range r.data {
		if strings.HasPrefix(k, prefix) {
			delete(r.data, k)
		}
	}
	return nil
}

// DailyClaimRepo implements repositories.DailyClaimRepository.
type DailyClaimRepo struct {
	mu   sync.Mutex
	data map[string]time.Time
}

var _ repositories.DailyClaimRepository = (*DailyClaimRepo)(nil)

func (r *DailyClaimRepo) LastClaim(_ context.Context, guildID, userID string) (time.Time, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.data[key2(guildID, userID)]
	return t, ok, nil
}

func (r *DailyClaimRepo) SetLastClaim(_ context.Context, guildID, userID string, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[key2(guildID, userID)] = t
	return nil
}

// InventoryRepo implements repositories.InventoryRepository.
type InventoryRepo struct {
	mu         sync.Mutex
	data       map[string]int64 // guild/user/item
	FailWrites error
}

var _ repositories.InventoryRepository = (*InventoryRepo)(nil)

func (r *InventoryRepo) Get(_ context.Context, guildID, userID string) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int64)
	prefix := key2(guildID, userID) + "/"
	for k, v := range r.data {
		if strings.HasPrefix(k, prefix) {
			out[strings.TrimPrefix(k, prefix)] = v
		}
	}
	return out, nil
}

func (r *InventoryRepo) Add(_ context.Context, guildID, userID, itemName string, qty int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FailWrites != nil {
		return r.FailWrites
	}
	r.data[key3(guildID, userID, itemName)] += qty
	return nil
}

func (r *InventoryRepo) GuildsWithInventory(_ context.Context) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for k := range r.data {
		guild := k[:strings.IndexByte(k, '/')]
		if !seen[guild] {
			seen[guild] = true
			out = append(out, guild)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *InventoryRepo) ListByGuild(_ context.Context, guildID string) ([]*models.InventoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.InventoryEntry
	prefix := guildID + "/"
	for k, v := range r.data {
		if strings.HasPrefix(k, prefix) {
			rest := strings.TrimPrefix(k, prefix)
			i := strings.IndexByte(rest, '/')
			out = append(out, &models.InventoryEntry{
				GuildID:  guildID,
				UserID:   rest[:i],
				ItemName: rest[i+1:],
				Count:    v,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UserID != out[j].UserID {
			return out[i].UserID < out[j].UserID
		}
		return out[i].ItemName < out[j].ItemName
	})
	return out, nil
}

func (r *InventoryRepo) DeleteGuild(_ context.Context, guildID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prefix := guildID + "/"
	for k := range r.data {
		if strings.HasPrefix(k, prefix) {
			delete(r.data, k)
		}
	}
	return nil
}

// ShopItemRepo implements repositories.ShopItemRepository.
type ShopItemRepo struct {
	mu   sync.Mutex
	data map[string]*models.GuildShopItem
}

var _ repositories.ShopItemRepository = (*ShopItemRepo)(nil)

func (r *ShopItemRepo) ListByGuild(_ context.Context, guildID string) ([]*models.GuildShopItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.GuildShopItem
	prefix := guildID + "/"
	for k, v := range r.data {
		if strings.HasPrefix(k, prefix) {
			cp := *v
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *ShopItemRepo) Upsert(_ context.Context, item *models.GuildShopItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *item
	r.data[key2(item.GuildID, item.Name)] = &cp
	return nil
}

func (r *ShopItemRepo) Delete(_ context.Context, guildID, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key2(guildID, name)
	if _, ok := r.data[k]; !ok {
		return false, nil
	}
	delete(r.data, k)
	return true, nil
}

// ShopConfigRepo implements repositories.ShopConfigRepository.
type ShopConfigRepo struct {
	mu   sync.Mutex
	data map[string]*models.ShopConfig
}

var _ repositories.ShopConfigRepository = (*ShopConfigRepo)(nil)

func (r *ShopConfigRepo) Get(_ context.Context, guildID string) (*models.ShopConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cfg, ok := r.data[guildID]; ok {
		cp := *cfg
		return &cp, nil
	}
	return &models.ShopConfig{GuildID: guildID, IntervalSeconds: 1800}, nil
}

func (r *ShopConfigRepo) SetInterval(_ context.Context, guildID string, seconds int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.data[guildID]
	if !ok {
		cfg = &models.ShopConfig{GuildID: guildID}
		r.data[guildID] = cfg
	}
	cfg.IntervalSeconds = seconds
	return nil
}

func (r *ShopConfigRepo) SetLastPayout(_ context.Context, guildID string, t time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.data[guildID]
	if !ok {
		cfg = &models.ShopConfig{GuildID: guildID, IntervalSeconds: 1800}
		r.data[guildID] = cfg
	}
	cfg.LastPayout = t
	return nil
}

// SlotStatsRepo implements repositories.SlotStatsRepository.
type SlotStatsRepo struct {
	mu   sync.Mutex
	data map[string]*models.SlotStats
}

var _ repositories.SlotStatsRepository = (*SlotStatsRepo)(nil)

func (r *SlotStatsRepo) Get(_ context.Context, guildID, userID string) (*models.SlotStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.data[key2(guildID, userID)]; ok {
		cp := *st
		return &cp, nil
	}
	return &models.SlotStats{GuildID: guildID, UserID: userID}, nil
}

func (r *SlotStatsRepo) Save(_ context.Context, stats *models.SlotStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *stats
	r.data[key2(stats.GuildID, stats.UserID)] = &cp
	return nil
}

// BlackjackStatsRepo implements repositories.BlackjackStatsRepository.
type BlackjackStatsRepo struct {
	mu   sync.Mutex
	data map[string]*models.BlackjackStats
}

var _ repositories.BlackjackStatsRepository = (*BlackjackStatsRepo)(nil)

func (r *BlackjackStatsRepo) Get(_ context.Context, guildID, userID string) (*models.BlackjackStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.data[key2(guildID, userID)]; ok {
		cp := *st
		return &cp, nil
	}
	return &models.BlackjackStats{GuildID: guildID, UserID: userID}, nil
}

func (r *BlackjackStatsRepo) Save(_ context.Context, stats *models.BlackjackStats) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *stats
	r.data[key2(stats.GuildID, stats.UserID)] = &cp
	return nil
}

// PhraseRuleRepo implements repositories.PhraseRuleRepository.
type PhraseRuleRepo struct {
	mu    sync.Mutex
	rules []*models.PhraseRule
	seq   int64
}

var _ repositories.PhraseRuleRepository = (*PhraseRuleRepo)(nil)

func (r *PhraseRuleRepo) ListForGuild(_ context.Context, kind, guildID string) ([]*models.PhraseRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.PhraseRule
	for _, rule := range r.rules {
		if rule.Kind == kind && (rule.GuildID == guildID || rule.GuildID == "") {
			cp := *rule
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *PhraseRuleRepo) Add(_ context.Context, rule *models.PhraseRule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	cp := *rule
	cp.ID = r.seq
	r.rules = append(r.rules, &cp)
	return nil
}

func (r *PhraseRuleRepo) Remove(_ context.Context, kind, guildID, phrase string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, rule := range r.rules {
		if rule.Kind == kind && rule.GuildID == guildID && rule.Phrase == phrase {
			r.rules = append(r.rules[:i], r.rules[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// MuteScheduleRepo implements repositories.MuteScheduleRepository.
type MuteScheduleRepo struct {
	mu    sync.Mutex
	mutes []*models.MuteSchedule
	seq   int64
}

var _ repositories.MuteScheduleRepository = (*MuteScheduleRepo)(nil)

func (r *MuteScheduleRepo) List(_ context.Context) ([]*models.MuteSchedule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.MuteSchedule, 0, len(r.mutes))
	for _, m := range r.mutes {
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnmuteAt.Before(out[j].UnmuteAt) })
	return out, nil
}

func (r *MuteScheduleRepo) Add(_ context.Context, schedule *models.MuteSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(schedule.GuildID, schedule.UserID)
	r.seq++
	cp := *schedule
	cp.ID = r.seq
	r.mutes = append(r.mutes, &cp)
	return nil
}

func (r *MuteScheduleRepo) Remove(_ context.Context, guildID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(guildID, userID)
	return nil
}

func (r *MuteScheduleRepo) removeLocked(guildID, userID string) {
	for i, m := range r.mutes {
		if m.GuildID == guildID && m.UserID == userID {
			r.mutes = append(r.mutes[:i], r.mutes[i+1:]...)
			return
		}
	}
}

// CountingRepo implements repositories.CountingRepository.
type CountingRepo struct {
	mu   sync.Mutex
	data map[string]*models.CountingChannel
}

var _ repositories.CountingRepository = (*CountingRepo)(nil)

func (r *CountingRepo) Get(_ context.Context, channelID string) (*models.CountingChannel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.data[channelID]
	if !ok {
		return nil, nil
	}
	cp := *st
	cp.Mistakes = make(map[string]int64, len(st.Mistakes))
	for k, v := range st.Mistakes {
		cp.Mistakes[k] = v
	}
	return &cp, nil
}

func (r *CountingRepo) Save(_ context.Context, state *models.CountingChannel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *state
	cp.Mistakes = make(map[string]int64, len(state.Mistakes))
	for k, v := range state.Mistakes {
		cp.Mistakes[k] = v
	}
	r.data[state.ChannelID] = &cp
	return nil
}

func (r *CountingRepo) Delete(_ context.Context, channelID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[channelID]; !ok {
		return false, nil
	}
	delete(r.data, channelID)
	return true, nil
}

// SubscriptionRepo implements repositories.SubscriptionRepository.
type SubscriptionRepo struct {
	mu   sync.Mutex
	data map[string]*models.Subscription
}

var _ repositories.SubscriptionRepository = (*SubscriptionRepo)(nil)

func (r *SubscriptionRepo) Get(_ context.Context, id string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.data[id]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (r *SubscriptionRepo) List(_ context.Context) ([]*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Subscription, 0, len(r.data))
	for _, sub := range r.data {
		cp := *sub
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *SubscriptionRepo) ListByGuild(ctx context.Context, guildID string) ([]*models.Subscription, error) {
	all, _ := r.List(ctx)
	var out []*models.Subscription
	for _, sub := range all {
		if sub.GuildID == guildID {
			out = append(out, sub)
		}
	}
	return out, nil
}

func (r *SubscriptionRepo) Add(_ context.Context, sub *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *sub
	r.data[sub.ID] = &cp
	return nil
}

func (r *SubscriptionRepo) Remove(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[id]; !ok {
		return false, nil
	}
	delete(r.data, id)
	return true, nil
}

func (r *SubscriptionRepo) SetLastSeen(_ context.Context, id, lastSeen string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.data[id]; ok {
		sub.LastSeen = lastSeen
	}
	return nil
}

func (r *SubscriptionRepo) SetUploadsPlaylist(_ context.Context, id, playlist string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sub, ok := r.data[id]; ok {
		sub.UploadsPlaylist = playlist
	}
	return nil
}

// GuildConfigRepo implements repositories.GuildConfigRepository.
type GuildConfigRepo struct {
	mu   sync.Mutex
	data map[string]*models.GuildConfig
}

var _ repositories.GuildConfigRepository = (*GuildConfigRepo)(nil)

func (r *GuildConfigRepo) Get(_ context.Context, guildID string) (*models.GuildConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cfg, ok := r.data[guildID]; ok {
		cp := *cfg
		return &cp, nil
	}
	return &models.GuildConfig{GuildID: guildID}, nil
}

func (r *GuildConfigRepo) Save(_ context.Context, cfg *models.GuildConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *cfg
	r.data[cfg.GuildID] = &cp
	return nil
}

func (r *GuildConfigRepo) NextTicket(_ context.Context, guildID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.data[guildID]
	if !ok {
		cfg = &models.GuildConfig{GuildID: guildID}
		r.data[guildID] = cfg
	}
	cfg.TicketSeq++
	return cfg.TicketSeq, nil
}
