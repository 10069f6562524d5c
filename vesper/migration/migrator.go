// Package migration imports state from the previous deployment, which kept
// everything in MongoDB, into the Postgres schema. It runs once, behind the
// -migrate-legacy flag, and is idempotent: re-runs skip rows that already
// exist.
package migration

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/vesperbot/vesper/vesper/database/models"
)

type Migrator struct {
	pgDB      *bun.DB
	mongoDB   *mongo.Database
	batchSize int
	stats     MigrationStats
	// Mongo collection names (overrideable)
	collNames map[string]string
}

func NewMigrator(pgDB *bun.DB) *Migrator {
	return &Migrator{
		pgDB:      pgDB,
		batchSize: 500,
		stats: MigrationStats{
			Tables:    make(map[string]*TableStats),
			StartTime: time.Now(),
		},
		collNames: map[string]string{
			"economy":    "economy",
			"wordlists":  "wordlists",
			"followings": "followings",
			"counting":   "counting",
		},
	}
}

// UseMongo enables direct-from-Mongo migration mode.
func (m *Migrator) UseMongo(client *mongo.Client, dbName string) {
	if client != nil && dbName != "" {
		m.mongoDB = client.Database(dbName)
	}
}

// SetMongoCollectionName overrides the collection name for a given kind.
func (m *Migrator) SetMongoCollectionName(kind, name string) {
	if kind != "" && name != "" {
		m.collNames[kind] = name
	}
}

func (m *Migrator) getColl(kind string) *mongo.Collection {
	if m.mongoDB == nil {
		return nil
	}
	return m.mongoDB.Collection(m.collNames[kind])
}

// MigrateAll imports every legacy collection. Order does not matter, the
// four target table groups are independent.
func (m *Migrator) MigrateAll(ctx context.Context) error {
	if m.mongoDB == nil {
		return fmt.Errorf("mongoDB not configured; call UseMongo first")
	}

	logProgress("Starting legacy MongoDB migration")
	m.stats.StartTime = time.Now()

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"economy", m.MigrateEconomy},
		{"wordlists", m.MigrateWordlists},
		{"followings", m.MigrateFollowings},
		{"counting", m.MigrateCounting},
	}

	for _, s := range steps {
		logProgress(fmt.Sprintf("Starting migration step: %s", s.name))
		if err := s.fn(ctx); err != nil {
			return fmt.Errorf("migration failed at step %s: %w", s.name, err)
		}
		logProgress(fmt.Sprintf("Completed migration step: %s", s.name))
	}

	m.stats.EndTime = time.Now()
	m.logFinalStats()
	return nil
}

// MigrateEconomy imports balances, daily-claim timestamps and item
// inventories from the legacy economy collection.
func (m *Migrator) MigrateEconomy(ctx context.Context) error {
	m.initTableStats("balances")
	col := m.getColl("economy")
	cur, err := col.Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to query economy: %w", err)
	}
	defer cur.Close(ctx)

	var balances []*models.Balance
	var claims []*models.DailyClaim
	var inventory []*models.InventoryEntry

	flush := func() error {
		if err := m.insertBalances(ctx, balances); err != nil {
			return err
		}
		if err := m.insertClaims(ctx, claims); err != nil {
			return err
		}
		if err := m.insertInventory(ctx, inventory); err != nil {
			return err
		}
		balances, claims, inventory = balances[:0], claims[:0], inventory[:0]
		return nil
	}

	for cur.Next(ctx) {
		var me MongoEconomy
		if err := cur.Decode(&me); err != nil {
			m.recordError("balances", err.Error())
			continue
		}
		m.recordProcessed("balances")
		if me.Guild == "" || me.User == "" {
			m.recordSkipped("balances", "missing guild or user id")
			continue
		}
		balances = append(balances, &models.Balance{
			GuildID:   me.Guild,
			UserID:    me.User,
			Balance:   me.Balance,
			UpdatedAt: time.Now().UTC(),
		})
		if !me.LastDaily.IsZero() {
			claims = append(claims, &models.DailyClaim{
				GuildID:   me.Guild,
				UserID:    me.User,
				LastClaim: me.LastDaily.UTC(),
			})
		}
		for item, count := range me.Items {
			if count <= 0 {
				continue
			}
			inventory = append(inventory, &models.InventoryEntry{
				GuildID:  me.Guild,
				UserID:   me.User,
				ItemName: item,
				Count:    count,
			})
		}
		m.recordSuccessful("balances")
		if len(balances) >= m.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}
	return flush()
}

// MigrateWordlists imports phrase rules. The legacy deployment kept three
// lists per guild (ban, kick, mute) whose entries were either bare phrase
// strings or structured documents; both shapes normalize into PhraseRule
// rows here.
func (m *Migrator) MigrateWordlists(ctx context.Context) error {
	m.initTableStats("phrase_rules")
	col := m.getColl("wordlists")
	cur, err := col.Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to query wordlists: %w", err)
	}
	defer cur.Close(ctx)

	var rules []*models.PhraseRule
	for cur.Next(ctx) {
		var mw MongoWordlist
		if err := cur.Decode(&mw); err != nil {
			m.recordError("phrase_rules", err.Error())
			continue
		}
		lists := []struct {
			kind    string
			entries []bson.RawValue
		}{
			{models.RuleKindBan, mw.BanList},
			{models.RuleKindKick, mw.KickList},
			{models.RuleKindMute, mw.MuteList},
		}
		for _, l := range lists {
			for _, raw := range l.entries {
				m.recordProcessed("phrase_rules")
				rule, err := normalizeWordlistEntry(mw.Guild, l.kind, raw)
				if err != nil {
					m.recordSkipped("phrase_rules", err.Error())
					continue
				}
				rules = append(rules, rule)
				m.recordSuccessful("phrase_rules")
			}
		}
		if len(rules) >= m.batchSize {
			if err := m.insertRules(ctx, rules); err != nil {
				return err
			}
			rules = rules[:0]
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}
	return m.insertRules(ctx, rules)
}

// normalizeWordlistEntry upgrades a legacy list entry into a PhraseRule. A
// bare string carries only the phrase; a document may add reason, duration
// and a guild override.
func normalizeWordlistEntry(guildID, kind string, raw bson.RawValue) (*models.PhraseRule, error) {
	rule := &models.PhraseRule{Kind: kind, GuildID: guildID}
	switch raw.Type {
	case bsontype.String:
		rule.Phrase = strings.ToLower(strings.TrimSpace(raw.StringValue()))
	case bsontype.EmbeddedDocument:
		var e MongoWordlistEntry
		if err := raw.Unmarshal(&e); err != nil {
			return nil, fmt.Errorf("malformed entry: %w", err)
		}
		rule.Phrase = strings.ToLower(strings.TrimSpace(e.Phrase))
		rule.Reason = e.Reason
		if kind == models.RuleKindMute && e.Duration > 0 {
			rule.DurationSeconds = e.Duration
		}
		if e.Guild != "" {
			rule.GuildID = e.Guild
		}
	default:
		return nil, fmt.Errorf("unsupported entry type %s", raw.Type)
	}
	if rule.Phrase == "" {
		return nil, fmt.Errorf("empty phrase")
	}
	return rule, nil
}

// MigrateFollowings imports feed subscriptions. Subscription IDs are
// rebuilt as platform:identifier:channel, matching what Follow would have
// produced, so re-registering after migration reports a duplicate instead
// of double-posting.
func (m *Migrator) MigrateFollowings(ctx context.Context) error {
	m.initTableStats("subscriptions")
	col := m.getColl("followings")
	cur, err := col.Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to query followings: %w", err)
	}
	defer cur.Close(ctx)

	var subs []*models.Subscription
	for cur.Next(ctx) {
		var mf MongoFollowing
		if err := cur.Decode(&mf); err != nil {
			m.recordError("subscriptions", err.Error())
			continue
		}
		m.recordProcessed("subscriptions")
		sub, err := convertFollowing(mf)
		if err != nil {
			m.recordSkipped("subscriptions", err.Error())
			continue
		}
		subs = append(subs, sub)
		m.recordSuccessful("subscriptions")
		if len(subs) >= m.batchSize {
			if err := m.insertSubscriptions(ctx, subs); err != nil {
				return err
			}
			subs = subs[:0]
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}
	return m.insertSubscriptions(ctx, subs)
}

func convertFollowing(mf MongoFollowing) (*models.Subscription, error) {
	platform := strings.ToLower(strings.TrimSpace(mf.Platform))
	switch platform {
	case models.PlatformYouTube, models.PlatformTwitch:
	default:
		return nil, fmt.Errorf("unknown platform %q", mf.Platform)
	}
	identifier := strings.ToLower(strings.TrimSpace(mf.Identifier))
	if identifier == "" || mf.Guild == "" || mf.Channel == "" {
		return nil, fmt.Errorf("missing identifier, guild or channel")
	}
	ping := mf.Ping
	switch ping {
	case models.PingEveryone, models.PingRole:
	default:
		ping = models.PingNone
	}
	if ping == models.PingRole && mf.PingRole == "" {
		ping = models.PingNone
	}
	return &models.Subscription{
		ID:            fmt.Sprintf("%s:%s:%s", platform, identifier, mf.Channel),
		GuildID:       mf.Guild,
		Platform:      platform,
		Identifier:    mf.Identifier,
		NormalizedID:  identifier,
		PostChannelID: mf.Channel,
		Message:       mf.Message,
		PingPolicy:    ping,
		PingRoleID:    mf.PingRole,
		Thumbnail:     mf.Thumbnail,
		LastSeen:      mf.LastSeen,
	}, nil
}

// MigrateCounting imports counting-channel state.
func (m *Migrator) MigrateCounting(ctx context.Context) error {
	m.initTableStats("counting_channels")
	col := m.getColl("counting")
	cur, err := col.Find(ctx, bson.D{})
	if err != nil {
		return fmt.Errorf("failed to query counting: %w", err)
	}
	defer cur.Close(ctx)

	var channels []*models.CountingChannel
	for cur.Next(ctx) {
		var mc MongoCounting
		if err := cur.Decode(&mc); err != nil {
			m.recordError("counting_channels", err.Error())
			continue
		}
		m.recordProcessed("counting_channels")
		if mc.Guild == "" || mc.Channel == "" {
			m.recordSkipped("counting_channels", "missing guild or channel id")
			continue
		}
		lastUser := mc.LastUser
		if mc.Count == 0 {
			lastUser = ""
		}
		channels = append(channels, &models.CountingChannel{
			ChannelID: mc.Channel,
			GuildID:   mc.Guild,
			LastCount: mc.Count,
			LastUser:  lastUser,
			Chances:   mc.Chances,
			Mistakes:  mc.Mistakes,
		})
		m.recordSuccessful("counting_channels")
		if len(channels) >= m.batchSize {
			if err := m.insertCounting(ctx, channels); err != nil {
				return err
			}
			channels = channels[:0]
		}
	}
	if err := cur.Err(); err != nil {
		return err
	}
	return m.insertCounting(ctx, channels)
}

func (m *Migrator) insertBalances(ctx context.Context, rows []*models.Balance) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := m.pgDB.NewInsert().
		Model(&rows).
		On("CONFLICT (guild_id, user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("batch insert of balances failed: %w", err)
	}
	return nil
}

func (m *Migrator) insertClaims(ctx context.Context, rows []*models.DailyClaim) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := m.pgDB.NewInsert().
		Model(&rows).
		On("CONFLICT (guild_id, user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("batch insert of daily claims failed: %w", err)
	}
	return nil
}

func (m *Migrator) insertInventory(ctx context.Context, rows []*models.InventoryEntry) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := m.pgDB.NewInsert().
		Model(&rows).
		On("CONFLICT (guild_id, user_id, item_name) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("batch insert of inventory failed: %w", err)
	}
	return nil
}

func (m *Migrator) insertRules(ctx context.Context, rows []*models.PhraseRule) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := m.pgDB.NewInsert().
		Model(&rows).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("batch insert of phrase rules failed: %w", err)
	}
	return nil
}

func (m *Migrator) insertSubscriptions(ctx context.Context, rows []*models.Subscription) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := m.pgDB.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("batch insert of subscriptions failed: %w", err)
	}
	return nil
}

func (m *Migrator) insertCounting(ctx context.Context, rows []*models.CountingChannel) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := m.pgDB.NewInsert().
		Model(&rows).
		On("CONFLICT (channel_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("batch insert of counting channels failed: %w", err)
	}
	return nil
}

func logProgress(message string) {
	slog.Info(message, slog.String("type", "db"), slog.String("service", "legacy-migration"))
}

func (m *Migrator) logFinalStats() {
	duration := m.stats.EndTime.Sub(m.stats.StartTime)
	slog.Info("Migration completed",
		slog.String("type", "db"),
		slog.Duration("duration", duration),
		slog.Int("total_processed", m.stats.TotalProcessed),
		slog.Int("total_skipped", m.stats.TotalSkipped),
		slog.Int("total_errors", m.stats.TotalErrors))

	for tableName, stats := range m.stats.Tables {
		slog.Info("Table migration stats",
			slog.String("type", "db"),
			slog.String("table", tableName),
			slog.Int("processed", stats.Processed),
			slog.Int("successful", stats.Successful),
			slog.Int("skipped", stats.Skipped),
			slog.Int("errors", stats.Errors))
	}
}

func (m *Migrator) initTableStats(tableName string) {
	m.stats.Tables[tableName] = &TableStats{TableName: tableName}
}

func (m *Migrator) recordProcessed(tableName string) {
	if stats, ok := m.stats.Tables[tableName]; ok {
		stats.Processed++
		m.stats.TotalProcessed++
	}
}

func (m *Migrator) recordSuccessful(tableName string) {
	if stats, ok := m.stats.Tables[tableName]; ok {
		stats.Successful++
	}
}

func (m *Migrator) recordSkipped(tableName, reason string) {
	if stats, ok := m.stats.Tables[tableName]; ok {
		stats.Skipped++
		stats.Notes = append(stats.Notes, reason)
		m.stats.TotalSkipped++
	}
}

func (m *Migrator) recordError(tableName, errorMsg string) {
	if stats, ok := m.stats.Tables[tableName]; ok {
		stats.Errors++
		stats.Notes = append(stats.Notes, errorMsg)
		m.stats.TotalErrors++
	}
}
