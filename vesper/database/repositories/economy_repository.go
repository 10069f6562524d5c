package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/vesperbot/vesper/vesper/database/models"
)

// BalanceRepository reads and writes guild member balances. Missing rows
// read as zero. Atomicity of read-modify-write sequences is the caller's
// concern; the economy service holds a per-(guild,user) lock around them.
type BalanceRepository interface {
	Get(ctx context.Context, guildID, userID string) (int64, error)
	Set(ctx context.Context, guildID, userID string, balance int64) error
	ListByGuild(ctx context.Context, guildID string) ([]*models.Balance, error)
	DeleteGuild(ctx context.Context, guildID string) error
}

type balanceRepository struct {
	db *bun.DB
}

func NewBalanceRepository(db *bun.DB) BalanceRepository {
	return &balanceRepository{db: db}
}

func (r *balanceRepository) Get(ctx context.Context, guildID, userID string) (int64, error) {
	bal := new(models.Balance)
	err := r.db.NewSelect().
		Model(bal).
		Where("guild_id = ?", guildID).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return bal.Balance, nil
}

func (r *balanceRepository) Set(ctx context.Context, guildID, userID string, balance int64) error {
	bal := &models.Balance{
		GuildID:   guildID,
		UserID:    userID,
		Balance:   balance,
		UpdatedAt: time.Now(),
	}
	_, err := r.db.NewInsert().
		Model(bal).
		On("CONFLICT (guild_id, user_id) DO UPDATE").
		Set("balance = EXCLUDED.balance").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (r *balanceRepository) ListByGuild(ctx context.Context, guildID string) ([]*models.Balance, error) {
	var balances []*models.Balance
	err := r.db.NewSelect().
		Model(&balances).
		Where("guild_id = ?", guildID).
		Order("balance DESC").
		Scan(ctx)
	return balances, err
}

func (r *balanceRepository) DeleteGuild(ctx context.Context, guildID string) error {
	_, err := r.db.NewDelete().
		Model((*models.Balance)(nil)).
		Where("guild_id = ?", guildID).
		Exec(ctx)
	return err
}

// DailyClaimRepository tracks the last daily claim per guild member.
type DailyClaimRepository interface {
	// LastClaim returns the recorded claim time; ok is false when the
	// member has never claimed.
	LastClaim(ctx context.Context, guildID, userID string) (t time.Time, ok bool, err error)
	SetLastClaim(ctx context.Context, guildID, userID string, t time.Time) error
}

type dailyClaimRepository struct {
	db *bun.DB
}

func NewDailyClaimRepository(db *bun.DB) DailyClaimRepository {
	return &dailyClaimRepository{db: db}
}

func (r *dailyClaimRepository) LastClaim(ctx context.Context, guildID, userID string) (time.Time, bool, error) {
	claim := new(models.DailyClaim)
	err := r.db.NewSelect().
		Model(claim).
		Where("guild_id = ?", guildID).
		Where("user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return claim.LastClaim, true, nil
}

func (r *dailyClaimRepository) SetLastClaim(ctx context.Context, guildID, userID string, t time.Time) error {
	claim := &models.DailyClaim{
		GuildID:   guildID,
		UserID:    userID,
		LastClaim: t,
	}
	_, err := r.db.NewInsert().
		Model(claim).
		On("CONFLICT (guild_id, user_id) DO UPDATE").
		Set("last_claim = EXCLUDED.last_claim").
		Exec(ctx)
	return err
}
