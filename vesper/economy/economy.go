// Package economy implements guild-scoped balances, atomic transfers, the
// calendar-gated daily reward and leaderboards.
package economy

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/vesperbot/vesper/vesper/database/models"
	"github.com/vesperbot/vesper/vesper/database/repositories"
	"github.com/vesperbot/vesper/vesper/errs"
	"github.com/vesperbot/vesper/vesper/pkg/lock"
)

const (
	DailyRewardMin = 10_000
	DailyRewardMax = 100_000
)

// Service serializes every balance mutation for one (guild, user) behind a
// keyed lock; the store write completes before the lock is released, so
// concurrent transfers over the same account cannot interleave.
type Service struct {
	balances repositories.BalanceRepository
	daily    repositories.DailyClaimRepository
	locks    *lock.KeyedLock

	now  func() time.Time
	rand *rand.Rand

	work sync.Map // guild/user -> last work time.Time
}

func New(balances repositories.BalanceRepository, daily repositories.DailyClaimRepository) *Service {
	return &Service{
		balances: balances,
		daily:    daily,
		locks:    lock.New(),
		now:      time.Now,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetNow overrides the clock; tests use it to cross day boundaries.
func (s *Service) SetNow(now func() time.Time) { s.now = now }

func balanceKey(guildID, userID string) string {
	return guildID + "/" + userID
}

// GetBalance returns the member's balance; missing members read as zero.
func (s *Service) GetBalance(ctx context.Context, guildID, userID string) (int64, error) {
	bal, err := s.balances.Get(ctx, guildID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return bal, nil
}

// AddBalance atomically credits amount (≥1) to the member.
func (s *Service) AddBalance(ctx context.Context, guildID, userID string, amount int64) error {
	if amount < 1 {
		return errs.Newf(errs.InvalidArgument, "amount must be at least 1, got %d", amount)
	}
	return s.locks.WithLock(balanceKey(guildID, userID), func() error {
		bal, err := s.balances.Get(ctx, guildID, userID)
		if err != nil {
			return fmt.Errorf("failed to read balance: %w", err)
		}
		return s.balances.Set(ctx, guildID, userID, bal+amount)
	})
}

// RemoveBalance atomically debits amount if the member holds at least that
// much. It reports whether the debit happened.
func (s *Service) RemoveBalance(ctx context.Context, guildID, userID string, amount int64) (bool, error) {
	if amount < 1 {
		return false, errs.Newf(errs.InvalidArgument, "amount must be at least 1, got %d", amount)
	}
	ok := false
	err := s.locks.WithLock(balanceKey(guildID, userID), func() error {
		bal, err := s.balances.Get(ctx, guildID, userID)
		if err != nil {
			return fmt.Errorf("failed to read balance: %w", err)
		}
		if bal < amount {
			return nil
		}
		if err := s.balances.Set(ctx, guildID, userID, bal-amount); err != nil {
			return err
		}
		ok = true
		return nil
	})
	return ok, err
}

// Transfer moves amount between two members in a single critical section.
// Insufficient funds fails without side effect; self transfers are
// rejected. The caller screens non-human recipients before calling.
func (s *Service) Transfer(ctx context.Context, guildID, fromID, toID string, amount int64) error {
	if amount < 1 {
		return errs.Newf(errs.InvalidArgument, "amount must be at least 1, got %d", amount)
	}
	if fromID == toID {
		return errs.New(errs.InvalidArgument, "You can't pay yourself.")
	}
	return s.locks.WithLock2(balanceKey(guildID, fromID), balanceKey(guildID, toID), func() error {
		fromBal, err := s.balances.Get(ctx, guildID, fromID)
		if err != nil {
			return fmt.Errorf("failed to read sender balance: %w", err)
		}
		if fromBal < amount {
			return errs.New(errs.InsufficientFunds, "You don't have enough coins for that.")
		}
		toBal, err := s.balances.Get(ctx, guildID, toID)
		if err != nil {
			return fmt.Errorf("failed to read recipient balance: %w", err)
		}
		if err := s.balances.Set(ctx, guildID, fromID, fromBal-amount); err != nil {
			return err
		}
		if err := s.balances.Set(ctx, guildID, toID, toBal+amount); err != nil {
			// Undo the debit so a partial transfer never sticks.
			if rbErr := s.balances.Set(ctx, guildID, fromID, fromBal); rbErr != nil {
				slog.Error("Transfer rollback failed",
					slog.String("type", "db"),
					slog.String("guild_id", guildID),
					slog.String("user_id", fromID),
					slog.Any("error", rbErr))
			}
			return err
		}
		return nil
	})
}

// lastUTCMidnight truncates t to the most recent 00:00 UTC.
func lastUTCMidnight(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

// CanClaimDaily reports whether the member's last claim predates the most
// recent UTC midnight.
func (s *Service) CanClaimDaily(ctx context.Context, guildID, userID string) (bool, error) {
	last, ok, err := s.daily.LastClaim(ctx, guildID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to read last claim: %w", err)
	}
	if !ok {
		return true, nil
	}
	return last.Before(lastUTCMidnight(s.now())), nil
}

// TimeUntilNextClaim is zero when claimable, otherwise the time remaining
// until the next UTC midnight.
func (s *Service) TimeUntilNextClaim(ctx context.Context, guildID, userID string) (time.Duration, error) {
	can, err := s.CanClaimDaily(ctx, guildID, userID)
	if err != nil {
		return 0, err
	}
	if can {
		return 0, nil
	}
	now := s.now()
	next := lastUTCMidnight(now).Add(24 * time.Hour)
	return next.Sub(now), nil
}

// ClaimDaily claims the daily reward, drawn uniformly from
// [DailyRewardMin, DailyRewardMax]. A second claim on the same UTC
// calendar day is a Conflict.
func (s *Service) ClaimDaily(ctx context.Context, guildID, userID string) (int64, error) {
	reward := DailyRewardMin + s.rand.Int63n(DailyRewardMax-DailyRewardMin+1)
	var claimed int64
	err := s.locks.WithLock(balanceKey(guildID, userID), func() error {
		can, err := s.CanClaimDaily(ctx, guildID, userID)
		if err != nil {
			return err
		}
		if !can {
			return errs.New(errs.Conflict, "You already claimed your daily reward today.")
		}
		bal, err := s.balances.Get(ctx, guildID, userID)
		if err != nil {
			return fmt.Errorf("failed to read balance: %w", err)
		}
		if err := s.balances.Set(ctx, guildID, userID, bal+reward); err != nil {
			return err
		}
		if err := s.daily.SetLastClaim(ctx, guildID, userID, s.now()); err != nil {
			return err
		}
		claimed = reward
		return nil
	})
	return claimed, err
}

// ListGuildBalances returns every balance in the guild, highest first.
func (s *Service) ListGuildBalances(ctx context.Context, guildID string) ([]*models.Balance, error) {
	return s.balances.ListByGuild(ctx, guildID)
}

// WipeGuild drops every balance of the guild. Inventories are wiped by the
// shop service alongside this.
func (s *Service) WipeGuild(ctx context.Context, guildID string) error {
	return s.balances.DeleteGuild(ctx, guildID)
}
