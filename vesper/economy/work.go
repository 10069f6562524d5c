package economy

import (
	"context"
	"time"

	"github.com/vesperbot/vesper/vesper/errs"
)

const (
	WorkRewardMin = 1_000
	WorkRewardMax = 7_500

	DefaultWorkCooldown = 10 * time.Minute
	MinWorkCooldown     = 60 * time.Second
)

// Work pays a random reward once per cooldown window. The clock lives
// in memory only; a restart resets it, which is acceptable for a
// flavor command. A cooldown ≤ 0 falls back to the default.
func (s *Service) Work(ctx context.Context, guildID, userID string, cooldown time.Duration) (int64, error) {
	if cooldown <= 0 {
		cooldown = DefaultWorkCooldown
	}

	key := balanceKey(guildID, userID)
	now := s.now()
	if v, ok := s.work.Load(key); ok {
		if remaining := cooldown - now.Sub(v.(time.Time)); remaining > 0 {
			return 0, errs.Newf(errs.Conflict, "You need to rest for %s before working again.", remaining.Round(time.Second))
		}
	}

	reward := WorkRewardMin + s.rand.Int63n(WorkRewardMax-WorkRewardMin+1)
	if err := s.AddBalance(ctx, guildID, userID, reward); err != nil {
		return 0, err
	}
	s.work.Store(key, now)
	return reward, nil
}
