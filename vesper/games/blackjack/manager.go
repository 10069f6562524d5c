package blackjack

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/vesperbot/vesper/vesper/database/models"
	"github.com/vesperbot/vesper/vesper/database/repositories"
	"github.com/vesperbot/vesper/vesper/economy"
	"github.com/vesperbot/vesper/vesper/errs"
	"github.com/vesperbot/vesper/vesper/pkg/lock"
	"github.com/vesperbot/vesper/vesper/scheduler"
)

const (
	// RefundDelay is how long a session may sit untouched before the
	// fail-safe returns the wager.
	RefundDelay = 60 * time.Second

	// DefaultCooldownSeconds applies when a guild has not configured a
	// hand cooldown; MinCooldownSeconds is the floor for configured
	// values.
	DefaultCooldownSeconds = 15
	MinCooldownSeconds     = 10
)

// Outcome classifies a resolved hand.
type Outcome string

const (
	OutcomeWin       Outcome = "win"
	OutcomeBlackjack Outcome = "blackjack"
	OutcomePush      Outcome = "push"
	OutcomeLoss      Outcome = "loss"
	OutcomeRefund    Outcome = "refund"
)

// Session is one hand of blackjack. At most one non-finished session
// exists per guild member.
type Session struct {
	GuildID string
	UserID  string
	// Wager is the amount at stake; it doubles on a double down and
	// always equals the total deducted from the player.
	Wager    int64
	Player   Hand
	Dealer   Hand
	Doubled  bool
	Finished bool
	Refunded bool

	shoe      *Shoe
	createdAt time.Time
}

// CanDouble reports whether a double down is currently permitted,
// ignoring the balance check.
func (s *Session) CanDouble() bool {
	return !s.Finished && len(s.Player) == 2
}

// Result describes a resolved hand. Payout is the amount re-credited,
// including the returned wager; zero means the wager is lost.
type Result struct {
	Outcome     Outcome
	Payout      int64
	PlayerTotal int
	DealerTotal int
}

// Manager runs blackjack sessions: admission, cooldowns, the dealer,
// payout resolution and the fail-safe refund timer.
type Manager struct {
	econ     *economy.Service
	stats    repositories.BlackjackStatsRepository
	guildCfg repositories.GuildConfigRepository
	sched    *scheduler.Scheduler

	sessions  sync.Map // "guild/user" -> *Session
	cooldowns sync.Map // "guild/user" -> time.Time
	locks     *lock.KeyedLock

	now         func() time.Time
	newShoe     func() *Shoe
	refundDelay time.Duration

	// OnRefund, when set, is called after the fail-safe returns a
	// wager so the player can be notified.
	OnRefund func(s *Session)
}

func NewManager(
	econ *economy.Service,
	stats repositories.BlackjackStatsRepository,
	guildCfg repositories.GuildConfigRepository,
	sched *scheduler.Scheduler,
) *Manager {
	return &Manager{
		econ:        econ,
		stats:       stats,
		guildCfg:    guildCfg,
		sched:       sched,
		locks:       lock.New(),
		now:         time.Now,
		newShoe:     func() *Shoe { return NewShoe(rand.New(rand.NewSource(time.Now().UnixNano()))) },
		refundDelay: RefundDelay,
	}
}

// SetNow overrides the clock for tests.
func (m *Manager) SetNow(now func() time.Time) { m.now = now }

// SetShoeFactory overrides how session shoes are built, letting tests
// pin the deal order.
func (m *Manager) SetShoeFactory(f func() *Shoe) { m.newShoe = f }

// SetRefundDelay shortens the fail-safe timer for tests.
func (m *Manager) SetRefundDelay(d time.Duration) { m.refundDelay = d }

func sessionKey(guildID, userID string) string { return guildID + "/" + userID }

func refundTimerID(key string) string { return "bj-refund:" + key }

// Session returns the member's open session, if any.
func (m *Manager) Session(guildID, userID string) (*Session, bool) {
	v, ok := m.sessions.Load(sessionKey(guildID, userID))
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

func (m *Manager) cooldown(ctx context.Context, guildID string) time.Duration {
	secs := int64(DefaultCooldownSeconds)
	if cfg, err := m.guildCfg.Get(ctx, guildID); err == nil && cfg.BlackjackCooldownSeconds > 0 {
		secs = cfg.BlackjackCooldownSeconds
	}
	if secs < MinCooldownSeconds {
		secs = MinCooldownSeconds
	}
	return time.Duration(secs) * time.Second
}

// Begin admits a new hand: rejects open sessions and active cooldowns,
// deducts the wager, starts the cooldown, deals, and arms the refund
// fail-safe. When either side is dealt a natural the hand resolves
// immediately and a Result is returned alongside the session.
func (m *Manager) Begin(ctx context.Context, guildID, userID string, wager int64) (*Session, *Result, error) {
	if wager < 1 {
		return nil, nil, errs.New(errs.InvalidArgument, "wager must be at least 1 coin")
	}

	key := sessionKey(guildID, userID)
	var (
		session *Session
		result  *Result
	)
	err := m.locks.WithLock(key, func() error {
		if v, ok := m.sessions.Load(key); ok && !v.(*Session).Finished {
			return errs.New(errs.Conflict, "you already have a hand in progress")
		}
		now := m.now()
		if v, ok := m.cooldowns.Load(key); ok {
			if expiry := v.(time.Time); now.Before(expiry) {
				return errs.Newf(errs.Conflict, "slow down, next hand in %s",
					expiry.Sub(now).Round(time.Second))
			}
		}

		ok, err := m.econ.RemoveBalance(ctx, guildID, userID, wager)
		if err != nil {
			return err
		}
		if !ok {
			return errs.Newf(errs.InsufficientFunds, "you need %d coins for that wager", wager)
		}
		// Cooldown starts only once the wager is committed.
		m.cooldowns.Store(key, now.Add(m.cooldown(ctx, guildID)))

		shoe := m.newShoe()
		session = &Session{
			GuildID:   guildID,
			UserID:    userID,
			Wager:     wager,
			Player:    Hand{shoe.Draw(), shoe.Draw()},
			Dealer:    Hand{shoe.Draw(), shoe.Draw()},
			shoe:      shoe,
			createdAt: now,
		}
		m.sessions.Store(key, session)
		m.armRefund(key)

		if session.Player.IsNatural() || session.Dealer.IsNatural() {
			result = m.resolve(ctx, session)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return session, result, nil
}

// Hit deals the player one card, resolving the hand on a bust.
func (m *Manager) Hit(ctx context.Context, guildID, userID string) (*Session, *Result, error) {
	return m.act(ctx, guildID, userID, func(s *Session) (*Result, error) {
		s.Player = append(s.Player, s.shoe.Draw())
		if s.Player.IsBust() {
			return m.resolve(ctx, s), nil
		}
		return nil, nil
	})
}

// Stand lets the dealer play out and resolves the hand.
func (m *Manager) Stand(ctx context.Context, guildID, userID string) (*Session, *Result, error) {
	return m.act(ctx, guildID, userID, func(s *Session) (*Result, error) {
		m.dealerPlay(s)
		return m.resolve(ctx, s), nil
	})
}

// Double doubles the wager, deals exactly one card, then plays the
// dealer and resolves. Only permitted on the first two cards with
// enough balance to match the wager.
func (m *Manager) Double(ctx context.Context, guildID, userID string) (*Session, *Result, error) {
	return m.act(ctx, guildID, userID, func(s *Session) (*Result, error) {
		if !s.CanDouble() {
			return nil, errs.New(errs.InvalidArgument, "double down is only allowed on your first two cards")
		}
		ok, err := m.econ.RemoveBalance(ctx, s.GuildID, s.UserID, s.Wager)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errs.Newf(errs.InsufficientFunds, "you need %d more coins to double down", s.Wager)
		}
		s.Wager *= 2
		s.Doubled = true
		s.Player = append(s.Player, s.shoe.Draw())
		if !s.Player.IsBust() {
			m.dealerPlay(s)
		}
		return m.resolve(ctx, s), nil
	})
}

func (m *Manager) act(ctx context.Context, guildID, userID string, fn func(*Session) (*Result, error)) (*Session, *Result, error) {
	key := sessionKey(guildID, userID)
	var (
		session *Session
		result  *Result
	)
	err := m.locks.WithLock(key, func() error {
		v, ok := m.sessions.Load(key)
		if !ok {
			return errs.New(errs.NotFound, "you have no hand in progress")
		}
		session = v.(*Session)
		if session.Finished {
			return errs.New(errs.NotFound, "that hand is already over")
		}
		var err error
		result, err = fn(session)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return session, result, nil
}

func (m *Manager) dealerPlay(s *Session) {
	for s.Dealer.Total() < 17 {
		s.Dealer = append(s.Dealer, s.shoe.Draw())
	}
}

// payout computes the resolution amount for the current wager W.
func payout(s *Session) (int64, Outcome) {
	w := s.Wager
	playerNatural := s.Player.IsNatural()
	dealerNatural := s.Dealer.IsNatural()
	pv, dv := s.Player.Total(), s.Dealer.Total()

	switch {
	case s.Player.IsBust():
		return 0, OutcomeLoss
	case playerNatural && dealerNatural:
		return w, OutcomePush
	case playerNatural && !s.Doubled:
		return w * 5 / 2, OutcomeBlackjack
	case dealerNatural:
		return 0, OutcomeLoss
	case s.Dealer.IsBust():
		return 2 * w, OutcomeWin
	case pv > dv:
		return 2 * w, OutcomeWin
	case pv == dv:
		return w, OutcomePush
	default:
		return 0, OutcomeLoss
	}
}

// resolve applies the payout table, credits winnings, records stats,
// disarms the fail-safe and closes the session. Callers hold the
// session lock.
func (m *Manager) resolve(ctx context.Context, s *Session) *Result {
	key := sessionKey(s.GuildID, s.UserID)
	amount, outcome := payout(s)
	s.Finished = true
	m.sched.Cancel(refundTimerID(key))
	m.sessions.Delete(key)

	if amount > 0 {
		if err := m.econ.AddBalance(ctx, s.GuildID, s.UserID, amount); err != nil {
			slog.Error("Blackjack payout credit failed",
				slog.String("type", "game"),
				slog.String("guild_id", s.GuildID),
				slog.String("user_id", s.UserID),
				slog.Int64("amount", amount),
				slog.Any("error", err))
		}
	}
	m.recordResult(ctx, s, outcome)

	return &Result{
		Outcome:     outcome,
		Payout:      amount,
		PlayerTotal: s.Player.Total(),
		DealerTotal: s.Dealer.Total(),
	}
}

func (m *Manager) recordResult(ctx context.Context, s *Session, outcome Outcome) {
	st, err := m.stats.Get(ctx, s.GuildID, s.UserID)
	if err != nil {
		slog.Error("Blackjack stats load failed",
			slog.String("type", "db"),
			slog.String("guild_id", s.GuildID),
			slog.Any("error", err))
		return
	}
	st.Hands++
	switch outcome {
	case OutcomeWin:
		st.Wins++
	case OutcomeBlackjack:
		st.Wins++
		st.Blackjacks++
	case OutcomePush:
		st.Pushes++
		if s.Player.IsNatural() {
			st.Blackjacks++
		}
	case OutcomeLoss:
		st.Losses++
	}
	if s.Doubled {
		st.Doubles++
	}
	if s.Wager > st.BiggestWager {
		st.BiggestWager = s.Wager
	}
	if err := m.stats.Save(ctx, st); err != nil {
		slog.Error("Blackjack stats save failed",
			slog.String("type", "db"),
			slog.String("guild_id", s.GuildID),
			slog.Any("error", err))
	}
}

// armRefund schedules (or re-schedules) the fail-safe one-shot.
func (m *Manager) armRefund(key string) {
	m.sched.Once(refundTimerID(key), m.refundDelay, func(ctx context.Context) {
		m.refund(ctx, key)
	})
}

// RescheduleRefund re-arms the fail-safe after an interaction update
// failed to reach the chat platform.
func (m *Manager) RescheduleRefund(guildID, userID string) {
	m.armRefund(sessionKey(guildID, userID))
}

func (m *Manager) refund(ctx context.Context, key string) {
	var refunded *Session
	_ = m.locks.WithLock(key, func() error {
		v, ok := m.sessions.Load(key)
		if !ok {
			return nil
		}
		s := v.(*Session)
		if s.Finished || s.Refunded {
			return nil
		}
		s.Refunded = true
		s.Finished = true
		m.sessions.Delete(key)
		if err := m.econ.AddBalance(ctx, s.GuildID, s.UserID, s.Wager); err != nil {
			slog.Error("Blackjack refund credit failed",
				slog.String("type", "game"),
				slog.String("guild_id", s.GuildID),
				slog.String("user_id", s.UserID),
				slog.Int64("amount", s.Wager),
				slog.Any("error", err))
			return nil
		}
		refunded = s
		return nil
	})
	if refunded == nil {
		return
	}
	slog.Warn("Blackjack session refunded by fail-safe",
		slog.String("type", "game"),
		slog.String("guild_id", refunded.GuildID),
		slog.String("user_id", refunded.UserID),
		slog.Int64("wager", refunded.Wager))
	if m.OnRefund != nil {
		m.OnRefund(refunded)
	}
}

// Stats returns the member's aggregate blackjack record.
func (m *Manager) Stats(ctx context.Context, guildID, userID string) (*models.BlackjackStats, error) {
	st, err := m.stats.Get(ctx, guildID, userID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "load blackjack stats", err)
	}
	return st, nil
}
