package slots

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
)

const (
	// MinWager and MaxWager bound the total wager; the wager must also
	// cover at least one coin per purchased line.
	MinWager = 1
	MaxWager = 10_000

	// SpinCooldown is the per-user delay between spins.
	SpinCooldown = 5 * time.Second

	// sessionGap is the inactivity window after which the session
	// baseline resets.
	sessionGap = 30 * time.Minute
)

// LineWin is one paying line in a spin.
type LineWin struct {
	Line       int
	Symbol     Symbol
	Multiplier int64
	Amount     int64
	// Consolation marks a first-two-equal payout rather than a triple.
	Consolation bool
}

// MissedTriple reports a triple that landed on a line the player had
// not purchased. Informational only; it never pays.
type MissedTriple struct {
	Line   int
	Symbol Symbol
}

// SpinResult is the outcome of one spin.
type SpinResult struct {
	Window  Window
	Stops   [3]int
	Wager   int64
	Lines   int
	LineBet int64
	Payout  int64
	Wins    []LineWin
	Missed  []MissedTriple
}

// Engine runs spins against the economy and records play statistics.
type Engine struct {
	econ  *economy.Service
	stats repositories.SlotStatsRepository
	locks *lock.KeyedLock

	cooldowns sync.Map // "guild/user" -> time.Time

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

func NewEngine(econ *economy.Service, stats repositories.SlotStatsRepository) *Engine {
	return &Engine{
		econ:  econ,
		stats: stats,
		locks: lock.New(),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:   time.Now,
	}
}

// SetNow overrides the clock for tests.
func (e *Engine) SetNow(now func() time.Time) { e.now = now }

// SetRand overrides the random source for tests.
func (e *Engine) SetRand(rng *rand.Rand) { e.rng = rng }

func (e *Engine) draw() [3]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return [3]int{e.rng.Intn(ReelSize), e.rng.Intn(ReelSize), e.rng.Intn(ReelSize)}
}

// evaluate scores a window: triples and first-two-equal consolations on
// active lines pay; triples on inactive lines go to the missed list.
func evaluate(w Window, lineBet int64, lines int) (int64, []LineWin, []MissedTriple) {
	var (
		payout int64
		wins   []LineWin
		missed []MissedTriple
	)
	for n := 0; n < MaxLines; n++ {
		syms := w.lineSymbols(n)
		triple := syms[0] == syms[1] && syms[1] == syms[2]
		if n >= lines {
			if triple {
				missed = append(missed, MissedTriple{Line: n, Symbol: syms[0]})
			}
			continue
		}
		switch {
		case triple:
			mult := multipliers[syms[0]]
			amount := mult * lineBet
			payout += amount
			wins = append(wins, LineWin{Line: n, Symbol: syms[0], Multiplier: mult, Amount: amount})
		case syms[0] == syms[1]:
			amount := consolationMultiplier * lineBet
			payout += amount
			wins = append(wins, LineWin{Line: n, Symbol: syms[0], Multiplier: consolationMultiplier, Amount: amount, Consolation: true})
		}
	}
	return payout, wins, missed
}

// Spin validates the wager, deducts it, draws the reels and credits
// any winnings. The line bet is the wager split evenly across
// purchased lines, remainder discarded.
func (e *Engine) Spin(ctx context.Context, guildID, userID string, wager int64, lines int) (*SpinResult, error) {
	if lines < 1 || lines > MaxLines {
		return nil, errs.Newf(errs.InvalidArgument, "lines must be between 1 and %d", MaxLines)
	}
	if wager < MinWager || wager > MaxWager {
		return nil, errs.Newf(errs.InvalidArgument, "wager must be between %d and %d", MinWager, MaxWager)
	}
	if wager < int64(lines) {
		return nil, errs.New(errs.InvalidArgument, "wager must cover at least one coin per line")
	}

	key := guildID + "/" + userID
	var result *SpinResult
	err := e.locks.WithLock(key, func() error {
		now := e.now()
		if v, ok := e.cooldowns.Load(key); ok {
			if expiry := v.(time.Time); now.Before(expiry) {
				return errs.Newf(errs.Conflict, "the reels are still spinning, try again in %s",
					expiry.Sub(now).Round(time.Second))
			}
		}

		ok, err := e.econ.RemoveBalance(ctx, guildID, userID, wager)
		if err != nil {
			return err
		}
		if !ok {
			return errs.Newf(errs.InsufficientFunds, "you need %d coins for that wager", wager)
		}
		e.cooldowns.Store(key, now.Add(SpinCooldown))

		stops := e.draw()
		w := window(stops)
		lineBet := wager / int64(lines)
		payout, wins, missed := evaluate(w, lineBet, lines)

		if payout > 0 {
			if err := e.econ.AddBalance(ctx, guildID, userID, payout); err != nil {
				slog.Error("Slot payout credit failed",
					slog.String("type", "game"),
					slog.String("guild_id", guildID),
					slog.String("user_id", userID),
					slog.Int64("amount", payout),
					slog.Any("error", err))
			}
		}
		e.record(ctx, guildID, userID, wager, payout, now)

		result = &SpinResult{
			Window:  w,
			Stops:   stops,
			Wager:   wager,
			Lines:   lines,
			LineBet: lineBet,
			Payout:  payout,
			Wins:    wins,
			Missed:  missed,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// record updates persistent stats. After 30 minutes of inactivity the
// session baseline snaps to the current totals so session deltas start
// from zero.
func (e *Engine) record(ctx context.Context, guildID, userID string, wager, payout int64, now time.Time) {
	st, err := e.stats.Get(ctx, guildID, userID)
	if err != nil {
		slog.Error("Slot stats load failed",
			slog.String("type", "db"),
			slog.String("guild_id", guildID),
			slog.Any("error", err))
		return
	}
	if st.LastPlay.IsZero() || now.Sub(st.LastPlay) > sessionGap {
		st.SessionSpins = st.Spins
		st.SessionBetTotal = st.BetTotal
		st.SessionWinTotal = st.WinTotal
		st.SessionNet = st.Net
	}
	st.Spins++
	st.BetTotal += wager
	st.WinTotal += payout
	st.Net += payout - wager
	if payout > st.BiggestWin {
		st.BiggestWin = payout
	}
	st.LastPlay = now
	if err := e.stats.Save(ctx, st); err != nil {
		slog.Error("Slot stats save failed",
			slog.String("type", "db"),
			slog.String("guild_id", guildID),
			slog.Any("error", err))
	}
}

// StatsView is a member's aggregate record plus the current-session
// deltas.
type StatsView struct {
	models.SlotStats
	SessionDeltaSpins int64
	SessionDeltaBet   int64
	SessionDeltaWin   int64
	SessionDeltaNet   int64
}

// Stats returns the member's record with session deltas computed
// against the baseline.
func (e *Engine) Stats(ctx context.Context, guildID, userID string) (*StatsView, error) {
	st, err := e.stats.Get(ctx, guildID, userID)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, "load slot stats", err)
	}
	return &StatsView{
		SlotStats:         *st,
		SessionDeltaSpins: st.Spins - st.SessionSpins,
		SessionDeltaBet:   st.BetTotal - st.SessionBetTotal,
		SessionDeltaWin:   st.WinTotal - st.SessionWinTotal,
		SessionDeltaNet:   st.Net - st.SessionNet,
	}, nil
}
