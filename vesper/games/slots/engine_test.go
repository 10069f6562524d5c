package slots

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesperbot/vesper/vesper/database/repositories/memory"
	"github.com/vesperbot/vesper/vesper/economy"
	"github.com/vesperbot/vesper/vesper/errs"
)

func newTestEngine(t *testing.T) (*Engine, *memory.Store, *economy.Service) {
	t.Helper()
	store := memory.New()
	econ := economy.New(store.Balances, store.Daily)
	return NewEngine(econ, store.SlotStats), store, econ
}

func TestReelComposition(t *testing.T) {
	for r, reel := range Reels {
		counts := make(map[Symbol]int)
		for _, s := range reel {
			counts[s]++
		}
		total := 0
		for _, c := range counts {
			total += c
		}
		assert.Equal(t, ReelSize, total, "reel %d", r)
		assert.Equal(t, 1, counts[SymSeven], "reel %d has exactly one seven", r)
		assert.Greater(t, counts[SymCherry], counts[SymBell], "reel %d skews toward cheap symbols", r)
	}
}

func uniformWindow(s Symbol) Window {
	var w Window
	for row := 0; row < 3; row++ {
		for reel := 0; reel < 3; reel++ {
			w[row][reel] = s
		}
	}
	return w
}

func TestEvaluatePaytable(t *testing.T) {
	tests := []struct {
		sym  Symbol
		mult int64
	}{
		{SymSeven, 180},
		{SymDiam, 85},
		{SymBell, 44},
		{SymClover, 22},
		{SymCherry, 11},
		{SymLemon, 11},
	}
	for _, tt := range tests {
		t.Run(string(tt.sym), func(t *testing.T) {
			payout, wins, missed := evaluate(uniformWindow(tt.sym), 20, MaxLines)
			assert.Equal(t, tt.mult*20*MaxLines, payout, "all five lines pay the triple")
			assert.Len(t, wins, MaxLines)
			assert.Empty(t, missed)
		})
	}
}

func TestEvaluateConsolationOnFirstTwoEqual(t *testing.T) {
	w := uniformWindow(SymLemon)
	// Break every triple on the third reel.
	for row := 0; row < 3; row++ {
		w[row][2] = SymSeven
	}
	payout, wins, missed := evaluate(w, 20, MaxLines)
	assert.Equal(t, int64(20*MaxLines), payout)
	for _, win := range wins {
		assert.True(t, win.Consolation)
		assert.Equal(t, int64(1), win.Multiplier)
	}
	assert.Empty(t, missed)
}

func TestEvaluateInactiveTriplesAreMissedNotPaid(t *testing.T) {
	w := uniformWindow(SymSeven)
	// Only the middle line purchased: the other four triples are
	// telemetry.
	payout, wins, missed := evaluate(w, 100, 1)
	assert.Equal(t, int64(180*100), payout)
	assert.Len(t, wins, 1)
	assert.Equal(t, 0, wins[0].Line)
	assert.Len(t, missed, 4)
	for _, m := range missed {
		assert.Equal(t, SymSeven, m.Symbol)
		assert.GreaterOrEqual(t, m.Line, 1)
	}
}

func TestEvaluateDiagonalLines(t *testing.T) {
	w := Window{
		{SymBell, SymLemon, SymCherry},
		{SymLemon, SymBell, SymLemon},
		{SymCherry, SymLemon, SymBell},
	}
	// Diagonal down-right (line 3) holds BELL BELL BELL; diagonal
	// up-right (line 4) holds CHERRY BELL CHERRY.
	payout, wins, _ := evaluate(w, 10, MaxLines)
	require.Len(t, wins, 1)
	assert.Equal(t, 3, wins[0].Line)
	assert.Equal(t, SymBell, wins[0].Symbol)
	assert.Equal(t, int64(440), payout)
}

func TestSpinValidation(t *testing.T) {
	e, _, econ := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, econ.AddBalance(ctx, "g1", "u1", 100_000))

	for _, tt := range []struct {
		name  string
		wager int64
		lines int
	}{
		{"zero lines", 100, 0},
		{"too many lines", 100, 6},
		{"zero wager", 0, 1},
		{"wager above cap", 10_001, 1},
		{"wager below lines", 3, 5},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Spin(ctx, "g1", "u1", tt.wager, tt.lines)
			require.Error(t, err)
			assert.True(t, errs.IsKind(err, errs.InvalidArgument))
		})
	}
}

func TestSpinLineBetTruncates(t *testing.T) {
	e, _, econ := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, econ.AddBalance(ctx, "g1", "u1", 1000))

	res, err := e.Spin(ctx, "g1", "u1", 103, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(20), res.LineBet, "remainder is discarded, not refunded")
}

func TestSpinCooldown(t *testing.T) {
	e, _, econ := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, econ.AddBalance(ctx, "g1", "u1", 100_000))

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e.SetNow(func() time.Time { return now })

	_, err := e.Spin(ctx, "g1", "u1", 100, 5)
	require.NoError(t, err)

	_, err = e.Spin(ctx, "g1", "u1", 100, 5)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Conflict))

	now = now.Add(SpinCooldown + time.Second)
	_, err = e.Spin(ctx, "g1", "u1", 100, 5)
	require.NoError(t, err)
}

func TestSpinUpdatesStats(t *testing.T) {
	e, store, econ := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, econ.AddBalance(ctx, "g1", "u1", 100_000))

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e.SetNow(func() time.Time { return now })

	res, err := e.Spin(ctx, "g1", "u1", 100, 5)
	require.NoError(t, err)

	st, err := store.SlotStats.Get(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Spins)
	assert.Equal(t, int64(100), st.BetTotal)
	assert.Equal(t, res.Payout, st.WinTotal)
	assert.Equal(t, res.Payout-100, st.Net)
	assert.True(t, st.LastPlay.Equal(now))
}

func TestSessionBaselineResetsAfterInactivity(t *testing.T) {
	e, _, econ := newTestEngine(t)
	ctx := context.Background()
	require.NoError(t, econ.AddBalance(ctx, "g1", "u1", 1_000_000))

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	e.SetNow(func() time.Time { return now })

	for i := 0; i < 3; i++ {
		now = now.Add(SpinCooldown + time.Second)
		_, err := e.Spin(ctx, "g1", "u1", 100, 5)
		require.NoError(t, err)
	}

	view, err := e.Stats(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), view.SessionDeltaSpins)

	// A long break starts a fresh session.
	now = now.Add(31 * time.Minute)
	_, err = e.Spin(ctx, "g1", "u1", 100, 5)
	require.NoError(t, err)

	view, err = e.Stats(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), view.Spins)
	assert.Equal(t, int64(1), view.SessionDeltaSpins)
	assert.Equal(t, int64(400), view.BetTotal)
	assert.Equal(t, int64(100), view.SessionDeltaBet)
}

func TestReturnToPlayerNearTarget(t *testing.T) {
	if testing.Short() {
		t.Skip("statistical sweep")
	}
	rng := rand.New(rand.NewSource(42))

	const (
		spins   = 200_000
		wager   = int64(100)
		lines   = MaxLines
		lineBet = wager / int64(lines)
	)
	var betTotal, winTotal, missedTriples int64
	for i := 0; i < spins; i++ {
		stops := [3]int{rng.Intn(ReelSize), rng.Intn(ReelSize), rng.Intn(ReelSize)}
		payout, _, missed := evaluate(window(stops), lineBet, lines)
		betTotal += wager
		winTotal += payout
		missedTriples += int64(len(missed))
	}

	rtp := float64(winTotal) / float64(betTotal)
	assert.InDelta(t, 0.9006, rtp, 0.03, "observed RTP %.4f", rtp)
	assert.Zero(t, missedTriples, "all five lines active, nothing to miss")
}
