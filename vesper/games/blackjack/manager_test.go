package blackjack

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vesperbot/vesper/vesper/database/repositories/memory"
	"github.com/vesperbot/vesper/vesper/economy"
	"github.com/vesperbot/vesper/vesper/errs"
	"github.com/vesperbot/vesper/vesper/scheduler"
)

func newTestManager(t *testing.T) (*Manager, *memory.Store, *economy.Service) {
	t.Helper()
	store := memory.New()
	econ := economy.New(store.Balances, store.Daily)
	sched, err := scheduler.New()
	require.NoError(t, err)
	t.Cleanup(sched.Shutdown)
	m := NewManager(econ, store.BJStats, store.GuildCfg, sched)
	return m, store, econ
}

// stackShoe pins the deal order: player, player, dealer, dealer, then
// hits in draw order.
func stackShoe(m *Manager, ranks ...Rank) {
	m.SetShoeFactory(func() *Shoe {
		return NewStackedShoe(rand.New(rand.NewSource(1)), ranks...)
	})
}

func TestHandTotalSoftensAces(t *testing.T) {
	tests := []struct {
		name string
		hand Hand
		want int
	}{
		{"soft seventeen", Hand{RankAce, RankSix}, 17},
		{"ace softens after bust", Hand{RankAce, RankSix, RankTen}, 17},
		{"two aces", Hand{RankAce, RankAce}, 12},
		{"two aces plus nine", Hand{RankAce, RankAce, RankNine}, 21},
		{"all face cards", Hand{RankJack, RankQueen, RankKing}, 30},
		{"natural", Hand{RankAce, RankKing}, 21},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.hand.Total())
		})
	}
}

func TestPayoutTable(t *testing.T) {
	tests := []struct {
		name    string
		player  Hand
		dealer  Hand
		doubled bool
		want    int64
		outcome Outcome
	}{
		{"player bust", Hand{RankTen, RankNine, RankFive}, Hand{RankTen, RankSeven}, false, 0, OutcomeLoss},
		{"both natural push", Hand{RankAce, RankKing}, Hand{RankQueen, RankAce}, false, 100, OutcomePush},
		{"player natural pays 2.5x floored", Hand{RankAce, RankKing}, Hand{RankTen, RankSeven}, false, 250, OutcomeBlackjack},
		{"dealer natural", Hand{RankTen, RankNine}, Hand{RankAce, RankQueen}, false, 0, OutcomeLoss},
		{"dealer bust", Hand{RankTen, RankNine}, Hand{RankTen, RankSix, RankEight}, false, 200, OutcomeWin},
		{"higher total", Hand{RankTen, RankNine}, Hand{RankTen, RankEight}, false, 200, OutcomeWin},
		{"equal totals push", Hand{RankTen, RankEight}, Hand{RankNine, RankNine}, false, 100, OutcomePush},
		{"dealer higher", Hand{RankTen, RankSeven}, Hand{RankTen, RankNine}, false, 0, OutcomeLoss},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &Session{Wager: 100, Player: tt.player, Dealer: tt.dealer, Doubled: tt.doubled}
			got, outcome := payout(s)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.outcome, outcome)
		})
	}
}

func TestNaturalPayoutFloors(t *testing.T) {
	s := &Session{Wager: 25, Player: Hand{RankAce, RankKing}, Dealer: Hand{RankTen, RankSeven}}
	got, _ := payout(s)
	assert.Equal(t, int64(62), got, "2.5 x 25 floors to 62")
}

func TestBothNaturalPushReturnsWager(t *testing.T) {
	m, store, econ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, econ.AddBalance(ctx, "g1", "u1", 1000))
	stackShoe(m, RankAce, RankKing, RankQueen, RankAce)

	session, result, err := m.Begin(ctx, "g1", "u1", 200)
	require.NoError(t, err)
	require.NotNil(t, result, "naturals resolve at creation")
	assert.True(t, session.Finished)
	assert.Equal(t, OutcomePush, result.Outcome)
	assert.Equal(t, int64(200), result.Payout)

	bal, _ := econ.GetBalance(ctx, "g1", "u1")
	assert.Equal(t, int64(1000), bal)

	st, err := store.BJStats.Get(ctx, "g1", "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.Hands)
	assert.Equal(t, int64(1), st.Pushes)
	assert.Equal(t, int64(1), st.Blackjacks)
}

func TestFailSafeRefundsWager(t *testing.T) {
	m, _, econ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, econ.AddBalance(ctx, "g1", "u1", 1000))
	stackShoe(m, RankFive, RankSix, RankSeven, RankEight, RankTwo)
	m.SetRefundDelay(20 * time.Millisecond)

	var notified atomic.Bool
	m.OnRefund = func(s *Session) { notified.Store(true) }

	_, result, err := m.Begin(ctx, "g1", "u1", 500)
	require.NoError(t, err)
	require.Nil(t, result)

	bal, _ := econ.GetBalance(ctx, "g1", "u1")
	assert.Equal(t, int64(500), bal, "wager deducted upfront")

	require.Eventually(t, func() bool {
		b, _ := econ.GetBalance(ctx, "g1", "u1")
		return b == 1000
	}, time.Second, 5*time.Millisecond, "fail-safe returns the wager")

	_, ok := m.Session("g1", "u1")
	assert.False(t, ok, "session closed after refund")
	assert.True(t, notified.Load())

	// Still inside the hand cooldown.
	_, _, err = m.Begin(ctx, "g1", "u1", 100)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Conflict))
}

func TestRefundDoesNotFireAfterResolution(t *testing.T) {
	m, _, econ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, econ.AddBalance(ctx, "g1", "u1", 1000))
	stackShoe(m, RankTen, RankNine, RankTen, RankEight)
	m.SetRefundDelay(20 * time.Millisecond)

	_, _, err := m.Begin(ctx, "g1", "u1", 100)
	require.NoError(t, err)
	_, result, err := m.Stand(ctx, "g1", "u1")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, OutcomeWin, result.Outcome)

	balAfter, _ := econ.GetBalance(ctx, "g1", "u1")
	time.Sleep(60 * time.Millisecond)
	bal, _ := econ.GetBalance(ctx, "g1", "u1")
	assert.Equal(t, balAfter, bal, "no late refund after the hand resolved")
}

func TestSingleSessionPerUser(t *testing.T) {
	m, _, econ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, econ.AddBalance(ctx, "g1", "u1", 1000))
	stackShoe(m, RankFive, RankSix, RankSeven, RankEight, RankTwo)

	_, _, err := m.Begin(ctx, "g1", "u1", 100)
	require.NoError(t, err)

	_, _, err = m.Begin(ctx, "g1", "u1", 100)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.Conflict))
}

func TestBeginRejectsInsufficientFunds(t *testing.T) {
	m, _, econ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, econ.AddBalance(ctx, "g1", "u1", 50))
	_, _, err := m.Begin(ctx, "g1", "u1", 100)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.InsufficientFunds))

	// A refused wager must not start the cooldown.
	require.NoError(t, econ.AddBalance(ctx, "g1", "u1", 100))
	stackShoe(m, RankFive, RankSix, RankSeven, RankEight)
	_, _, err = m.Begin(ctx, "g1", "u1", 100)
	require.NoError(t, err)
}

func TestCooldownExpires(t *testing.T) {
	m, _, econ := newTestManager(t)
	ctx := context.Background()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m.SetNow(func() time.Time { return now })

	require.NoError(t, econ.AddBalance(ctx, "g1", "u1", 1000))
	stackShoe(m, RankTen, RankNine, RankTen, RankEight)

	_, _, err := m.Begin(ctx, "g1", "u1", 100)
	require.NoError(t, err)
	_, _, err = m.Stand(ctx, "g1", "u1")
	require.NoError(t, err)

	_, _, err = m.Begin(ctx, "g1", "u1", 100)
	assert.True(t, errs.IsKind(err, errs.Conflict), "default cooldown still running")

	now = now.Add(16 * time.Second)
	_, _, err = m.Begin(ctx, "g1", "u1", 100)
	require.NoError(t, err)
}

func TestHitUntilBustLosesWager(t *testing.T) {
	m, store, econ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, econ.AddBalance(ctx, "g1", "u1", 1000))
	stackShoe(m, RankTen, RankNine, RankSeven, RankEight, RankTen)

	_, _, err := m.Begin(ctx, "g1", "u1", 100)
	require.NoError(t, err)
	_, result, err := m.Hit(ctx, "g1", "u1")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, OutcomeLoss, result.Outcome)
	assert.Equal(t, int64(0), result.Payout)

	bal, _ := econ.GetBalance(ctx, "g1", "u1")
	assert.Equal(t, int64(900), bal)

	st, _ := store.BJStats.Get(ctx, "g1", "u1")
	assert.Equal(t, int64(1), st.Losses)
}

func TestDoubleDown(t *testing.T) {
	m, store, econ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, econ.AddBalance(ctx, "g1", "u1", 1000))
	// Player 5,6 (11), dealer 10,7 (17); double draws a ten for 21.
	stackShoe(m, RankFive, RankSix, RankTen, RankSeven, RankTen)

	_, _, err := m.Begin(ctx, "g1", "u1", 100)
	require.NoError(t, err)
	session, result, err := m.Double(ctx, "g1", "u1")
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, session.Doubled)
	assert.Equal(t, int64(200), session.Wager)
	assert.Equal(t, OutcomeWin, result.Outcome)
	assert.Equal(t, int64(400), result.Payout)

	bal, _ := econ.GetBalance(ctx, "g1", "u1")
	assert.Equal(t, int64(1200), bal)

	st, _ := store.BJStats.Get(ctx, "g1", "u1")
	assert.Equal(t, int64(1), st.Doubles)
	assert.Equal(t, int64(200), st.BiggestWager)
}

func TestDoubleRejectedAfterHit(t *testing.T) {
	m, _, econ := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, econ.AddBalance(ctx, "g1", "u1", 1000))
	stackShoe(m, RankTwo, RankThree, RankTen, RankSeven, RankFour, RankFive)

	_, _, err := m.Begin(ctx, "g1", "u1", 100)
	require.NoError(t, err)
	_, result, err := m.Hit(ctx, "g1", "u1")
	require.NoError(t, err)
	require.Nil(t, result)

	_, _, err = m.Double(ctx, "g1", "u1")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.InvalidArgument))
}

func TestDealerHitsToSeventeen(t *testing.T) {
	s := &Session{
		Player: Hand{RankTen, RankNine},
		Dealer: Hand{RankTwo, RankThree},
		shoe:   NewStackedShoe(rand.New(rand.NewSource(1)), RankFive, RankSix, RankTen),
	}
	m := &Manager{}
	m.dealerPlay(s)
	assert.Equal(t, 16, 2+3+5+6, "sanity")
	assert.Equal(t, 26, s.Dealer.Total(), "dealer drew past sixteen and stopped")
	assert.Len(t, s.Dealer, 5)
}

func TestActOnMissingSession(t *testing.T) {
	m, _, _ := newTestManager(t)

	_, _, err := m.Hit(context.Background(), "g1", "nobody")
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.NotFound))
}
