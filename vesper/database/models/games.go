package models

import (
	"time"

	"github.com/uptrace/bun"
)

// SlotStats aggregates slot machine play per guild member. The Session*
// columns are the baseline snapshot against which the session delta is
// reported; the baseline advances after 30 minutes of inactivity.
type SlotStats struct {
	bun.BaseModel `bun:"table:slot_stats,alias:ss"`

	GuildID    string    `bun:"guild_id,pk"`
	UserID     string    `bun:"user_id,pk"`
	Spins      int64     `bun:"spins,notnull,default:0"`
	BetTotal   int64     `bun:"bet_total,notnull,default:0"`
	WinTotal   int64     `bun:"win_total,notnull,default:0"`
	Net        int64     `bun:"net,notnull,default:0"`
	BiggestWin int64     `bun:"biggest_win,notnull,default:0"`
	LastPlay   time.Time `bun:"last_play"`

	SessionSpins    int64 `bun:"session_spins,notnull,default:0"`
	SessionBetTotal int64 `bun:"session_bet_total,notnull,default:0"`
	SessionWinTotal int64 `bun:"session_win_total,notnull,default:0"`
	SessionNet      int64 `bun:"session_net,notnull,default:0"`
}

// BlackjackStats aggregates blackjack play per guild member.
type BlackjackStats struct {
	bun.BaseModel `bun:"table:blackjack_stats,alias:bjs"`

	GuildID       string `bun:"guild_id,pk"`
	UserID        string `bun:"user_id,pk"`
	Hands         int64  `bun:"hands,notnull,default:0"`
	Wins          int64  `bun:"wins,notnull,default:0"`
	Losses        int64  `bun:"losses,notnull,default:0"`
	Pushes        int64  `bun:"pushes,notnull,default:0"`
	Blackjacks    int64  `bun:"blackjacks,notnull,default:0"`
	Doubles       int64  `bun:"doubles,notnull,default:0"`
	BiggestWager  int64  `bun:"biggest_wager,notnull,default:0"`
}
