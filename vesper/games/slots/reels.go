// Package slots implements the slot machine: three weighted reels, up
// to five paylines, and per-member play statistics.
package slots

// Symbol is one reel face.
type Symbol string

const (
	SymCherry Symbol = "CHERRY"
	SymLemon  Symbol = "LEMON"
	SymClover Symbol = "CLOVER"
	SymBell   Symbol = "BELL"
	SymDiam   Symbol = "DIAM"
	SymSeven  Symbol = "SEVEN"
)

// ReelSize is the number of stops per reel.
const ReelSize = 15

// Reels are the fixed stop arrays. Symbol frequencies are skewed per
// reel so cheap symbols are common and sevens rare; the paytable is
// tuned against these counts for a return to player near 90%.
var Reels = [3][ReelSize]Symbol{
	{
		SymCherry, SymLemon, SymClover, SymCherry, SymBell,
		SymLemon, SymCherry, SymDiam, SymClover, SymLemon,
		SymSeven, SymCherry, SymBell, SymLemon, SymClover,
	},
	{
		SymLemon, SymCherry, SymBell, SymClover, SymCherry,
		SymDiam, SymLemon, SymCherry, SymSeven, SymClover,
		SymBell, SymCherry, SymDiam, SymLemon, SymClover,
	},
	{
		SymCherry, SymLemon, SymDiam, SymClover, SymBell,
		SymLemon, SymSeven, SymCherry, SymLemon, SymClover,
		SymDiam, SymBell, SymLemon, SymCherry, SymClover,
	},
}

// multipliers pays per active line on a triple.
var multipliers = map[Symbol]int64{
	SymSeven:  180,
	SymDiam:   85,
	SymBell:   44,
	SymClover: 22,
	SymCherry: 11,
	SymLemon:  11,
}

// consolationMultiplier pays when only the first two symbols on a line
// match.
const consolationMultiplier = 1

// Window is the visible 3x3 grid, indexed [row][reel]. Row 0 is the
// top row.
type Window [3][3]Symbol

// window builds the visible grid from one stop index per reel. The
// stop lands on the middle row with its neighbours above and below.
func window(stops [3]int) Window {
	var w Window
	for r := 0; r < 3; r++ {
		i := stops[r]
		w[0][r] = Reels[r][(i+ReelSize-1)%ReelSize]
		w[1][r] = Reels[r][i]
		w[2][r] = Reels[r][(i+1)%ReelSize]
	}
	return w
}

// MaxLines is the number of purchasable paylines.
const MaxLines = 5

// paylines list the (row per reel) paths in purchase order: middle,
// top, bottom, then the two diagonals.
var paylines = [MaxLines][3]int{
	{1, 1, 1},
	{0, 0, 0},
	{2, 2, 2},
	{0, 1, 2},
	{2, 1, 0},
}

// lineSymbols extracts the three symbols along payline n.
func (w Window) lineSymbols(n int) [3]Symbol {
	p := paylines[n]
	return [3]Symbol{w[p[0]][0], w[p[1]][1], w[p[2]][2]}
}
