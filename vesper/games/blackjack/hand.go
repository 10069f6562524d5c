package blackjack

import "strings"

// Hand is an ordered list of drawn cards.
type Hand []Rank

// Total scores the hand. Aces start at 11 and soften to 1 one at a
// time until the total is 21 or under, or no soft aces remain.
func (h Hand) Total() int {
	total, aces := 0, 0
	for _, r := range h {
		v := r.Value()
		if r == RankAce {
			aces++
		}
		total += v
	}
	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}
	return total
}

// IsBust reports whether the hand exceeds 21.
func (h Hand) IsBust() bool { return h.Total() > 21 }

// IsNatural reports a two-card 21.
func (h Hand) IsNatural() bool { return len(h) == 2 && h.Total() == 21 }

// String renders the hand as space-separated ranks, e.g. "A K".
func (h Hand) String() string {
	parts := make([]string, len(h))
	for i, r := range h {
		parts[i] = string(r)
	}
	return strings.Join(parts, " ")
}
