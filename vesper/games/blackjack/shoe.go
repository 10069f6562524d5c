// Package blackjack implements the blackjack table: a multi-deck shoe,
// hand scoring, the dealer policy and the per-user session manager.
package blackjack

import (
	"math/rand"
)

// Rank is a card rank. Suits are a display concern; only rank affects
// play.
type Rank string

const (
	RankAce   Rank = "A"
	RankTwo   Rank = "2"
	RankThree Rank = "3"
	RankFour  Rank = "4"
	RankFive  Rank = "5"
	RankSix   Rank = "6"
	RankSeven Rank = "7"
	RankEight Rank = "8"
	RankNine  Rank = "9"
	RankTen   Rank = "10"
	RankJack  Rank = "J"
	RankQueen Rank = "Q"
	RankKing  Rank = "K"
)

var allRanks = []Rank{
	RankAce, RankTwo, RankThree, RankFour, RankFive, RankSix, RankSeven,
	RankEight, RankNine, RankTen, RankJack, RankQueen, RankKing,
}

// copiesPerRank sizes the shoe at roughly four decks.
const copiesPerRank = 16

// Value returns the rank's base value. Aces count 11 here; Hand.Total
// softens them to 1 as needed.
func (r Rank) Value() int {
	switch r {
	case RankAce:
		return 11
	case RankTen, RankJack, RankQueen, RankKing:
		return 10
	default:
		return int(r[0] - '0')
	}
}

// Shoe is a shuffled multi-deck card source. It reshuffles in place
// when exhausted. Not safe for concurrent use; each session owns one.
type Shoe struct {
	rng   *rand.Rand
	cards []Rank
	next  int
}

// NewShoe builds a full shuffled shoe.
func NewShoe(rng *rand.Rand) *Shoe {
	s := &Shoe{rng: rng, cards: make([]Rank, 0, copiesPerRank*len(allRanks))}
	s.refill()
	return s
}

// NewStackedShoe builds a shoe that deals the given ranks in order,
// then falls back to a fresh shuffled shoe. Used to pin deals in
// tests.
func NewStackedShoe(rng *rand.Rand, ranks ...Rank) *Shoe {
	cards := make([]Rank, len(ranks))
	copy(cards, ranks)
	return &Shoe{rng: rng, cards: cards}
}

func (s *Shoe) refill() {
	s.cards = s.cards[:0]
	for _, r := range allRanks {
		for i := 0; i < copiesPerRank; i++ {
			s.cards = append(s.cards, r)
		}
	}
	s.rng.Shuffle(len(s.cards), func(i, j int) {
		s.cards[i], s.cards[j] = s.cards[j], s.cards[i]
	})
	s.next = 0
}

// Draw deals the next card, reshuffling a fresh shoe when this one is
// exhausted.
func (s *Shoe) Draw() Rank {
	if s.next >= len(s.cards) {
		s.refill()
	}
	r := s.cards[s.next]
	s.next++
	return r
}
