// Package prize classifies ticket numbers against the tiered winning numbers
// of a draw.  Classification is pure: it never touches storage, so the same
// rules serve the draw transaction and on-demand re-matching.
package prize

import (
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/model"
)

// Tier is the payout category of a ticket number.
type Tier string

const (
	TierFirst  Tier = "first"
	TierNearby Tier = "nearby"
	TierBack3  Tier = "back3"
	TierFront3 Tier = "front3"
	TierTwo    Tier = "two"
	TierNone   Tier = "none"
)

// Tiers lists every tier in precedence order.
var Tiers = []Tier{TierFirst, TierNearby, TierBack3, TierFront3, TierTwo, TierNone}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	for _, k := range Tiers {
		if k == t {
			return true
		}
	}
	return false
}

// Classify returns the single tier of number.  The first matching rule wins,
// so a number that also satisfies a lower pattern keeps the higher tier:
//
//	first > nearby > back3 > front3 > two > none
//
// front3 falls back to RunningFrontThree when FrontThree is empty, and two
// falls back to RunningBackTwo when TwoDigit is empty.
func Classify(number string, wn *model.WinningNumbers) Tier {
	if wn == nil || !model.IsDigits(number, model.NumberLength) {
		return TierNone
	}
	if number == wn.FirstPrize {
		return TierFirst
	}
	if contains(wn.Nearby, number) {
		return TierNearby
	}
	if contains(wn.BackThree, number[3:]) {
		return TierBack3
	}
	if contains(fallback(wn.FrontThree, wn.RunningFrontThree), number[:3]) {
		return TierFront3
	}
	if contains(fallback(wn.TwoDigit, wn.RunningBackTwo), number[4:]) {
		return TierTwo
	}
	return TierNone
}

// Entry is a ticket id/number pair to classify.
type Entry struct {
	TicketID uint64
	Number   string
}

// MatchAll classifies every entry and returns ticket id -> tier.
func MatchAll(entries []Entry, wn *model.WinningNumbers) map[uint64]Tier {
	out := make(map[uint64]Tier, len(entries))
	for _, e := range entries {
		out[e.TicketID] = Classify(e.Number, wn)
	}
	return out
}

func fallback(primary, alternate []string) []string {
	if len(primary) == 0 {
		return alternate
	}
	return primary
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
