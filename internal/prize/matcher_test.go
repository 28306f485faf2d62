package prize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/model"
)

func sampleNumbers() *model.WinningNumbers {
	return &model.WinningNumbers{
		FirstPrize: "123456",
		Nearby:     []string{"123455", "123457"},
		FrontThree: []string{"987", "012"},
		BackThree:  []string{"456", "321"},
		TwoDigit:   []string{"56", "09"},
	}
}

func TestClassifyPrecedence(t *testing.T) {
	wn := sampleNumbers()
	cases := []struct {
		number string
		want   Tier
	}{
		// also satisfies back3 and two, first wins
		{"123456", TierFirst},
		{"123455", TierNearby},
		{"123457", TierNearby},
		{"000456", TierBack3},
		// matches front3 and two as well
		{"987456", TierBack3},
		{"987000", TierFront3},
		{"012009", TierFront3},
		{"555556", TierTwo},
		{"000009", TierTwo},
		{"111111", TierNone},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Classify(c.number, wn), c.number)
	}
}

func TestClassifyFallbackToRunningNumbers(t *testing.T) {
	wn := &model.WinningNumbers{
		FirstPrize:        "123456",
		RunningFrontThree: []string{"444"},
		RunningBackTwo:    []string{"88"},
	}
	assert.Equal(t, TierFront3, Classify("444000", wn))
	assert.Equal(t, TierTwo, Classify("000088", wn))
	assert.Equal(t, TierNone, Classify("000000", wn))

	// the alternates are ignored once the primary sets are published
	wn.FrontThree = []string{"555"}
	wn.TwoDigit = []string{"99"}
	assert.Equal(t, TierNone, Classify("444000", wn))
	assert.Equal(t, TierNone, Classify("000088", wn))
	assert.Equal(t, TierFront3, Classify("555000", wn))
	assert.Equal(t, TierTwo, Classify("000099", wn))
}

func TestClassifyRejectsMalformedNumbers(t *testing.T) {
	wn := sampleNumbers()
	assert.Equal(t, TierNone, Classify("23456", wn))
	assert.Equal(t, TierNone, Classify("12345a", wn))
	assert.Equal(t, TierNone, Classify("123456", nil))
}

func TestMatchAll(t *testing.T) {
	got := MatchAll([]Entry{
		{TicketID: 1, Number: "123456"},
		{TicketID: 2, Number: "000456"},
		{TicketID: 3, Number: "001122"},
	}, sampleNumbers())

	assert.Equal(t, map[uint64]Tier{1: TierFirst, 2: TierBack3, 3: TierNone}, got)
}

func TestTierValid(t *testing.T) {
	for _, tier := range Tiers {
		assert.True(t, tier.Valid())
	}
	assert.False(t, Tier("jackpot").Valid())
}
