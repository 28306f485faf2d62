package config

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/prize"
)

// PrizeTable maps a prize tier to the payout of one winning ticket.
type PrizeTable map[prize.Tier]decimal.Decimal

// Payout returns the amount for tier, zero for unknown tiers.
func (p PrizeTable) Payout(tier prize.Tier) decimal.Decimal {
	if v, ok := p[tier]; ok {
		return v
	}
	return decimal.Zero
}

// DefaultPrizeTable is used when no PRIZE_TABLE_FILE is configured.
func DefaultPrizeTable() PrizeTable {
	return PrizeTable{
		prize.TierFirst:  decimal.NewFromInt(6_000_000),
		prize.TierNearby: decimal.NewFromInt(100_000),
		prize.TierBack3:  decimal.NewFromInt(4_000),
		prize.TierFront3: decimal.NewFromInt(4_000),
		prize.TierTwo:    decimal.NewFromInt(2_000),
		prize.TierNone:   decimal.Zero,
	}
}

// LoadPrizeTable reads a YAML document of the form
//
//	payouts:
//	  first: "6000000"
//	  nearby: "100000"
//
// Tiers absent from the file keep their default amount.  An empty path
// returns the defaults.
func LoadPrizeTable(path string) (PrizeTable, error) {
	table := DefaultPrizeTable()
	if path == "" {
		return table, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prize table: %w", err)
	}
	var doc struct {
		Payouts map[string]string `yaml:"payouts"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse prize table: %w", err)
	}
	for k, v := range doc.Payouts {
		tier := prize.Tier(k)
		if !tier.Valid() {
			return nil, fmt.Errorf("prize table: unknown tier %q", k)
		}
		amt, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("prize table: tier %s: %w", k, err)
		}
		if amt.IsNegative() {
			return nil, fmt.Errorf("prize table: tier %s: negative payout", k)
		}
		table[tier] = amt
	}
	return table, nil
}
