package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PrizeResult is the stored classification of one SOLD ticket after a draw.
// Payout is not persisted; it is filled from the prize table when results
// are served.
type PrizeResult struct {
	ID        uint64          `db:"id" json:"-"`
	RoundID   uint64          `db:"round_id" json:"round_id"`
	TicketID  uint64          `db:"ticket_id" json:"ticket_id"`
	Number    string          `db:"number" json:"number"`
	Tier      string          `db:"tier" json:"tier"`
	CreatedAt time.Time       `db:"created_at" json:"-"`
	Payout    decimal.Decimal `db:"-" json:"payout"`
}
