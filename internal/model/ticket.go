package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// TicketStatus tracks whether a ticket can still be sold.
type TicketStatus string

const (
	TicketAvailable TicketStatus = "AVAILABLE"
	TicketReserved  TicketStatus = "RESERVED"
	TicketSold      TicketStatus = "SOLD"
)

// Valid reports whether s is one of the known ticket statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketAvailable, TicketReserved, TicketSold:
		return true
	}
	return false
}

// CanTransition reports whether a ticket may move from s to next.
// AVAILABLE -> RESERVED -> SOLD, or RESERVED -> AVAILABLE on release.
// SOLD is terminal.
func (s TicketStatus) CanTransition(next TicketStatus) bool {
	switch s {
	case TicketAvailable:
		return next == TicketReserved
	case TicketReserved:
		return next == TicketSold || next == TicketAvailable
	}
	return false
}

// Ticket is a purchasable unit of a round.  One row represents one bundle:
// SetSize identical physical copies are sold together under a single number,
// which keeps the number unique within its round.
//
// Fields:
//  ID      – tickets.id
//  RoundID – owning round
//  Number  – 6-digit zero-padded string; never parsed into an integer
//  Price   – price charged for the ticket
//  SetSize – physical copies in the bundle
//  Status  – AVAILABLE, RESERVED or SOLD
type Ticket struct {
	ID        uint64          `db:"id" json:"id"`
	RoundID   uint64          `db:"round_id" json:"round_id"`
	Number    string          `db:"number" json:"number"`
	Price     decimal.Decimal `db:"price" json:"price"`
	SetSize   uint32          `db:"set_size" json:"set_size"`
	Status    TicketStatus    `db:"status" json:"status"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}
