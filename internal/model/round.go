package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RoundStatus is the lifecycle state of a sale round.
type RoundStatus string

const (
	RoundOpen   RoundStatus = "OPEN"
	RoundClosed RoundStatus = "CLOSED"
	RoundDrawn  RoundStatus = "DRAWN"
)

// CanAdvance reports whether a round may move from s to next.  Rounds only
// move forward: OPEN -> CLOSED -> DRAWN.
func (s RoundStatus) CanAdvance(next RoundStatus) bool {
	switch s {
	case RoundOpen:
		return next == RoundClosed
	case RoundClosed:
		return next == RoundDrawn
	}
	return false
}

// Round represents one draw cycle with its own ticket pool and sale window.
// This struct corresponds to a row in the `rounds` table.
//
// Fields:
//  ID                 – primary key identifier.
//  Name               – display name, e.g. "16 Oct 2026".
//  DrawAt             – scheduled draw timestamp.
//  SellOpenAt         – start of the selling window.
//  SellCloseAt        – end of the selling window (exclusive).
//  Status             – OPEN, CLOSED or DRAWN.
//  WinningNumbers     – set once at the CLOSED -> DRAWN transition.
//  ResultsAnnouncedAt – when the winning numbers were recorded.
//  TicketPrice        – default price for tickets of this round.
//  TotalTickets       – number of tickets created for the round.
//  SoldTickets        – number of tickets in SOLD status.
type Round struct {
	ID                 uint64          `json:"id"`
	Name               string          `json:"name"`
	DrawAt             time.Time       `json:"draw_at"`
	SellOpenAt         time.Time       `json:"sell_open_at"`
	SellCloseAt        time.Time       `json:"sell_close_at"`
	Status             RoundStatus     `json:"status"`
	WinningNumbers     *WinningNumbers `json:"winning_numbers,omitempty"`
	ResultsAnnouncedAt *time.Time      `json:"results_announced_at,omitempty"`
	TicketPrice        decimal.Decimal `json:"ticket_price"`
	TotalTickets       uint32          `json:"total_tickets"`
	SoldTickets        uint32          `json:"sold_tickets"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// SellingAt reports whether tickets of the round can be reserved at t.
func (r *Round) SellingAt(t time.Time) bool {
	return r.Status == RoundOpen && !t.Before(r.SellOpenAt) && t.Before(r.SellCloseAt)
}

// SellWindowClosedAt reports whether the selling window has ended at t.
func (r *Round) SellWindowClosedAt(t time.Time) bool {
	return !t.Before(r.SellCloseAt)
}
