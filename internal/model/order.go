package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the state of a buyer's checkout attempt.
type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderPaid      OrderStatus = "PAID"
	OrderExpired   OrderStatus = "EXPIRED"
	OrderCancelled OrderStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed from s.
func (s OrderStatus) Terminal() bool {
	return s == OrderPaid || s == OrderExpired || s == OrderCancelled
}

// CanTransition reports whether an order may move from s to next.  Only
// PENDING orders move, and only into one of the terminal states.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	return s == OrderPending && next.Terminal()
}

// Order records one buyer's checkout attempt.  TotalAmount is frozen at
// creation and never recomputed from current ticket prices.  Orders are
// never deleted; they form the audit trail of every reservation.
type Order struct {
	ID          uint64          `db:"id" json:"id"`
	UserID      uint64          `db:"user_id" json:"user_id"`
	TotalAmount decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status      OrderStatus     `db:"status" json:"status"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
	ExpireAt    time.Time       `db:"expire_at" json:"expire_at"`
	PaidAt      *time.Time      `db:"paid_at" json:"paid_at,omitempty"`
	PaymentRef  *string         `db:"payment_ref" json:"payment_ref,omitempty"`
	Items       []OrderItem     `db:"-" json:"items,omitempty"`
}

// ExpiredAt reports whether the payment window of the order has passed at t.
func (o *Order) ExpiredAt(t time.Time) bool {
	return !t.Before(o.ExpireAt)
}

// TicketIDs returns the ids of the tickets bound to the order.
func (o *Order) TicketIDs() []uint64 {
	ids := make([]uint64, 0, len(o.Items))
	for _, it := range o.Items {
		ids = append(ids, it.TicketID)
	}
	return ids
}

// OrderItem binds one ticket to one order with the price actually charged.
type OrderItem struct {
	ID       uint64          `db:"id" json:"id"`
	OrderID  uint64          `db:"order_id" json:"order_id"`
	TicketID uint64          `db:"ticket_id" json:"ticket_id"`
	Number   string          `db:"number" json:"number"`
	Price    decimal.Decimal `db:"price" json:"price"`
}
