// Package queue carries the broker side of the engine: event payloads, the
// outbox publisher and the payment-confirmed consumer.
package queue

import "time"

// Queue and topic names.  Each name is also the routing key on the default
// exchange.
const (
	TopicPaymentConfirmed = "payment.confirmed"
	TopicOrderPaid        = "order.paid"
	TopicOrderExpired     = "order.expired"
	TopicOrderCancelled   = "order.cancelled"
	TopicRoundDrawn       = "round.drawn"
)

// PaymentConfirmedEvent is sent by the payment-gateway integration once it
// has verified funds for an order.
type PaymentConfirmedEvent struct {
	OrderID     uint64    `json:"order_id"`
	PaymentRef  string    `json:"payment_ref"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// OrderEvent is published when an order leaves PENDING.  Status is the new
// status; TicketIDs are the tickets that were sold or released.
type OrderEvent struct {
	OrderID     uint64    `json:"order_id"`
	UserID      uint64    `json:"user_id"`
	Status      string    `json:"status"`
	TotalAmount string    `json:"total_amount"`
	TicketIDs   []uint64  `json:"ticket_ids"`
	PaymentRef  string    `json:"payment_ref,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// RoundDrawnEvent is published once the winning numbers of a round are
// recorded and its sold tickets classified.
type RoundDrawnEvent struct {
	RoundID     uint64         `json:"round_id"`
	FirstPrize  string         `json:"first_prize"`
	TierCounts  map[string]int `json:"tier_counts"`
	AnnouncedAt time.Time      `json:"announced_at"`
}
