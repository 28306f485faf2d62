package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/logger"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/metrics"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/model"
)

// MaxTicketsPerOrder caps the size of a single checkout.
const MaxTicketsPerOrder = 100

// ReservationService claims tickets for a buyer.
type ReservationService struct {
	d Deps
}

// NewReservationService returns a ReservationService over d.
func NewReservationService(d Deps) *ReservationService {
	return &ReservationService{d: d.withDefaults()}
}

// Checkout atomically reserves every requested ticket for userID and
// creates a PENDING order that expires after hold.  If any ticket is
// missing or not AVAILABLE nothing is reserved and a
// *TicketUnavailableError naming the offending ids is returned.  A lost
// race is reported the same way; the caller decides whether to retry.
func (s *ReservationService) Checkout(ctx context.Context, userID uint64, ticketIDs []uint64, hold time.Duration) (model.Order, error) {
	started := time.Now()
	ids, err := validateCheckout(userID, ticketIDs, hold)
	if err != nil {
		metrics.RecordCheckout("invalid", len(ticketIDs), started)
		return model.Order{}, err
	}

	var order model.Order
	err = s.d.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		order, err = s.checkoutTx(ctx, tx, userID, ids, hold)
		return err
	})

	log := logger.For(ctx, s.d.Log).With(zap.Uint64("user_id", userID), zap.Uint64s("ticket_ids", ids))
	switch {
	case err == nil:
		metrics.RecordCheckout("success", len(ids), started)
		log.Info("checkout reserved tickets", zap.Uint64("order_id", order.ID), zap.Time("expire_at", order.ExpireAt))
	case errors.Is(err, ErrTicketUnavailable):
		metrics.RecordCheckout("unavailable", len(ids), started)
		log.Info("checkout lost tickets", zap.Error(err))
	case errors.Is(err, ErrRoundNotOpen):
		metrics.RecordCheckout("round_closed", len(ids), started)
		log.Info("checkout outside selling window", zap.Error(err))
	default:
		metrics.RecordCheckout("error", len(ids), started)
		log.Error("checkout failed", zap.Error(err))
	}
	return order, err
}

func (s *ReservationService) checkoutTx(ctx context.Context, tx *sqlx.Tx, userID uint64, ids []uint64, hold time.Duration) (model.Order, error) {
	locked, err := s.d.Tickets.LockByIDsTx(ctx, tx, ids)
	if err != nil {
		return model.Order{}, fmt.Errorf("lock tickets: %w", err)
	}
	byID := make(map[uint64]model.Ticket, len(locked))
	for _, t := range locked {
		byID[t.ID] = t
	}
	var unavailable []uint64
	for _, id := range ids {
		if t, ok := byID[id]; !ok || t.Status != model.TicketAvailable {
			unavailable = append(unavailable, id)
		}
	}
	if len(unavailable) > 0 {
		return model.Order{}, &TicketUnavailableError{TicketIDs: unavailable}
	}

	// orders.expire_at stores milliseconds
	now := s.d.Now().Truncate(time.Millisecond)
	rounds, err := s.d.Rounds.ShareLockByIDsTx(ctx, tx, roundIDs(locked))
	if err != nil {
		return model.Order{}, fmt.Errorf("load rounds: %w", err)
	}
	open := make(map[uint64]bool, len(rounds))
	for i := range rounds {
		open[rounds[i].ID] = rounds[i].SellingAt(now)
	}
	for _, rid := range roundIDs(locked) {
		if !open[rid] {
			return model.Order{}, fmt.Errorf("%w: round %d", ErrRoundNotOpen, rid)
		}
	}

	n, err := s.d.Tickets.UpdateStatusTx(ctx, tx, ids, model.TicketAvailable, model.TicketReserved)
	if err != nil {
		return model.Order{}, fmt.Errorf("reserve tickets: %w", err)
	}
	if n != int64(len(ids)) {
		return model.Order{}, &TicketUnavailableError{TicketIDs: ids}
	}

	total := decimal.Zero
	items := make([]model.OrderItem, 0, len(ids))
	for _, id := range ids {
		t := byID[id]
		total = total.Add(t.Price)
		items = append(items, model.OrderItem{TicketID: t.ID, Number: t.Number, Price: t.Price})
	}
	order := model.Order{
		UserID:      userID,
		TotalAmount: total,
		Status:      model.OrderPending,
		CreatedAt:   now,
		ExpireAt:    now.Add(hold),
	}
	if err := s.d.Orders.CreateTx(ctx, tx, &order); err != nil {
		return model.Order{}, fmt.Errorf("create order: %w", err)
	}
	for i := range items {
		items[i].OrderID = order.ID
	}
	if err := s.d.Orders.CreateItemsTx(ctx, tx, items); err != nil {
		return model.Order{}, fmt.Errorf("create order items: %w", err)
	}
	order.Items = items
	return order, nil
}

// validateCheckout rejects bad input before any transaction is opened and
// returns the ids sorted ascending.
func validateCheckout(userID uint64, ticketIDs []uint64, hold time.Duration) ([]uint64, error) {
	if userID == 0 {
		return nil, invalid("user id is required")
	}
	if hold <= 0 {
		return nil, invalid("hold duration must be positive")
	}
	if len(ticketIDs) == 0 {
		return nil, invalid("ticket_ids is required")
	}
	if len(ticketIDs) > MaxTicketsPerOrder {
		return nil, invalid("at most %d tickets per order", MaxTicketsPerOrder)
	}
	seen := make(map[uint64]struct{}, len(ticketIDs))
	ids := make([]uint64, 0, len(ticketIDs))
	for _, id := range ticketIDs {
		if id == 0 {
			return nil, invalid("ticket id must be positive")
		}
		if _, dup := seen[id]; dup {
			return nil, invalid("duplicate ticket id %d", id)
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// roundIDs returns the distinct round ids of tickets in ascending order.
func roundIDs(tickets []model.Ticket) []uint64 {
	seen := map[uint64]struct{}{}
	var out []uint64
	for _, t := range tickets {
		if _, ok := seen[t.RoundID]; !ok {
			seen[t.RoundID] = struct{}{}
			out = append(out, t.RoundID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
