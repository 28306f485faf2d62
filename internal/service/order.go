package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/logger"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/metrics"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/model"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/queue"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/repository"
)

// DefaultListLimit bounds ListForUser.
const DefaultListLimit = 50

// Actor identifies who asks for an order transition.
type Actor struct {
	UserID uint64
	Admin  bool
}

// OrderService drives orders out of PENDING.  Every transition locks the
// order row first, then its tickets, and commits the order, ticket and
// counter changes together with the outbox event that announces them.
type OrderService struct {
	d Deps
}

// NewOrderService returns an OrderService over d.
func NewOrderService(d Deps) *OrderService {
	return &OrderService{d: d.withDefaults()}
}

// ConfirmPayment marks a PENDING order PAID and its tickets SOLD.  An order
// that has passed its deadline fails with ErrOrderExpired even if the
// reaper has not released it yet; PAID or CANCELLED orders fail with
// ErrInvalidOrderState.
func (s *OrderService) ConfirmPayment(ctx context.Context, orderID uint64, paymentRef string) (model.Order, error) {
	if orderID == 0 {
		return model.Order{}, invalid("order id is required")
	}
	var order model.Order
	err := s.d.inTx(ctx, func(tx *sqlx.Tx) error {
		o, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		now := s.d.Now()
		switch {
		case o.Status == model.OrderExpired:
			return fmt.Errorf("%w: order %d", ErrOrderExpired, orderID)
		case o.Status != model.OrderPending:
			return fmt.Errorf("%w: order %d is %s", ErrInvalidOrderState, orderID, o.Status)
		case o.ExpiredAt(now):
			return fmt.Errorf("%w: order %d deadline %s", ErrOrderExpired, orderID, o.ExpireAt.Format("2006-01-02 15:04:05"))
		}

		tickets, err := s.lockOrderTickets(ctx, tx, &o)
		if err != nil {
			return err
		}
		n, err := s.d.Tickets.UpdateStatusTx(ctx, tx, o.TicketIDs(), model.TicketReserved, model.TicketSold)
		if err != nil {
			return fmt.Errorf("sell tickets: %w", err)
		}
		if n != int64(len(o.Items)) {
			return fmt.Errorf("order %d: %d of %d tickets were reserved", orderID, n, len(o.Items))
		}
		ok, err := s.d.Orders.MarkPaidTx(ctx, tx, orderID, now, paymentRef)
		if err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: order %d", ErrInvalidOrderState, orderID)
		}
		perRound := map[uint64]int{}
		for _, t := range tickets {
			perRound[t.RoundID]++
		}
		for _, rid := range roundIDs(tickets) {
			if err := s.d.Rounds.IncrementSoldTx(ctx, tx, rid, perRound[rid]); err != nil {
				return fmt.Errorf("increment sold counter of round %d: %w", rid, err)
			}
		}

		o.Status = model.OrderPaid
		o.PaidAt = &now
		if paymentRef != "" {
			ref := paymentRef
			o.PaymentRef = &ref
		}
		if err := s.announce(ctx, tx, queue.TopicOrderPaid, &o, now); err != nil {
			return err
		}
		order = o
		return nil
	})
	s.logTransition(ctx, model.OrderPaid, orderID, err)
	return order, err
}

// Cancel aborts a PENDING order before its deadline and releases its
// tickets.  Buyers may only cancel their own orders.
func (s *OrderService) Cancel(ctx context.Context, orderID uint64, actor Actor) (model.Order, error) {
	if orderID == 0 {
		return model.Order{}, invalid("order id is required")
	}
	var order model.Order
	err := s.d.inTx(ctx, func(tx *sqlx.Tx) error {
		o, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !actor.Admin && o.UserID != actor.UserID {
			return fmt.Errorf("%w: order %d belongs to another user", ErrForbidden, orderID)
		}
		now := s.d.Now()
		switch {
		case o.Status.Terminal():
			return fmt.Errorf("%w: order %d is %s", ErrInvalidOrderState, orderID, o.Status)
		case o.ExpiredAt(now):
			return fmt.Errorf("%w: order %d", ErrOrderExpired, orderID)
		}
		if err := s.releaseTx(ctx, tx, &o, model.OrderCancelled); err != nil {
			return err
		}
		if err := s.announce(ctx, tx, queue.TopicOrderCancelled, &o, now); err != nil {
			return err
		}
		order = o
		return nil
	})
	s.logTransition(ctx, model.OrderCancelled, orderID, err)
	return order, err
}

// Expire releases a PENDING order whose deadline has passed.  It is
// idempotent: an order that is no longer PENDING, or not yet due, is left
// alone and false is returned without error.
func (s *OrderService) Expire(ctx context.Context, orderID uint64) (bool, error) {
	expired := false
	err := s.d.inTx(ctx, func(tx *sqlx.Tx) error {
		o, err := s.lockOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		now := s.d.Now()
		if o.Status != model.OrderPending || !o.ExpiredAt(now) {
			return nil
		}
		if err := s.releaseTx(ctx, tx, &o, model.OrderExpired); err != nil {
			return err
		}
		if err := s.announce(ctx, tx, queue.TopicOrderExpired, &o, now); err != nil {
			return err
		}
		expired = true
		return nil
	})
	if err != nil || expired {
		s.logTransition(ctx, model.OrderExpired, orderID, err)
	}
	return expired, err
}

// GetForUser returns an order with its items.  Orders of other users are
// reported as not found.
func (s *OrderService) GetForUser(ctx context.Context, orderID, userID uint64) (model.Order, error) {
	o, err := s.d.Orders.GetByID(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && o.UserID != userID) {
		return model.Order{}, fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
	}
	if err != nil {
		return model.Order{}, err
	}
	if o.Items, err = s.d.Orders.Items(ctx, nil, o.ID); err != nil {
		return model.Order{}, err
	}
	return o, nil
}

// ListForUser returns the most recent orders of a user, newest first.
func (s *OrderService) ListForUser(ctx context.Context, userID uint64, limit int) ([]model.Order, error) {
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	return s.d.Orders.ListByUser(ctx, userID, limit)
}

func (s *OrderService) lockOrder(ctx context.Context, tx *sqlx.Tx, orderID uint64) (model.Order, error) {
	o, err := s.d.Orders.GetForUpdateTx(ctx, tx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return o, fmt.Errorf("%w: %d", ErrOrderNotFound, orderID)
	}
	if err != nil {
		return o, fmt.Errorf("lock order: %w", err)
	}
	if o.Items, err = s.d.Orders.Items(ctx, tx, orderID); err != nil {
		return o, fmt.Errorf("load order items: %w", err)
	}
	return o, nil
}

// lockOrderTickets locks the tickets of o and checks they are still
// RESERVED.
func (s *OrderService) lockOrderTickets(ctx context.Context, tx *sqlx.Tx, o *model.Order) ([]model.Ticket, error) {
	tickets, err := s.d.Tickets.LockByIDsTx(ctx, tx, o.TicketIDs())
	if err != nil {
		return nil, fmt.Errorf("lock tickets: %w", err)
	}
	if len(tickets) != len(o.Items) {
		return nil, fmt.Errorf("order %d: %d of %d tickets found", o.ID, len(tickets), len(o.Items))
	}
	for _, t := range tickets {
		if t.Status != model.TicketReserved {
			return nil, fmt.Errorf("order %d: ticket %d is %s", o.ID, t.ID, t.Status)
		}
	}
	return tickets, nil
}

// releaseTx moves a PENDING order to a release status and returns its
// tickets to AVAILABLE.
func (s *OrderService) releaseTx(ctx context.Context, tx *sqlx.Tx, o *model.Order, to model.OrderStatus) error {
	if !o.Status.CanTransition(to) {
		return fmt.Errorf("%w: order %d %s -> %s", ErrInvalidOrderState, o.ID, o.Status, to)
	}
	if _, err := s.lockOrderTickets(ctx, tx, o); err != nil {
		return err
	}
	n, err := s.d.Tickets.UpdateStatusTx(ctx, tx, o.TicketIDs(), model.TicketReserved, model.TicketAvailable)
	if err != nil {
		return fmt.Errorf("release tickets: %w", err)
	}
	if n != int64(len(o.Items)) {
		return fmt.Errorf("order %d: released %d of %d tickets", o.ID, n, len(o.Items))
	}
	ok, err := s.d.Orders.SetStatusTx(ctx, tx, o.ID, to)
	if err != nil {
		return fmt.Errorf("set order status: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: order %d", ErrInvalidOrderState, o.ID)
	}
	o.Status = to
	return nil
}

func (s *OrderService) announce(ctx context.Context, tx *sqlx.Tx, topic string, o *model.Order, now time.Time) error {
	ev := queue.OrderEvent{
		OrderID:     o.ID,
		UserID:      o.UserID,
		Status:      string(o.Status),
		TotalAmount: o.TotalAmount.StringFixed(2),
		TicketIDs:   o.TicketIDs(),
		OccurredAt:  now,
	}
	if o.PaymentRef != nil {
		ev.PaymentRef = *o.PaymentRef
	}
	if err := s.d.Outbox.InsertTx(ctx, tx, topic, topic+":"+strconv.FormatUint(o.ID, 10), ev); err != nil {
		return fmt.Errorf("write outbox: %w", err)
	}
	return nil
}

func (s *OrderService) logTransition(ctx context.Context, to model.OrderStatus, orderID uint64, err error) {
	log := logger.For(ctx, s.d.Log).With(zap.Uint64("order_id", orderID), zap.String("to", string(to)))
	switch {
	case err == nil:
		metrics.RecordOrderTransition(string(to), "success")
		log.Info("order transition")
	case Permanent(err):
		metrics.RecordOrderTransition(string(to), "rejected")
		log.Info("order transition rejected", zap.Error(err))
	default:
		metrics.RecordOrderTransition(string(to), "error")
		log.Error("order transition failed", zap.Error(err))
	}
}
