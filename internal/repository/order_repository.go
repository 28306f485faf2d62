package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/model"
)

const orderColumns = `id, user_id, total_amount, status, created_at, expire_at, paid_at, payment_ref`

// OrderRepo provides operations for orders and their items.  Orders are
// never deleted; every status change is a guarded UPDATE that only succeeds
// from PENDING.
type OrderRepo struct {
	db *sqlx.DB
}

// NewOrderRepo returns a new OrderRepo bound to the given database.
func NewOrderRepo(db *sqlx.DB) *OrderRepo { return &OrderRepo{db: db} }

// CreateTx inserts a new order and populates its generated ID.
func (r *OrderRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, o *model.Order) error {
	const q = `INSERT INTO orders (user_id, total_amount, status, created_at, expire_at) VALUES (?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, o.UserID, o.TotalAmount, string(o.Status), o.CreatedAt.UTC(), o.ExpireAt.UTC())
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	return nil
}

// CreateItemsTx inserts the items of an order in one statement.  Each item
// must carry the order id.
func (r *OrderRepo) CreateItemsTx(ctx context.Context, tx *sqlx.Tx, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO order_items (order_id, ticket_id, number, price) VALUES `)
	args := make([]interface{}, 0, len(items)*4)
	for i, it := range items {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?)")
		args = append(args, it.OrderID, it.TicketID, it.Number, it.Price)
	}
	_, err := tx.ExecContext(ctx, sb.String(), args...)
	return mapWriteErr(err)
}

// GetForUpdateTx locks and re-reads an order.
func (r *OrderRepo) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, id uint64) (model.Order, error) {
	return r.get(ctx, tx, `SELECT `+orderColumns+` FROM orders WHERE id = ? FOR UPDATE`, id)
}

// GetByID reads an order without locking it.
func (r *OrderRepo) GetByID(ctx context.Context, id uint64) (model.Order, error) {
	return r.get(ctx, r.db, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
}

func (r *OrderRepo) get(ctx context.Context, q sqlx.QueryerContext, query string, id uint64) (model.Order, error) {
	var o model.Order
	if err := sqlx.GetContext(ctx, q, &o, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return o, ErrNotFound
		}
		return o, err
	}
	return o, nil
}

// Items returns the items of an order ordered by ticket id.  q may be the
// DB (nil) or a transaction.
func (r *OrderRepo) Items(ctx context.Context, q sqlx.QueryerContext, orderID uint64) ([]model.OrderItem, error) {
	if q == nil {
		q = r.db
	}
	var items []model.OrderItem
	err := sqlx.SelectContext(ctx, q, &items,
		`SELECT id, order_id, ticket_id, number, price FROM order_items WHERE order_id = ? ORDER BY ticket_id`, orderID)
	return items, err
}

// ListByUser returns the most recent orders of a user with their items.
func (r *OrderRepo) ListByUser(ctx context.Context, userID uint64, limit int) ([]model.Order, error) {
	var orders []model.Order
	if err := r.db.SelectContext(ctx, &orders,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit); err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}
	ids := make([]uint64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	query, args, err := sqlx.In(`SELECT id, order_id, ticket_id, number, price FROM order_items WHERE order_id IN (?) ORDER BY order_id, ticket_id`, ids)
	if err != nil {
		return nil, err
	}
	var items []model.OrderItem
	if err := r.db.SelectContext(ctx, &items, r.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	byOrder := make(map[uint64][]model.OrderItem, len(orders))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}
	for i := range orders {
		orders[i].Items = byOrder[orders[i].ID]
	}
	return orders, nil
}

// MarkPaidTx moves a PENDING order to PAID.  It reports false when the
// order was no longer PENDING.
func (r *OrderRepo) MarkPaidTx(ctx context.Context, tx *sqlx.Tx, id uint64, paidAt time.Time, paymentRef string) (bool, error) {
	var ref interface{}
	if paymentRef != "" {
		ref = paymentRef
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = ?, paid_at = ?, payment_ref = ? WHERE id = ? AND status = ?`,
		string(model.OrderPaid), paidAt.UTC(), ref, id, string(model.OrderPending))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected == 1, err
}

// SetStatusTx moves a PENDING order to a terminal status other than PAID.
// It reports false when the order was no longer PENDING.
func (r *OrderRepo) SetStatusTx(ctx context.Context, tx *sqlx.Tx, id uint64, to model.OrderStatus) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = ? WHERE id = ? AND status = ?`,
		string(to), id, string(model.OrderPending))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected == 1, err
}

// ListExpiredPendingIDs returns up to limit ids of PENDING orders whose
// deadline is at or before now, oldest deadline first.
func (r *OrderRepo) ListExpiredPendingIDs(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	var ids []uint64
	err := r.db.SelectContext(ctx, &ids,
		`SELECT id FROM orders WHERE status = ? AND expire_at <= ? ORDER BY expire_at, id LIMIT ?`,
		string(model.OrderPending), now.UTC(), limit)
	return ids, err
}
