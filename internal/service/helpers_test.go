package service

import (
	"database/sql/driver"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var (
	ticketCols = []string{"id", "round_id", "number", "price", "set_size", "status", "created_at", "updated_at"}
	orderCols  = []string{"id", "user_id", "total_amount", "status", "created_at", "expire_at", "paid_at", "payment_ref"}
	itemCols   = []string{"id", "order_id", "ticket_id", "number", "price"}
	roundCols  = []string{"id", "name", "draw_at", "sell_open_at", "sell_close_at", "status", "winning_numbers",
		"results_announced_at", "ticket_price", "total_tickets", "sold_tickets", "created_at", "updated_at"}
)

// clock is a settable test clock.
type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// t0 sits inside the selling window of openRound.
var t0 = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func newTestDeps(t *testing.T) (Deps, sqlmock.Sqlmock, *clock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	db := sqlx.NewDb(mockDB, "mysql")
	t.Cleanup(func() { _ = db.Close() })
	c := &clock{t: t0}
	d := NewDeps(db, zap.NewNop(), time.Second)
	d.Now = c.Now
	return d, mock, c
}

func ticketRow(rows *sqlmock.Rows, id, roundID uint64, number, status string) *sqlmock.Rows {
	return rows.AddRow(id, roundID, number, "80.00", 1, status, t0, t0)
}

func openRoundRows(ids ...uint64) *sqlmock.Rows {
	rows := sqlmock.NewRows(roundCols)
	for _, id := range ids {
		rows.AddRow(id, "round", t0.Add(72*time.Hour), t0.Add(-24*time.Hour), t0.Add(24*time.Hour),
			"OPEN", nil, nil, "80.00", 100, 0, t0, t0)
	}
	return rows
}

func orderRow(id, userID uint64, status string, expireAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(orderCols).AddRow(id, userID, "160.00", status, t0, expireAt, nil, nil)
}

func itemRows(orderID uint64, ticketIDs ...uint64) *sqlmock.Rows {
	rows := sqlmock.NewRows(itemCols)
	for i, tid := range ticketIDs {
		rows.AddRow(uint64(i+1), orderID, tid, fmt.Sprintf("%06d", tid), "80.00")
	}
	return rows
}

// expectCheckout queues the statements of a successful checkout of the
// given AVAILABLE tickets in round 1.
func expectCheckout(mock sqlmock.Sqlmock, orderID int64, ticketIDs ...uint64) {
	mock.ExpectBegin()
	rows := sqlmock.NewRows(ticketCols)
	for _, id := range ticketIDs {
		ticketRow(rows, id, 1, fmt.Sprintf("%06d", id), "AVAILABLE")
	}
	mock.ExpectQuery("FROM tickets WHERE id IN .* FOR UPDATE").WillReturnRows(rows)
	mock.ExpectQuery("FROM rounds WHERE id IN .* LOCK IN SHARE MODE").WillReturnRows(openRoundRows(1))
	mock.ExpectExec("UPDATE tickets SET status = \\?").
		WithArgs(append([]driver.Value{"RESERVED", "AVAILABLE"}, toArgs(ticketIDs)...)...).
		WillReturnResult(sqlmock.NewResult(0, int64(len(ticketIDs))))
	mock.ExpectExec("INSERT INTO orders").WillReturnResult(sqlmock.NewResult(orderID, 1))
	mock.ExpectExec("INSERT INTO order_items").WillReturnResult(sqlmock.NewResult(1, int64(len(ticketIDs))))
	mock.ExpectCommit()
}

// expectRelease queues the statements of expiring or cancelling a PENDING
// order whose tickets are RESERVED.
func expectRelease(mock sqlmock.Sqlmock, orderID uint64, userID uint64, expireAt time.Time, to string, ticketIDs ...uint64) {
	mock.ExpectBegin()
	mock.ExpectQuery("FROM orders WHERE id = \\? FOR UPDATE").WillReturnRows(orderRow(orderID, userID, "PENDING", expireAt))
	mock.ExpectQuery("FROM order_items WHERE order_id = \\?").WillReturnRows(itemRows(orderID, ticketIDs...))
	rows := sqlmock.NewRows(ticketCols)
	for _, id := range ticketIDs {
		ticketRow(rows, id, 1, fmt.Sprintf("%06d", id), "RESERVED")
	}
	mock.ExpectQuery("FROM tickets WHERE id IN .* FOR UPDATE").WillReturnRows(rows)
	mock.ExpectExec("UPDATE tickets SET status = \\?").
		WithArgs(append([]driver.Value{"AVAILABLE", "RESERVED"}, toArgs(ticketIDs)...)...).
		WillReturnResult(sqlmock.NewResult(0, int64(len(ticketIDs))))
	mock.ExpectExec("UPDATE orders SET status = \\? WHERE id = \\? AND status = \\?").
		WithArgs(to, orderID, "PENDING").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO outbox").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

func toArgs(ids []uint64) []driver.Value {
	out := make([]driver.Value, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
