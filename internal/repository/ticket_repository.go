package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/mysql"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/model"
)

var dialect = goqu.Dialect("mysql")

const ticketColumns = `id, round_id, number, price, set_size, status, created_at, updated_at`

// TicketQuery defines filters and pagination for searching tickets.  Zero
// values mean "no filter".  Pattern must already be validated.
type TicketQuery struct {
	RoundID uint64
	Pattern string
	Status  model.TicketStatus
	Page    int
	Limit   int
}

// TicketRepo encapsulates database operations for tickets.  Status writes
// are only available as Tx methods so that every ticket transition happens
// inside the transaction that also touches the owning order.
type TicketRepo struct {
	db *sqlx.DB
}

// NewTicketRepo constructs a TicketRepo given a DB handle.
func NewTicketRepo(db *sqlx.DB) *TicketRepo { return &TicketRepo{db: db} }

// Search returns one page of tickets matching q ordered by id, plus the
// total number of matches.
func (r *TicketRepo) Search(ctx context.Context, q TicketQuery) ([]model.Ticket, int64, error) {
	ds := dialect.From("tickets").Prepared(true)
	if q.RoundID != 0 {
		ds = ds.Where(goqu.C("round_id").Eq(q.RoundID))
	}
	if q.Pattern != "" {
		// '_' is both the pattern wildcard and the LIKE single-character wildcard.
		ds = ds.Where(goqu.C("number").Like(q.Pattern))
	}
	if q.Status != "" {
		ds = ds.Where(goqu.C("status").Eq(string(q.Status)))
	}

	countSQL, countArgs, err := ds.Select(goqu.COUNT("*")).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build ticket count: %w", err)
	}
	var total int64
	if err := r.db.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
		return nil, 0, err
	}

	offset := (q.Page - 1) * q.Limit
	dataSQL, args, err := ds.
		Select(goqu.L(ticketColumns)).
		Order(goqu.C("id").Asc()).
		Limit(uint(q.Limit)).
		Offset(uint(offset)).
		ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build ticket search: %w", err)
	}
	out := make([]model.Ticket, 0, q.Limit)
	if err := r.db.SelectContext(ctx, &out, dataSQL, args...); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// GetByID returns a single ticket or ErrNotFound.
func (r *TicketRepo) GetByID(ctx context.Context, id uint64) (model.Ticket, error) {
	var t model.Ticket
	err := r.db.GetContext(ctx, &t, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return t, ErrNotFound
	}
	return t, err
}

// LockByIDsTx re-reads the requested tickets under a row lock.  Rows are
// locked in ascending id order so that overlapping checkouts always acquire
// locks in the same order.  Ids that do not exist are simply absent from the
// result.
func (r *TicketRepo) LockByIDsTx(ctx context.Context, tx *sqlx.Tx, ids []uint64) ([]model.Ticket, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+ticketColumns+` FROM tickets WHERE id IN (?) ORDER BY id FOR UPDATE`, ids)
	if err != nil {
		return nil, err
	}
	var out []model.Ticket
	if err := tx.SelectContext(ctx, &out, tx.Rebind(query), args...); err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStatusTx moves the given tickets from one status to another.  Only
// rows currently in from are touched; the number of rows changed is
// returned so callers can detect a concurrent writer.
func (r *TicketRepo) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, ids []uint64, from, to model.TicketStatus) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	if !from.CanTransition(to) {
		return 0, fmt.Errorf("illegal ticket transition %s -> %s", from, to)
	}
	query, args, err := sqlx.In(`UPDATE tickets SET status = ? WHERE status = ? AND id IN (?)`, string(to), string(from), ids)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CreateBulkTx inserts the tickets of a new round in one statement.  A
// duplicate number within the round is reported as ErrConflict.
func (r *TicketRepo) CreateBulkTx(ctx context.Context, tx *sqlx.Tx, tickets []model.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO tickets (round_id, number, price, set_size, status) VALUES `)
	args := make([]interface{}, 0, len(tickets)*5)
	for i, t := range tickets {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?, ?)")
		args = append(args, t.RoundID, t.Number, t.Price, t.SetSize, string(t.Status))
	}
	_, err := tx.ExecContext(ctx, sb.String(), args...)
	return mapWriteErr(err)
}

// ListByRoundStatus returns every ticket of a round in the given status,
// ordered by id.  q may be the DB (nil) or a transaction.
func (r *TicketRepo) ListByRoundStatus(ctx context.Context, q sqlx.QueryerContext, roundID uint64, status model.TicketStatus) ([]model.Ticket, error) {
	if q == nil {
		q = r.db
	}
	var out []model.Ticket
	err := sqlx.SelectContext(ctx, q, &out,
		`SELECT `+ticketColumns+` FROM tickets WHERE round_id = ? AND status = ? ORDER BY id`,
		roundID, string(status))
	return out, err
}

// CountByRoundStatus counts the tickets of a round in the given status.
// q may be the DB (nil) or a transaction.
func (r *TicketRepo) CountByRoundStatus(ctx context.Context, q sqlx.QueryerContext, roundID uint64, status model.TicketStatus) (int64, error) {
	if q == nil {
		q = r.db
	}
	var n int64
	err := sqlx.GetContext(ctx, q, &n, `SELECT COUNT(*) FROM tickets WHERE round_id = ? AND status = ?`, roundID, string(status))
	return n, err
}

// mapWriteErr turns a MySQL duplicate-key error into ErrConflict.
func mapWriteErr(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return fmt.Errorf("%w: %s", ErrConflict, me.Message)
	}
	return err
}
