package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/model"
)

const roundColumns = `id, name, draw_at, sell_open_at, sell_close_at, status, winning_numbers,
	results_announced_at, ticket_price, total_tickets, sold_tickets, created_at, updated_at`

// roundRow mirrors the rounds table.  winning_numbers is stored as JSON and
// decoded into model.WinningNumbers by toModel.
type roundRow struct {
	ID                 uint64            `db:"id"`
	Name               string            `db:"name"`
	DrawAt             time.Time         `db:"draw_at"`
	SellOpenAt         time.Time         `db:"sell_open_at"`
	SellCloseAt        time.Time         `db:"sell_close_at"`
	Status             model.RoundStatus `db:"status"`
	WinningNumbers     sql.NullString    `db:"winning_numbers"`
	ResultsAnnouncedAt sql.NullTime      `db:"results_announced_at"`
	TicketPrice        decimal.Decimal   `db:"ticket_price"`
	TotalTickets       uint32            `db:"total_tickets"`
	SoldTickets        uint32            `db:"sold_tickets"`
	CreatedAt          time.Time         `db:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at"`
}

func (r roundRow) toModel() (model.Round, error) {
	out := model.Round{
		ID:           r.ID,
		Name:         r.Name,
		DrawAt:       r.DrawAt,
		SellOpenAt:   r.SellOpenAt,
		SellCloseAt:  r.SellCloseAt,
		Status:       r.Status,
		TicketPrice:  r.TicketPrice,
		TotalTickets: r.TotalTickets,
		SoldTickets:  r.SoldTickets,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.WinningNumbers.Valid && r.WinningNumbers.String != "" {
		var wn model.WinningNumbers
		if err := json.Unmarshal([]byte(r.WinningNumbers.String), &wn); err != nil {
			return out, fmt.Errorf("decode winning numbers of round %d: %w", r.ID, err)
		}
		out.WinningNumbers = &wn
	}
	if r.ResultsAnnouncedAt.Valid {
		t := r.ResultsAnnouncedAt.Time
		out.ResultsAnnouncedAt = &t
	}
	return out, nil
}

// RoundRepo provides data access to the rounds table.
type RoundRepo struct {
	db *sqlx.DB
}

// NewRoundRepo returns a new RoundRepo bound to the given database.
func NewRoundRepo(db *sqlx.DB) *RoundRepo { return &RoundRepo{db: db} }

// DB exposes the underlying handle so services can open transactions.
func (r *RoundRepo) DB() *sqlx.DB { return r.db }

// CreateTx inserts a new round and populates its generated ID.
func (r *RoundRepo) CreateTx(ctx context.Context, tx *sqlx.Tx, round *model.Round) error {
	const q = `INSERT INTO rounds (name, draw_at, sell_open_at, sell_close_at, status, ticket_price, total_tickets, sold_tickets)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)`
	res, err := tx.ExecContext(ctx, q,
		round.Name, round.DrawAt.UTC(), round.SellOpenAt.UTC(), round.SellCloseAt.UTC(),
		string(round.Status), round.TicketPrice, round.TotalTickets)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	round.ID = uint64(id)
	return nil
}

// GetByID returns a round or ErrNotFound.
func (r *RoundRepo) GetByID(ctx context.Context, id uint64) (model.Round, error) {
	return r.get(ctx, r.db, `SELECT `+roundColumns+` FROM rounds WHERE id = ?`, id)
}

// GetForUpdateTx reads a round under a row lock.
func (r *RoundRepo) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, id uint64) (model.Round, error) {
	return r.get(ctx, tx, `SELECT `+roundColumns+` FROM rounds WHERE id = ? FOR UPDATE`, id)
}

func (r *RoundRepo) get(ctx context.Context, q sqlx.QueryerContext, query string, id uint64) (model.Round, error) {
	var row roundRow
	if err := sqlx.GetContext(ctx, q, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Round{}, ErrNotFound
		}
		return model.Round{}, err
	}
	return row.toModel()
}

// ShareLockByIDsTx reads the given rounds under a shared lock.  Checkouts
// hold the shared lock until commit, so they run in parallel with each other
// but never overlap a draw, which takes the exclusive lock.
func (r *RoundRepo) ShareLockByIDsTx(ctx context.Context, tx *sqlx.Tx, ids []uint64) ([]model.Round, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`SELECT `+roundColumns+` FROM rounds WHERE id IN (?) ORDER BY id LOCK IN SHARE MODE`, ids)
	if err != nil {
		return nil, err
	}
	var rows []roundRow
	if err := tx.SelectContext(ctx, &rows, tx.Rebind(query), args...); err != nil {
		return nil, err
	}
	out := make([]model.Round, 0, len(rows))
	for _, row := range rows {
		m, err := row.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// IncrementSoldTx adds n to the sold counter of a round.  It must run in
// the same transaction that marks the tickets SOLD.
func (r *RoundRepo) IncrementSoldTx(ctx context.Context, tx *sqlx.Tx, roundID uint64, n int) error {
	res, err := tx.ExecContext(ctx, `UPDATE rounds SET sold_tickets = sold_tickets + ? WHERE id = ?`, n, roundID)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err != nil {
		return err
	} else if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus advances a round from one status to the next.  It reports
// false when the round was not in from.  exec may be the DB or a transaction.
func (r *RoundRepo) SetStatus(ctx context.Context, exec sqlx.ExecerContext, id uint64, from, to model.RoundStatus) (bool, error) {
	if !from.CanAdvance(to) {
		return false, fmt.Errorf("illegal round transition %s -> %s", from, to)
	}
	res, err := exec.ExecContext(ctx, `UPDATE rounds SET status = ? WHERE id = ? AND status = ?`, string(to), id, string(from))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected == 1, err
}

// SetDrawnTx stores the winning numbers and moves a CLOSED round to DRAWN.
// Winning numbers are written exactly once: the update is guarded by the
// CLOSED status.
func (r *RoundRepo) SetDrawnTx(ctx context.Context, tx *sqlx.Tx, id uint64, wn model.WinningNumbers, announcedAt time.Time) (bool, error) {
	raw, err := json.Marshal(wn)
	if err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE rounds SET status = ?, winning_numbers = ?, results_announced_at = ?
		 WHERE id = ? AND status = ? AND winning_numbers IS NULL`,
		string(model.RoundDrawn), string(raw), announcedAt.UTC(), id, string(model.RoundClosed))
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected == 1, err
}

// ListDueIDs returns the ids of OPEN rounds whose selling window has ended
// at now, ascending.  It is a plain read and takes no row locks.
func (r *RoundRepo) ListDueIDs(ctx context.Context, now time.Time) ([]uint64, error) {
	var ids []uint64
	err := r.db.SelectContext(ctx, &ids,
		`SELECT id FROM rounds WHERE status = ? AND sell_close_at <= ? ORDER BY id`,
		string(model.RoundOpen), now.UTC())
	return ids, err
}
