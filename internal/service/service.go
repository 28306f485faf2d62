// Package service implements the ticket inventory and order lifecycle:
// checkout, payment confirmation, cancellation, expiry, draws and prize
// matching.  MySQL is the only synchronisation point; every state change
// runs in one transaction that re-reads the affected rows under lock.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/repository"
)

// DefaultTxTimeout bounds a transaction whose context carries no deadline.
const DefaultTxTimeout = 5 * time.Second

// DefaultBulkTxTimeout bounds transactions that touch a whole ticket pool:
// creating a round and recording its draw.
const DefaultBulkTxTimeout = 2 * time.Minute

// Deps are the collaborators shared by every service.
type Deps struct {
	DB      *sqlx.DB
	Tickets *repository.TicketRepo
	Orders  *repository.OrderRepo
	Rounds  *repository.RoundRepo
	Prizes  *repository.PrizeRepo
	Outbox  *repository.OutboxRepo

	Log           *zap.Logger
	TxTimeout     time.Duration
	BulkTxTimeout time.Duration
	// Now is the clock used for deadlines; defaults to UTC wall time.
	Now func() time.Time
}

// NewDeps builds the repositories over db.
func NewDeps(db *sqlx.DB, log *zap.Logger, txTimeout time.Duration) Deps {
	return Deps{
		DB:        db,
		Tickets:   repository.NewTicketRepo(db),
		Orders:    repository.NewOrderRepo(db),
		Rounds:    repository.NewRoundRepo(db),
		Prizes:    repository.NewPrizeRepo(db),
		Outbox:    repository.NewOutboxRepo(db),
		Log:       log,
		TxTimeout: txTimeout,
	}
}

func (d Deps) withDefaults() Deps {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.TxTimeout <= 0 {
		d.TxTimeout = DefaultTxTimeout
	}
	if d.BulkTxTimeout <= 0 {
		d.BulkTxTimeout = DefaultBulkTxTimeout
	}
	if d.Now == nil {
		d.Now = func() time.Time { return time.Now().UTC() }
	}
	return d
}

// inTx runs fn in a transaction.  fn's error rolls everything back; the
// transaction is committed only when fn returns nil.
func (d Deps) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return d.inTxWithin(ctx, d.TxTimeout, fn)
}

// inBulkTx is inTx bounded by BulkTxTimeout instead of TxTimeout.
func (d Deps) inBulkTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return d.inTxWithin(ctx, d.BulkTxTimeout, fn)
}

func (d Deps) inTxWithin(ctx context.Context, timeout time.Duration, fn func(tx *sqlx.Tx) error) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	tx, err := d.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}
