package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
)

// Outbox statuses.
const (
	OutboxPending int8 = 1
	OutboxSent    int8 = 2
	OutboxFailed  int8 = 3
)

// outboxMaxRetries is the number of publish attempts before a row is
// parked as failed.
const outboxMaxRetries = 10

// OutboxRow is the projection scanned by the dispatcher.
type OutboxRow struct {
	ID      int64  `db:"id"`
	Topic   string `db:"topic"`
	BizKey  string `db:"biz_key"`
	Payload string `db:"payload"`
}

// OutboxRepo stores events written in a business transaction and
// published after commit.
type OutboxRepo struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewOutboxRepo returns a new OutboxRepo bound to the given database.
func NewOutboxRepo(db *sqlx.DB) *OutboxRepo { return &OutboxRepo{db: db, now: time.Now} }

// InsertTx marshals payload and inserts a pending row.  exec is normally
// the transaction of the state change being announced.
func (r *OutboxRepo) InsertTx(ctx context.Context, exec sqlx.ExecerContext, topic, bizKey string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	now := r.now().UnixMilli()
	_, err = exec.ExecContext(ctx,
		`INSERT INTO outbox (topic, biz_key, payload, status, retry_count, last_error, created_at, updated_at) VALUES (?, ?, ?, ?, 0, '', ?, ?)`,
		topic, bizKey, string(b), OutboxPending, now, now)
	return err
}

// ListPending returns up to limit rows still waiting to be published.
func (r *OutboxRepo) ListPending(ctx context.Context, limit int) ([]OutboxRow, error) {
	var list []OutboxRow
	err := r.db.SelectContext(ctx, &list,
		`SELECT id, topic, biz_key, payload FROM outbox WHERE status = ? AND retry_count < ? ORDER BY id ASC LIMIT ?`,
		OutboxPending, outboxMaxRetries, limit)
	return list, err
}

// MarkSent flags a row as published.
func (r *OutboxRepo) MarkSent(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE outbox SET status = ?, updated_at = ? WHERE id = ?`,
		OutboxSent, r.now().UnixMilli(), id)
	return err
}

// MarkFailed records a publish failure.  The row stays pending until its
// last allowed attempt, after which it is parked as failed.
func (r *OutboxRepo) MarkFailed(ctx context.Context, id int64, lastError string) error {
	if len(lastError) > 240 {
		lastError = lastError[:240]
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status = CASE WHEN retry_count >= ? THEN ? ELSE ? END,
		 last_error = ?, retry_count = retry_count + 1, updated_at = ? WHERE id = ?`,
		outboxMaxRetries-1, OutboxFailed, OutboxPending, lastError, r.now().UnixMilli(), id)
	return err
}
