package repository

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/model"
)

// prizeInsertChunk bounds the number of rows per INSERT statement.
const prizeInsertChunk = 500

// PrizeRepo stores the per-ticket classification of a drawn round.
type PrizeRepo struct {
	db *sqlx.DB
}

// NewPrizeRepo returns a new PrizeRepo bound to the given database.
func NewPrizeRepo(db *sqlx.DB) *PrizeRepo { return &PrizeRepo{db: db} }

// SaveResultsTx inserts the results of a round.  A round can be stored
// only once; a second attempt fails with ErrConflict.
func (r *PrizeRepo) SaveResultsTx(ctx context.Context, tx *sqlx.Tx, results []model.PrizeResult) error {
	for start := 0; start < len(results); start += prizeInsertChunk {
		end := start + prizeInsertChunk
		if end > len(results) {
			end = len(results)
		}
		chunk := results[start:end]
		var sb strings.Builder
		sb.WriteString(`INSERT INTO prize_results (round_id, ticket_id, number, tier) VALUES `)
		args := make([]interface{}, 0, len(chunk)*4)
		for i, pr := range chunk {
			if i > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("(?, ?, ?, ?)")
			args = append(args, pr.RoundID, pr.TicketID, pr.Number, pr.Tier)
		}
		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return mapWriteErr(err)
		}
	}
	return nil
}

// ListByRound returns the stored results of a round ordered by ticket id.
func (r *PrizeRepo) ListByRound(ctx context.Context, roundID uint64) ([]model.PrizeResult, error) {
	var out []model.PrizeResult
	err := r.db.SelectContext(ctx, &out,
		`SELECT id, round_id, ticket_id, number, tier, created_at FROM prize_results WHERE round_id = ? ORDER BY ticket_id`,
		roundID)
	return out, err
}
