package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/model"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/repository"
)

// ticketInsertChunk bounds the rows of one bulk ticket INSERT.
const ticketInsertChunk = 1000

// NewRound describes a round to create together with its ticket pool.
type NewRound struct {
	Name        string
	DrawAt      time.Time
	SellOpenAt  time.Time
	SellCloseAt time.Time
	TicketPrice decimal.Decimal
	SetSize     uint32
	Numbers     []string
}

// RoundService sets up rounds and closes their selling windows.
type RoundService struct {
	d Deps
}

// NewRoundService returns a RoundService over d.
func NewRoundService(d Deps) *RoundService {
	return &RoundService{d: d.withDefaults()}
}

// Create inserts an OPEN round and all of its tickets in one transaction.
func (s *RoundService) Create(ctx context.Context, in NewRound) (model.Round, error) {
	if err := validateNewRound(&in); err != nil {
		return model.Round{}, err
	}
	round := model.Round{
		Name:         in.Name,
		DrawAt:       in.DrawAt.UTC(),
		SellOpenAt:   in.SellOpenAt.UTC(),
		SellCloseAt:  in.SellCloseAt.UTC(),
		Status:       model.RoundOpen,
		TicketPrice:  in.TicketPrice,
		TotalTickets: uint32(len(in.Numbers)),
	}
	err := s.d.inBulkTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.d.Rounds.CreateTx(ctx, tx, &round); err != nil {
			return fmt.Errorf("create round: %w", err)
		}
		batch := make([]model.Ticket, 0, ticketInsertChunk)
		for i, num := range in.Numbers {
			batch = append(batch, model.Ticket{
				RoundID: round.ID,
				Number:  num,
				Price:   in.TicketPrice,
				SetSize: in.SetSize,
				Status:  model.TicketAvailable,
			})
			if len(batch) == ticketInsertChunk || i == len(in.Numbers)-1 {
				if err := s.d.Tickets.CreateBulkTx(ctx, tx, batch); err != nil {
					if errors.Is(err, repository.ErrConflict) {
						return invalid("duplicate ticket number")
					}
					return fmt.Errorf("create tickets: %w", err)
				}
				batch = batch[:0]
			}
		}
		return nil
	})
	if err != nil {
		return model.Round{}, err
	}
	now := s.d.Now()
	round.CreatedAt, round.UpdatedAt = now, now
	s.d.Log.Info("round created", zap.Uint64("round_id", round.ID), zap.Int("tickets", len(in.Numbers)))
	return round, nil
}

// Get returns a round or ErrRoundNotFound.
func (s *RoundService) Get(ctx context.Context, id uint64) (model.Round, error) {
	r, err := s.d.Rounds.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return r, fmt.Errorf("%w: %d", ErrRoundNotFound, id)
	}
	return r, err
}

// Close ends the selling window of an OPEN round.
func (s *RoundService) Close(ctx context.Context, id uint64) (model.Round, error) {
	r, err := s.Get(ctx, id)
	if err != nil {
		return r, err
	}
	if !r.Status.CanAdvance(model.RoundClosed) {
		return r, fmt.Errorf("%w: round %d is %s", ErrRoundState, id, r.Status)
	}
	ok, err := s.d.Rounds.SetStatus(ctx, s.d.DB, id, model.RoundOpen, model.RoundClosed)
	if err != nil {
		return r, fmt.Errorf("close round: %w", err)
	}
	if !ok {
		return r, fmt.Errorf("%w: round %d changed concurrently", ErrRoundState, id)
	}
	r.Status = model.RoundClosed
	s.d.Log.Info("round closed", zap.Uint64("round_id", id))
	return r, nil
}

// CloseDue closes every OPEN round whose selling window has ended at now.
// Rounds are closed one statement each in id order, the same order in which
// checkout share-locks them.
func (s *RoundService) CloseDue(ctx context.Context, now time.Time) (int64, error) {
	ids, err := s.d.Rounds.ListDueIDs(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due rounds: %w", err)
	}
	var n int64
	for _, id := range ids {
		ok, err := s.d.Rounds.SetStatus(ctx, s.d.DB, id, model.RoundOpen, model.RoundClosed)
		if err != nil {
			return n, fmt.Errorf("close round %d: %w", id, err)
		}
		if ok {
			n++
		}
	}
	if n > 0 {
		s.d.Log.Info("closed due rounds", zap.Int64("rounds", n))
	}
	return n, nil
}

func validateNewRound(in *NewRound) error {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return invalid("name is required")
	}
	if in.SellOpenAt.IsZero() || in.SellCloseAt.IsZero() || in.DrawAt.IsZero() {
		return invalid("selling window and draw time are required")
	}
	if !in.SellOpenAt.Before(in.SellCloseAt) {
		return invalid("sell_open_at must be before sell_close_at")
	}
	if in.DrawAt.Before(in.SellCloseAt) {
		return invalid("draw_at must not be before sell_close_at")
	}
	if !in.TicketPrice.IsPositive() {
		return invalid("ticket_price must be positive")
	}
	if in.SetSize == 0 {
		in.SetSize = 1
	}
	if len(in.Numbers) == 0 {
		return invalid("numbers are required")
	}
	seen := make(map[string]struct{}, len(in.Numbers))
	for _, n := range in.Numbers {
		if !model.IsDigits(n, model.NumberLength) {
			return invalid("ticket number %q must be %d digits", n, model.NumberLength)
		}
		if _, dup := seen[n]; dup {
			return invalid("duplicate ticket number %q", n)
		}
		seen[n] = struct{}{}
	}
	return nil
}
