package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/logger"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/metrics"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/model"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/prize"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/queue"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/repository"
)

// Payouts returns the amount paid for one ticket of a tier.
type Payouts interface {
	Payout(tier prize.Tier) decimal.Decimal
}

// DrawService records draw results and classifies the sold tickets of a
// round.
type DrawService struct {
	d       Deps
	payouts Payouts
}

// NewDrawService returns a DrawService over d using payouts for amounts.
func NewDrawService(d Deps, payouts Payouts) *DrawService {
	return &DrawService{d: d.withDefaults(), payouts: payouts}
}

// RecordDraw stores the winning numbers of a round, moves it to DRAWN and
// persists the tier of every SOLD ticket, all in one transaction.  An OPEN
// round whose selling window has ended is closed first.  A round that still
// has RESERVED tickets cannot be drawn: those orders must be paid or expire
// before the result set is final.
func (s *DrawService) RecordDraw(ctx context.Context, roundID uint64, wn model.WinningNumbers) (map[uint64]prize.Tier, error) {
	if err := wn.Validate(); err != nil {
		return nil, invalid("%s", err.Error())
	}
	var tiers map[uint64]prize.Tier
	err := s.d.inBulkTx(ctx, func(tx *sqlx.Tx) error {
		round, err := s.d.Rounds.GetForUpdateTx(ctx, tx, roundID)
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %d", ErrRoundNotFound, roundID)
		}
		if err != nil {
			return fmt.Errorf("lock round: %w", err)
		}
		now := s.d.Now()
		switch round.Status {
		case model.RoundDrawn:
			return fmt.Errorf("%w: round %d", ErrRoundAlreadyDrawn, roundID)
		case model.RoundOpen:
			if !round.SellWindowClosedAt(now) {
				return fmt.Errorf("%w: round %d sells until %s", ErrRoundNotClosed, roundID, round.SellCloseAt.Format("2006-01-02 15:04:05"))
			}
			if _, err := s.d.Rounds.SetStatus(ctx, tx, roundID, model.RoundOpen, model.RoundClosed); err != nil {
				return fmt.Errorf("close round: %w", err)
			}
		}

		pending, err := s.d.Tickets.CountByRoundStatus(ctx, tx, roundID, model.TicketReserved)
		if err != nil {
			return fmt.Errorf("count reserved tickets: %w", err)
		}
		if pending > 0 {
			return fmt.Errorf("%w: round %d has %d reserved tickets", ErrRoundNotClosed, roundID, pending)
		}

		ok, err := s.d.Rounds.SetDrawnTx(ctx, tx, roundID, wn, now)
		if err != nil {
			return fmt.Errorf("record winning numbers: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w: round %d", ErrRoundState, roundID)
		}

		sold, err := s.d.Tickets.ListByRoundStatus(ctx, tx, roundID, model.TicketSold)
		if err != nil {
			return fmt.Errorf("list sold tickets: %w", err)
		}
		tiers = prize.MatchAll(entries(sold), &wn)
		results := make([]model.PrizeResult, 0, len(sold))
		for _, t := range sold {
			results = append(results, model.PrizeResult{
				RoundID:  roundID,
				TicketID: t.ID,
				Number:   t.Number,
				Tier:     string(tiers[t.ID]),
			})
		}
		if err := s.d.Prizes.SaveResultsTx(ctx, tx, results); err != nil {
			if errors.Is(err, repository.ErrConflict) {
				return fmt.Errorf("%w: round %d", ErrRoundAlreadyDrawn, roundID)
			}
			return fmt.Errorf("save prize results: %w", err)
		}
		ev := queue.RoundDrawnEvent{
			RoundID:     roundID,
			FirstPrize:  wn.FirstPrize,
			TierCounts:  countTiers(tiers),
			AnnouncedAt: now,
		}
		if err := s.d.Outbox.InsertTx(ctx, tx, queue.TopicRoundDrawn, queue.TopicRoundDrawn+":"+strconv.FormatUint(roundID, 10), ev); err != nil {
			return fmt.Errorf("write outbox: %w", err)
		}
		return nil
	})

	log := logger.For(ctx, s.d.Log).With(zap.Uint64("round_id", roundID))
	if err != nil {
		metrics.RecordDraw("fail", nil)
		log.Warn("record draw failed", zap.Error(err))
		return nil, err
	}
	counts := countTiers(tiers)
	metrics.RecordDraw("success", counts)
	log.Info("draw recorded", zap.Int("sold_tickets", len(tiers)), zap.Any("tiers", counts))
	return tiers, nil
}

// MatchRound classifies the current SOLD tickets of a DRAWN round against
// its stored winning numbers.
func (s *DrawService) MatchRound(ctx context.Context, roundID uint64) (map[uint64]prize.Tier, error) {
	round, err := s.drawnRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	sold, err := s.d.Tickets.ListByRoundStatus(ctx, nil, roundID, model.TicketSold)
	if err != nil {
		return nil, fmt.Errorf("list sold tickets: %w", err)
	}
	return prize.MatchAll(entries(sold), round.WinningNumbers), nil
}

// MatchResults returns the stored results of a DRAWN round with the payout
// of each ticket.
func (s *DrawService) MatchResults(ctx context.Context, roundID uint64) ([]model.PrizeResult, error) {
	if _, err := s.drawnRound(ctx, roundID); err != nil {
		return nil, err
	}
	results, err := s.d.Prizes.ListByRound(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("list prize results: %w", err)
	}
	for i := range results {
		results[i].Payout = s.payouts.Payout(prize.Tier(results[i].Tier))
	}
	return results, nil
}

func (s *DrawService) drawnRound(ctx context.Context, roundID uint64) (model.Round, error) {
	round, err := s.d.Rounds.GetByID(ctx, roundID)
	if errors.Is(err, repository.ErrNotFound) {
		return round, fmt.Errorf("%w: %d", ErrRoundNotFound, roundID)
	}
	if err != nil {
		return round, err
	}
	if round.Status != model.RoundDrawn || round.WinningNumbers == nil {
		return round, fmt.Errorf("%w: round %d is %s", ErrRoundNotDrawn, roundID, round.Status)
	}
	return round, nil
}

func entries(tickets []model.Ticket) []prize.Entry {
	out := make([]prize.Entry, len(tickets))
	for i, t := range tickets {
		out[i] = prize.Entry{TicketID: t.ID, Number: t.Number}
	}
	return out
}

func countTiers(tiers map[uint64]prize.Tier) map[string]int {
	out := make(map[string]int, len(prize.Tiers))
	for _, t := range tiers {
		out[string(t)]++
	}
	return out
}
