package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/model"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/prize"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/service"
)

// Rounds manages round setup.
type Rounds interface {
	Create(ctx context.Context, in service.NewRound) (model.Round, error)
	Get(ctx context.Context, id uint64) (model.Round, error)
	Close(ctx context.Context, id uint64) (model.Round, error)
}

// Draws records and reads draw results.
type Draws interface {
	RecordDraw(ctx context.Context, roundID uint64, wn model.WinningNumbers) (map[uint64]prize.Tier, error)
	MatchResults(ctx context.Context, roundID uint64) ([]model.PrizeResult, error)
}

type RoundHandler struct {
	rounds Rounds
	draws  Draws
	log    *zap.Logger
}

func NewRoundHandler(rounds Rounds, draws Draws, log *zap.Logger) *RoundHandler {
	return &RoundHandler{rounds: rounds, draws: draws, log: log}
}

type createRoundRequest struct {
	Name        string          `json:"name"`
	DrawAt      time.Time       `json:"draw_at"`
	SellOpenAt  time.Time       `json:"sell_open_at"`
	SellCloseAt time.Time       `json:"sell_close_at"`
	TicketPrice decimal.Decimal `json:"ticket_price"`
	SetSize     uint32          `json:"set_size"`
	Numbers     []string        `json:"numbers"`
}

// Create handles POST /v1/admin/rounds.
func (h *RoundHandler) Create(c echo.Context) error {
	var req createRoundRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	round, err := h.rounds.Create(c.Request().Context(), service.NewRound{
		Name:        req.Name,
		DrawAt:      req.DrawAt,
		SellOpenAt:  req.SellOpenAt,
		SellCloseAt: req.SellCloseAt,
		TicketPrice: req.TicketPrice,
		SetSize:     req.SetSize,
		Numbers:     req.Numbers,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, round)
}

// Get handles GET /v1/rounds/:id.
func (h *RoundHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid round id")
	}
	round, err := h.rounds.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, round)
}

// Close handles POST /v1/admin/rounds/:id/close.
func (h *RoundHandler) Close(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid round id")
	}
	round, err := h.rounds.Close(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, round)
}

// RecordDraw handles POST /v1/admin/rounds/:id/draw with
// {"winning_numbers": {...}}.
func (h *RoundHandler) RecordDraw(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid round id")
	}
	var body struct {
		WinningNumbers *model.WinningNumbers `json:"winning_numbers"`
	}
	if err := c.Bind(&body); err != nil || body.WinningNumbers == nil {
		return badRequest(c, "winning_numbers is required")
	}
	tiers, err := h.draws.RecordDraw(c.Request().Context(), id, *body.WinningNumbers)
	if err != nil {
		return writeError(c, h.log, err)
	}
	counts := make(map[prize.Tier]int, len(prize.Tiers))
	for _, t := range tiers {
		counts[t]++
	}
	return c.JSON(http.StatusOK, echo.Map{
		"round_id":     id,
		"sold_tickets": len(tiers),
		"tier_counts":  counts,
	})
}

// Results handles GET /v1/rounds/:id/results.
func (h *RoundHandler) Results(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid round id")
	}
	results, err := h.draws.MatchResults(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"round_id": id, "results": results})
}
