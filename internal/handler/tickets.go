package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/model"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/service"
)

// Inventory is the read side of the ticket pool.
type Inventory interface {
	Search(ctx context.Context, q service.TicketSearch) (service.TicketPage, error)
	GetByID(ctx context.Context, id uint64) (model.Ticket, error)
}

// TicketHandler serves the public ticket endpoints.
type TicketHandler struct {
	inv Inventory
	log *zap.Logger
}

func NewTicketHandler(inv Inventory, log *zap.Logger) *TicketHandler {
	return &TicketHandler{inv: inv, log: log}
}

// Search handles GET /v1/tickets?round_id=&pattern=&status=&page=&limit=.
func (h *TicketHandler) Search(c echo.Context) error {
	var q service.TicketSearch
	if v := c.QueryParam("round_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return badRequest(c, "round_id must be a positive integer")
		}
		q.RoundID = id
	}
	q.Pattern = c.QueryParam("pattern")
	q.Status = c.QueryParam("status")
	var err error
	if q.Page, err = queryInt(c, "page"); err != nil {
		return badRequest(c, "page must be an integer")
	}
	if q.Limit, err = queryInt(c, "limit"); err != nil {
		return badRequest(c, "limit must be an integer")
	}
	page, err := h.inv.Search(c.Request().Context(), q)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, page)
}

// Get handles GET /v1/tickets/:id.
func (h *TicketHandler) Get(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid ticket id")
	}
	t, err := h.inv.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, t)
}
