package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/middleware"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/model"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/service"
)

// Checkouter reserves tickets into a PENDING order.
type Checkouter interface {
	Checkout(ctx context.Context, userID uint64, ticketIDs []uint64, hold time.Duration) (model.Order, error)
}

// Orders drives orders out of PENDING and reads them back.
type Orders interface {
	ConfirmPayment(ctx context.Context, orderID uint64, paymentRef string) (model.Order, error)
	Cancel(ctx context.Context, orderID uint64, actor service.Actor) (model.Order, error)
	GetForUser(ctx context.Context, orderID, userID uint64) (model.Order, error)
	ListForUser(ctx context.Context, userID uint64, limit int) ([]model.Order, error)
}

// OrderHandler serves checkout and the order lifecycle endpoints.  JWT
// and role checks run in middleware before any method is called.
type OrderHandler struct {
	checkout Checkouter
	orders   Orders
	hold     time.Duration
	log      *zap.Logger
}

// NewOrderHandler returns an OrderHandler reserving tickets for hold.
func NewOrderHandler(checkout Checkouter, orders Orders, hold time.Duration, log *zap.Logger) *OrderHandler {
	return &OrderHandler{checkout: checkout, orders: orders, hold: hold, log: log}
}

// Checkout handles POST /v1/orders with {"ticket_ids": [...]}.  It answers
// 201 with the PENDING order, or 409 with the unavailable ticket ids.
func (h *OrderHandler) Checkout(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return unauthorized(c)
	}
	var body struct {
		TicketIDs []uint64 `json:"ticket_ids"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	order, err := h.checkout.Checkout(c.Request().Context(), userID, body.TicketIDs, h.hold)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, order)
}

// ConfirmPayment handles POST /v1/orders/:id/payment with
// {"payment_ref": "..."}.  It is called by the payment gateway.
func (h *OrderHandler) ConfirmPayment(c echo.Context) error {
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	var body struct {
		PaymentRef string `json:"payment_ref"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	ref := strings.TrimSpace(body.PaymentRef)
	if len(ref) > 128 {
		return badRequest(c, "payment_ref is too long")
	}
	order, err := h.orders.ConfirmPayment(c.Request().Context(), id, ref)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, order)
}

// Cancel handles POST /v1/orders/:id/cancel.  Customers may cancel their
// own orders; admins any order.
func (h *OrderHandler) Cancel(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	actor := service.Actor{UserID: userID, Admin: middleware.Role(c) == middleware.RoleAdmin}
	order, err := h.orders.Cancel(c.Request().Context(), id, actor)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, order)
}

// Get handles GET /v1/orders/:id for the owner of the order.
func (h *OrderHandler) Get(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := pathID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	order, err := h.orders.GetForUser(c.Request().Context(), id, userID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, order)
}

// List handles GET /v1/orders?limit=.
func (h *OrderHandler) List(c echo.Context) error {
	userID, ok := getUserID(c)
	if !ok {
		return unauthorized(c)
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		return badRequest(c, "limit must be an integer")
	}
	orders, err := h.orders.ListForUser(c.Request().Context(), userID, limit)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": orders})
}
