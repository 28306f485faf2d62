package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/logger"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/middleware"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/service"
)

// errorCodes maps service sentinels to a status and a stable error code.
// Order matters: the first match wins.
var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{service.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{service.ErrForbidden, http.StatusForbidden, "forbidden"},
	{service.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{service.ErrTicketNotFound, http.StatusNotFound, "ticket_not_found"},
	{service.ErrRoundNotFound, http.StatusNotFound, "round_not_found"},
	{service.ErrRoundNotOpen, http.StatusConflict, "round_not_open"},
	{service.ErrOrderExpired, http.StatusConflict, "order_expired"},
	{service.ErrInvalidOrderState, http.StatusConflict, "invalid_order_state"},
	{service.ErrRoundNotClosed, http.StatusConflict, "round_not_closed"},
	{service.ErrRoundNotDrawn, http.StatusConflict, "round_not_drawn"},
	{service.ErrRoundAlreadyDrawn, http.StatusConflict, "round_already_drawn"},
	{service.ErrRoundState, http.StatusConflict, "round_state"},
}

// writeError renders err as {"error": code, "message": text}.  Unknown
// errors are logged and reported as 500 without their text.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	var unavailable *service.TicketUnavailableError
	if errors.As(err, &unavailable) {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":       "ticket_unavailable",
			"message":     "some tickets are no longer available",
			"unavailable": unavailable.TicketIDs,
		})
	}
	for _, m := range errorCodes {
		if errors.Is(err, m.err) {
			return c.JSON(m.status, echo.Map{"error": m.code, "message": err.Error()})
		}
	}
	l := logger.For(c.Request().Context(), log)
	if errors.Is(err, context.DeadlineExceeded) {
		l.Warn("request timed out", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "timeout", "message": "try again later"})
	}
	l.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal_error", "message": "internal error"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_input", "message": msg})
}

func getUserID(c echo.Context) (uint64, bool) {
	return middleware.UserID(c)
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "missing user"})
}

func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id != 0
}

func queryInt(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
