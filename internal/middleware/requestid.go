package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/logger"
)

// RequestID propagates X-Request-Id, generating one when absent, and puts
// it in the request context for logger.For.
func RequestID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			id := req.Header.Get(echo.HeaderXRequestID)
			if id == "" || len(id) > 128 {
				id = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, id)
			c.SetRequest(req.WithContext(logger.WithRequestID(req.Context(), id)))
			return next(c)
		}
	}
}
