package router

import (
	"github.com/labstack/echo/v4"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/middleware"
)

// registerCustomer mounts the buyer endpoints.  Every route requires a
// valid JWT with the CUSTOMER role.
func registerCustomer(e *echo.Echo, h Handlers, opts Options) {
	g := e.Group("/v1/orders",
		middleware.JWTAuth(opts.JWTSecret),
	)
	customer := middleware.RequireRole(middleware.RoleCustomer)
	g.POST("", h.Orders.Checkout, customer, opts.RateLimit)
	g.GET("", h.Orders.List, customer)
	g.GET("/:id", h.Orders.Get, customer)
}
