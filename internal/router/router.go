// Package router registers the HTTP surface of the engine on an echo
// instance.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/handler"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/middleware"
)

// Handlers bundles everything the routes dispatch to.
type Handlers struct {
	Orders  *handler.OrderHandler
	Tickets *handler.TicketHandler
	Rounds  *handler.RoundHandler
	Health  echo.HandlerFunc
}

// Options carries the middleware shared by several route groups.
type Options struct {
	JWTSecret string
	// RateLimit guards checkout, payment and cancel.
	RateLimit echo.MiddlewareFunc
	// ResultsCache wraps the draw results endpoint.
	ResultsCache echo.MiddlewareFunc
}

// Register mounts every route.
func Register(e *echo.Echo, h Handlers, opts Options) {
	if opts.RateLimit == nil {
		opts.RateLimit = noop
	}
	if opts.ResultsCache == nil {
		opts.ResultsCache = noop
	}
	e.GET("/healthz", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	registerPublic(e, h, opts)
	registerCustomer(e, h, opts)
	registerGateway(e, h, opts)
	registerAdmin(e, h, opts)
}

// registerPublic mounts the unauthenticated browse endpoints.
func registerPublic(e *echo.Echo, h Handlers, opts Options) {
	e.GET("/v1/tickets", h.Tickets.Search)
	e.GET("/v1/tickets/:id", h.Tickets.Get)
	e.GET("/v1/rounds/:id", h.Rounds.Get)
	e.GET("/v1/rounds/:id/results", h.Rounds.Results, opts.ResultsCache)
}

func registerGateway(e *echo.Echo, h Handlers, opts Options) {
	g := e.Group("/v1",
		middleware.JWTAuth(opts.JWTSecret),
	)
	g.POST("/orders/:id/payment", h.Orders.ConfirmPayment,
		middleware.RequireRole(middleware.RoleGateway, middleware.RoleAdmin), opts.RateLimit)
	// admins may cancel any order; ownership is checked by the service
	g.POST("/orders/:id/cancel", h.Orders.Cancel,
		middleware.RequireRole(middleware.RoleCustomer, middleware.RoleAdmin), opts.RateLimit)
}

func registerAdmin(e *echo.Echo, h Handlers, opts Options) {
	g := e.Group("/v1/admin",
		middleware.JWTAuth(opts.JWTSecret),
		middleware.RequireRole(middleware.RoleAdmin),
	)
	g.POST("/rounds", h.Rounds.Create)
	g.POST("/rounds/:id/close", h.Rounds.Close)
	g.POST("/rounds/:id/draw", h.Rounds.RecordDraw)
}

func noop(next echo.HandlerFunc) echo.HandlerFunc { return next }
