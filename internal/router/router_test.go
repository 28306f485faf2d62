package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/authtest"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/handler"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/middleware"
)

const secret = "router-secret"

func newRouter() *echo.Echo {
	e := echo.New()
	log := zap.NewNop()
	Register(e, Handlers{
		Orders:  handler.NewOrderHandler(nil, nil, time.Minute, log),
		Tickets: handler.NewTicketHandler(nil, log),
		Rounds:  handler.NewRoundHandler(nil, nil, log),
		Health:  func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
	}, Options{JWTSecret: secret})
	return e
}

func call(t *testing.T, e *echo.Echo, method, path, role string) int {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if role != "" {
		req.Header.Set(echo.HeaderAuthorization, authtest.Bearer(t, secret, 5, role))
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec.Code
}

func TestOpsRoutes(t *testing.T) {
	e := newRouter()
	assert.Equal(t, http.StatusOK, call(t, e, http.MethodGet, "/healthz", ""))
	assert.Equal(t, http.StatusOK, call(t, e, http.MethodGet, "/metrics", ""))
}

func TestRoleEnforcement(t *testing.T) {
	e := newRouter()
	cases := []struct {
		method, path, role string
		want               int
	}{
		{http.MethodPost, "/v1/orders", "", http.StatusUnauthorized},
		{http.MethodPost, "/v1/orders", middleware.RoleGateway, http.StatusForbidden},
		{http.MethodGet, "/v1/orders/1", middleware.RoleAdmin, http.StatusForbidden},
		{http.MethodPost, "/v1/orders/1/payment", middleware.RoleCustomer, http.StatusForbidden},
		{http.MethodPost, "/v1/orders/1/cancel", middleware.RoleGateway, http.StatusForbidden},
		{http.MethodPost, "/v1/admin/rounds", middleware.RoleCustomer, http.StatusForbidden},
		{http.MethodPost, "/v1/admin/rounds/1/draw", "", http.StatusUnauthorized},
		{http.MethodPost, "/v1/admin/rounds/1/close", middleware.RoleGateway, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.path+" "+tc.role, func(t *testing.T) {
			assert.Equal(t, tc.want, call(t, e, tc.method, tc.path, tc.role))
		})
	}
}
