package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/authtest"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/middleware"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/model"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/prize"
	"github.com/suchetpongs-ai/lottery-ticket-engine/internal/service"
)

const secret = "handler-secret"

type fakeCheckout struct {
	gotUser uint64
	gotIDs  []uint64
	gotHold time.Duration
	err     error
}

func (f *fakeCheckout) Checkout(_ context.Context, userID uint64, ids []uint64, hold time.Duration) (model.Order, error) {
	f.gotUser, f.gotIDs, f.gotHold = userID, ids, hold
	if f.err != nil {
		return model.Order{}, f.err
	}
	return model.Order{ID: 1, UserID: userID, Status: model.OrderPending, TotalAmount: decimal.NewFromInt(160)}, nil
}

type fakeOrders struct {
	err      error
	gotActor service.Actor
	gotRef   string
}

func (f *fakeOrders) ConfirmPayment(_ context.Context, id uint64, ref string) (model.Order, error) {
	f.gotRef = ref
	return model.Order{ID: id, Status: model.OrderPaid}, f.err
}

func (f *fakeOrders) Cancel(_ context.Context, id uint64, actor service.Actor) (model.Order, error) {
	f.gotActor = actor
	return model.Order{ID: id, Status: model.OrderCancelled}, f.err
}

func (f *fakeOrders) GetForUser(_ context.Context, id, userID uint64) (model.Order, error) {
	return model.Order{ID: id, UserID: userID}, f.err
}

func (f *fakeOrders) ListForUser(context.Context, uint64, int) ([]model.Order, error) {
	return []model.Order{{ID: 1}, {ID: 2}}, f.err
}

type fakeInventory struct {
	got service.TicketSearch
	err error
}

func (f *fakeInventory) Search(_ context.Context, q service.TicketSearch) (service.TicketPage, error) {
	f.got = q
	return service.TicketPage{Items: []model.Ticket{{ID: 5, Number: "123456"}}, Total: 1, Page: 1, Limit: 50}, f.err
}

func (f *fakeInventory) GetByID(_ context.Context, id uint64) (model.Ticket, error) {
	return model.Ticket{ID: id}, f.err
}

type fakeDraws struct{ err error }

func (f *fakeDraws) RecordDraw(context.Context, uint64, model.WinningNumbers) (map[uint64]prize.Tier, error) {
	return map[uint64]prize.Tier{1: prize.TierFirst, 2: prize.TierNone, 3: prize.TierNone}, f.err
}

func (f *fakeDraws) MatchResults(_ context.Context, roundID uint64) ([]model.PrizeResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []model.PrizeResult{{RoundID: roundID, TicketID: 1, Number: "123456", Tier: "first", Payout: decimal.NewFromInt(6_000_000)}}, nil
}

type testServer struct {
	e        *echo.Echo
	checkout *fakeCheckout
	orders   *fakeOrders
	inv      *fakeInventory
	draws    *fakeDraws
}

func newTestServer() *testServer {
	ts := &testServer{
		e:        echo.New(),
		checkout: &fakeCheckout{},
		orders:   &fakeOrders{},
		inv:      &fakeInventory{},
		draws:    &fakeDraws{},
	}
	log := zap.NewNop()
	oh := NewOrderHandler(ts.checkout, ts.orders, 10*time.Minute, log)
	th := NewTicketHandler(ts.inv, log)
	rh := NewRoundHandler(nil, ts.draws, log)

	auth := middleware.JWTAuth(secret)
	ts.e.POST("/v1/orders", oh.Checkout, auth)
	ts.e.GET("/v1/orders", oh.List, auth)
	ts.e.GET("/v1/orders/:id", oh.Get, auth)
	ts.e.POST("/v1/orders/:id/payment", oh.ConfirmPayment, auth)
	ts.e.POST("/v1/orders/:id/cancel", oh.Cancel, auth)
	ts.e.GET("/v1/tickets", th.Search)
	ts.e.GET("/v1/tickets/:id", th.Get)
	ts.e.POST("/v1/admin/rounds/:id/draw", rh.RecordDraw, auth)
	ts.e.GET("/v1/rounds/:id/results", rh.Results)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string, uid uint64, role string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if uid != 0 {
		req.Header.Set(echo.HeaderAuthorization, authtest.Bearer(t, secret, uid, role))
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func TestCheckoutCreatesOrder(t *testing.T) {
	ts := newTestServer()
	rec := ts.do(t, http.MethodPost, "/v1/orders", `{"ticket_ids":[3,1]}`, 42, middleware.RoleCustomer)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, uint64(42), ts.checkout.gotUser)
	assert.Equal(t, []uint64{3, 1}, ts.checkout.gotIDs)
	assert.Equal(t, 10*time.Minute, ts.checkout.gotHold)
	assert.Contains(t, rec.Body.String(), `"status":"PENDING"`)
}

func TestCheckoutConflictListsUnavailable(t *testing.T) {
	ts := newTestServer()
	ts.checkout.err = &service.TicketUnavailableError{TicketIDs: []uint64{2, 9}}
	rec := ts.do(t, http.MethodPost, "/v1/orders", `{"ticket_ids":[1,2,9]}`, 42, middleware.RoleCustomer)

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.JSONEq(t, `{"error":"ticket_unavailable","message":"some tickets are no longer available","unavailable":[2,9]}`, rec.Body.String())
}

func TestCheckoutRequiresToken(t *testing.T) {
	ts := newTestServer()
	rec := ts.do(t, http.MethodPost, "/v1/orders", `{"ticket_ids":[1]}`, 0, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: x", service.ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{fmt.Errorf("%w: 10", service.ErrOrderNotFound), http.StatusNotFound, "order_not_found"},
		{fmt.Errorf("%w: order 10", service.ErrOrderExpired), http.StatusConflict, "order_expired"},
		{fmt.Errorf("%w: order 10 is PAID", service.ErrInvalidOrderState), http.StatusConflict, "invalid_order_state"},
		{service.ErrForbidden, http.StatusForbidden, "forbidden"},
		{context.DeadlineExceeded, http.StatusServiceUnavailable, "timeout"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			ts := newTestServer()
			ts.orders.err = tc.err
			rec := ts.do(t, http.MethodPost, "/v1/orders/10/payment", `{"payment_ref":"gw-1"}`, 1, middleware.RoleGateway)
			assert.Equal(t, tc.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"error":"`+tc.code+`"`)
			assert.NotContains(t, rec.Body.String(), "boom")
		})
	}
}

func TestConfirmPaymentPassesReference(t *testing.T) {
	ts := newTestServer()
	rec := ts.do(t, http.MethodPost, "/v1/orders/10/payment", `{"payment_ref":" gw-1 "}`, 1, middleware.RoleGateway)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gw-1", ts.orders.gotRef)
}

func TestCancelActor(t *testing.T) {
	ts := newTestServer()
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/v1/orders/10/cancel", "", 7, middleware.RoleCustomer).Code)
	assert.Equal(t, service.Actor{UserID: 7}, ts.orders.gotActor)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/v1/orders/10/cancel", "", 1, middleware.RoleAdmin).Code)
	assert.Equal(t, service.Actor{UserID: 1, Admin: true}, ts.orders.gotActor)
}

func TestInvalidOrderID(t *testing.T) {
	ts := newTestServer()
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/v1/orders/abc", "", 7, middleware.RoleCustomer).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/v1/orders/0", "", 7, middleware.RoleCustomer).Code)
}

func TestListOrders(t *testing.T) {
	ts := newTestServer()
	rec := ts.do(t, http.MethodGet, "/v1/orders?limit=5", "", 7, middleware.RoleCustomer)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"items":[`)
}

func TestSearchTicketsParsesQuery(t *testing.T) {
	ts := newTestServer()
	rec := ts.do(t, http.MethodGet, "/v1/tickets?round_id=3&pattern=1__456&status=available&page=2&limit=20", "", 0, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, service.TicketSearch{RoundID: 3, Pattern: "1__456", Status: "available", Page: 2, Limit: 20}, ts.inv.got)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/v1/tickets?page=x", "", 0, "").Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/v1/tickets?round_id=-1", "", 0, "").Code)
}

func TestGetTicketNotFound(t *testing.T) {
	ts := newTestServer()
	ts.inv.err = fmt.Errorf("%w: 9", service.ErrTicketNotFound)
	rec := ts.do(t, http.MethodGet, "/v1/tickets/9", "", 0, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecordDraw(t *testing.T) {
	ts := newTestServer()
	rec := ts.do(t, http.MethodPost, "/v1/admin/rounds/1/draw", `{"winning_numbers":{"first_prize":"123456"}}`, 1, middleware.RoleAdmin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"round_id":1,"sold_tickets":3,"tier_counts":{"first":1,"none":2}}`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/v1/admin/rounds/1/draw", `{}`, 1, middleware.RoleAdmin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResults(t *testing.T) {
	ts := newTestServer()
	rec := ts.do(t, http.MethodGet, "/v1/rounds/1/results", "", 0, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"round_id":1,"results":[{"round_id":1,"ticket_id":1,"number":"123456","tier":"first","payout":"6000000"}]}`, rec.Body.String())

	ts.draws.err = fmt.Errorf("%w: round 1 is CLOSED", service.ErrRoundNotDrawn)
	rec = ts.do(t, http.MethodGet, "/v1/rounds/1/results", "", 0, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "round_not_drawn")
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

func TestHealth(t *testing.T) {
	e := echo.New()
	e.GET("/healthz", Health(fakePinger{}))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	e = echo.New()
	e.GET("/healthz", Health(fakePinger{err: errors.New("down")}))
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
