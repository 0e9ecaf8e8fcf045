package admin

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/http/middleware"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/orders"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/payments"
)

type fakeReader struct{ o orders.Order }

func (f fakeReader) GetWithItems(_ context.Context, id string) (orders.Order, error) {
	if id != f.o.ID {
		return orders.Order{}, orders.ErrNotFound
	}
	return f.o, nil
}

func (f fakeReader) ListEvents(context.Context, string) ([]orders.OrderEvent, error) {
	return []orders.OrderEvent{{
		Actor:      "payments:webhook",
		FromStatus: orders.StatusPendingPayment,
		ToStatus:   orders.StatusProcessing,
		CreatedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}}, nil
}

type fakeTransitioner struct {
	got orders.TransitionInput
	err error
}

func (f *fakeTransitioner) Transition(_ context.Context, in orders.TransitionInput) (orders.Order, error) {
	f.got = in
	if f.err != nil {
		return orders.Order{}, f.err
	}
	return orders.Order{ID: in.OrderID, Status: in.To, Currency: "GBP"}, nil
}

type noPayments struct{}

func (noPayments) ListByOrder(context.Context, string) ([]payments.Payment, error) { return nil, nil }

func newEngine(h *OrdersHandler, user middleware.ContextUser) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.ErrorHandler(slog.New(slog.NewTextHandler(io.Discard, nil))))
	r.Use(func(c *gin.Context) { middleware.SetCurrentUser(c, user) })
	g := r.Group("/api/admin", middleware.RequireAdmin())
	g.GET("/orders/:id", h.Detail)
	g.POST("/orders/:id/transition", h.Transition)
	return r
}

func send(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminTransition(t *testing.T) {
	admin := middleware.ContextUser{ID: "admin-1", Role: middleware.RoleAdmin}

	t.Run("applies with admin actor", func(t *testing.T) {
		svc := &fakeTransitioner{}
		r := newEngine(NewOrdersHandler(fakeReader{}, svc, noPayments{}), admin)

		w := send(r, http.MethodPost, "/api/admin/orders/o-1/transition", `{"status":" Fulfilled ","note":"shipped DPD"}`)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, orders.StatusFulfilled, svc.got.To)
		assert.Equal(t, "admin:admin-1", svc.got.Actor)
		assert.Equal(t, "shipped DPD", svc.got.Note)
	})

	t.Run("illegal move is a conflict", func(t *testing.T) {
		svc := &fakeTransitioner{err: &orders.TransitionError{
			From: orders.StatusPendingPayment, To: orders.StatusFulfilled, Err: orders.ErrInvalidTransition,
		}}
		r := newEngine(NewOrdersHandler(fakeReader{}, svc, noPayments{}), admin)

		w := send(r, http.MethodPost, "/api/admin/orders/o-1/transition", `{"status":"fulfilled"}`)
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("missing status", func(t *testing.T) {
		r := newEngine(NewOrdersHandler(fakeReader{}, &fakeTransitioner{}, noPayments{}), admin)
		w := send(r, http.MethodPost, "/api/admin/orders/o-1/transition", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("non admin", func(t *testing.T) {
		svc := &fakeTransitioner{}
		r := newEngine(NewOrdersHandler(fakeReader{}, svc, noPayments{}), middleware.ContextUser{ID: "u-1", Role: "customer"})
		w := send(r, http.MethodPost, "/api/admin/orders/o-1/transition", `{"status":"fulfilled"}`)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Empty(t, svc.got.OrderID)
	})
}

func TestAdminDetail(t *testing.T) {
	o := orders.Order{ID: "o-1", OrderNumber: "ORD-1", Status: orders.StatusProcessing, Currency: "GBP"}
	r := newEngine(NewOrdersHandler(fakeReader{o: o}, &fakeTransitioner{}, noPayments{}), middleware.ContextUser{ID: "a", Role: middleware.RoleAdmin})

	w := send(r, http.MethodGet, "/api/admin/orders/o-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"actor":"payments:webhook"`)
	assert.Contains(t, w.Body.String(), `"to":"processing"`)

	w = send(r, http.MethodGet, "/api/admin/orders/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
