package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/mailer"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/customers"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/orders"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/payments"
)

type stubOrders map[string]orders.Order

func (s stubOrders) GetWithItems(_ context.Context, id string) (orders.Order, error) {
	o, ok := s[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

type stubCustomers map[string]customers.Customer

func (s stubCustomers) GetByID(_ context.Context, id string) (customers.Customer, error) {
	c, ok := s[id]
	if !ok {
		return customers.Customer{}, customers.ErrNotFound
	}
	return c, nil
}

func fixture() (stubOrders, stubCustomers) {
	o := orders.Order{
		ID:            "ord-1",
		OrderNumber:   "ORD-20261015-ABC123",
		CustomerID:    "cus-1",
		Status:        orders.StatusPendingPayment,
		PaymentStatus: orders.PaymentFailed,
		Currency:      "GBP",
		SubtotalMinor: 4999,
		ShippingMinor: 499,
		TaxMinor:      1000,
		TotalMinor:    6498,
		Items: []orders.OrderItem{
			{ProductName: "Canvas Tote <Large>", Quantity: 1, LineTotalMinor: 4999, Currency: "GBP"},
		},
	}
	c := customers.Customer{ID: "cus-1", Email: "ada@example.com", FirstName: "Ada"}
	return stubOrders{o.ID: o}, stubCustomers{c.ID: c}
}

func newService(m mailer.Service) *Service {
	o, c := fixture()
	return newServiceWith(m, o, c)
}

func newServiceWith(m mailer.Service, o stubOrders, c stubCustomers) *Service {
	return NewService(Config{From: "shop@example.com", FromName: "Shop", BaseURL: "https://shop.example.com/"},
		m, o, c, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func settled(status payments.Status) payments.Result {
	o := orders.Order{ID: "ord-1", Status: orders.StatusProcessing, PaymentStatus: orders.PaymentSucceeded}
	if status != payments.StatusSucceeded {
		o.Status, o.PaymentStatus = orders.StatusPendingPayment, orders.PaymentFailed
	}
	return payments.Result{
		Outcome: payments.OutcomeApplied,
		Order:   o,
		Payment: payments.Payment{OrderID: "ord-1", Status: status},
	}
}

func TestPaymentSettledSendsConfirmation(t *testing.T) {
	m := &mailer.Mock{}
	s := newService(m)

	s.PaymentSettled(context.Background(), settled(payments.StatusSucceeded))
	s.Wait()

	sent := m.Sent()
	require.Len(t, sent, 1)
	e := sent[0]
	assert.Equal(t, []string{"ada@example.com"}, e.To)
	assert.Equal(t, "shop@example.com", e.From)
	assert.Equal(t, "Order ORD-20261015-ABC123 confirmed", e.Subject)
	assert.Equal(t, "order_confirmed", e.Headers["X-Storefront-Kind"])
	assert.Contains(t, e.TextBody, "Hi Ada")
	assert.Contains(t, e.TextBody, "1 x Canvas Tote <Large>")
	assert.Contains(t, e.TextBody, "Total:    £64.98")
	assert.Contains(t, e.HTMLBody, "Canvas Tote &lt;Large&gt;")
	assert.NotContains(t, e.TextBody, "https://")
	assert.Contains(t, e.TextBody, "Quote ORD-20261015-ABC123")
}

func TestAccountHoldersGetOrderLink(t *testing.T) {
	o, c := fixture()
	cust := c["cus-1"]
	uid := "usr-1"
	cust.UserID = &uid
	c["cus-1"] = cust

	m := &mailer.Mock{}
	s := newServiceWith(m, o, c)
	s.PaymentSettled(context.Background(), settled(payments.StatusSucceeded))
	s.PaymentSettled(context.Background(), settled(payments.StatusFailed))
	s.Wait()

	sent := m.Sent()
	require.Len(t, sent, 2)
	for _, e := range sent {
		assert.Contains(t, e.TextBody, "https://shop.example.com/orders/ORD-20261015-ABC123")
		assert.Contains(t, e.HTMLBody, `href="https://shop.example.com/orders/ORD-20261015-ABC123"`)
	}
}

func TestPaymentSettledSendsFailureNotice(t *testing.T) {
	m := &mailer.Mock{}
	s := newService(m)

	res := settled(payments.StatusFailed)
	reason := "Your card was declined."
	res.Payment.FailureMessage = &reason
	s.PaymentSettled(context.Background(), res)
	s.Wait()

	sent := m.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "payment_failed", sent[0].Headers["X-Storefront-Kind"])
	assert.Contains(t, sent[0].Subject, "did not go through")
	assert.Contains(t, sent[0].TextBody, "Reason: Your card was declined.")
	assert.Contains(t, sent[0].TextBody, "go back to the checkout page")
	assert.NotContains(t, sent[0].TextBody, "/orders/")
}

func TestNoFailureNoticeOncePaid(t *testing.T) {
	t.Run("result already paid", func(t *testing.T) {
		m := &mailer.Mock{}
		s := newService(m)
		res := settled(payments.StatusCancelled)
		res.Order.Status, res.Order.PaymentStatus = orders.StatusProcessing, orders.PaymentSucceeded
		s.PaymentSettled(context.Background(), res)
		s.Wait()
		assert.Empty(t, m.Sent())
	})

	t.Run("paid before the mail went out", func(t *testing.T) {
		o, c := fixture()
		paid := o["ord-1"]
		paid.Status, paid.PaymentStatus = orders.StatusProcessing, orders.PaymentSucceeded
		o["ord-1"] = paid

		m := &mailer.Mock{}
		s := newServiceWith(m, o, c)
		s.PaymentSettled(context.Background(), settled(payments.StatusFailed))
		s.Wait()
		assert.Empty(t, m.Sent())
	})
}

func TestPaymentSettledOutlivesCallerContext(t *testing.T) {
	m := &mailer.Mock{}
	s := newService(m)

	ctx, cancel := context.WithCancel(context.Background())
	s.PaymentSettled(ctx, settled(payments.StatusSucceeded))
	cancel()
	s.Wait()

	assert.Len(t, m.Sent(), 1)
}

func TestPaymentSettledSwallowsFailures(t *testing.T) {
	t.Run("mailer error", func(t *testing.T) {
		m := &mailer.Mock{Err: errors.New("smtp down")}
		s := newService(m)
		s.PaymentSettled(context.Background(), settled(payments.StatusSucceeded))
		s.Wait()
		assert.Empty(t, m.Sent())
	})

	t.Run("unknown order", func(t *testing.T) {
		m := &mailer.Mock{}
		s := newService(m)
		res := settled(payments.StatusSucceeded)
		res.Order.ID = "missing"
		s.PaymentSettled(context.Background(), res)
		s.Wait()
		assert.Empty(t, m.Sent())
	})
}
