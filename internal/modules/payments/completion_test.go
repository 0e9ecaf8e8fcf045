package payments

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/orders"
)

func newTestCompleter(t *testing.T) (*Completer, *fakeProvider, *memStore, *WebhookService) {
	t.Helper()
	r, m, _ := newTestReconciler(t)
	log, _ := testLogger()
	prov := newFakeProvider()
	prov.intents[testIntentID] = Intent{
		ID:             testIntentID,
		Status:         StatusSucceeded,
		Amount:         4999,
		AmountReceived: 4999,
		Currency:       "GBP",
		Metadata:       map[string]string{"order_id": testOrderID},
	}
	wh := NewWebhookService(WebhookConfig{Secret: testSecret}, NewVerifier(time.Minute), r, newMemEventLog(), nil, log)
	return NewCompleter(prov, r, time.Second, log), prov, m, wh
}

func TestCompleteUsesProviderStatus(t *testing.T) {
	c, _, m, _ := newTestCompleter(t)

	res, err := c.Complete(context.Background(), testOrderID, testIntentID)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, orders.StatusProcessing, res.Order.Status)
	assert.Equal(t, orders.PaymentSucceeded, res.Order.PaymentStatus)
	assert.Equal(t, orders.StatusProcessing, m.order(testOrderID).Status)
	assert.Equal(t, []statusChange{{OrderID: testOrderID, From: orders.StatusPendingPayment, To: orders.StatusProcessing, Actor: "payments:complete"}}, m.changes)
}

func TestCompleteStillPendingOnProvider(t *testing.T) {
	c, prov, m, _ := newTestCompleter(t)
	in := prov.intents[testIntentID]
	in.Status = StatusProcessing
	prov.intents[testIntentID] = in

	res, err := c.Complete(context.Background(), testOrderID, testIntentID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusPendingPayment, res.Order.Status)
	assert.Equal(t, orders.PaymentPending, m.order(testOrderID).PaymentStatus)
}

func TestCompleteRejectsForeignIntent(t *testing.T) {
	c, prov, m, _ := newTestCompleter(t)
	prov.intents["pi_foreign"] = Intent{ID: "pi_foreign", Status: StatusSucceeded, Metadata: map[string]string{"order_id": "someone-else"}}

	_, err := c.Complete(context.Background(), testOrderID, "pi_foreign")
	assert.ErrorIs(t, err, ErrIntentOrderMismatch)
	assert.Equal(t, orders.StatusPendingPayment, m.order(testOrderID).Status)
}

func TestCompleteProviderFailure(t *testing.T) {
	c, prov, _, _ := newTestCompleter(t)
	prov.getErr = &ProviderError{Op: "retrieve_intent", Timeout: true, Err: context.DeadlineExceeded}

	_, err := c.Complete(context.Background(), testOrderID, testIntentID)
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Timeout)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestCompleteUnknownIntent(t *testing.T) {
	c, _, m, _ := newTestCompleter(t)

	_, err := c.Complete(context.Background(), testOrderID, "pi_missing")
	assert.ErrorIs(t, err, ErrIntentNotFound)
	var pe *ProviderError
	assert.False(t, errors.As(err, &pe))
	assert.Equal(t, orders.StatusPendingPayment, m.order(testOrderID).Status)
	assert.Empty(t, m.eventTypes())
}

func TestCompleteAndWebhookConvergeInEitherOrder(t *testing.T) {
	type snapshot struct {
		OrderStatus   orders.Status
		PaymentStatus orders.PaymentStatus
		Payment       Status
		Received      int64
		Events        int
	}
	run := func(t *testing.T, completeFirst bool) snapshot {
		c, _, m, wh := newTestCompleter(t)
		ctx := context.Background()
		body := intentEvent("evt_conv", "payment_intent.succeeded", "succeeded", true)

		complete := func() {
			_, err := c.Complete(ctx, testOrderID, testIntentID)
			require.NoError(t, err)
		}
		webhook := func() {
			_, err := wh.Handle(ctx, body, Sign(body, testSecret, time.Now()))
			require.NoError(t, err)
		}
		if completeFirst {
			complete()
			webhook()
		} else {
			webhook()
			complete()
		}

		o := m.order(testOrderID)
		p := m.payment(testIntentID)
		return snapshot{
			OrderStatus:   o.Status,
			PaymentStatus: o.PaymentStatus,
			Payment:       p.Status,
			Received:      *p.AmountReceivedMinor,
			Events:        len(m.eventTypes()),
		}
	}

	a := run(t, true)
	b := run(t, false)
	assert.Equal(t, a, b)
	assert.Equal(t, snapshot{
		OrderStatus:   orders.StatusProcessing,
		PaymentStatus: orders.PaymentSucceeded,
		Payment:       StatusSucceeded,
		Received:      4999,
		Events:        2,
	}, a)
}
