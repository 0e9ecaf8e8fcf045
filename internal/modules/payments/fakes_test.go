package payments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/orders"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/platform/outbox"
)

// memStore is an in-memory Store with copy-on-commit transactions. It does
// not lock; it counts overlapping transactions on the same order instead.
type memStore struct {
	mu       sync.Mutex
	orders   map[string]orders.Order
	payments map[string]Payment // by intent id
	emitted  []outbox.Message
	changes  []statusChange
	active   map[string]int
	overlaps int

	failSave error
}

type statusChange struct {
	OrderID string
	From    orders.Status
	To      orders.Status
	Actor   string
}

func newMemStore() *memStore {
	return &memStore{
		orders:   map[string]orders.Order{},
		payments: map[string]Payment{},
		active:   map[string]int{},
	}
}

func (m *memStore) WithOrderLock(ctx context.Context, orderID string, fn func(ctx context.Context, tx Tx, o *orders.Order) error) error {
	m.mu.Lock()
	o, ok := m.orders[orderID]
	if !ok {
		m.mu.Unlock()
		return orders.ErrNotFound
	}
	m.active[orderID]++
	if m.active[orderID] > 1 {
		m.overlaps++
	}
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.active[orderID]--
		m.mu.Unlock()
	}()

	// widen the race window
	time.Sleep(time.Millisecond)

	tx := &memTx{store: m, payments: map[string]Payment{}}
	work := o
	if err := fn(ctx, tx, &work); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.orderSaved {
		m.orders[orderID] = work
	}
	for k, p := range tx.payments {
		m.payments[k] = p
	}
	m.emitted = append(m.emitted, tx.emitted...)
	m.changes = append(m.changes, tx.changes...)
	return nil
}

func (m *memStore) FindOrderIDByIntent(_ context.Context, intentID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[intentID]
	if !ok {
		return "", orders.ErrNotFound
	}
	return p.OrderID, nil
}

func (m *memStore) order(id string) orders.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id]
}

func (m *memStore) payment(intentID string) Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.payments[intentID]
}

func (m *memStore) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.emitted))
	for _, e := range m.emitted {
		out = append(out, e.Type)
	}
	return out
}

func (m *memStore) count(eventType string) int {
	n := 0
	for _, t := range m.eventTypes() {
		if t == eventType {
			n++
		}
	}
	return n
}

type memTx struct {
	store      *memStore
	payments   map[string]Payment
	emitted    []outbox.Message
	changes    []statusChange
	orderSaved bool
}

func (t *memTx) PaymentByIntent(_ context.Context, intentID string) (*Payment, error) {
	if p, ok := t.payments[intentID]; ok {
		return &p, nil
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	p, ok := t.store.payments[intentID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (t *memTx) SavePayment(_ context.Context, p *Payment, isNew bool) error {
	if t.store.failSave != nil {
		return t.store.failSave
	}
	if isNew {
		t.store.mu.Lock()
		_, dup := t.store.payments[p.ProviderIntentID]
		t.store.mu.Unlock()
		if dup {
			return errors.New("duplicate intent")
		}
	}
	t.payments[p.ProviderIntentID] = *p
	return nil
}

func (t *memTx) SaveOrder(_ context.Context, _ *orders.Order) error {
	t.orderSaved = true
	return nil
}

func (t *memTx) RecordStatusChange(ctx context.Context, o orders.Order, from orders.Status, actor string, at time.Time) error {
	t.changes = append(t.changes, statusChange{OrderID: o.ID, From: from, To: o.Status, Actor: actor})
	return t.Emit(ctx, orders.StatusChangedMessage(o, from, actor, at))
}

func (t *memTx) Emit(_ context.Context, msg outbox.Message) error {
	t.emitted = append(t.emitted, msg)
	return nil
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}

const (
	testOrderID  = "0b0d4a3e-6c1f-4d7a-9a53-3f0f0e1d2c01"
	testIntentID = "pi_3PabcdEFGH"
)

// seed stores a pending £49.99 order with its initial payment attempt.
func seed(m *memStore) {
	m.orders[testOrderID] = orders.Order{
		ID:            testOrderID,
		OrderNumber:   "ORD-01HX0000000000000000000000",
		Status:        orders.StatusPendingPayment,
		PaymentStatus: orders.PaymentPending,
		Currency:      "GBP",
		SubtotalMinor: 4999,
		TotalMinor:    4999,
	}
	m.payments[testIntentID] = Payment{
		ID:               "pay-1",
		OrderID:          testOrderID,
		Provider:         ProviderStripe,
		ProviderIntentID: testIntentID,
		Type:             TypePayment,
		Status:           StatusRequiresPaymentMethod,
		AmountMinor:      4999,
		Currency:         "GBP",
	}
}

func newTestReconciler(t *testing.T) (*Reconciler, *memStore, *syncBuffer) {
	t.Helper()
	m := newMemStore()
	seed(m)
	log, buf := testLogger()
	r := NewReconciler(m, log)
	r.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return r, m, buf
}

// fakeProvider is a scripted Provider.
type fakeProvider struct {
	mu        sync.Mutex
	intents   map[string]Intent
	createErr error
	getErr    error
	cancelled []string
	created   []CreateIntentRequest
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{intents: map[string]Intent{}}
}

func (f *fakeProvider) Name() string { return ProviderStripe }

func (f *fakeProvider) CreateIntent(_ context.Context, req CreateIntentRequest) (Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	if f.createErr != nil {
		return Intent{}, f.createErr
	}
	in := Intent{
		ID:           "pi_" + req.OrderID[:8],
		ClientSecret: "pi_" + req.OrderID[:8] + "_secret_x",
		Status:       StatusRequiresPaymentMethod,
		Amount:       req.Amount.MinorUnits(),
		Currency:     req.Amount.Currency(),
		Metadata:     map[string]string{"order_id": req.OrderID, "order_number": req.OrderNumber},
	}
	f.intents[in.ID] = in
	return in, nil
}

func (f *fakeProvider) RetrieveIntent(_ context.Context, id string) (Intent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return Intent{}, f.getErr
	}
	in, ok := f.intents[id]
	if !ok {
		return Intent{}, fmt.Errorf("%w: %s", ErrIntentNotFound, id)
	}
	return in, nil
}

func (f *fakeProvider) CancelIntent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, id)
	return nil
}
