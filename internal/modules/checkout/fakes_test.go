package checkout

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/cart"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/customers"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/orders"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/payments"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/users"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/money"
)

type variant struct {
	name     string
	sku      string
	price    int64
	currency string
}

type fakeCatalog struct {
	variants map[string]variant
	err      error
	calls    int
}

func (c *fakeCatalog) Snapshot(_ context.Context, lines []cart.Line) (cart.Snapshot, error) {
	c.calls++
	if c.err != nil {
		return cart.Snapshot{}, c.err
	}
	var snap cart.Snapshot
	var missing []string
	for _, ln := range lines {
		v, ok := c.variants[ln.VariantID]
		if !ok {
			missing = append(missing, ln.VariantID)
			continue
		}
		if snap.Currency == "" {
			snap.Currency = v.currency
			snap.Subtotal = money.Zero(v.currency)
		}
		if v.currency != snap.Currency {
			return cart.Snapshot{}, cart.ErrMixedCurrency
		}
		unit := money.FromMinorUnits(v.price, v.currency)
		line := unit.MultiplyInt(int64(ln.Quantity))
		snap.Lines = append(snap.Lines, cart.PricedLine{
			VariantID:   ln.VariantID,
			ProductName: v.name,
			SKU:         v.sku,
			Quantity:    ln.Quantity,
			UnitPrice:   unit,
			LineTotal:   line,
		})
		snap.Subtotal, _ = snap.Subtotal.Add(line)
	}
	if len(missing) > 0 {
		return cart.Snapshot{}, &cart.UnavailableError{VariantIDs: missing}
	}
	return snap, nil
}

type fakeCustomers struct {
	mu      sync.Mutex
	byEmail map[string]customers.Customer
	deleted []string
	err     error
}

func newFakeCustomers() *fakeCustomers {
	return &fakeCustomers{byEmail: map[string]customers.Customer{}}
}

func (f *fakeCustomers) ResolveOrCreate(_ context.Context, p customers.Profile) (customers.Customer, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return customers.Customer{}, false, f.err
	}
	if c, ok := f.byEmail[p.Email]; ok {
		return c, false, nil
	}
	c := customers.Customer{ID: uuid.NewString(), Email: p.Email, FirstName: p.FirstName, LastName: p.LastName, Phone: p.Phone}
	f.byEmail[p.Email] = c
	return c, true, nil
}

func (f *fakeCustomers) AttachUser(_ context.Context, customerID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, c := range f.byEmail {
		if c.ID == customerID && c.UserID == nil {
			uid := userID
			c.UserID = &uid
			f.byEmail[k] = c
		}
	}
	return nil
}

func (f *fakeCustomers) DetachUser(_ context.Context, customerID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, c := range f.byEmail {
		if c.ID == customerID && c.UserID != nil && *c.UserID == userID {
			c.UserID = nil
			f.byEmail[k] = c
		}
	}
	return nil
}

func (f *fakeCustomers) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k, c := range f.byEmail {
		if c.ID == id {
			delete(f.byEmail, k)
		}
	}
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeCustomers) GetByID(_ context.Context, id string) (customers.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.byEmail {
		if c.ID == id {
			return c, nil
		}
	}
	return customers.Customer{}, customers.ErrNotFound
}

type fakeAccounts struct {
	byEmail map[string]users.User
	deleted []string
}

func newFakeAccounts() *fakeAccounts { return &fakeAccounts{byEmail: map[string]users.User{}} }

func (f *fakeAccounts) Register(_ context.Context, email, password string) (users.User, bool, error) {
	if len(password) < users.MinPasswordLen {
		return users.User{}, false, users.ErrWeakPassword
	}
	if u, ok := f.byEmail[email]; ok {
		return u, false, nil
	}
	u := users.User{ID: uuid.NewString(), Email: email, Role: "customer"}
	f.byEmail[email] = u
	return u, true, nil
}

func (f *fakeAccounts) Delete(_ context.Context, id string) error {
	for k, u := range f.byEmail {
		if u.ID == id {
			delete(f.byEmail, k)
		}
	}
	f.deleted = append(f.deleted, id)
	return nil
}

type fakeWriter struct {
	orders     []orders.Order
	payments   []payments.Payment
	err        error
	addErr     error
	superseded []string
}

func (w *fakeWriter) CreateOrder(_ context.Context, o *orders.Order, p *payments.Payment) error {
	if w.err != nil {
		return w.err
	}
	w.orders = append(w.orders, *o)
	w.payments = append(w.payments, *p)
	return nil
}

func (w *fakeWriter) Attempts(_ context.Context, orderID string) (orders.Order, []payments.Payment, error) {
	i := w.find(orderID)
	if i < 0 {
		return orders.Order{}, nil, orders.ErrNotFound
	}
	var ps []payments.Payment
	for _, p := range w.payments {
		if p.OrderID == orderID {
			ps = append(ps, p)
		}
	}
	return w.orders[i], ps, nil
}

func (w *fakeWriter) AddAttempt(_ context.Context, orderID string, p *payments.Payment, superseded []string) (orders.Order, error) {
	if w.addErr != nil {
		return orders.Order{}, w.addErr
	}
	i := w.find(orderID)
	if i < 0 {
		return orders.Order{}, orders.ErrNotFound
	}
	if !w.orders[i].AwaitingRetry() {
		return orders.Order{}, ErrNotRetryable
	}
	for j := range w.payments {
		for _, id := range superseded {
			if w.payments[j].ProviderIntentID == id && !w.payments[j].Status.Terminal() {
				w.payments[j].Status = payments.StatusCancelled
			}
		}
	}
	w.superseded = append(w.superseded, superseded...)
	w.payments = append(w.payments, *p)
	w.orders[i].PaymentStatus = orders.PaymentPending
	return w.orders[i], nil
}

func (w *fakeWriter) find(orderID string) int {
	for i, o := range w.orders {
		if o.ID == orderID {
			return i
		}
	}
	return -1
}

// decline marks the order's payments as declined the way the reconciler does.
func (w *fakeWriter) decline(orderID string) {
	w.orders[w.find(orderID)].PaymentStatus = orders.PaymentFailed
	for j := range w.payments {
		if w.payments[j].OrderID == orderID {
			w.payments[j].Status = payments.StatusFailed
		}
	}
}

type fakeProvider struct {
	mu        sync.Mutex
	requests  []payments.CreateIntentRequest
	cancelled []string
	cancelErr map[string]error
	err       error
	block     bool
}

func (p *fakeProvider) Name() string { return payments.ProviderStripe }

func (p *fakeProvider) CreateIntent(ctx context.Context, req payments.CreateIntentRequest) (payments.Intent, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	err, block := p.err, p.block
	p.mu.Unlock()
	if block {
		<-ctx.Done()
		return payments.Intent{}, ctx.Err()
	}
	if err != nil {
		return payments.Intent{}, err
	}
	id := p.intentID(req)
	return payments.Intent{
		ID:           id,
		ClientSecret: id + "_secret_abc",
		Status:       payments.StatusRequiresPaymentMethod,
		Amount:       req.Amount.MinorUnits(),
		Currency:     req.Amount.Currency(),
		Metadata:     map[string]string{"order_id": req.OrderID, "order_number": req.OrderNumber},
	}, nil
}

// intentID is "pi_" plus the order ID prefix, with an attempt suffix after
// the first request for the same order.
func (p *fakeProvider) intentID(req payments.CreateIntentRequest) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, r := range p.requests {
		if r.OrderID == req.OrderID {
			n++
		}
	}
	id := "pi_" + req.OrderID[:8]
	if n > 1 {
		id += "_" + strconv.Itoa(n)
	}
	return id
}

func (p *fakeProvider) RetrieveIntent(context.Context, string) (payments.Intent, error) {
	return payments.Intent{}, errors.New("not implemented")
}

func (p *fakeProvider) CancelIntent(_ context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.cancelErr[id]; err != nil {
		return err
	}
	p.cancelled = append(p.cancelled, id)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func moneyGBP(minor int64) money.Money { return money.FromMinorUnits(minor, "GBP") }
