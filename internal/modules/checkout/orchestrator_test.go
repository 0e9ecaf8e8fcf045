package checkout

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/cart"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/orders"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/payments"
)

type harness struct {
	o         *Orchestrator
	catalog   *fakeCatalog
	customers *fakeCustomers
	accounts  *fakeAccounts
	writer    *fakeWriter
	provider  *fakeProvider
}

func newHarness(t *testing.T, pricing Pricing) *harness {
	t.Helper()
	h := &harness{
		catalog: &fakeCatalog{variants: map[string]variant{
			"var-mug":    {name: "Enamel Mug", sku: "MUG-01", price: 4999, currency: "GBP"},
			"var-sock":   {name: "Wool Socks", sku: "SOCK-02", price: 1250, currency: "GBP"},
			"var-dollar": {name: "Import Tee", sku: "TEE-US", price: 2000, currency: "USD"},
		}},
		customers: newFakeCustomers(),
		accounts:  newFakeAccounts(),
		writer:    &fakeWriter{},
		provider:  &fakeProvider{},
	}
	h.o = New(Deps{
		Catalog:         h.catalog,
		Customers:       h.customers,
		Accounts:        h.accounts,
		Orders:          h.writer,
		Provider:        h.provider,
		Logger:          discardLogger(),
		Pricing:         pricing,
		ProviderTimeout: 50 * time.Millisecond,
		Now:             func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
		NewOrderNumber:  func() string { return "ORD-TEST" },
	})
	return h
}

func freeShipping() Pricing {
	return Pricing{Currency: "GBP", Shipping: map[string]int64{ShippingStandard: 0, ShippingExpress: 999}, TaxRate: decimal.Zero}
}

func validInput() Input {
	return Input{
		Customer: CustomerInput{Email: " Ada@Example.com ", FirstName: "Ada", LastName: "Lovelace", Phone: "07700 900123"},
		Billing: orders.Address{
			Line1: "12 Analytical Row", City: "London", PostalCode: "sw1a 1aa", Country: "gb",
		},
		SameAsBilling:  true,
		Lines:          []cart.Line{{VariantID: "var-mug", Quantity: 1}},
		ShippingMethod: ShippingStandard,
	}
}

func TestInitializePendingOrder(t *testing.T) {
	h := newHarness(t, freeShipping())

	res, err := h.o.Initialize(context.Background(), validInput())
	require.NoError(t, err)

	o := res.Order
	assert.Equal(t, orders.StatusPendingPayment, o.Status)
	assert.Equal(t, orders.PaymentPending, o.PaymentStatus)
	assert.True(t, o.Total().Equals(moneyGBP(4999)))
	assert.Equal(t, "ORD-TEST", o.OrderNumber)
	assert.Equal(t, res.Customer.ID, o.CustomerID)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Enamel Mug", o.Items[0].ProductName)
	assert.Equal(t, int64(4999), o.Items[0].LineTotalMinor)

	assert.Equal(t, "pi_"+o.ID[:8]+"_secret_abc", res.ClientSecret)
	assert.NotEmpty(t, res.GuestToken)
	assert.True(t, o.GuestTokenMatches(res.GuestToken))
	assert.True(t, res.CustomerCreated)
	assert.Equal(t, "ada@example.com", res.Customer.Email)

	// shipping copied from billing, normalised
	assert.Equal(t, "SW1A 1AA", o.ShippingAddress.Data().PostalCode)
	assert.Equal(t, "GB", o.ShippingAddress.Data().Country)

	require.Len(t, h.provider.requests, 1)
	req := h.provider.requests[0]
	assert.Equal(t, o.ID, req.IdempotencyKey)
	assert.Equal(t, o.ID, req.OrderID)
	assert.Equal(t, "ada@example.com", req.CustomerEmail)
	assert.True(t, req.Amount.Equals(o.Total()))

	require.Len(t, h.writer.payments, 1)
	p := h.writer.payments[0]
	assert.Equal(t, o.ID, p.OrderID)
	assert.Equal(t, payments.StatusRequiresPaymentMethod, p.Status)
	assert.Equal(t, int64(4999), p.AmountMinor)
	assert.Equal(t, "GBP", p.Currency)
}

func TestInitializeTotals(t *testing.T) {
	h := newHarness(t, Pricing{
		Shipping: map[string]int64{ShippingStandard: 395, ShippingExpress: 999},
		TaxRate:  decimal.RequireFromString("0.2"),
	})
	in := validInput()
	in.Lines = []cart.Line{{VariantID: "var-mug", Quantity: 1}, {VariantID: "var-sock", Quantity: 3}}
	in.ShippingMethod = "Express"

	res, err := h.o.Initialize(context.Background(), in)
	require.NoError(t, err)

	o := res.Order
	assert.Equal(t, int64(8749), o.SubtotalMinor)
	assert.Equal(t, int64(999), o.ShippingMinor)
	assert.Equal(t, int64(1750), o.TaxMinor) // 1749.8 rounds up
	assert.Equal(t, int64(11498), o.TotalMinor)
	assert.Equal(t, ShippingExpress, o.ShippingMethod)
}

func TestInitializeValidation(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(in *Input)
		field string
	}{
		{"missing email", func(in *Input) { in.Customer.Email = "" }, "customer.email"},
		{"bad email", func(in *Input) { in.Customer.Email = "not-an-email" }, "customer.email"},
		{"missing phone", func(in *Input) { in.Customer.Phone = "" }, "customer.phone"},
		{"bad postcode", func(in *Input) { in.Billing.PostalCode = "!" }, "billing.postal_code"},
		{"bad country", func(in *Input) { in.Billing.Country = "GBR" }, "billing.country"},
		{"missing shipping address", func(in *Input) { in.SameAsBilling = false }, "shipping"},
		{"invalid shipping address", func(in *Input) {
			in.SameAsBilling = false
			in.Shipping = &orders.Address{Line1: "1 Road", City: "Leeds", PostalCode: "LS1 1AA"}
		}, "shipping.country"},
		{"empty cart", func(in *Input) { in.Lines = nil }, "lines"},
		{"zero quantity", func(in *Input) { in.Lines[0].Quantity = 0 }, "lines[0].quantity"},
		{"unknown shipping method", func(in *Input) { in.ShippingMethod = "drone" }, "shipping_method"},
		{"short password", func(in *Input) { in.Account = &AccountRequest{Password: "short"} }, "account.password"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, freeShipping())
			in := validInput()
			tt.edit(&in)

			_, err := h.o.Initialize(context.Background(), in)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Fields, tt.field)

			assert.Zero(t, h.catalog.calls)
			assert.Empty(t, h.customers.byEmail)
			assert.Empty(t, h.provider.requests)
			assert.Empty(t, h.writer.orders)
		})
	}
}

func TestInitializeCatalogRejections(t *testing.T) {
	tests := map[string][]cart.Line{
		"unknown variant":  {{VariantID: "var-gone", Quantity: 1}},
		"foreign currency": {{VariantID: "var-dollar", Quantity: 1}},
		"mixed currency":   {{VariantID: "var-mug", Quantity: 1}, {VariantID: "var-dollar", Quantity: 1}},
	}
	for name, lines := range tests {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, freeShipping())
			in := validInput()
			in.Lines = lines

			_, err := h.o.Initialize(context.Background(), in)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Contains(t, ve.Fields, "lines")
			assert.Empty(t, h.customers.byEmail)
			assert.Empty(t, h.provider.requests)
		})
	}

	t.Run("catalog outage", func(t *testing.T) {
		h := newHarness(t, freeShipping())
		h.catalog.err = errors.New("connection refused")

		_, err := h.o.Initialize(context.Background(), validInput())
		var ce *CheckoutError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "catalog", ce.Stage)
	})
}

func TestInitializeProviderFailureRollsBack(t *testing.T) {
	h := newHarness(t, freeShipping())
	h.provider.err = &payments.ProviderError{Op: "create_intent", Err: errors.New("card_error")}
	in := validInput()
	in.Account = &AccountRequest{Password: "correct horse"}

	_, err := h.o.Initialize(context.Background(), in)
	var pe *payments.ProviderError
	require.ErrorAs(t, err, &pe)

	assert.Empty(t, h.customers.byEmail, "customer created by this call is removed")
	assert.Len(t, h.customers.deleted, 1)
	assert.Empty(t, h.accounts.byEmail, "account created by this call is removed")
	assert.Empty(t, h.writer.orders, "no order row without an intent")
	assert.Empty(t, h.provider.cancelled)
}

func TestInitializeProviderTimeout(t *testing.T) {
	h := newHarness(t, freeShipping())
	h.provider.block = true

	_, err := h.o.Initialize(context.Background(), validInput())
	var pe *payments.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.True(t, pe.Timeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, h.customers.byEmail)
}

func TestInitializeKeepsExistingCustomerOnFailure(t *testing.T) {
	h := newHarness(t, freeShipping())
	first, err := h.o.Initialize(context.Background(), validInput())
	require.NoError(t, err)

	h.provider.err = errors.New("stripe down")
	_, err = h.o.Initialize(context.Background(), validInput())
	var pe *payments.ProviderError
	require.ErrorAs(t, err, &pe)
	assert.False(t, pe.Timeout)

	assert.Contains(t, h.customers.byEmail, "ada@example.com")
	assert.Equal(t, first.Customer.ID, h.customers.byEmail["ada@example.com"].ID)
	assert.Empty(t, h.customers.deleted)
}

func TestInitializePersistFailureCancelsIntent(t *testing.T) {
	h := newHarness(t, freeShipping())
	h.writer.err = errors.New("deadlock")

	_, err := h.o.Initialize(context.Background(), validInput())
	var ce *CheckoutError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "persist", ce.Stage)
	assert.EqualError(t, errors.Unwrap(err), "deadlock")

	require.Len(t, h.provider.requests, 1)
	assert.Equal(t, []string{"pi_" + h.provider.requests[0].OrderID[:8]}, h.provider.cancelled)
	assert.Empty(t, h.customers.byEmail)
}

func TestInitializeCreatesAccount(t *testing.T) {
	h := newHarness(t, freeShipping())
	in := validInput()
	in.Account = &AccountRequest{Password: "correct horse"}

	res, err := h.o.Initialize(context.Background(), in)
	require.NoError(t, err)
	require.True(t, res.AccountCreated)
	require.NotNil(t, res.Account)
	require.NotNil(t, res.Customer.UserID)
	assert.Equal(t, res.Account.ID, *res.Customer.UserID)

	// a second checkout with the same email does not create another account
	res2, err := h.o.Initialize(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, res2.AccountCreated)
	assert.Nil(t, res2.Account)
	assert.False(t, res2.CustomerCreated)
	assert.Len(t, h.accounts.byEmail, 1)
}

func TestInitializeSeparateShippingAddress(t *testing.T) {
	h := newHarness(t, freeShipping())
	in := validInput()
	in.SameAsBilling = false
	in.Shipping = &orders.Address{Line1: " 4 Dock Street ", City: "Leeds", PostalCode: "ls1 4ap", Country: "gb"}

	res, err := h.o.Initialize(context.Background(), in)
	require.NoError(t, err)
	ship := res.Order.ShippingAddress.Data()
	assert.Equal(t, "4 Dock Street", ship.Line1)
	assert.Equal(t, "LS1 4AP", ship.PostalCode)
	assert.Equal(t, "London", res.Order.BillingAddress.Data().City)
}

func TestNewOrderNumber(t *testing.T) {
	a, b := NewOrderNumber(), NewOrderNumber()
	assert.True(t, strings.HasPrefix(a, "ORD-"))
	assert.Len(t, a, len("ORD-")+26)
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b)
}
