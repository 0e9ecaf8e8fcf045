// Package checkout turns a submitted cart into a pending order with a live
// payment intent.
package checkout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/cart"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/customers"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/orders"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/payments"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/users"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/money"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/validation"
)

type Catalog interface {
	Snapshot(ctx context.Context, lines []cart.Line) (cart.Snapshot, error)
}

type Customers interface {
	ResolveOrCreate(ctx context.Context, p customers.Profile) (customers.Customer, bool, error)
	AttachUser(ctx context.Context, customerID, userID string) error
	DetachUser(ctx context.Context, customerID, userID string) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (customers.Customer, error)
}

type Accounts interface {
	Register(ctx context.Context, email, password string) (users.User, bool, error)
	Delete(ctx context.Context, id string) error
}

// OrderWriter persists a new order, its first payment and the order.created
// event in one transaction. AddAttempt does the same for a retried payment
// and must refuse when the order no longer awaits one.
type OrderWriter interface {
	CreateOrder(ctx context.Context, o *orders.Order, p *payments.Payment) error
	Attempts(ctx context.Context, orderID string) (orders.Order, []payments.Payment, error)
	AddAttempt(ctx context.Context, orderID string, p *payments.Payment, superseded []string) (orders.Order, error)
}

// Pricing holds the configured shipping rates (minor units of Currency per
// method) and the tax rate applied to the subtotal.
type Pricing struct {
	Currency string
	Shipping map[string]int64
	TaxRate  decimal.Decimal
}

type Deps struct {
	Catalog         Catalog
	Customers       Customers
	Accounts        Accounts
	Orders          OrderWriter
	Provider        payments.Provider
	Logger          *slog.Logger
	Pricing         Pricing
	ProviderTimeout time.Duration

	// optional
	Now            func() time.Time
	NewOrderNumber func() string
}

type Orchestrator struct {
	catalog   Catalog
	customers Customers
	accounts  Accounts
	orders    OrderWriter
	provider  payments.Provider
	log       *slog.Logger
	pricing   Pricing
	timeout   time.Duration
	validate  *validation.Validator
	now       func() time.Time
	newNumber func() string
}

func New(d Deps) *Orchestrator {
	o := &Orchestrator{
		catalog:   d.Catalog,
		customers: d.Customers,
		accounts:  d.Accounts,
		orders:    d.Orders,
		provider:  d.Provider,
		log:       d.Logger,
		pricing:   d.Pricing,
		timeout:   d.ProviderTimeout,
		validate:  validation.New(),
		now:       d.Now,
		newNumber: d.NewOrderNumber,
	}
	if o.timeout <= 0 {
		o.timeout = 10 * time.Second
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.newNumber == nil {
		o.newNumber = NewOrderNumber
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	return o
}

// NewOrderNumber returns a sortable, unguessable order number.
func NewOrderNumber() string {
	return "ORD-" + ulid.Make().String()
}

// Initialize validates the checkout, creates the order and its payment
// intent and returns what the client needs to confirm payment. On any
// error after validation the customer and account rows this call created
// are removed again; an order row is only written once the intent exists.
func (o *Orchestrator) Initialize(ctx context.Context, in Input) (Result, error) {
	in = normalize(in)
	if fields := o.validate.Struct(in); fields != nil {
		return Result{}, &ValidationError{Fields: fields}
	}

	snap, err := o.catalog.Snapshot(ctx, in.Lines)
	if err != nil {
		if fields := cartFieldErrors(err); fields != nil {
			return Result{}, &ValidationError{Fields: fields}
		}
		return Result{}, &CheckoutError{Stage: "catalog", Err: err}
	}
	totals, err := o.price(snap, in.ShippingMethod)
	if err != nil {
		return Result{}, err
	}

	var undo compensation
	res, err := o.initialize(ctx, in, snap, totals, &undo)
	if err != nil {
		undo.run(ctx, o.log)
		return Result{}, err
	}
	return res, nil
}

func (o *Orchestrator) initialize(ctx context.Context, in Input, snap cart.Snapshot, t totals, undo *compensation) (Result, error) {
	log := o.log.With("email_domain", emailDomain(in.Customer.Email))

	cust, custCreated, err := o.customers.ResolveOrCreate(ctx, customers.Profile{
		Email:     in.Customer.Email,
		FirstName: in.Customer.FirstName,
		LastName:  in.Customer.LastName,
		Phone:     in.Customer.Phone,
	})
	if err != nil {
		return Result{}, &CheckoutError{Stage: "customer", Err: err}
	}
	if custCreated {
		undo.add("delete customer", func(ctx context.Context) error { return o.customers.Delete(ctx, cust.ID) })
	}

	res := Result{Customer: cust, CustomerCreated: custCreated}

	if in.Account != nil {
		u, created, err := o.accounts.Register(ctx, in.Customer.Email, in.Account.Password)
		if err != nil {
			if errors.Is(err, users.ErrWeakPassword) {
				return Result{}, &ValidationError{Fields: validation.FieldErrors{"account.password": "Must be at least 8."}}
			}
			return Result{}, &CheckoutError{Stage: "account", Err: err}
		}
		if created {
			undo.add("delete account", func(ctx context.Context) error { return o.accounts.Delete(ctx, u.ID) })
			if cust.UserID == nil {
				if err := o.customers.AttachUser(ctx, cust.ID, u.ID); err != nil {
					return Result{}, &CheckoutError{Stage: "account", Err: err}
				}
				undo.add("detach account", func(ctx context.Context) error { return o.customers.DetachUser(ctx, cust.ID, u.ID) })
				uid := u.ID
				cust.UserID = &uid
				res.Customer = cust
			}
			res.Account = &u
			res.AccountCreated = true
		}
	}

	order, token, err := o.buildOrder(cust, in, snap, t)
	if err != nil {
		return Result{}, &CheckoutError{Stage: "order", Err: err}
	}

	intent, err := o.createIntent(ctx, order, in.Customer.Email, order.ID)
	if err != nil {
		log.WarnContext(ctx, "checkout provider call failed", "order_number", order.OrderNumber, "err", err)
		return Result{}, err
	}

	payment := payments.NewAttempt(order.ID, o.provider.Name(), order.Total(), intent)
	if err := o.orders.CreateOrder(ctx, &order, &payment); err != nil {
		log.ErrorContext(ctx, "checkout persist failed; cancelling intent",
			"order_number", order.OrderNumber, "intent_id", intent.ID, "err", err)
		o.cancelIntent(ctx, intent.ID)
		return Result{}, &CheckoutError{Stage: "persist", Err: err}
	}

	log.InfoContext(ctx, "checkout initialized",
		"order_id", order.ID,
		"order_number", order.OrderNumber,
		"intent_id", intent.ID,
		"total", order.Total().String(),
		"customer_created", custCreated,
		"account_created", res.AccountCreated,
	)

	res.Order = order
	res.ClientSecret = intent.ClientSecret
	res.GuestToken = token
	return res, nil
}

func (o *Orchestrator) buildOrder(cust customers.Customer, in Input, snap cart.Snapshot, t totals) (orders.Order, string, error) {
	token, hash, err := orders.NewGuestToken()
	if err != nil {
		return orders.Order{}, "", err
	}
	now := o.now().UTC()

	order := orders.Order{
		ID:              uuid.NewString(),
		OrderNumber:     o.newNumber(),
		CustomerID:      cust.ID,
		GuestTokenHash:  hash,
		Status:          orders.StatusPendingPayment,
		PaymentStatus:   orders.PaymentPending,
		Currency:        snap.Currency,
		SubtotalMinor:   t.Subtotal.MinorUnits(),
		ShippingMinor:   t.Shipping.MinorUnits(),
		TaxMinor:        t.Tax.MinorUnits(),
		TotalMinor:      t.Total.MinorUnits(),
		ShippingMethod:  in.ShippingMethod,
		BillingAddress:  datatypes.NewJSONType(in.Billing),
		ShippingAddress: datatypes.NewJSONType(*in.Shipping),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	order.Items = make([]orders.OrderItem, 0, len(snap.Lines))
	for _, ln := range snap.Lines {
		order.Items = append(order.Items, orders.OrderItem{
			ID:             uuid.NewString(),
			OrderID:        order.ID,
			VariantID:      ln.VariantID,
			ProductName:    ln.ProductName,
			SKU:            ln.SKU,
			Quantity:       ln.Quantity,
			UnitPriceMinor: ln.UnitPrice.MinorUnits(),
			LineTotalMinor: ln.LineTotal.MinorUnits(),
			Currency:       snap.Currency,
			CreatedAt:      now,
		})
	}
	return order, token, nil
}

func (o *Orchestrator) createIntent(ctx context.Context, order orders.Order, email, key string) (payments.Intent, error) {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	intent, err := o.provider.CreateIntent(callCtx, payments.CreateIntentRequest{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Amount:         order.Total(),
		CustomerEmail:  email,
		IdempotencyKey: key,
	})
	if err != nil {
		var pe *payments.ProviderError
		if errors.As(err, &pe) {
			return payments.Intent{}, err
		}
		return payments.Intent{}, &payments.ProviderError{
			Op:      "create_intent",
			Timeout: errors.Is(err, context.DeadlineExceeded),
			Err:     err,
		}
	}
	return intent, nil
}

func (o *Orchestrator) cancelIntent(ctx context.Context, intentID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.timeout)
	defer cancel()
	if err := o.provider.CancelIntent(ctx, intentID); err != nil {
		o.log.ErrorContext(ctx, "cancel orphaned intent failed", "intent_id", intentID, "err", err)
	}
}

type totals struct {
	Subtotal money.Money
	Shipping money.Money
	Tax      money.Money
	Total    money.Money
}

func (o *Orchestrator) price(snap cart.Snapshot, method string) (totals, error) {
	if c := o.pricing.Currency; c != "" && money.NormalizeCurrency(c) != snap.Currency {
		return totals{}, &ValidationError{Fields: validation.FieldErrors{"lines": "Items must be priced in " + money.NormalizeCurrency(c) + "."}}
	}
	rate, ok := o.pricing.Shipping[method]
	if !ok {
		return totals{}, &ValidationError{Fields: validation.FieldErrors{"shipping_method": "Shipping method is not available."}}
	}
	t := totals{
		Subtotal: snap.Subtotal,
		Shipping: money.FromMinorUnits(rate, snap.Currency),
		Tax:      snap.Subtotal.Multiply(o.pricing.TaxRate),
	}
	total, err := money.Sum(snap.Currency, t.Subtotal, t.Shipping, t.Tax)
	if err != nil {
		return totals{}, &CheckoutError{Stage: "pricing", Err: err}
	}
	t.Total = total
	return t, nil
}

func cartFieldErrors(err error) validation.FieldErrors {
	var ue *cart.UnavailableError
	switch {
	case errors.Is(err, cart.ErrEmpty):
		return validation.FieldErrors{"lines": "This field is required."}
	case errors.Is(err, cart.ErrMixedCurrency):
		return validation.FieldErrors{"lines": "All items must be priced in the same currency."}
	case errors.As(err, &ue):
		return validation.FieldErrors{"lines": "Some items are no longer available."}
	}
	return nil
}

func emailDomain(email string) string {
	for i := len(email) - 1; i >= 0; i-- {
		if email[i] == '@' {
			return email[i+1:]
		}
	}
	return ""
}
