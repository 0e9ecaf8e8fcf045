package checkout

import (
	"strings"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/cart"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/customers"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/orders"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/users"
)

const (
	ShippingStandard = "standard"
	ShippingExpress  = "express"
)

type CustomerInput struct {
	Email     string `json:"email" validate:"required,email,max=255"`
	FirstName string `json:"first_name" validate:"required,max=100"`
	LastName  string `json:"last_name" validate:"required,max=100"`
	Phone     string `json:"phone" validate:"required,min=5,max=32"`
}

type AccountRequest struct {
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type Input struct {
	Customer       CustomerInput   `json:"customer"`
	Billing        orders.Address  `json:"billing"`
	Shipping       *orders.Address `json:"shipping,omitempty" validate:"required_unless=SameAsBilling true"`
	SameAsBilling  bool            `json:"same_as_billing"`
	Lines          []cart.Line     `json:"lines" validate:"required,min=1,max=50,dive"`
	ShippingMethod string          `json:"shipping_method" validate:"required,oneof=standard express"`
	Account        *AccountRequest `json:"account,omitempty"`
}

type Result struct {
	Order           orders.Order
	ClientSecret    string
	GuestToken      string
	Customer        customers.Customer
	CustomerCreated bool
	// Account is set when this checkout created a login account.
	Account        *users.User
	AccountCreated bool
}

func normalize(in Input) Input {
	in.Customer.Email = customers.NormalizeEmail(in.Customer.Email)
	in.Customer.FirstName = strings.TrimSpace(in.Customer.FirstName)
	in.Customer.LastName = strings.TrimSpace(in.Customer.LastName)
	in.Customer.Phone = strings.TrimSpace(in.Customer.Phone)
	in.Billing = normalizeAddress(in.Billing)
	if in.SameAsBilling {
		b := in.Billing
		in.Shipping = &b
	} else if in.Shipping != nil {
		s := normalizeAddress(*in.Shipping)
		in.Shipping = &s
	}
	in.ShippingMethod = strings.ToLower(strings.TrimSpace(in.ShippingMethod))
	return in
}

func normalizeAddress(a orders.Address) orders.Address {
	a.Line1 = strings.TrimSpace(a.Line1)
	a.Line2 = strings.TrimSpace(a.Line2)
	a.City = strings.TrimSpace(a.City)
	a.Region = strings.TrimSpace(a.Region)
	a.PostalCode = strings.ToUpper(strings.TrimSpace(a.PostalCode))
	a.Country = strings.ToUpper(strings.TrimSpace(a.Country))
	return a
}
