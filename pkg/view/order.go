// Package view holds the JSON shapes returned by the HTTP API.
package view

import (
	"time"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/orders"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/payments"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/money"
)

type OrderItem struct {
	VariantID   string      `json:"variant_id"`
	ProductName string      `json:"product_name"`
	SKU         string      `json:"sku"`
	Qty         int         `json:"quantity"`
	PriceEach   money.Money `json:"unit_price"`
	LineTotal   money.Money `json:"line_total"`
}

type Payment struct {
	ID             string       `json:"id"`
	Provider       string       `json:"provider"`
	IntentID       string       `json:"intent_id"`
	Type           string       `json:"type"`
	Status         string       `json:"status"`
	Amount         money.Money  `json:"amount"`
	AmountReceived *money.Money `json:"amount_received,omitempty"`
	FailureReason  string       `json:"failure_reason,omitempty"`
	ProcessedAt    *time.Time   `json:"processed_at,omitempty"`
}

type OrderDetail struct {
	ID            string `json:"id"`
	Number        string `json:"order_number"`
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
	Currency      string `json:"currency"`

	Subtotal money.Money `json:"subtotal"`
	Shipping money.Money `json:"shipping"`
	Tax      money.Money `json:"tax"`
	Total    money.Money `json:"total"`

	ShippingMethod  string         `json:"shipping_method"`
	BillingAddress  orders.Address `json:"billing_address"`
	ShippingAddress orders.Address `json:"shipping_address"`

	Items    []OrderItem `json:"items"`
	Payments []Payment   `json:"payments,omitempty"`

	PaidAt    *time.Time `json:"paid_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func NewOrderDetail(o orders.Order) OrderDetail {
	vm := OrderDetail{
		ID:              o.ID,
		Number:          o.OrderNumber,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		Currency:        o.Currency,
		Subtotal:        o.Subtotal(),
		Shipping:        o.Shipping(),
		Tax:             o.Tax(),
		Total:           o.Total(),
		ShippingMethod:  o.ShippingMethod,
		BillingAddress:  o.BillingAddress.Data(),
		ShippingAddress: o.ShippingAddress.Data(),
		Items:           make([]OrderItem, 0, len(o.Items)),
		PaidAt:          o.PaidAt,
		CreatedAt:       o.CreatedAt,
	}
	for _, it := range o.Items {
		vm.Items = append(vm.Items, OrderItem{
			VariantID:   it.VariantID,
			ProductName: it.ProductName,
			SKU:         it.SKU,
			Qty:         it.Quantity,
			PriceEach:   it.UnitPrice(),
			LineTotal:   it.LineTotal(),
		})
	}
	return vm
}

// WithPayments attaches the payment history, oldest first.
func (vm OrderDetail) WithPayments(ps []payments.Payment) OrderDetail {
	vm.Payments = make([]Payment, 0, len(ps))
	for _, p := range ps {
		pv := Payment{
			ID:          p.ID,
			Provider:    p.Provider,
			IntentID:    p.ProviderIntentID,
			Type:        string(p.Type),
			Status:      string(p.Status),
			Amount:      p.Amount(),
			ProcessedAt: p.ProcessedAt,
		}
		if p.AmountReceivedMinor != nil {
			m := money.FromMinorUnits(*p.AmountReceivedMinor, p.Currency)
			pv.AmountReceived = &m
		}
		if p.FailureReason != nil {
			pv.FailureReason = *p.FailureReason
		}
		vm.Payments = append(vm.Payments, pv)
	}
	return vm
}
