package view

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/orders"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/payments"
)

func TestOrderDetailJSON(t *testing.T) {
	received := int64(4999)
	o := orders.Order{
		ID:             "o-1",
		OrderNumber:    "ORD-1",
		Status:         orders.StatusProcessing,
		PaymentStatus:  orders.PaymentSucceeded,
		Currency:       "GBP",
		SubtotalMinor:  4999,
		TotalMinor:     4999,
		ShippingMethod: "standard",
		BillingAddress: datatypes.NewJSONType(orders.Address{Line1: "1 Road", City: "London", PostalCode: "SW1A 1AA", Country: "GB"}),
		Items: []orders.OrderItem{{
			VariantID: "v-1", ProductName: "Mug", SKU: "MUG", Quantity: 1,
			UnitPriceMinor: 4999, LineTotalMinor: 4999, Currency: "GBP",
		}},
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	vm := NewOrderDetail(o).WithPayments([]payments.Payment{{
		ID: "p-1", Provider: "stripe", ProviderIntentID: "pi_1", Type: payments.TypePayment,
		Status: payments.StatusSucceeded, AmountMinor: 4999, AmountReceivedMinor: &received, Currency: "GBP",
	}})

	b, err := json.Marshal(vm)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "ORD-1", got["order_number"])
	assert.Equal(t, "processing", got["status"])
	assert.Equal(t, map[string]any{"amount": float64(4999), "currency": "GBP", "formatted": "£49.99"}, got["total"])

	items := got["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "Mug", items[0].(map[string]any)["product_name"])

	pays := got["payments"].([]any)
	require.Len(t, pays, 1)
	assert.Equal(t, "succeeded", pays[0].(map[string]any)["status"])
	assert.NotNil(t, pays[0].(map[string]any)["amount_received"])
}
