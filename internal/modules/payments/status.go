package payments

import (
	"strings"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/orders"
)

// Status mirrors the provider's payment intent vocabulary.
type Status string

const (
	StatusRequiresPaymentMethod Status = "requires_payment_method"
	StatusRequiresConfirmation  Status = "requires_confirmation"
	StatusRequiresAction        Status = "requires_action"
	StatusProcessing            Status = "processing"
	StatusSucceeded             Status = "succeeded"
	StatusFailed                Status = "failed"
	StatusCancelled             Status = "cancelled"
)

// ParseStatus maps a provider status string onto Status. Stripe spells
// cancellation "canceled" and reports manual-capture intents as
// "requires_capture", which is funds-held and treated as processing.
func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "requires_payment_method", "requires_source":
		return StatusRequiresPaymentMethod, true
	case "requires_confirmation":
		return StatusRequiresConfirmation, true
	case "requires_action", "requires_source_action":
		return StatusRequiresAction, true
	case "processing", "requires_capture":
		return StatusProcessing, true
	case "succeeded":
		return StatusSucceeded, true
	case "failed":
		return StatusFailed, true
	case "canceled", "cancelled":
		return StatusCancelled, true
	default:
		return "", false
	}
}

func (s Status) Valid() bool {
	p, ok := ParseStatus(string(s))
	return ok && p == s
}

func (s Status) Terminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// OrderPaymentStatus is how this payment status shows on the order.
func (s Status) OrderPaymentStatus() orders.PaymentStatus {
	switch s {
	case StatusRequiresPaymentMethod:
		return orders.PaymentRequiresPaymentMethod
	case StatusRequiresConfirmation, StatusProcessing:
		return orders.PaymentPending
	case StatusRequiresAction:
		return orders.PaymentRequiresAction
	case StatusSucceeded:
		return orders.PaymentSucceeded
	case StatusFailed, StatusCancelled:
		return orders.PaymentFailed
	default:
		return orders.PaymentPending
	}
}

type Type string

const (
	TypePayment Type = "payment"
	TypeRefund  Type = "refund"
)
