package orders

// Status is the order lifecycle, independent of payment.
type Status string

const (
	StatusPendingPayment     Status = "pending_payment"
	StatusProcessing         Status = "processing"
	StatusPartiallyFulfilled Status = "partially_fulfilled"
	StatusFulfilled          Status = "fulfilled"
	StatusCompleted          Status = "completed"
	StatusCancelled          Status = "cancelled"
	StatusRefunded           Status = "refunded"
)

// transitions is the full table; a status missing from the map is unknown.
var transitions = map[Status][]Status{
	StatusPendingPayment:     {StatusProcessing, StatusCancelled},
	StatusProcessing:         {StatusPartiallyFulfilled, StatusFulfilled, StatusCancelled, StatusRefunded},
	StatusPartiallyFulfilled: {StatusFulfilled, StatusCancelled, StatusRefunded},
	StatusFulfilled:          {StatusCompleted, StatusRefunded},
	StatusCompleted:          {StatusRefunded},
	StatusCancelled:          {},
	StatusRefunded:           {},
}

func AllStatuses() []Status {
	return []Status{
		StatusPendingPayment, StatusProcessing, StatusPartiallyFulfilled,
		StatusFulfilled, StatusCompleted, StatusCancelled, StatusRefunded,
	}
}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) Terminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

// requiresSettledPayment reports whether entering s needs a succeeded payment.
// Cancelling an unpaid order is always allowed.
func (s Status) requiresSettledPayment() bool {
	switch s {
	case StatusProcessing, StatusPartiallyFulfilled, StatusFulfilled, StatusCompleted, StatusRefunded:
		return true
	default:
		return false
	}
}

// PaymentStatus is the order's view of its payments.
type PaymentStatus string

const (
	PaymentPending               PaymentStatus = "pending"
	PaymentRequiresAction        PaymentStatus = "requires_action"
	PaymentRequiresPaymentMethod PaymentStatus = "requires_payment_method"
	PaymentSucceeded             PaymentStatus = "succeeded"
	PaymentFailed                PaymentStatus = "failed"
)

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentPending, PaymentRequiresAction, PaymentRequiresPaymentMethod, PaymentSucceeded, PaymentFailed:
		return true
	default:
		return false
	}
}
