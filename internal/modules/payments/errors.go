package payments

import (
	"errors"
	"fmt"
)

var (
	ErrIntentOrderMismatch = errors.New("payment intent does not belong to order")
	ErrInvalidReport       = errors.New("invalid payment report")
	ErrMalformedEvent      = errors.New("malformed provider event")
	ErrIntentNotFound      = errors.New("payment intent not found")
	// ErrIntentSettled means the provider refused to cancel an intent
	// because it already succeeded.
	ErrIntentSettled = errors.New("payment intent already settled")
)

// InconsistentStateError is logged when a provider reports a second,
// different terminal outcome for a payment. It is never returned to callers.
type InconsistentStateError struct {
	PaymentID string
	IntentID  string
	Recorded  Status
	Reported  Status
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("payment %s (intent %s): recorded %s, provider now reports %s",
		e.PaymentID, e.IntentID, e.Recorded, e.Reported)
}
