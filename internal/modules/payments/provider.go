package payments

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/money"
)

type CreateIntentRequest struct {
	OrderID        string
	OrderNumber    string
	Amount         money.Money
	CustomerEmail  string
	IdempotencyKey string
}

type Intent struct {
	ID              string
	ClientSecret    string
	Status          Status
	Amount          int64
	AmountReceived  int64
	Currency        string
	PaymentMethodID string
	Metadata        map[string]string
	FailureCode     string
	FailureMessage  string
	Raw             json.RawMessage
}

func (in Intent) Payload() ProviderPayload {
	return ProviderPayload{
		Object:          "payment_intent",
		IntentID:        in.ID,
		Status:          string(in.Status),
		Amount:          in.Amount,
		AmountReceived:  in.AmountReceived,
		Currency:        in.Currency,
		PaymentMethodID: in.PaymentMethodID,
		FailureCode:     in.FailureCode,
		FailureMessage:  in.FailureMessage,
		Raw:             in.Raw,
	}
}

type Provider interface {
	Name() string
	CreateIntent(ctx context.Context, req CreateIntentRequest) (Intent, error)
	RetrieveIntent(ctx context.Context, intentID string) (Intent, error)
	CancelIntent(ctx context.Context, intentID string) error
}

// ProviderError is a failed or timed out provider call. The caller may retry.
type ProviderError struct {
	Op      string
	Timeout bool
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("payment provider %s: timeout: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("payment provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
