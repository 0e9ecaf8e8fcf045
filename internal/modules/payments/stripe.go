package payments

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

const ProviderStripe = "stripe"

// StripeProvider talks to Stripe through its own client instance; the
// package-level stripe.Key is never set.
type StripeProvider struct {
	api *client.API
}

func NewStripeProvider(secretKey string, httpTimeout time.Duration) *StripeProvider {
	if httpTimeout <= 0 {
		httpTimeout = 10 * time.Second
	}
	cfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: httpTimeout},
		MaxNetworkRetries: stripe.Int64(1),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	backends := &stripe.Backends{
		API:     stripe.GetBackendWithConfig(stripe.APIBackend, cfg),
		Connect: stripe.GetBackendWithConfig(stripe.ConnectBackend, cfg),
		Uploads: stripe.GetBackendWithConfig(stripe.UploadsBackend, cfg),
	}
	return &StripeProvider{api: client.New(secretKey, backends)}
}

func (p *StripeProvider) Name() string { return ProviderStripe }

func (p *StripeProvider) CreateIntent(ctx context.Context, req CreateIntentRequest) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount.MinorUnits()),
		Currency: stripe.String(strings.ToLower(req.Amount.Currency())),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String("Order " + req.OrderNumber),
	}
	if req.CustomerEmail != "" {
		params.ReceiptEmail = stripe.String(req.CustomerEmail)
	}
	params.Context = ctx
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	params.AddMetadata("order_id", req.OrderID)
	params.AddMetadata("order_number", req.OrderNumber)

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, providerErr("create_intent", err)
	}
	return intentFromStripe(pi), nil
}

func (p *StripeProvider) RetrieveIntent(ctx context.Context, intentID string) (Intent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return Intent{}, retrieveErr(intentID, err)
	}
	return intentFromStripe(pi), nil
}

func (p *StripeProvider) CancelIntent(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{
		CancellationReason: stripe.String(string(stripe.PaymentIntentCancellationReasonAbandoned)),
	}
	params.Context = ctx
	if _, err := p.api.PaymentIntents.Cancel(intentID, params); err != nil {
		return cancelErr(intentID, err)
	}
	return nil
}

// retrieveErr keeps "no such intent" apart from outages; only the latter
// is worth retrying.
func retrieveErr(intentID string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) && (se.HTTPStatusCode == http.StatusNotFound || se.Code == stripe.ErrorCodeResourceMissing) {
		return fmt.Errorf("%w: %s", ErrIntentNotFound, intentID)
	}
	return providerErr("retrieve_intent", err)
}

// cancelErr treats an intent that is already cancelled as cancelled. Stripe
// answers payment_intent_unexpected_state and attaches the intent.
func cancelErr(intentID string, err error) error {
	var se *stripe.Error
	if !errors.As(err, &se) {
		return providerErr("cancel_intent", err)
	}
	if se.HTTPStatusCode == http.StatusNotFound || se.Code == stripe.ErrorCodeResourceMissing {
		return fmt.Errorf("%w: %s", ErrIntentNotFound, intentID)
	}
	if se.Code == stripe.ErrorCodePaymentIntentUnexpectedState && se.PaymentIntent != nil {
		switch se.PaymentIntent.Status {
		case stripe.PaymentIntentStatusCanceled:
			return nil
		case stripe.PaymentIntentStatusSucceeded:
			return fmt.Errorf("%w: %s", ErrIntentSettled, intentID)
		}
	}
	return providerErr("cancel_intent", err)
}

func intentFromStripe(pi *stripe.PaymentIntent) Intent {
	status, ok := ParseStatus(string(pi.Status))
	if !ok {
		status = StatusProcessing
	}
	in := Intent{
		ID:             pi.ID,
		ClientSecret:   pi.ClientSecret,
		Status:         status,
		Amount:         pi.Amount,
		AmountReceived: pi.AmountReceived,
		Currency:       strings.ToUpper(string(pi.Currency)),
		Metadata:       pi.Metadata,
	}
	if pi.PaymentMethod != nil {
		in.PaymentMethodID = pi.PaymentMethod.ID
	}
	if e := pi.LastPaymentError; e != nil {
		in.FailureCode = string(e.Code)
		if e.DeclineCode != "" {
			in.FailureCode = string(e.DeclineCode)
		}
		in.FailureMessage = e.Msg
	}
	if status == StatusCancelled && in.FailureCode == "" {
		in.FailureCode = string(pi.CancellationReason)
	}
	if pi.LastResponse != nil {
		in.Raw = pi.LastResponse.RawJSON
	}
	return in
}

func providerErr(op string, err error) error {
	pe := &ProviderError{Op: op, Err: err}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		pe.Timeout = true
	}
	return pe
}
