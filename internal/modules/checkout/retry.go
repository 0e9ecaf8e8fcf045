package checkout

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/orders"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/payments"
)

type RetryResult struct {
	Order        orders.Order
	Payment      payments.Payment
	ClientSecret string
}

// RetryPayment opens a new payment attempt for an order whose last attempt
// was declined. Earlier intents are cancelled at the provider first so an
// old client secret cannot charge the customer a second time; if any of
// them cannot be cancelled no new intent is created.
func (o *Orchestrator) RetryPayment(ctx context.Context, orderID string) (RetryResult, error) {
	order, attempts, err := o.orders.Attempts(ctx, orderID)
	if err != nil {
		return RetryResult{}, err
	}
	if !order.AwaitingRetry() {
		return RetryResult{}, ErrNotRetryable
	}
	log := o.log.With("order_id", order.ID, "order_number", order.OrderNumber)

	var superseded []string
	for _, p := range attempts {
		switch p.Status {
		case payments.StatusSucceeded:
			return RetryResult{}, ErrNotRetryable
		case payments.StatusCancelled:
			continue
		}
		if err := o.cancelForRetry(ctx, p.ProviderIntentID); err != nil {
			if errors.Is(err, payments.ErrIntentSettled) {
				// the success webhook is on its way
				log.ErrorContext(ctx, "declined order has a settled intent", "intent_id", p.ProviderIntentID)
				return RetryResult{}, ErrNotRetryable
			}
			log.WarnContext(ctx, "retry aborted; previous intent not cancelled", "intent_id", p.ProviderIntentID, "err", err)
			return RetryResult{}, err
		}
		if !p.Status.Terminal() {
			superseded = append(superseded, p.ProviderIntentID)
		}
	}

	cust, err := o.customers.GetByID(ctx, order.CustomerID)
	if err != nil {
		return RetryResult{}, &CheckoutError{Stage: "customer", Err: err}
	}

	intent, err := o.createIntent(ctx, order, cust.Email, order.ID+":retry:"+uuid.NewString())
	if err != nil {
		log.WarnContext(ctx, "retry provider call failed", "err", err)
		return RetryResult{}, err
	}

	payment := payments.NewAttempt(order.ID, o.provider.Name(), order.Total(), intent)
	updated, err := o.orders.AddAttempt(ctx, order.ID, &payment, superseded)
	if err != nil {
		log.ErrorContext(ctx, "retry persist failed; cancelling intent", "intent_id", intent.ID, "err", err)
		o.cancelIntent(ctx, intent.ID)
		if errors.Is(err, ErrNotRetryable) || errors.Is(err, orders.ErrNotFound) {
			return RetryResult{}, err
		}
		return RetryResult{}, &CheckoutError{Stage: "persist", Err: err}
	}

	log.InfoContext(ctx, "payment retry started",
		"intent_id", intent.ID,
		"attempt", len(attempts)+1,
		"superseded", len(superseded),
	)
	return RetryResult{Order: updated, Payment: payment, ClientSecret: intent.ClientSecret}, nil
}

func (o *Orchestrator) cancelForRetry(ctx context.Context, intentID string) error {
	callCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	err := o.provider.CancelIntent(callCtx, intentID)
	if errors.Is(err, payments.ErrIntentNotFound) {
		return nil
	}
	return err
}
