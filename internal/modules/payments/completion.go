package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Completer handles the client's "payment done" call. The intent status is
// always fetched from the provider; the client only names the intent.
type Completer struct {
	provider Provider
	rec      *Reconciler
	timeout  time.Duration
	log      *slog.Logger
}

func NewCompleter(provider Provider, rec *Reconciler, timeout time.Duration, log *slog.Logger) *Completer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Completer{provider: provider, rec: rec, timeout: timeout, log: log}
}

func (c *Completer) Complete(ctx context.Context, orderID, intentID string) (Result, error) {
	if orderID == "" || intentID == "" {
		return Result{}, fmt.Errorf("%w: order_id and payment_intent_id are required", ErrInvalidReport)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	intent, err := c.provider.RetrieveIntent(callCtx, intentID)
	cancel()
	if err != nil {
		c.log.WarnContext(ctx, "retrieve intent failed", "order_id", orderID, "intent_id", intentID, "err", err)
		return Result{}, err
	}

	if intent.Metadata["order_id"] != orderID {
		c.log.WarnContext(ctx, "intent/order mismatch on complete",
			"order_id", orderID, "intent_id", intentID, "intent_order_id", intent.Metadata["order_id"])
		return Result{}, ErrIntentOrderMismatch
	}

	return c.rec.Reconcile(ctx, Report{
		OrderID:  orderID,
		IntentID: intent.ID,
		Status:   intent.Status,
		Payload:  intent.Payload(),
		Source:   SourceComplete,
	})
}
