package payments

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/orders"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/platform/outbox"
)

const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventPaymentUpdated   = "payment.updated"
	EventPaymentRetried   = "payment.retry_started"
)

// Source names who reported a status.
type Source string

const (
	SourceWebhook  Source = "webhook"
	SourceComplete Source = "complete"
)

// Report is one provider-reported status for one intent.
type Report struct {
	OrderID  string
	IntentID string
	Status   Status
	Payload  ProviderPayload
	Source   Source
}

type Outcome string

const (
	OutcomeApplied      Outcome = "applied"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeStale        Outcome = "stale"
	OutcomeInconsistent Outcome = "inconsistent"
	OutcomeIgnored      Outcome = "ignored"
)

type Result struct {
	Outcome Outcome
	Order   orders.Order
	Payment Payment
}

// Tx is the transactional view the reconciler works through. The order row
// is already locked when a Tx is handed out.
type Tx interface {
	PaymentByIntent(ctx context.Context, intentID string) (*Payment, error)
	SavePayment(ctx context.Context, p *Payment, isNew bool) error
	SaveOrder(ctx context.Context, o *orders.Order) error
	RecordStatusChange(ctx context.Context, o orders.Order, from orders.Status, actor string, at time.Time) error
	Emit(ctx context.Context, msg outbox.Message) error
}

type Store interface {
	// WithOrderLock runs fn in one transaction holding an exclusive lock on
	// the order row. It returns orders.ErrNotFound for unknown orders.
	WithOrderLock(ctx context.Context, orderID string, fn func(ctx context.Context, tx Tx, o *orders.Order) error) error
	FindOrderIDByIntent(ctx context.Context, intentID string) (string, error)
}

// Notifier hears about terminal payment outcomes once they are committed.
// It is called at most once per outcome and must not block.
type Notifier interface {
	PaymentSettled(ctx context.Context, res Result)
}

// Reconciler is the single writer of payment outcomes. Both the webhook and
// the synchronous completion path end up in Reconcile.
type Reconciler struct {
	store  Store
	locks  *keyedMutex
	log    *slog.Logger
	now    func() time.Time
	tracer trace.Tracer
	notify Notifier
}

func NewReconciler(store Store, log *slog.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		locks:  newKeyedMutex(),
		log:    log,
		now:    time.Now,
		tracer: otel.Tracer("storefront/payments"),
	}
}

func (r *Reconciler) SetNotifier(n Notifier) { r.notify = n }

func (r *Reconciler) Reconcile(ctx context.Context, rep Report) (Result, error) {
	if rep.OrderID == "" || rep.IntentID == "" || !rep.Status.Valid() {
		return Result{}, fmt.Errorf("%w: order=%q intent=%q status=%q", ErrInvalidReport, rep.OrderID, rep.IntentID, rep.Status)
	}

	ctx, span := r.tracer.Start(ctx, "payments.reconcile", trace.WithAttributes(
		attribute.String("order_id", rep.OrderID),
		attribute.String("intent_id", rep.IntentID),
		attribute.String("status", string(rep.Status)),
		attribute.String("source", string(rep.Source)),
	))
	defer span.End()

	unlock := r.locks.Lock(rep.OrderID)
	defer unlock()

	var res Result
	err := r.store.WithOrderLock(ctx, rep.OrderID, func(ctx context.Context, tx Tx, o *orders.Order) error {
		var err error
		res, err = r.reconcileLocked(ctx, tx, o, rep)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}

	span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
	r.log.InfoContext(ctx, "payment reconciled",
		"order_id", rep.OrderID,
		"intent_id", rep.IntentID,
		"reported", rep.Status,
		"source", rep.Source,
		"outcome", res.Outcome,
		"payment_status", res.Payment.Status,
		"order_status", res.Order.Status,
	)
	if r.notify != nil && res.Outcome == OutcomeApplied && res.Payment.Status.Terminal() {
		r.notify.PaymentSettled(ctx, res)
	}
	return res, nil
}

func decide(current Status, isNew bool, reported Status) Outcome {
	switch {
	case current.Terminal() && reported == current:
		return OutcomeDuplicate
	case current == StatusFailed && reported == StatusCancelled:
		// a declined intent is cancelled when the customer retries
		return OutcomeStale
	case current.Terminal() && reported.Terminal():
		return OutcomeInconsistent
	case current.Terminal():
		return OutcomeStale
	case !isNew && reported == current:
		return OutcomeDuplicate
	default:
		return OutcomeApplied
	}
}

func (r *Reconciler) reconcileLocked(ctx context.Context, tx Tx, o *orders.Order, rep Report) (Result, error) {
	p, err := tx.PaymentByIntent(ctx, rep.IntentID)
	if err != nil {
		return Result{}, err
	}

	isNew := p == nil
	if isNew {
		// add-on attempt the orchestrator did not create
		p = r.newAttemptFromReport(o, rep)
	} else if p.OrderID != o.ID {
		return Result{}, fmt.Errorf("%w: intent %s is on order %s", ErrIntentOrderMismatch, rep.IntentID, p.OrderID)
	}

	switch outcome := decide(p.Status, isNew, rep.Status); outcome {
	case OutcomeDuplicate, OutcomeStale:
		return Result{Outcome: outcome, Order: *o, Payment: *p}, nil
	case OutcomeInconsistent:
		r.log.ErrorContext(ctx, "inconsistent payment state", "err", &InconsistentStateError{
			PaymentID: p.ID,
			IntentID:  p.ProviderIntentID,
			Recorded:  p.Status,
			Reported:  rep.Status,
		}, "order_id", o.ID, "source", rep.Source)
		return Result{Outcome: outcome, Order: *o, Payment: *p}, nil
	}

	now := r.now().UTC()
	prevStatus := o.Status
	prevPayStatus := o.PaymentStatus
	prevPaidAt := o.PaidAt

	r.applyToPayment(ctx, p, rep, now)

	event := EventPaymentUpdated
	switch rep.Status {
	case StatusSucceeded:
		event = EventPaymentSucceeded
		if _, err := o.MarkPaid(now); err != nil {
			return Result{}, err
		}
		if o.Status == orders.StatusCancelled || o.Status == orders.StatusRefunded {
			r.log.WarnContext(ctx, "payment succeeded on closed order", "order_id", o.ID, "order_status", o.Status, "payment_id", p.ID)
		}
	case StatusFailed, StatusCancelled:
		event = EventPaymentFailed
		// another attempt may already have paid for the order
		if o.PaymentStatus != orders.PaymentSucceeded {
			o.PaymentStatus = orders.PaymentFailed
		}
	default:
		if o.PaymentStatus != orders.PaymentSucceeded {
			o.PaymentStatus = rep.Status.OrderPaymentStatus()
		}
	}

	if err := tx.SavePayment(ctx, p, isNew); err != nil {
		return Result{}, err
	}
	if o.Status != prevStatus || o.PaymentStatus != prevPayStatus || o.PaidAt != prevPaidAt {
		if err := tx.SaveOrder(ctx, o); err != nil {
			return Result{}, err
		}
	}
	if err := tx.Emit(ctx, paymentMessage(event, *o, *p)); err != nil {
		return Result{}, err
	}
	if o.Status != prevStatus {
		if err := tx.RecordStatusChange(ctx, *o, prevStatus, "payments:"+string(rep.Source), now); err != nil {
			return Result{}, err
		}
	}
	return Result{Outcome: OutcomeApplied, Order: *o, Payment: *p}, nil
}

func (r *Reconciler) newAttemptFromReport(o *orders.Order, rep Report) *Payment {
	amount := rep.Payload.Amount
	if amount == 0 {
		amount = o.TotalMinor
	}
	currency := rep.Payload.Currency
	if currency == "" {
		currency = o.Currency
	}
	return &Payment{
		ID:               uuid.NewString(),
		OrderID:          o.ID,
		Provider:         ProviderStripe,
		ProviderIntentID: rep.IntentID,
		Type:             TypePayment,
		AmountMinor:      amount,
		Currency:         currency,
	}
}

func (r *Reconciler) applyToPayment(ctx context.Context, p *Payment, rep Report, now time.Time) {
	p.Status = rep.Status
	if rep.Payload.IntentID != "" || len(rep.Payload.Raw) > 0 {
		p.Payload = datatypes.NewJSONType(rep.Payload)
	}
	if pm := rep.Payload.PaymentMethodID; pm != "" {
		p.PaymentMethodID = &pm
	}

	switch rep.Status {
	case StatusSucceeded:
		t := now
		p.ProcessedAt = &t
		received := rep.Payload.AmountReceived
		if received == 0 {
			received = p.AmountMinor
		}
		p.AmountReceivedMinor = &received
		p.FailureReason, p.FailureMessage = nil, nil
		if received != p.AmountMinor {
			r.log.WarnContext(ctx, "amount received differs from payment amount",
				"payment_id", p.ID, "amount", p.AmountMinor, "received", received, "currency", p.Currency)
		}
	case StatusFailed, StatusCancelled:
		reason := rep.Payload.FailureCode
		if reason == "" {
			reason = string(rep.Status)
		}
		p.FailureReason = &reason
		if msg := truncate(rep.Payload.FailureMessage, 500); msg != "" {
			p.FailureMessage = &msg
		}
	}
}

// PaymentEventPayload is the outbox body of payment.* events.
type PaymentEventPayload struct {
	PaymentID      string `json:"payment_id"`
	OrderID        string `json:"order_id"`
	OrderNumber    string `json:"order_number"`
	IntentID       string `json:"intent_id"`
	Status         Status `json:"status"`
	Amount         int64  `json:"amount"`
	AmountReceived *int64 `json:"amount_received,omitempty"`
	Currency       string `json:"currency"`
	FailureReason  string `json:"failure_reason,omitempty"`
	OrderStatus    string `json:"order_status"`
	PaymentStatus  string `json:"order_payment_status"`
}

// RetryMessage is the outbox event for a new attempt on a declined order.
func RetryMessage(o orders.Order, p Payment) outbox.Message {
	return paymentMessage(EventPaymentRetried, o, p)
}

func paymentMessage(eventType string, o orders.Order, p Payment) outbox.Message {
	pl := PaymentEventPayload{
		PaymentID:      p.ID,
		OrderID:        o.ID,
		OrderNumber:    o.OrderNumber,
		IntentID:       p.ProviderIntentID,
		Status:         p.Status,
		Amount:         p.AmountMinor,
		AmountReceived: p.AmountReceivedMinor,
		Currency:       p.Currency,
		OrderStatus:    string(o.Status),
		PaymentStatus:  string(o.PaymentStatus),
	}
	if p.FailureReason != nil {
		pl.FailureReason = *p.FailureReason
	}
	return outbox.Message{
		AggregateType: "payment",
		AggregateID:   o.ID,
		Type:          eventType,
		Payload:       pl,
	}
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n]
}
