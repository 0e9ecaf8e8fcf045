package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/orders"
)

// Event is the provider webhook envelope.
type Event struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Created  int64  `json:"created"`
	Livemode bool   `json:"livemode"`
	Data     struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// eventObject covers the payment_intent and charge fields we read.
type eventObject struct {
	ID                 string            `json:"id"`
	Object             string            `json:"object"`
	Status             string            `json:"status"`
	Amount             int64             `json:"amount"`
	AmountReceived     int64             `json:"amount_received"`
	AmountCaptured     int64             `json:"amount_captured"`
	Currency           string            `json:"currency"`
	PaymentIntent      json.RawMessage   `json:"payment_intent"`
	PaymentMethod      json.RawMessage   `json:"payment_method"`
	Metadata           map[string]string `json:"metadata"`
	CancellationReason string            `json:"cancellation_reason"`
	FailureCode        string            `json:"failure_code"`
	FailureMessage     string            `json:"failure_message"`
	LastPaymentError   *struct {
		Code        string `json:"code"`
		DeclineCode string `json:"decline_code"`
		Message     string `json:"message"`
	} `json:"last_payment_error"`
}

func ParseEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if ev.ID == "" || ev.Type == "" {
		return Event{}, fmt.Errorf("%w: missing id or type", ErrMalformedEvent)
	}
	return ev, nil
}

// statusForEvent maps an event type to the status it reports. ok is false
// for event types this service does not act on.
func statusForEvent(eventType string, obj eventObject) (Status, bool) {
	switch eventType {
	case "payment_intent.succeeded", "charge.succeeded":
		return StatusSucceeded, true
	case "payment_intent.payment_failed", "charge.failed":
		return StatusFailed, true
	case "payment_intent.canceled":
		return StatusCancelled, true
	case "payment_intent.processing":
		return StatusProcessing, true
	case "payment_intent.requires_action":
		return StatusRequiresAction, true
	case "payment_intent.created", "payment_intent.amount_capturable_updated":
		return ParseStatus(obj.Status)
	default:
		return "", false
	}
}

// expandable fields arrive either as an id string or an expanded object
func expandableID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.ID
	}
	return ""
}

func payloadFromEvent(ev Event, obj eventObject, intentID string) ProviderPayload {
	pl := ProviderPayload{
		Object:          obj.Object,
		IntentID:        intentID,
		Status:          obj.Status,
		Amount:          obj.Amount,
		AmountReceived:  obj.AmountReceived,
		Currency:        strings.ToUpper(obj.Currency),
		PaymentMethodID: expandableID(obj.PaymentMethod),
		FailureCode:     obj.FailureCode,
		FailureMessage:  obj.FailureMessage,
		EventID:         ev.ID,
		EventType:       ev.Type,
		Raw:             ev.Data.Object,
	}
	if obj.Object == "charge" {
		pl.AmountReceived = obj.AmountCaptured
	}
	if e := obj.LastPaymentError; e != nil {
		pl.FailureCode = e.Code
		if e.DeclineCode != "" {
			pl.FailureCode = e.DeclineCode
		}
		pl.FailureMessage = e.Message
	}
	if pl.FailureCode == "" && obj.CancellationReason != "" {
		pl.FailureCode = obj.CancellationReason
	}
	return pl
}

// HandleEvent turns a verified provider event into a Reconcile call.
// Unhandled event types come back as OutcomeIgnored.
func (r *Reconciler) HandleEvent(ctx context.Context, ev Event) (Result, error) {
	var obj eventObject
	if len(ev.Data.Object) > 0 {
		if err := json.Unmarshal(ev.Data.Object, &obj); err != nil {
			return Result{}, fmt.Errorf("%w: data.object: %v", ErrMalformedEvent, err)
		}
	}

	status, ok := statusForEvent(ev.Type, obj)
	if !ok {
		r.log.DebugContext(ctx, "provider event ignored", "event_id", ev.ID, "type", ev.Type)
		return Result{Outcome: OutcomeIgnored}, nil
	}

	intentID := obj.ID
	if obj.Object == "charge" {
		intentID = expandableID(obj.PaymentIntent)
	}
	if intentID == "" {
		r.log.WarnContext(ctx, "provider event without payment intent", "event_id", ev.ID, "type", ev.Type)
		return Result{Outcome: OutcomeIgnored}, nil
	}

	orderID := obj.Metadata["order_id"]
	if orderID == "" {
		var err error
		orderID, err = r.store.FindOrderIDByIntent(ctx, intentID)
		if err != nil {
			if errors.Is(err, orders.ErrNotFound) {
				return Result{}, fmt.Errorf("intent %s: %w", intentID, err)
			}
			return Result{}, err
		}
	}

	return r.Reconcile(ctx, Report{
		OrderID:  orderID,
		IntentID: intentID,
		Status:   status,
		Payload:  payloadFromEvent(ev, obj, intentID),
		Source:   SourceWebhook,
	})
}
