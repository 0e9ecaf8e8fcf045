package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/payments"
)

type webhookOpts struct {
	url      string
	secret   string
	eventID  string
	typ      string
	intentID string
	orderID  string
	amount   int64
	currency string
	dryRun   bool
}

func newWebhookCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "webhook", Short: "Send signed test webhooks"}

	var o webhookOpts
	send := &cobra.Command{
		Use:   "send",
		Short: "Sign and POST a payment_intent event",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.secret == "" {
				return fmt.Errorf("--secret or STRIPE_WEBHOOK_SECRET is required")
			}
			if o.intentID == "" {
				return fmt.Errorf("--intent is required")
			}
			if o.eventID == "" {
				o.eventID = "evt_" + uuid.NewString()
			}

			body, err := buildIntentEvent(o)
			if err != nil {
				return err
			}
			sig := payments.Sign(body, o.secret, time.Now())

			out := cmd.OutOrStdout()
			if o.dryRun {
				fmt.Fprintf(out, "%s: %s\n%s\n", "Stripe-Signature", sig, body)
				return nil
			}
			return postWebhook(out, o.url, body, sig)
		},
	}
	f := send.Flags()
	f.StringVar(&o.url, "url", "http://localhost:8080/webhooks/stripe", "webhook endpoint")
	f.StringVar(&o.secret, "secret", os.Getenv("STRIPE_WEBHOOK_SECRET"), "signing secret")
	f.StringVar(&o.eventID, "event-id", "", "event id (random when empty)")
	f.StringVar(&o.typ, "type", "payment_intent.succeeded", "event type")
	f.StringVar(&o.intentID, "intent", "", "payment intent id")
	f.StringVar(&o.orderID, "order", "", "order id put in the intent metadata")
	f.Int64Var(&o.amount, "amount", 0, "amount in minor units")
	f.StringVar(&o.currency, "currency", "gbp", "currency")
	f.BoolVar(&o.dryRun, "dry-run", false, "print the signed request instead of sending it")
	cmd.AddCommand(send)
	return cmd
}

var eventStatus = map[string]string{
	"payment_intent.succeeded":                 "succeeded",
	"payment_intent.payment_failed":            "requires_payment_method",
	"payment_intent.processing":                "processing",
	"payment_intent.canceled":                  "canceled",
	"payment_intent.requires_action":           "requires_action",
	"payment_intent.amount_capturable_updated": "requires_capture",
}

func buildIntentEvent(o webhookOpts) ([]byte, error) {
	status, ok := eventStatus[o.typ]
	if !ok {
		return nil, fmt.Errorf("unsupported event type %q", o.typ)
	}
	intent := map[string]any{
		"id":       o.intentID,
		"object":   "payment_intent",
		"status":   status,
		"amount":   o.amount,
		"currency": o.currency,
	}
	if status == "succeeded" {
		intent["amount_received"] = o.amount
	}
	if o.orderID != "" {
		intent["metadata"] = map[string]string{"order_id": o.orderID}
	}
	return json.Marshal(map[string]any{
		"id":          o.eventID,
		"object":      "event",
		"type":        o.typ,
		"created":     time.Now().Unix(),
		"api_version": "2023-10-16",
		"data":        map[string]any{"object": intent},
	})
}

func postWebhook(out io.Writer, url string, body []byte, sig string) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", sig)

	resp, err := (&http.Client{Timeout: 10 * time.Second}).Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	fmt.Fprintf(out, "%d %s\n", resp.StatusCode, respBody)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook rejected: %s", resp.Status)
	}
	return nil
}
