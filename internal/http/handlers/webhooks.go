package handlers

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/http/middleware"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/payments"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/apperr"
)

const (
	HeaderStripeSignature = "Stripe-Signature"
	maxWebhookBody        = 1 << 20
)

type WebhookProcessor interface {
	Handle(ctx context.Context, rawBody []byte, signature string) (payments.Result, error)
}

type WebhookHandler struct {
	Logger     *slog.Logger
	WebhookSvc WebhookProcessor
}

func NewWebhookHandler(logger *slog.Logger, svc WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{Logger: logger, WebhookSvc: svc}
}

// POST /webhooks/stripe
// The body must reach the verifier byte for byte; it is never re-encoded.
func (h *WebhookHandler) Stripe(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		middleware.Fail(c, apperr.InvalidErr("invalid body", nil))
		return
	}

	res, err := h.WebhookSvc.Handle(c.Request.Context(), body, c.GetHeader(HeaderStripeSignature))
	if err != nil {
		// 5xx makes the provider retry; 4xx does not
		middleware.Fail(c, MapError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true, "outcome": res.Outcome})
}
