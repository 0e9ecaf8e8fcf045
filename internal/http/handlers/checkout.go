package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/http/middleware"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/checkout"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/orders"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/payments"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/platform/idempotency"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/apperr"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/validation"
	"github.com/CNRP/ecommerce-storefront-sub001/pkg/view"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	maxCheckoutBody      = 64 << 10
)

type Initializer interface {
	Initialize(ctx context.Context, in checkout.Input) (checkout.Result, error)
}

type Completer interface {
	Complete(ctx context.Context, orderID, intentID string) (payments.Result, error)
}

type IdempotencyStore interface {
	Begin(ctx context.Context, key, fingerprint string) (*idempotency.Record, error)
	Complete(ctx context.Context, key string, rec idempotency.Record) error
	Abort(ctx context.Context, key string) error
}

type SessionStarter interface {
	Start(c *gin.Context, userID string) error
}

type OrderReader interface {
	GetWithItems(ctx context.Context, id string) (orders.Order, error)
}

type CheckoutHandler struct {
	Checkout       Initializer
	Completer      Completer
	Orders         OrderReader
	Idem           IdempotencyStore // optional
	Sessions       SessionStarter   // optional
	PublishableKey string
	Logger         *slog.Logger

	validate *validation.Validator
}

func NewCheckoutHandler(initializer Initializer, completer Completer, ordersRd OrderReader, idem IdempotencyStore, sessions SessionStarter, publishableKey string, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		Checkout:       initializer,
		Completer:      completer,
		Orders:         ordersRd,
		Idem:           idem,
		Sessions:       sessions,
		PublishableKey: publishableKey,
		Logger:         logger,
		validate:       validation.New(),
	}
}

// POST /api/checkout
func (h *CheckoutHandler) Initialize(c *gin.Context) {
	ctx := c.Request.Context()

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxCheckoutBody))
	if err != nil {
		middleware.Fail(c, apperr.InvalidErr("Request body is too large or unreadable.", nil))
		return
	}

	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	owned := false
	fp := fingerprint(body)
	if key != "" && h.Idem != nil {
		if len(key) > 128 {
			middleware.Fail(c, apperr.InvalidErr("Idempotency-Key is too long.", nil))
			return
		}
		rec, err := h.Idem.Begin(ctx, key, fp)
		switch {
		case errors.Is(err, idempotency.ErrInFlight):
			middleware.Fail(c, apperr.ConflictErr("A request with this Idempotency-Key is still in progress."))
			return
		case errors.Is(err, idempotency.ErrKeyReuse):
			middleware.Fail(c, apperr.InvalidErr("Idempotency-Key was already used for a different request.", nil))
			return
		case err != nil:
			middleware.Fail(c, apperr.UnavailableErr("Checkout is temporarily unavailable.", err))
			return
		case rec != nil:
			c.Header("Idempotent-Replayed", "true")
			c.Data(rec.Status, "application/json; charset=utf-8", rec.Body)
			return
		}
		owned = true
	}

	resp, err := h.initialize(c, body)
	if err != nil {
		if owned {
			h.release(ctx, key)
		}
		middleware.Fail(c, MapError(err))
		return
	}

	out, err := json.Marshal(resp)
	if err != nil {
		if owned {
			h.release(ctx, key)
		}
		middleware.Fail(c, apperr.Wrap(err))
		return
	}
	if owned {
		if err := h.Idem.Complete(ctx, key, idempotency.Record{Fingerprint: fp, Status: http.StatusCreated, Body: out}); err != nil {
			h.Logger.WarnContext(ctx, "idempotency record not stored", "err", err)
		}
	}
	c.Data(http.StatusCreated, "application/json; charset=utf-8", out)
}

func (h *CheckoutHandler) initialize(c *gin.Context, body []byte) (view.CheckoutResponse, error) {
	ctx := c.Request.Context()

	var in checkout.Input
	if err := json.Unmarshal(body, &in); err != nil {
		return view.CheckoutResponse{}, apperr.InvalidErr("Request body is invalid.", validation.FromError(err))
	}

	res, err := h.Checkout.Initialize(ctx, in)
	if err != nil {
		return view.CheckoutResponse{}, err
	}

	if res.AccountCreated && res.Account != nil && h.Sessions != nil {
		// the order exists; a missing session only means the user logs in later
		if err := h.Sessions.Start(c, res.Account.ID); err != nil {
			h.Logger.ErrorContext(ctx, "start session after checkout failed", "user_id", res.Account.ID, "err", err)
		}
	}

	return view.CheckoutResponse{
		Order:          view.NewOrderDetail(res.Order),
		ClientSecret:   res.ClientSecret,
		PublishableKey: h.PublishableKey,
		GuestToken:     res.GuestToken,
		AccountCreated: res.AccountCreated,
	}, nil
}

func (h *CheckoutHandler) release(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := h.Idem.Abort(ctx, key); err != nil {
		h.Logger.WarnContext(ctx, "idempotency key not released", "err", err)
	}
}

type completeRequest struct {
	OrderID         string `json:"order_id" validate:"required,max=64"`
	PaymentIntentID string `json:"payment_intent_id" validate:"required,max=255"`
}

// POST /api/checkout/complete
func (h *CheckoutHandler) Complete(c *gin.Context) {
	ctx := c.Request.Context()

	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Request body is invalid.", validation.FromError(err)))
		return
	}
	if fields := h.validate.Struct(req); fields != nil {
		middleware.Fail(c, apperr.InvalidErr("Please check the highlighted fields.", fields))
		return
	}

	res, err := h.Completer.Complete(ctx, req.OrderID, req.PaymentIntentID)
	if err != nil {
		middleware.Fail(c, MapError(err))
		return
	}

	o := res.Order
	if full, err := h.Orders.GetWithItems(ctx, o.ID); err == nil {
		o = full
	} else {
		h.Logger.WarnContext(ctx, "reload order after complete failed", "order_id", o.ID, "err", err)
	}

	c.JSON(http.StatusOK, view.CompleteResponse{
		Order:   view.NewOrderDetail(o),
		Outcome: string(res.Outcome),
	})
}

func fingerprint(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}
