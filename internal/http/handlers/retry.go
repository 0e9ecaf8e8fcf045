package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/http/middleware"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/checkout"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/apperr"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/validation"
	"github.com/CNRP/ecommerce-storefront-sub001/pkg/view"
)

type PaymentRetrier interface {
	RetryPayment(ctx context.Context, orderID string) (checkout.RetryResult, error)
}

type RetryHandler struct {
	Retrier        PaymentRetrier
	Orders         OrderReader
	Access         OrderAccess
	PublishableKey string
	Logger         *slog.Logger

	validate *validation.Validator
}

func NewRetryHandler(retrier PaymentRetrier, ordersRd OrderReader, cu CustomerReader, publishableKey string, logger *slog.Logger) *RetryHandler {
	return &RetryHandler{
		Retrier:        retrier,
		Orders:         ordersRd,
		Access:         OrderAccess{Customers: cu, Logger: logger},
		PublishableKey: publishableKey,
		Logger:         logger,
		validate:       validation.New(),
	}
}

type retryRequest struct {
	OrderID string `json:"order_id" validate:"required,max=64"`
}

// POST /api/checkout/retry
// Same access rules as the order page; a stranger gets the same 404 as an
// unknown order.
func (h *RetryHandler) Retry(c *gin.Context) {
	ctx := c.Request.Context()

	var req retryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Request body is invalid.", validation.FromError(err)))
		return
	}
	if fields := h.validate.Struct(req); fields != nil {
		middleware.Fail(c, apperr.InvalidErr("Please check the highlighted fields.", fields))
		return
	}

	o, err := h.Orders.GetWithItems(ctx, req.OrderID)
	if err != nil {
		middleware.Fail(c, MapError(err))
		return
	}
	if !h.Access.Allowed(c, o) {
		middleware.Fail(c, apperr.NotFoundErr("Order not found."))
		return
	}

	res, err := h.Retrier.RetryPayment(ctx, o.ID)
	if err != nil {
		middleware.Fail(c, MapError(err))
		return
	}

	o.PaymentStatus = res.Order.PaymentStatus
	o.UpdatedAt = res.Order.UpdatedAt
	c.JSON(http.StatusCreated, view.RetryResponse{
		Order:          view.NewOrderDetail(o),
		ClientSecret:   res.ClientSecret,
		PublishableKey: h.PublishableKey,
	})
}
