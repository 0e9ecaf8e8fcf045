package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/http/middleware"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/customers"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/orders"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/payments"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/apperr"
	"github.com/CNRP/ecommerce-storefront-sub001/pkg/view"
)

const HeaderGuestToken = "X-Guest-Token"

type OrderLookup interface {
	GetByNumber(ctx context.Context, number string) (orders.Order, error)
}

type PaymentLister interface {
	ListByOrder(ctx context.Context, orderID string) ([]payments.Payment, error)
}

type CustomerReader interface {
	GetByID(ctx context.Context, id string) (customers.Customer, error)
}

type OrdersHandler struct {
	Orders   OrderLookup
	Payments PaymentLister
	Access   OrderAccess
	Logger   *slog.Logger
}

func NewOrdersHandler(o OrderLookup, p PaymentLister, cu CustomerReader, logger *slog.Logger) *OrdersHandler {
	return &OrdersHandler{Orders: o, Payments: p, Access: OrderAccess{Customers: cu, Logger: logger}, Logger: logger}
}

// GET /api/orders/:number
// Readable with the guest token from checkout or by the owning account.
// Everything else is a 404 so order numbers cannot be probed.
func (h *OrdersHandler) Show(c *gin.Context) {
	ctx := c.Request.Context()
	number := strings.TrimSpace(c.Param("number"))

	o, err := h.Orders.GetByNumber(ctx, number)
	if err != nil {
		middleware.Fail(c, MapError(err))
		return
	}
	if !h.Access.Allowed(c, o) {
		middleware.Fail(c, apperr.NotFoundErr("Order not found."))
		return
	}

	vm := view.NewOrderDetail(o)
	ps, err := h.Payments.ListByOrder(ctx, o.ID)
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}
	c.JSON(http.StatusOK, vm.WithPayments(ps))
}

// OrderAccess decides who may see or act on an order: the holder of its
// guest token, an admin, or the account that owns the customer record.
type OrderAccess struct {
	Customers CustomerReader
	Logger    *slog.Logger
}

func (a OrderAccess) Allowed(c *gin.Context, o orders.Order) bool {
	token := c.GetHeader(HeaderGuestToken)
	if token == "" {
		token = c.Query("token")
	}
	if o.GuestTokenMatches(token) {
		return true
	}

	u, ok := middleware.CurrentUser(c)
	if !ok {
		return false
	}
	if u.Role == middleware.RoleAdmin {
		return true
	}
	cust, err := a.Customers.GetByID(c.Request.Context(), o.CustomerID)
	if err != nil {
		a.Logger.WarnContext(c.Request.Context(), "order owner lookup failed", "order_id", o.ID, "err", err)
		return false
	}
	return cust.UserID != nil && *cust.UserID == u.ID
}
