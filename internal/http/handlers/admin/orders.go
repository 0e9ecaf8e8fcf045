package admin

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/http/handlers"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/http/middleware"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/orders"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/apperr"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/validation"
	"github.com/CNRP/ecommerce-storefront-sub001/pkg/view"
)

type Transitioner interface {
	Transition(ctx context.Context, in orders.TransitionInput) (orders.Order, error)
}

type Reader interface {
	GetWithItems(ctx context.Context, id string) (orders.Order, error)
	ListEvents(ctx context.Context, orderID string) ([]orders.OrderEvent, error)
}

type OrdersHandler struct {
	Orders   Reader
	Svc      Transitioner
	Payments handlers.PaymentLister

	validate *validation.Validator
}

func NewOrdersHandler(r Reader, svc Transitioner, p handlers.PaymentLister) *OrdersHandler {
	return &OrdersHandler{Orders: r, Svc: svc, Payments: p, validate: validation.New()}
}

type eventView struct {
	Actor string  `json:"actor"`
	From  string  `json:"from"`
	To    string  `json:"to"`
	Note  *string `json:"note,omitempty"`
	At    string  `json:"at"`
}

// GET /api/admin/orders/:id
func (h *OrdersHandler) Detail(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	o, err := h.Orders.GetWithItems(ctx, id)
	if err != nil {
		middleware.Fail(c, handlers.MapError(err))
		return
	}
	ps, err := h.Payments.ListByOrder(ctx, id)
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}
	evs, err := h.Orders.ListEvents(ctx, id)
	if err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}

	history := make([]eventView, 0, len(evs))
	for _, e := range evs {
		history = append(history, eventView{
			Actor: e.Actor,
			From:  string(e.FromStatus),
			To:    string(e.ToStatus),
			Note:  e.Note,
			At:    e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"order":   view.NewOrderDetail(o).WithPayments(ps),
		"history": history,
	})
}

type transitionInput struct {
	Status string `json:"status" validate:"required,max=32"`
	Note   string `json:"note" validate:"max=500"`
}

// POST /api/admin/orders/:id/transition
func (h *OrdersHandler) Transition(c *gin.Context) {
	var in transitionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Request body is invalid.", validation.FromError(err)))
		return
	}
	if fields := h.validate.Struct(in); fields != nil {
		middleware.Fail(c, apperr.InvalidErr("Please check the highlighted fields.", fields))
		return
	}

	u, _ := middleware.CurrentUser(c)
	o, err := h.Svc.Transition(c.Request.Context(), orders.TransitionInput{
		OrderID: c.Param("id"),
		Actor:   "admin:" + u.ID,
		To:      orders.Status(strings.ToLower(strings.TrimSpace(in.Status))),
		Note:    in.Note,
	})
	if err != nil {
		middleware.Fail(c, handlers.MapError(err))
		return
	}
	c.JSON(http.StatusOK, view.NewOrderDetail(o))
}
