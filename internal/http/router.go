package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/http/handlers"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/http/handlers/admin"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/http/middleware"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/apperr"
)

type Deps struct {
	Logger   *slog.Logger
	Sessions *middleware.Sessions
	Limiter  *middleware.IPRateLimiter

	Checkout    *handlers.CheckoutHandler
	Retry       *handlers.RetryHandler
	Webhooks    *handlers.WebhookHandler
	Orders      *handlers.OrdersHandler
	Auth        *handlers.AuthHandler
	Health      *handlers.HealthHandler
	AdminOrders *admin.OrdersHandler
}

func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true

	r.Use(
		middleware.RequestID(),
		middleware.TraceContext(),
		middleware.Logger(d.Logger, "/healthz"),
		middleware.Recovery(d.Logger),
		middleware.ErrorHandler(d.Logger),
	)

	r.GET("/healthz", d.Health.Get)

	// provider callbacks carry no session
	r.POST("/webhooks/stripe", d.Webhooks.Stripe)

	api := r.Group("/api", d.Sessions.Middleware())
	{
		co := api.Group("/checkout")
		if d.Limiter != nil {
			co.Use(middleware.RateLimit(d.Limiter))
		}
		co.POST("", d.Checkout.Initialize)
		co.POST("/complete", d.Checkout.Complete)
		co.POST("/retry", d.Retry.Retry)

		api.GET("/orders/:number", d.Orders.Show)

		api.POST("/auth/login", d.Auth.Login)
		api.POST("/auth/logout", middleware.RequireAuth(), d.Auth.Logout)

		adm := api.Group("/admin", middleware.RequireAdmin())
		adm.GET("/orders/:id", d.AdminOrders.Detail)
		adm.POST("/orders/:id/transition", d.AdminOrders.Transition)
	}

	r.NoRoute(func(c *gin.Context) {
		middleware.Fail(c, apperr.NotFoundErr("Not found."))
	})
	r.NoMethod(func(c *gin.Context) {
		middleware.Fail(c, &apperr.AppError{Kind: apperr.Invalid, PublicMsg: "Method not allowed."})
	})
	return r
}
