package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/apperr"
)

// Fail records err on the context and stops the handler chain. ErrorHandler
// renders it.
func Fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ErrorHandler renders the last recorded error as
// {"error", "request_id", "fields"?}.
func ErrorHandler(l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}
		writeError(c, l)
	}
}

func writeError(c *gin.Context, l *slog.Logger) {
	err := c.Errors.Last().Err
	status := apperr.HTTPStatus(err)
	rid := GetRequestID(c)

	level := slog.LevelWarn
	if status >= 500 {
		level = slog.LevelError
	}
	l.LogAttrs(c.Request.Context(), level, "request_failed",
		slog.String("request_id", rid),
		slog.Int("status", status),
		slog.Any("err", err),
	)

	payload := gin.H{
		"error":      apperr.PublicMessage(err),
		"request_id": rid,
	}
	if ae, ok := apperr.As(err); ok {
		if len(ae.Fields) > 0 {
			payload["fields"] = ae.Fields
		}
		if ae.Retryable && status == http.StatusServiceUnavailable {
			c.Header("Retry-After", "5")
		}
	}
	c.AbortWithStatusJSON(status, payload)
}
