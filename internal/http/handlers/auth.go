package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/http/middleware"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/users"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/apperr"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/validation"
)

type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (users.User, error)
}

type SessionManager interface {
	Start(c *gin.Context, userID string) error
	End(c *gin.Context) error
}

type AuthHandler struct {
	Users    Authenticator
	Sessions SessionManager

	validate *validation.Validator
}

func NewAuthHandler(u Authenticator, s SessionManager) *AuthHandler {
	return &AuthHandler{Users: u, Sessions: s, validate: validation.New()}
}

type loginInput struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var in loginInput
	if err := c.ShouldBindJSON(&in); err != nil {
		middleware.Fail(c, apperr.InvalidErr("Request body is invalid.", validation.FromError(err)))
		return
	}
	if fields := h.validate.Struct(in); fields != nil {
		middleware.Fail(c, apperr.InvalidErr("Please check the highlighted fields.", fields))
		return
	}

	u, err := h.Users.Authenticate(c.Request.Context(), in.Email, in.Password)
	if err != nil {
		middleware.Fail(c, MapError(err))
		return
	}
	if err := h.Sessions.Start(c, u.ID); err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": u.ID, "email": u.Email, "role": u.Role})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.Sessions.End(c); err != nil {
		middleware.Fail(c, apperr.Wrap(err))
		return
	}
	c.Status(http.StatusNoContent)
}
