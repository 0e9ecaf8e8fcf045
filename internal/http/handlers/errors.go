package handlers

import (
	"errors"
	"fmt"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/checkout"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/customers"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/orders"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/payments"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/users"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/apperr"
)

// MapError translates module errors into AppErrors for the error handler.
// Anything unrecognised becomes a generic 500.
func MapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := apperr.As(err); ok {
		return err
	}

	var (
		ve *checkout.ValidationError
		pe *payments.ProviderError
		se *payments.SignatureError
		te *orders.TransitionError
	)
	switch {
	case errors.As(err, &ve):
		return apperr.InvalidErr("Please check the highlighted fields.", ve.Fields)
	case errors.As(err, &pe):
		return apperr.UnavailableErr("The payment provider is unavailable. Please try again.", err)
	case errors.As(err, &se):
		return &apperr.AppError{Kind: apperr.Invalid, PublicMsg: "Invalid signature.", Err: err}
	case errors.Is(err, payments.ErrMalformedEvent):
		return &apperr.AppError{Kind: apperr.Invalid, PublicMsg: "Malformed event.", Err: err}
	case errors.Is(err, payments.ErrIntentOrderMismatch):
		return &apperr.AppError{Kind: apperr.Invalid, PublicMsg: "This payment does not belong to the order.", Err: err}
	case errors.Is(err, payments.ErrIntentNotFound):
		return &apperr.AppError{Kind: apperr.NotFound, PublicMsg: "Payment not found.", Err: err}
	case errors.Is(err, checkout.ErrNotRetryable):
		return &apperr.AppError{Kind: apperr.Conflict, PublicMsg: "This order is not waiting for a new payment.", Err: err}
	case errors.Is(err, payments.ErrInvalidReport):
		return &apperr.AppError{Kind: apperr.Invalid, PublicMsg: "order_id and payment_intent_id are required.", Err: err}
	case errors.Is(err, orders.ErrNotFound), errors.Is(err, customers.ErrNotFound):
		return &apperr.AppError{Kind: apperr.NotFound, PublicMsg: "Order not found.", Err: err}
	case errors.As(err, &te):
		return &apperr.AppError{
			Kind:      apperr.Conflict,
			PublicMsg: fmt.Sprintf("Order cannot move from %s to %s.", te.From, te.To),
			Err:       err,
		}
	case errors.Is(err, orders.ErrNotActionable):
		return &apperr.AppError{Kind: apperr.Invalid, PublicMsg: "Unknown order status.", Err: err}
	case errors.Is(err, users.ErrInvalidCredentials):
		return &apperr.AppError{Kind: apperr.Unauthorized, PublicMsg: "Invalid email or password.", Err: err}
	}
	return apperr.Wrap(err)
}
