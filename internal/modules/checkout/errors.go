package checkout

import (
	"errors"
	"fmt"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/validation"
)

// ErrNotRetryable is returned for a payment retry on an order whose last
// attempt was not declined, or that has since been paid or cancelled.
var ErrNotRetryable = errors.New("order is not awaiting a payment retry")

// ValidationError is a rejected checkout input. Nothing was written.
type ValidationError struct {
	Fields validation.FieldErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("checkout: invalid input (%d field(s))", len(e.Fields))
}

// CheckoutError is a failure after validation that is not the provider's
// fault. Stage names the step that failed.
type CheckoutError struct {
	Stage string
	Err   error
}

func (e *CheckoutError) Error() string {
	return fmt.Sprintf("checkout %s: %v", e.Stage, e.Err)
}

func (e *CheckoutError) Unwrap() error { return e.Err }
