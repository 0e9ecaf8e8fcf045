package cart

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmpty         = errors.New("cart is empty")
	ErrMixedCurrency = errors.New("cart contains multiple currencies")
)

// UnavailableError lists variants that are unknown or no longer sold.
type UnavailableError struct {
	VariantIDs []string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("variants unavailable: %s", strings.Join(e.VariantIDs, ","))
}
