package orders

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"time"

	"gorm.io/datatypes"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/money"
)

type Address struct {
	Line1      string `json:"line1" validate:"required,max=255"`
	Line2      string `json:"line2,omitempty" validate:"max=255"`
	City       string `json:"city" validate:"required,max=120"`
	Region     string `json:"region,omitempty" validate:"max=120"`
	PostalCode string `json:"postal_code" validate:"required,postcode"`
	Country    string `json:"country" validate:"required,len=2,alpha"`
}

type Order struct {
	ID             string        `gorm:"type:char(36);primaryKey"`
	OrderNumber    string        `gorm:"type:varchar(40);uniqueIndex"`
	CustomerID     string        `gorm:"type:char(36);index"`
	GuestTokenHash []byte        `gorm:"type:binary(32)"`
	Status         Status        `gorm:"type:varchar(32);index"`
	PaymentStatus  PaymentStatus `gorm:"type:varchar(32)"`
	Currency       string        `gorm:"type:char(3)"`
	SubtotalMinor  int64
	ShippingMinor  int64
	TaxMinor       int64
	TotalMinor     int64
	ShippingMethod string `gorm:"type:varchar(32)"`

	BillingAddress  datatypes.JSONType[Address]
	ShippingAddress datatypes.JSONType[Address]

	PaidAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}

func (Order) TableName() string { return "orders" }

func (o Order) Subtotal() money.Money { return money.FromMinorUnits(o.SubtotalMinor, o.Currency) }
func (o Order) Shipping() money.Money { return money.FromMinorUnits(o.ShippingMinor, o.Currency) }
func (o Order) Tax() money.Money      { return money.FromMinorUnits(o.TaxMinor, o.Currency) }
func (o Order) Total() money.Money    { return money.FromMinorUnits(o.TotalMinor, o.Currency) }

// TransitionTo moves the order along the lifecycle table. Entering
// processing or beyond requires a succeeded payment.
func (o *Order) TransitionTo(to Status) error {
	if !o.Status.CanTransitionTo(to) {
		return &TransitionError{From: o.Status, To: to, Err: ErrInvalidTransition}
	}
	if to.requiresSettledPayment() && o.PaymentStatus != PaymentSucceeded {
		return &TransitionError{From: o.Status, To: to, Err: ErrPaymentNotSettled}
	}
	o.Status = to
	return nil
}

// MarkPaid records the first successful payment and advances a pending order
// to processing. It reports whether the order status changed.
func (o *Order) MarkPaid(at time.Time) (bool, error) {
	o.PaymentStatus = PaymentSucceeded
	if o.PaidAt == nil {
		t := at
		o.PaidAt = &t
	}
	if o.Status != StatusPendingPayment {
		return false, nil
	}
	if err := o.TransitionTo(StatusProcessing); err != nil {
		return false, err
	}
	return true, nil
}

// AwaitingRetry reports whether the last payment attempt was declined and
// the order can still be paid with a new one.
func (o Order) AwaitingRetry() bool {
	return o.Status == StatusPendingPayment && o.PaymentStatus == PaymentFailed
}

type OrderItem struct {
	ID             string `gorm:"type:char(36);primaryKey"`
	OrderID        string `gorm:"type:char(36);index"`
	VariantID      string `gorm:"type:char(36)"`
	ProductName    string `gorm:"type:varchar(255)"`
	SKU            string `gorm:"type:varchar(64)"`
	Quantity       int
	UnitPriceMinor int64
	LineTotalMinor int64
	Currency       string `gorm:"type:char(3)"`
	CreatedAt      time.Time
}

func (OrderItem) TableName() string { return "order_items" }

func (i OrderItem) UnitPrice() money.Money { return money.FromMinorUnits(i.UnitPriceMinor, i.Currency) }
func (i OrderItem) LineTotal() money.Money { return money.FromMinorUnits(i.LineTotalMinor, i.Currency) }

// OrderEvent is the audit trail of status changes.
type OrderEvent struct {
	ID         string  `gorm:"type:char(36);primaryKey"`
	OrderID    string  `gorm:"type:char(36);index"`
	Actor      string  `gorm:"type:varchar(64)"`
	FromStatus Status  `gorm:"type:varchar(32)"`
	ToStatus   Status  `gorm:"type:varchar(32)"`
	Note       *string `gorm:"type:varchar(500)"`
	CreatedAt  time.Time
}

func (OrderEvent) TableName() string { return "order_events" }

// NewGuestToken returns the raw token for the customer and the hash to store.
func NewGuestToken() (token string, hash []byte, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", nil, err
	}
	token = base64.RawURLEncoding.EncodeToString(b)
	return token, HashGuestToken(token), nil
}

func HashGuestToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

func (o Order) GuestTokenMatches(token string) bool {
	if token == "" || len(o.GuestTokenHash) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(o.GuestTokenHash, HashGuestToken(token)) == 1
}
