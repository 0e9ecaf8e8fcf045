package payments

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/money"
)

// ProviderPayload is the part of a provider object the reconciler reads,
// plus the raw JSON kept for audit.
type ProviderPayload struct {
	Object          string          `json:"object,omitempty"`
	IntentID        string          `json:"intent_id,omitempty"`
	Status          string          `json:"status,omitempty"`
	Amount          int64           `json:"amount,omitempty"`
	AmountReceived  int64           `json:"amount_received,omitempty"`
	Currency        string          `json:"currency,omitempty"`
	PaymentMethodID string          `json:"payment_method_id,omitempty"`
	FailureCode     string          `json:"failure_code,omitempty"`
	FailureMessage  string          `json:"failure_message,omitempty"`
	EventID         string          `json:"event_id,omitempty"`
	EventType       string          `json:"event_type,omitempty"`
	Raw             json.RawMessage `json:"raw,omitempty"`
}

type Payment struct {
	ID                  string  `gorm:"type:char(36);primaryKey"`
	OrderID             string  `gorm:"type:char(36);not null;index"`
	Provider            string  `gorm:"type:varchar(32);not null"`
	ProviderIntentID    string  `gorm:"type:varchar(128);not null;uniqueIndex"`
	PaymentMethodID     *string `gorm:"type:varchar(128)"`
	Type                Type    `gorm:"type:varchar(16);not null"`
	Status              Status  `gorm:"type:varchar(32);not null"`
	AmountMinor         int64   `gorm:"not null"`
	AmountReceivedMinor *int64
	Currency            string `gorm:"type:char(3);not null"`
	Payload             datatypes.JSONType[ProviderPayload]
	ProcessedAt         *time.Time
	FailureReason       *string `gorm:"type:varchar(128)"`
	FailureMessage      *string `gorm:"type:varchar(500)"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (Payment) TableName() string { return "payments" }

func (p Payment) Amount() money.Money { return money.FromMinorUnits(p.AmountMinor, p.Currency) }

// NewAttempt builds the payment row for a freshly created intent. A brand
// new intent is never terminal; if the provider says otherwise the row
// starts at processing and the reconciler applies the real outcome.
func NewAttempt(orderID, provider string, amount money.Money, in Intent) Payment {
	status := in.Status
	if !status.Valid() || status.Terminal() {
		status = StatusProcessing
	}
	p := Payment{
		ID:               uuid.NewString(),
		OrderID:          orderID,
		Provider:         provider,
		ProviderIntentID: in.ID,
		Type:             TypePayment,
		Status:           status,
		AmountMinor:      amount.MinorUnits(),
		Currency:         amount.Currency(),
		Payload:          datatypes.NewJSONType(in.Payload()),
	}
	if in.PaymentMethodID != "" {
		pm := in.PaymentMethodID
		p.PaymentMethodID = &pm
	}
	return p
}
