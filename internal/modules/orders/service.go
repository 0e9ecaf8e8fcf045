package orders

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/platform/outbox"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/dbx"
)

const (
	EventCreated       = "order.created"
	EventStatusChanged = "order.status_changed"
)

// Service applies fulfilment-side status changes (ship, complete, cancel,
// refund). Payment-driven changes go through the payments reconciler.
type Service struct {
	db  *gorm.DB
	log *slog.Logger
	now func() time.Time
}

func NewService(db *gorm.DB, log *slog.Logger) *Service {
	return &Service{db: db, log: log, now: time.Now}
}

type TransitionInput struct {
	OrderID string
	Actor   string // who asked: "system", "ops:<user>", ...
	To      Status
	Note    string
}

func (s *Service) Transition(ctx context.Context, in TransitionInput) (Order, error) {
	if in.OrderID == "" || in.Actor == "" || !in.To.Valid() {
		return Order{}, ErrNotActionable
	}

	var out Order
	err := dbx.WithTxRetry(ctx, s.db, 3, func(tx *gorm.DB) error {
		var o Order

		// row lock
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&o, "id = ?", in.OrderID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		from := o.Status
		if err := o.TransitionTo(in.To); err != nil {
			return err
		}

		now := s.now().UTC()
		res := tx.Model(&Order{}).
			Where("id = ? AND status = ?", o.ID, from). // optimistic guard
			Updates(map[string]any{"status": o.Status, "updated_at": now})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return &TransitionError{From: from, To: in.To, Err: ErrInvalidTransition}
		}

		if err := RecordStatusChange(ctx, tx, o, from, in.Actor, in.Note, now); err != nil {
			return err
		}
		out = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	s.log.InfoContext(ctx, "order status changed",
		"order_id", out.ID, "order_number", out.OrderNumber, "to", out.Status, "actor", in.Actor)
	return out, nil
}

// StatusChangedPayload is the outbox body for order.status_changed.
type StatusChangedPayload struct {
	OrderID       string        `json:"order_id"`
	OrderNumber   string        `json:"order_number"`
	From          Status        `json:"from"`
	To            Status        `json:"to"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	Actor         string        `json:"actor"`
	At            time.Time     `json:"at"`
}

// StatusChangedMessage builds the outbox message for a status change.
func StatusChangedMessage(o Order, from Status, actor string, at time.Time) outbox.Message {
	return outbox.Message{
		AggregateType: "order",
		AggregateID:   o.ID,
		Type:          EventStatusChanged,
		Payload: StatusChangedPayload{
			OrderID:       o.ID,
			OrderNumber:   o.OrderNumber,
			From:          from,
			To:            o.Status,
			PaymentStatus: o.PaymentStatus,
			Actor:         actor,
			At:            at,
		},
	}
}

// CreatedPayload is the outbox body for order.created.
type CreatedPayload struct {
	OrderID        string    `json:"order_id"`
	OrderNumber    string    `json:"order_number"`
	CustomerID     string    `json:"customer_id"`
	Currency       string    `json:"currency"`
	SubtotalMinor  int64     `json:"subtotal_minor"`
	ShippingMinor  int64     `json:"shipping_minor"`
	TaxMinor       int64     `json:"tax_minor"`
	TotalMinor     int64     `json:"total_minor"`
	ShippingMethod string    `json:"shipping_method"`
	ItemCount      int       `json:"item_count"`
	CreatedAt      time.Time `json:"created_at"`
}

func CreatedMessage(o Order) outbox.Message {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return outbox.Message{
		AggregateType: "order",
		AggregateID:   o.ID,
		Type:          EventCreated,
		Payload: CreatedPayload{
			OrderID:        o.ID,
			OrderNumber:    o.OrderNumber,
			CustomerID:     o.CustomerID,
			Currency:       o.Currency,
			SubtotalMinor:  o.SubtotalMinor,
			ShippingMinor:  o.ShippingMinor,
			TaxMinor:       o.TaxMinor,
			TotalMinor:     o.TotalMinor,
			ShippingMethod: o.ShippingMethod,
			ItemCount:      n,
			CreatedAt:      o.CreatedAt,
		},
	}
}

// RecordStatusChange writes the audit row and the outbox event inside tx.
func RecordStatusChange(ctx context.Context, tx *gorm.DB, o Order, from Status, actor, note string, at time.Time) error {
	var notePtr *string
	if n := strings.TrimSpace(note); n != "" {
		notePtr = &n
	}
	ev := OrderEvent{
		ID:         uuid.NewString(),
		OrderID:    o.ID,
		Actor:      actor,
		FromStatus: from,
		ToStatus:   o.Status,
		Note:       notePtr,
		CreatedAt:  at,
	}
	if err := tx.WithContext(ctx).Create(&ev).Error; err != nil {
		return err
	}
	return outbox.Enqueue(ctx, tx, StatusChangedMessage(o, from, actor, at))
}
