package checkout

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/orders"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/payments"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/platform/outbox"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/dbx"
)

type GormOrderWriter struct {
	db       *gorm.DB
	attempts int
}

func NewGormOrderWriter(db *gorm.DB) *GormOrderWriter {
	return &GormOrderWriter{db: db, attempts: 3}
}

func (w *GormOrderWriter) CreateOrder(ctx context.Context, o *orders.Order, p *payments.Payment) error {
	return dbx.WithTxRetry(ctx, w.db, w.attempts, func(tx *gorm.DB) error {
		// items are inserted through the association
		if err := tx.Create(o).Error; err != nil {
			return err
		}
		if err := tx.Create(p).Error; err != nil {
			return err
		}
		return outbox.Enqueue(ctx, tx, orders.CreatedMessage(*o))
	})
}

func (w *GormOrderWriter) Attempts(ctx context.Context, orderID string) (orders.Order, []payments.Payment, error) {
	var o orders.Order
	err := w.db.WithContext(ctx).First(&o, "id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return orders.Order{}, nil, orders.ErrNotFound
	}
	if err != nil {
		return orders.Order{}, nil, err
	}
	var ps []payments.Payment
	if err := w.db.WithContext(ctx).Order("created_at ASC").Find(&ps, "order_id = ?", orderID).Error; err != nil {
		return orders.Order{}, nil, err
	}
	return o, ps, nil
}

// AddAttempt re-checks the order under a row lock, so two concurrent retries
// cannot both attach an attempt. Superseded attempts that are still open are
// closed as cancelled.
func (w *GormOrderWriter) AddAttempt(ctx context.Context, orderID string, p *payments.Payment, superseded []string) (orders.Order, error) {
	var out orders.Order
	err := dbx.WithTxRetry(ctx, w.db, w.attempts, func(tx *gorm.DB) error {
		var o orders.Order
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&o, "id = ?", orderID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return orders.ErrNotFound
		}
		if err != nil {
			return err
		}
		if !o.AwaitingRetry() {
			return ErrNotRetryable
		}

		if len(superseded) > 0 {
			closed := []string{
				string(payments.StatusSucceeded),
				string(payments.StatusFailed),
				string(payments.StatusCancelled),
			}
			if err := tx.Model(&payments.Payment{}).
				Where("order_id = ? AND provider_intent_id IN ? AND status NOT IN ?", orderID, superseded, closed).
				Updates(map[string]any{"status": string(payments.StatusCancelled), "failure_reason": "superseded"}).Error; err != nil {
				return err
			}
		}
		if err := tx.Create(p).Error; err != nil {
			return err
		}

		o.PaymentStatus = orders.PaymentPending
		if err := tx.Model(&o).Update("payment_status", o.PaymentStatus).Error; err != nil {
			return err
		}
		out = o
		return outbox.Enqueue(ctx, tx, payments.RetryMessage(o, *p))
	})
	return out, err
}
