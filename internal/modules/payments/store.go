package payments

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/orders"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/platform/outbox"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/shared/dbx"
)

type GormStore struct {
	db       *gorm.DB
	attempts int
}

func NewGormStore(db *gorm.DB) *GormStore { return &GormStore{db: db, attempts: 3} }

func (s *GormStore) WithOrderLock(ctx context.Context, orderID string, fn func(ctx context.Context, tx Tx, o *orders.Order) error) error {
	return dbx.WithTxRetry(ctx, s.db, s.attempts, func(tx *gorm.DB) error {
		var o orders.Order
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&o, "id = ?", orderID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return orders.ErrNotFound
		}
		if err != nil {
			return err
		}
		return fn(ctx, gormTx{tx: tx}, &o)
	})
}

func (s *GormStore) FindOrderIDByIntent(ctx context.Context, intentID string) (string, error) {
	var ids []string
	if err := s.db.WithContext(ctx).Model(&Payment{}).
		Where("provider_intent_id = ?", intentID).
		Limit(1).
		Pluck("order_id", &ids).Error; err != nil {
		return "", err
	}
	if len(ids) == 0 {
		return "", orders.ErrNotFound
	}
	return ids[0], nil
}

// ListByOrder returns the order's payment attempts, oldest first.
func (s *GormStore) ListByOrder(ctx context.Context, orderID string) ([]Payment, error) {
	var out []Payment
	err := s.db.WithContext(ctx).Order("created_at ASC").Find(&out, "order_id = ?", orderID).Error
	return out, err
}

type gormTx struct{ tx *gorm.DB }

func (t gormTx) PaymentByIntent(ctx context.Context, intentID string) (*Payment, error) {
	var p Payment
	err := t.tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&p, "provider_intent_id = ?", intentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (t gormTx) SavePayment(ctx context.Context, p *Payment, isNew bool) error {
	if isNew {
		return t.tx.WithContext(ctx).Create(p).Error
	}
	return t.tx.WithContext(ctx).Save(p).Error
}

func (t gormTx) SaveOrder(ctx context.Context, o *orders.Order) error {
	return t.tx.WithContext(ctx).Model(&orders.Order{}).
		Where("id = ?", o.ID).
		Updates(map[string]any{
			"status":         o.Status,
			"payment_status": o.PaymentStatus,
			"paid_at":        o.PaidAt,
			"updated_at":     time.Now().UTC(),
		}).Error
}

func (t gormTx) RecordStatusChange(ctx context.Context, o orders.Order, from orders.Status, actor string, at time.Time) error {
	return orders.RecordStatusChange(ctx, t.tx, o, from, actor, "", at)
}

func (t gormTx) Emit(ctx context.Context, msg outbox.Message) error {
	return outbox.Enqueue(ctx, t.tx, msg)
}

// ProviderEvent is one received webhook event, unique per provider+event id.
type ProviderEvent struct {
	ID          string         `gorm:"type:char(36);primaryKey"`
	Provider    string         `gorm:"type:varchar(64);not null;uniqueIndex:ux_provider_events_provider_event,priority:1"`
	EventID     string         `gorm:"type:varchar(128);not null;uniqueIndex:ux_provider_events_provider_event,priority:2"`
	EventType   string         `gorm:"type:varchar(64);not null"`
	PayloadJSON datatypes.JSON `gorm:"type:json;not null"`

	ReceivedAt   time.Time  `gorm:"type:datetime(3);not null"`
	ProcessedAt  *time.Time `gorm:"type:datetime(3)"`
	ProcessError *string    `gorm:"type:varchar(255)"`
	Attempts     int        `gorm:"not null;default:1"`
}

func (ProviderEvent) TableName() string { return "provider_events" }

type GormEventLog struct{ db *gorm.DB }

func NewGormEventLog(db *gorm.DB) *GormEventLog { return &GormEventLog{db: db} }

func (l *GormEventLog) Record(ctx context.Context, provider string, ev Event, raw []byte) (bool, error) {
	payload := raw
	if !json.Valid(payload) {
		payload = []byte("{}")
	}
	pe := ProviderEvent{
		ID:          uuid.NewString(),
		Provider:    provider,
		EventID:     ev.ID,
		EventType:   ev.Type,
		PayloadJSON: datatypes.JSON(payload),
		ReceivedAt:  time.Now().UTC(),
		Attempts:    1,
	}

	// dedupe: unique(provider,event_id)
	err := l.db.WithContext(ctx).Create(&pe).Error
	if err == nil {
		return false, nil
	}
	if !dbx.IsDuplicate(err) {
		return false, err
	}

	var existing ProviderEvent
	if err := l.db.WithContext(ctx).
		First(&existing, "provider = ? AND event_id = ?", provider, ev.ID).Error; err != nil {
		return false, err
	}
	if existing.ProcessedAt != nil {
		return true, nil
	}
	if err := l.db.WithContext(ctx).Model(&ProviderEvent{}).
		Where("id = ?", existing.ID).
		UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error; err != nil {
		return false, err
	}
	return false, nil
}

func (l *GormEventLog) MarkProcessed(ctx context.Context, provider, eventID string) error {
	now := time.Now().UTC()
	return l.db.WithContext(ctx).Model(&ProviderEvent{}).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Updates(map[string]any{"processed_at": &now, "process_error": nil}).Error
}

func (l *GormEventLog) MarkFailed(ctx context.Context, provider, eventID, msg string) error {
	msg = truncate(msg, 250)
	return l.db.WithContext(ctx).Model(&ProviderEvent{}).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Updates(map[string]any{"process_error": msg}).Error
}
