// Package outbox stores domain events in the same transaction as the state
// change that produced them and relays them to Kafka afterwards.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/platform/tracing"
)

var ErrInvalidMessage = errors.New("outbox: message needs an aggregate id and a type")

// Message is an event as the order and payment code describes it. The
// aggregate ID becomes the Kafka key, so all events of one order land on
// the same partition in commit order.
type Message struct {
	AggregateType string
	AggregateID   string
	Type          string
	Payload       any
}

// Enqueue stores msg through tx. Nothing is published unless tx commits.
func Enqueue(ctx context.Context, tx *gorm.DB, msg Message) error {
	ev, err := NewEvent(ctx, msg)
	if err != nil {
		return err
	}
	return tx.WithContext(ctx).Create(&ev).Error
}

func NewEvent(ctx context.Context, msg Message) (Event, error) {
	if msg.AggregateID == "" || msg.Type == "" {
		return Event{}, ErrInvalidMessage
	}
	body, err := json.Marshal(msg.Payload)
	if err != nil {
		return Event{}, fmt.Errorf("outbox: encode %s payload: %w", msg.Type, err)
	}
	return Event{
		EventID:       uuid.NewString(),
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		Type:          msg.Type,
		Payload:       datatypes.JSON(body),
		Traceparent:   tracing.Traceparent(ctx),
		Status:        StatusPending,
	}, nil
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// Event is a row of outbox_events. ID orders rows by commit; EventID is the
// consumer-facing dedupe key.
type Event struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	EventID       string `gorm:"type:char(36);uniqueIndex"`
	AggregateType string `gorm:"type:varchar(32)"`
	AggregateID   string `gorm:"type:varchar(64);index"`
	Type          string `gorm:"type:varchar(64)"`
	Payload       datatypes.JSON
	Traceparent   string `gorm:"type:varchar(64)"`
	Status        Status `gorm:"type:varchar(16);index"`
	RelayID       *string
	LeaseUntil    *time.Time
	RetryCount    int
	LastError     *string `gorm:"type:text"`
	CreatedAt     time.Time
	SentAt        *time.Time
}

func (Event) TableName() string { return "outbox_events" }
