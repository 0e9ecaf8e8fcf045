package outbox

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore leases pending rows with SELECT ... FOR UPDATE SKIP LOCKED so
// several relays can run side by side.
type GormStore struct {
	db         *gorm.DB
	maxRetries int
	now        func() time.Time
}

func NewGormStore(db *gorm.DB, maxRetries int) *GormStore {
	if maxRetries < 1 {
		maxRetries = 10
	}
	return &GormStore{db: db, maxRetries: maxRetries, now: time.Now}
}

func (s *GormStore) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error) {
	var events []Event
	now := s.now().UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? OR (status = ? AND lease_until < ?)", StatusPending, StatusInProgress, now).
			Order("id ASC").
			Limit(batchSize).
			Find(&events).Error; err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}

		ids := make([]int64, 0, len(events))
		for _, ev := range events {
			ids = append(ids, ev.ID)
		}
		return tx.Model(&Event{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":      StatusInProgress,
				"relay_id":    relayID,
				"lease_until": now.Add(lease),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (s *GormStore) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(&Event{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"status":      StatusSent,
			"sent_at":     s.now().UTC(),
			"lease_until": nil,
		}).Error
}

// MarkFailed puts the event back in the queue until maxRetries is reached.
func (s *GormStore) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	if len(errMsg) > 2000 {
		errMsg = errMsg[:2000]
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ev Event
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "retry_count").
			First(&ev, "id = ?", id).Error; err != nil {
			return err
		}
		retries := ev.RetryCount + 1
		status := StatusPending
		if retries >= s.maxRetries {
			status = StatusFailed
		}
		return tx.Model(&Event{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"status":      status,
				"retry_count": retries,
				"last_error":  errMsg,
				"lease_until": nil,
			}).Error
	})
}
