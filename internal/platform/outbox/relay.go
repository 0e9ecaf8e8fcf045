package outbox

import (
	"context"
	"log/slog"
	"time"
)

// Store leases pending rows to one relay at a time.
type Store interface {
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
}

type RelayConfig struct {
	ID        string
	Interval  time.Duration
	BatchSize int
	Lease     time.Duration
}

// Relay publishes committed order and payment events to the broker.
type Relay struct {
	store    Store
	dispatch *Dispatcher
	cfg      RelayConfig
	log      *slog.Logger
}

func NewRelay(store Store, dispatch *Dispatcher, cfg RelayConfig, log *slog.Logger) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 30 * time.Second
	}
	return &Relay{store: store, dispatch: dispatch, cfg: cfg, log: log.With("relay_id", cfg.ID)}
}

// Run polls until ctx is cancelled. A full batch is followed by another
// one straight away so a backlog drains without waiting for the ticker.
func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.cfg.Interval)
	defer t.Stop()

	r.log.InfoContext(ctx, "event relay started", "interval", r.cfg.Interval.String(), "batch_size", r.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			r.log.InfoContext(context.WithoutCancel(ctx), "event relay stopped")
			return nil
		case <-t.C:
		}
		for ctx.Err() == nil {
			got, err := r.relay(ctx)
			if err != nil {
				r.log.ErrorContext(ctx, "event relay batch failed", "err", err)
				break
			}
			if got < r.cfg.BatchSize {
				break
			}
		}
	}
}

// RunOnce relays a single batch and returns how many events were sent.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	events, err := r.store.LockBatch(ctx, r.cfg.ID, r.cfg.BatchSize, r.cfg.Lease)
	if err != nil {
		return 0, err
	}
	return r.publish(ctx, events)
}

func (r *Relay) relay(ctx context.Context) (int, error) {
	events, err := r.store.LockBatch(ctx, r.cfg.ID, r.cfg.BatchSize, r.cfg.Lease)
	if err != nil {
		return 0, err
	}
	_, err = r.publish(ctx, events)
	return len(events), err
}

// publish sends events one by one. A failed event is released for a later
// attempt and does not hold back the rest of the batch.
func (r *Relay) publish(ctx context.Context, events []Event) (int, error) {
	if len(events) == 0 {
		return 0, nil
	}

	sent := make([]int64, 0, len(events))
	failed := 0
	for _, ev := range events {
		if err := r.dispatch.Dispatch(ctx, ev); err != nil {
			failed++
			if mErr := r.store.MarkFailed(ctx, ev.ID, err.Error()); mErr != nil {
				r.log.ErrorContext(ctx, "outbox event not released", "event_id", ev.EventID, "event_type", ev.Type, "err", mErr)
			}
			continue
		}
		sent = append(sent, ev.ID)
	}

	if len(sent) > 0 {
		if err := r.store.MarkSent(ctx, sent); err != nil {
			// the lease expires and the batch is published again
			return 0, err
		}
	}
	r.log.DebugContext(ctx, "outbox batch relayed", "sent", len(sent), "failed", failed)
	return len(sent), nil
}
