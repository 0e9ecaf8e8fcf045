package payments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CNRP/ecommerce-storefront-sub001/internal/modules/orders"
	"github.com/CNRP/ecommerce-storefront-sub001/internal/storage"
)

// EventLog records every received provider event once.
type EventLog interface {
	// Record stores the event if unseen. processed reports whether an
	// earlier delivery was already handled successfully.
	Record(ctx context.Context, provider string, ev Event, raw []byte) (processed bool, err error)
	MarkProcessed(ctx context.Context, provider, eventID string) error
	MarkFailed(ctx context.Context, provider, eventID, msg string) error
}

type WebhookService struct {
	provider string
	secret   string
	verifier *Verifier
	rec      *Reconciler
	events   EventLog
	archive  storage.Storage
	logger   *slog.Logger
	now      func() time.Time
}

type WebhookConfig struct {
	Provider string
	Secret   string
}

func NewWebhookService(cfg WebhookConfig, verifier *Verifier, rec *Reconciler, events EventLog, archive storage.Storage, logger *slog.Logger) *WebhookService {
	if cfg.Provider == "" {
		cfg.Provider = ProviderStripe
	}
	if archive == nil {
		archive = storage.Nop{}
	}
	return &WebhookService{
		provider: cfg.Provider,
		secret:   cfg.Secret,
		verifier: verifier,
		rec:      rec,
		events:   events,
		archive:  archive,
		logger:   logger,
		now:      time.Now,
	}
}

// Handle verifies, records and applies one webhook delivery. A nil error
// means the provider should get 2xx; SignatureError and ErrMalformedEvent
// are client errors; anything else should make the provider retry.
func (s *WebhookService) Handle(ctx context.Context, rawBody []byte, signature string) (Result, error) {
	if err := s.verifier.Verify(rawBody, signature, s.secret); err != nil {
		s.logger.WarnContext(ctx, "webhook signature rejected", "provider", s.provider, "err", err)
		return Result{}, err
	}

	ev, err := ParseEvent(rawBody)
	if err != nil {
		return Result{}, err
	}
	log := s.logger.With("provider", s.provider, "event_id", ev.ID, "type", ev.Type)

	processed, err := s.events.Record(ctx, s.provider, ev, rawBody)
	if err != nil {
		log.ErrorContext(ctx, "failed to persist provider event", "err", err)
		return Result{}, err
	}
	if processed {
		log.InfoContext(ctx, "webhook event deduplicated")
		return Result{Outcome: OutcomeDuplicate}, nil
	}

	s.archiveBody(ctx, ev, rawBody)

	res, applyErr := s.rec.HandleEvent(ctx, ev)
	if applyErr != nil {
		msg := truncate(applyErr.Error(), 250)
		if err := s.events.MarkFailed(ctx, s.provider, ev.ID, msg); err != nil {
			log.ErrorContext(ctx, "failed to mark provider event", "err", err)
		}
		// unknown order: retrying will not help, acknowledge
		if errors.Is(applyErr, orders.ErrNotFound) || errors.Is(applyErr, ErrIntentOrderMismatch) {
			log.WarnContext(ctx, "webhook event for unknown order acknowledged", "error", msg)
			return Result{Outcome: OutcomeIgnored}, nil
		}
		log.ErrorContext(ctx, "webhook event apply failed", "error", msg)
		return Result{}, applyErr
	}

	if err := s.events.MarkProcessed(ctx, s.provider, ev.ID); err != nil {
		// the reconcile is committed; a redelivery will be a no-op
		log.ErrorContext(ctx, "failed to mark provider event processed", "err", err)
	}

	log.InfoContext(ctx, "webhook event processed", "outcome", res.Outcome)
	return res, nil
}

// archiveBody is best effort; failures are logged and never block processing.
func (s *WebhookService) archiveBody(ctx context.Context, ev Event, raw []byte) {
	key := fmt.Sprintf("webhooks/%s/%s/%s.json", s.provider, s.now().UTC().Format("2006/01/02"), ev.ID)
	if _, err := s.archive.Put(ctx, bytes.NewReader(raw), storage.PutInput{
		Key:         key,
		ContentType: "application/json",
		Size:        int64(len(raw)),
	}); err != nil {
		s.logger.WarnContext(ctx, "webhook archive failed", "event_id", ev.ID, "key", key, "err", err)
	}
}
