// Package idempotency reserves client-supplied idempotency keys in Redis and
// stores the first response so replays get the same answer.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrInFlight = errors.New("idempotency: request with this key is in flight")
	ErrKeyReuse = errors.New("idempotency: key reused with a different request")
)

const inFlight = "__inflight__"

// Record is the stored response for a completed request.
type Record struct {
	Fingerprint string          `json:"fingerprint"`
	Status      int             `json:"status"`
	Body        json.RawMessage `json:"body"`
}

type Store struct {
	rdb     redis.Cmdable
	prefix  string
	ttl     time.Duration
	lockTTL time.Duration
}

func NewStore(rdb redis.Cmdable, prefix string, ttl time.Duration) *Store {
	return &Store{rdb: rdb, prefix: prefix, ttl: ttl, lockTTL: time.Minute}
}

func (s *Store) key(k string) string { return "idem:" + s.prefix + ":" + k }

// Begin reserves key. A nil record and nil error means the caller owns the
// key and must call Complete or Abort. A non-nil record is a finished replay.
func (s *Store) Begin(ctx context.Context, key, fingerprint string) (*Record, error) {
	ok, err := s.rdb.SetNX(ctx, s.key(key), inFlight+fingerprint, s.lockTTL).Result()
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}

	raw, err := s.rdb.Get(ctx, s.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; treat as in flight, client retries
		return nil, ErrInFlight
	}
	if err != nil {
		return nil, err
	}
	if len(raw) >= len(inFlight) && raw[:len(inFlight)] == inFlight {
		if raw[len(inFlight):] != fingerprint {
			return nil, ErrKeyReuse
		}
		return nil, ErrInFlight
	}

	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	if rec.Fingerprint != fingerprint {
		return nil, ErrKeyReuse
	}
	return &rec, nil
}

func (s *Store) Complete(ctx context.Context, key string, rec Record) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(key), b, s.ttl).Err()
}

// Abort releases the key so the client can retry with it.
func (s *Store) Abort(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, s.key(key)).Err()
}
