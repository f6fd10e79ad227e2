package fees

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const quoteKeyPrefix = "aw3econ:quote:"

// RedisQuoteStore keeps quotes in Redis. Each key expires on its own at
// ValidUntil plus retention, so no purge loop is needed.
type RedisQuoteStore struct {
	client    *redis.Client
	retention time.Duration
	now       func() time.Time
}

// NewRedisQuoteStore creates a Redis-backed quote store. Retention keeps
// expired quotes readable long enough to answer with a staleness error
// instead of not-found.
func NewRedisQuoteStore(client *redis.Client, retention time.Duration) *RedisQuoteStore {
	return &RedisQuoteStore{client: client, retention: retention, now: time.Now}
}

func quoteKey(id string) string { return quoteKeyPrefix + id }

func (r *RedisQuoteStore) Save(ctx context.Context, q *Quote) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("encode quote: %w", err)
	}
	ttl := q.Estimate.ValidUntil.Sub(r.now()) + r.retention
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, quoteKey(q.ID()), data, ttl).Err()
}

func (r *RedisQuoteStore) Get(ctx context.Context, id string) (*Quote, error) {
	data, err := r.client.Get(ctx, quoteKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrQuoteNotFound
	}
	if err != nil {
		return nil, err
	}
	var q Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, fmt.Errorf("decode quote %s: %w", id, err)
	}
	return &q, nil
}

// MarkAccepted updates the stored quote under WATCH so two concurrent
// accepts cannot both succeed.
func (r *RedisQuoteStore) MarkAccepted(ctx context.Context, id string, at time.Time) error {
	key := quoteKey(id)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrQuoteNotFound
		}
		if err != nil {
			return err
		}
		var q Quote
		if err := json.Unmarshal(data, &q); err != nil {
			return fmt.Errorf("decode quote %s: %w", id, err)
		}
		if q.AcceptedAt != nil {
			return ErrAlreadyAccepted
		}
		q.AcceptedAt = &at
		updated, err := json.Marshal(&q)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, updated, redis.KeepTTL)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrAlreadyAccepted
	}
	return err
}

// DeleteExpired is a no-op; Redis expires keys itself.
func (r *RedisQuoteStore) DeleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

// Ping checks connectivity for health reporting.
func (r *RedisQuoteStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
