package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"

	"github.com/pittpv/mon-far-app/internal/domain"
)

const subscriptionKeyPrefix = "sub:"

// RedisStore persists each subscription as one JSON value under
// "sub:<fid>". Listing walks the keyspace with SCAN, which stays cheap
// at this service's user counts.
type RedisStore struct {
	rdb   *redis.Client
	clock clockwork.Clock
}

func NewRedisStore(redisURL string, clock clockwork.Clock) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	return &RedisStore{rdb: redis.NewClient(opts), clock: clock}, nil
}

func subscriptionKey(fid int64) string {
	return subscriptionKeyPrefix + strconv.FormatInt(fid, 10)
}

func (s *RedisStore) Get(ctx context.Context, fid int64) (*domain.Subscription, error) {
	data, err := s.rdb.Get(ctx, subscriptionKey(fid)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}

	var sub domain.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, fmt.Errorf("failed to decode subscription for fid %d: %w", fid, err)
	}
	return &sub, nil
}

func (s *RedisStore) Upsert(ctx context.Context, sub *domain.Subscription) error {
	stored := copySubscription(sub)
	if existing, err := s.Get(ctx, sub.FID); err == nil {
		stored.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, domain.ErrSubscriptionNotFound) {
		return err
	} else if stored.CreatedAt == 0 {
		stored.CreatedAt = s.clock.Now().Unix()
	}

	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode subscription: %w", err)
	}

	if err := s.rdb.Set(ctx, subscriptionKey(sub.FID), payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to store subscription: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, fid int64) error {
	if err := s.rdb.Del(ctx, subscriptionKey(fid)).Err(); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

func (s *RedisStore) ListAll(ctx context.Context) ([]domain.Subscription, error) {
	var subs []domain.Subscription
	var cursor uint64

	for {
		// Check context cancellation/timeout before each scan iteration
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("scan cancelled after %d subscriptions: %w", len(subs), ctx.Err())
		default:
		}

		keys, nextCursor, err := s.rdb.Scan(ctx, cursor, subscriptionKeyPrefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}

		for _, key := range keys {
			data, err := s.rdb.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue // removed between scan and read
			}
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", key, err)
			}

			var sub domain.Subscription
			if err := json.Unmarshal(data, &sub); err != nil {
				return nil, fmt.Errorf("failed to decode %s: %w", key, err)
			}
			subs = append(subs, sub)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return subs, nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
