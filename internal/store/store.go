package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pittpv/mon-far-app/internal/domain"
	"github.com/pittpv/mon-far-app/internal/metrics"
	"github.com/pittpv/mon-far-app/internal/platform/config"
	"github.com/pittpv/mon-far-app/internal/platform/crypto"
	"github.com/pittpv/mon-far-app/internal/platform/retry"
)

// Open builds the configured record store, wrapped with delivery-token
// encryption and operation metrics. Remote backends are dialed with a
// short retry to ride out container startup ordering.
func Open(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (domain.RecordStore, error) {
	cipher, err := crypto.FromKey(cfg.TokenEncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("token encryption setup: %w", err)
	}

	backend, err := openBackend(ctx, cfg, clock)
	if err != nil {
		return nil, err
	}

	slog.Info("Record store ready", "backend", cfg.StoreBackend)
	return newInstrumentedStore(newTokenCipher(backend, cipher)), nil
}

func openBackend(ctx context.Context, cfg *config.Config, clock clockwork.Clock) (domain.RecordStore, error) {
	switch cfg.StoreBackend {
	case config.BackendMemory:
		return NewMemoryStore(clock), nil
	case config.BackendFile:
		return NewFileStore(cfg.StoreFilePath, clock)
	case config.BackendPostgres:
		return dialPostgres(ctx, cfg.DatabaseURL, clock)
	case config.BackendRedis:
		return dialRedis(ctx, cfg.RedisURL, clock)
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}

func dialPolicy(backend string, clock clockwork.Clock) retry.Policy {
	return retry.Policy{
		MaxAttempts:      5,
		InitialBackoff:   time.Second,
		RateLimitBackoff: 5 * time.Second,
		Clock:            clock,
		OnRetry: func(attempt int, err error, backoff time.Duration) {
			slog.Warn("Store connect failed, retrying",
				"backend", backend, "attempt", attempt, "backoff", backoff.String(), "error", err)
		},
	}
}

func dialPostgres(ctx context.Context, databaseURL string, clock clockwork.Clock) (domain.RecordStore, error) {
	ps, err := retry.Do(ctx, dialPolicy(config.BackendPostgres, clock), transientConnect,
		func() (*PostgresStore, error) {
			return NewPostgresStore(ctx, databaseURL, clock)
		})
	if err != nil {
		return nil, err
	}
	return ps, nil
}

func dialRedis(ctx context.Context, redisURL string, clock clockwork.Clock) (domain.RecordStore, error) {
	rs, err := NewRedisStore(redisURL, clock)
	if err != nil {
		return nil, err
	}

	err = retry.DoVoid(ctx, dialPolicy(config.BackendRedis, clock), transientConnect,
		func() error { return rs.Ping(ctx) })
	if err != nil {
		rs.Close()
		return nil, err
	}
	return rs, nil
}

func transientConnect(error) retry.Action { return retry.Retry }

// instrumentedStore records per-operation counters and latency for
// whatever backend it wraps.
type instrumentedStore struct {
	inner domain.RecordStore
}

func newInstrumentedStore(inner domain.RecordStore) *instrumentedStore {
	return &instrumentedStore{inner: inner}
}

func (s *instrumentedStore) Get(ctx context.Context, fid int64) (*domain.Subscription, error) {
	start := time.Now()
	sub, err := s.inner.Get(ctx, fid)
	observeStoreOp("get", start, err)
	return sub, err
}

func (s *instrumentedStore) Upsert(ctx context.Context, sub *domain.Subscription) error {
	start := time.Now()
	err := s.inner.Upsert(ctx, sub)
	observeStoreOp("upsert", start, err)
	return err
}

func (s *instrumentedStore) Delete(ctx context.Context, fid int64) error {
	start := time.Now()
	err := s.inner.Delete(ctx, fid)
	observeStoreOp("delete", start, err)
	return err
}

func (s *instrumentedStore) ListAll(ctx context.Context) ([]domain.Subscription, error) {
	start := time.Now()
	subs, err := s.inner.ListAll(ctx)
	observeStoreOp("list_all", start, err)
	return subs, err
}

func (s *instrumentedStore) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.inner.Ping(ctx)
	observeStoreOp("ping", start, err)
	return err
}

func (s *instrumentedStore) Close() error { return s.inner.Close() }

func observeStoreOp(operation string, start time.Time, err error) {
	status := "ok"
	switch {
	case errors.Is(err, domain.ErrSubscriptionNotFound):
		status = "not_found"
	case err != nil:
		status = "error"
	}

	metrics.StoreOpsTotal.WithLabelValues(operation, status).Inc()
	metrics.StoreOpDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
