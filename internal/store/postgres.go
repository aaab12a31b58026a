package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/tern/v2/migrate"
	"github.com/jonboulle/clockwork"

	"github.com/pittpv/mon-far-app/internal/domain"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	// Advisory lock held while migrating, so replicas starting at the
	// same time apply the schema one at a time. 0x6d6f6e666172 spells
	// "monfar".
	migrationLockID             = 0x6d6f6e666172
	migrationLockReleaseTimeout = 5 * time.Second
)

// PostgresStore persists each subscription as one row, with its
// cooldown records in a JSONB column. Writes never touch created_at
// after the first insert.
type PostgresStore struct {
	pool  *pgxpool.Pool
	clock clockwork.Clock
}

func NewPostgresStore(ctx context.Context, databaseURL string, clock clockwork.Clock) (*PostgresStore, error) {
	pool, err := connectPostgres(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := runMigrationsWithLock(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, clock: clock}, nil
}

func connectPostgres(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	slog.Info("Postgres connected",
		"sslmode", describeSSLMode(databaseURL),
		"min_conns", poolCfg.MinConns, "max_conns", poolCfg.MaxConns)
	return pool, nil
}

// describeSSLMode is for the startup log only; the config layer has
// already rejected insecure modes in production.
func describeSSLMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "unknown"
	}
	if mode := strings.ToLower(u.Query().Get("sslmode")); mode != "" {
		return mode
	}
	return "driver default"
}

func runMigrationsWithLock(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire migration connection: %w", err)
	}
	defer conn.Release()

	release, err := migrationLock(ctx, conn.Conn(), migrationLockReleaseTimeout)
	if err != nil {
		return err
	}
	defer release()

	slog.Info("Applying database migrations")
	return runMigrations(ctx, conn.Conn())
}

func runMigrations(ctx context.Context, conn *pgx.Conn) error {
	migrationFS, err := fs.Sub(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("failed to open embedded migrations: %w", err)
	}

	migrator, err := migrate.NewMigrator(ctx, conn, "public.schema_version")
	if err != nil {
		return fmt.Errorf("failed to init migrator: %w", err)
	}

	if err := migrator.LoadMigrations(migrationFS); err != nil {
		return fmt.Errorf("failed to load migration files: %w", err)
	}

	currentVersion, err := migrator.GetCurrentVersion(ctx)
	if err != nil {
		// A fresh database has no schema_version table yet.
		slog.Debug("No schema version found", "error", err)
	} else {
		slog.Info("Schema version", "version", currentVersion)
	}

	if err := migrator.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

// migrationLock takes the advisory lock and returns its release func.
// Release runs on a fresh context with its own timeout, so a cancelled
// startup context cannot leak the lock.
func migrationLock(ctx context.Context, conn *pgx.Conn, releaseTimeout time.Duration) (func(), error) {
	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockID); err != nil {
		return nil, fmt.Errorf("failed to take migration lock: %w", err)
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()

		if _, err := conn.Exec(ctx, "SELECT pg_advisory_unlock($1)", migrationLockID); err != nil {
			slog.Warn("Failed to release migration lock", "error", err)
		}
	}
	return release, nil
}

func (s *PostgresStore) Get(ctx context.Context, fid int64) (*domain.Subscription, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT fid, token, endpoint, records, created_at FROM subscriptions WHERE fid = $1`, fid)

	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, sub *domain.Subscription) error {
	records := sub.Records
	if records == nil {
		records = []domain.CooldownRecord{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}

	createdAt := sub.CreatedAt
	if createdAt == 0 {
		createdAt = s.clock.Now().Unix()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO subscriptions (fid, token, endpoint, records, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (fid) DO UPDATE
		SET token = EXCLUDED.token, endpoint = EXCLUDED.endpoint, records = EXCLUDED.records`,
		sub.FID, sub.Token, sub.URL, payload, createdAt)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, fid int64) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM subscriptions WHERE fid = $1`, fid); err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAll(ctx context.Context) ([]domain.Subscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT fid, token, endpoint, records, created_at FROM subscriptions ORDER BY fid`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	return subs, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*domain.Subscription, error) {
	var sub domain.Subscription
	var records []byte
	if err := row.Scan(&sub.FID, &sub.Token, &sub.URL, &records, &sub.CreatedAt); err != nil {
		return nil, err
	}
	if len(records) > 0 {
		if err := json.Unmarshal(records, &sub.Records); err != nil {
			return nil, fmt.Errorf("failed to decode records for fid %d: %w", sub.FID, err)
		}
	}
	return &sub, nil
}
