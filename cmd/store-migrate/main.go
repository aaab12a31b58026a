package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pittpv/mon-far-app/internal/domain"
	"github.com/pittpv/mon-far-app/internal/platform/config"
	"github.com/pittpv/mon-far-app/internal/store"
)

const openTimeout = 30 * time.Second

func main() {
	var (
		from     = flag.String("from", "", "Source backend: file, postgres or redis")
		to       = flag.String("to", "", "Destination backend: file, postgres or redis")
		filePath = flag.String("file", os.Getenv("STORE_FILE_PATH"), "Store file path (or set STORE_FILE_PATH env)")
		dbURL    = flag.String("database", os.Getenv("DATABASE_URL"), "Postgres URL (or set DATABASE_URL env)")
		redisURL = flag.String("redis", os.Getenv("REDIS_URL"), "Redis URL (or set REDIS_URL env)")
		tokenKey = flag.String("token-key", os.Getenv("TOKEN_ENCRYPTION_KEY"), "Hex AES key for delivery tokens at rest (or set TOKEN_ENCRYPTION_KEY env)")
		dryRun   = flag.Bool("dry-run", false, "Dry run mode (don't write to the destination)")
		verbose  = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *from == "" || *to == "" {
		log.Fatal("Both --from and --to backends are required")
	}
	if *from == *to {
		log.Fatal("Source and destination backends must differ")
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	clock := clockwork.NewRealClock()
	ctx, cancel := context.WithTimeout(context.Background(), openTimeout)
	defer cancel()

	src, err := openBackend(ctx, *from, *filePath, *dbURL, *redisURL, *tokenKey, clock)
	if err != nil {
		log.Fatalf("Failed to open source store: %v", err)
	}
	defer func() { _ = src.Close() }()

	dst, err := openBackend(ctx, *to, *filePath, *dbURL, *redisURL, *tokenKey, clock)
	if err != nil {
		log.Fatalf("Failed to open destination store: %v", err)
	}
	defer func() { _ = dst.Close() }()

	if err := copySubscriptions(context.Background(), src, dst, *dryRun); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	slog.Info("Migration complete")
}

// openBackend builds a minimal store config for one side of the copy.
// Both sides share the connection flags and the token key, so tokens
// are decrypted from the source and re-encrypted into the destination
// transparently.
func openBackend(ctx context.Context, backend, filePath, dbURL, redisURL, tokenKey string, clock clockwork.Clock) (domain.RecordStore, error) {
	switch backend {
	case config.BackendFile, config.BackendPostgres, config.BackendRedis:
	case config.BackendMemory:
		return nil, fmt.Errorf("memory backend holds no persisted data to migrate")
	default:
		return nil, fmt.Errorf("unsupported backend %q", backend)
	}

	cfg := &config.Config{
		StoreBackend:       backend,
		StoreFilePath:      filePath,
		DatabaseURL:        dbURL,
		RedisURL:           redisURL,
		TokenEncryptionKey: tokenKey,
	}
	return store.Open(ctx, cfg, clock)
}

func copySubscriptions(ctx context.Context, src, dst domain.RecordStore, dryRun bool) error {
	start := time.Now()

	slog.Info("Starting migration", "dry_run", dryRun)

	subs, err := src.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to list source subscriptions: %w", err)
	}

	var copied, records int
	for _, sub := range subs {
		records += len(sub.Records)

		if !dryRun {
			// Upsert preserves the source CreatedAt on first write
			if err := dst.Upsert(ctx, &sub); err != nil {
				return fmt.Errorf("failed to copy subscription for fid %d: %w", sub.FID, err)
			}
		}

		slog.Debug("Copied subscription",
			"fid", sub.FID,
			"records", len(sub.Records),
			"has_target", sub.HasTarget())
		copied++
	}

	duration := time.Since(start)
	slog.Info("Migration summary",
		"subscriptions", copied,
		"records", records,
		"duration_ms", duration.Milliseconds())

	// Verify destination size
	if !dryRun {
		after, err := dst.ListAll(ctx)
		if err != nil {
			return fmt.Errorf("destination verification failed: %w", err)
		}
		slog.Info("Destination verification", "size", len(after), "copied", copied)
		if len(after) < copied {
			slog.Warn("Destination holds fewer subscriptions than were copied",
				"expected", copied,
				"actual", len(after))
		}
	}

	return nil
}
