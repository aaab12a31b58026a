package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

// Store backend selectors for StoreBackend.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	StoreBackend  string `env:"STORE_BACKEND" default:"memory"`
	StoreFilePath string `env:"STORE_FILE_PATH" default:"data/subscriptions.json"`
	DatabaseURL   string `env:"DATABASE_URL"`
	RedisURL      string `env:"REDIS_URL"`

	// Hex-encoded 32-byte AES key for encrypting delivery tokens at
	// rest. Empty stores them in plaintext.
	TokenEncryptionKey string `env:"TOKEN_ENCRYPTION_KEY"`

	// Cooldown window started by each vote. The notification fires when
	// it elapses.
	CooldownDuration time.Duration `env:"COOLDOWN_DURATION" default:"24h"`

	// Interval between periodic reconciliation passes; 0 disables the
	// loop (the boot pass always runs).
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" default:"10m"`

	// Link opened when the user taps the notification.
	NotifyTargetURL string `env:"NOTIFY_TARGET_URL"`

	NotifyRatePerSec float64       `env:"NOTIFY_RATE_PER_SEC" default:"5"`
	NotifyBurst      int           `env:"NOTIFY_BURST" default:"10"`
	NotifyTimeout    time.Duration `env:"NOTIFY_TIMEOUT" default:"10s"`

	// Deadline for handling one expiry end to end (capability reload,
	// send, post-delivery bookkeeping).
	NotifySendWait time.Duration `env:"NOTIFY_SEND_WAIT" default:"30s"`
}

func Load() (*Config, error) {
	// A missing .env file is the normal case outside local development.
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded", "error", err)
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"NOTIFY_TARGET_URL": cfg.NotifyTargetURL,
	}

	switch cfg.StoreBackend {
	case BackendMemory:
	case BackendFile:
		required["STORE_FILE_PATH"] = cfg.StoreFilePath
	case BackendPostgres:
		required["DATABASE_URL"] = cfg.DatabaseURL
	case BackendRedis:
		required["REDIS_URL"] = cfg.RedisURL
	default:
		return fmt.Errorf("STORE_BACKEND must be one of memory, file, postgres, redis; got %q", cfg.StoreBackend)
	}

	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if cfg.CooldownDuration <= 0 {
		return fmt.Errorf("COOLDOWN_DURATION must be positive, got %s", cfg.CooldownDuration)
	}
	if cfg.ReconcileInterval < 0 {
		return fmt.Errorf("RECONCILE_INTERVAL must not be negative, got %s", cfg.ReconcileInterval)
	}
	if cfg.NotifyRatePerSec <= 0 {
		return fmt.Errorf("NOTIFY_RATE_PER_SEC must be positive, got %v", cfg.NotifyRatePerSec)
	}
	if cfg.NotifySendWait <= 0 {
		return fmt.Errorf("NOTIFY_SEND_WAIT must be positive, got %s", cfg.NotifySendWait)
	}

	if key := cfg.TokenEncryptionKey; key != "" && len(key) != 64 {
		return fmt.Errorf("TOKEN_ENCRYPTION_KEY must be 64 hex characters (32 bytes), got %d", len(key))
	}

	if cfg.AppEnv == "production" && cfg.StoreBackend == BackendPostgres {
		if mode := insecureSSLMode(cfg.DatabaseURL); mode != "" {
			return fmt.Errorf("DATABASE_URL requests sslmode=%s, refusing to run production without TLS", mode)
		}
	}

	return nil
}

// insecureSSLMode reports the sslmode parameter when it turns TLS off.
// Unparseable URLs pass here and fail later at dial time.
func insecureSSLMode(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return ""
	}
	mode := strings.ToLower(u.Query().Get("sslmode"))
	if mode == "disable" || mode == "allow" {
		return mode
	}
	return ""
}
