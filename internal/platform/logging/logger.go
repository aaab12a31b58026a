// Package logging configures the process-wide slog logger.
//
// Every component logs through slog's default logger, so Init must run
// before the first log line. The correlation handler is layered on top,
// which is how request and restore-pass IDs reach every record.
package logging

import (
	"log/slog"
	"os"

	"github.com/pittpv/mon-far-app/internal/platform/correlation"
)

// Init builds the process logger from LOG_LEVEL and LOG_FORMAT and
// installs it as slog's default. Unknown values fall back to info-level
// text output, so a typo in the environment never silences the process.
func Init(level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(correlation.NewHandler(handler)))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
