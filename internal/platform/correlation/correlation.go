// Package correlation stamps requests and background passes with short
// IDs so every log line of one unit of work can be grepped together.
package correlation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

type contextKey struct{}

// NewID returns an 8-character hex ID (4 random bytes).
func NewID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// WithID returns a context carrying id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// ID extracts the correlation ID from ctx; ok is false when absent.
func ID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// Ensure returns ctx unchanged when it already carries an ID, else
// stamps a fresh one. Background work (boot restore, the periodic
// runner) calls it so its log lines stay traceable without clobbering
// request-scoped IDs.
func Ensure(ctx context.Context) context.Context {
	if _, ok := ID(ctx); ok {
		return ctx
	}
	return WithID(ctx, NewID())
}

// Handler decorates a slog.Handler so records logged with a stamped
// context carry a correlation_id attribute.
type Handler struct {
	next slog.Handler
}

func NewHandler(next slog.Handler) *Handler {
	return &Handler{next: next}
}

func (c *Handler) Handle(ctx context.Context, r slog.Record) error {
	if id, ok := ID(ctx); ok {
		r.AddAttrs(slog.String("correlation_id", id))
	}
	if err := c.next.Handle(ctx, r); err != nil {
		return fmt.Errorf("forward log record: %w", err)
	}
	return nil
}

// Enabled, WithAttrs and WithGroup delegate; only Handle adds state.

func (c *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return c.next.Enabled(ctx, level)
}

func (c *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{next: c.next.WithAttrs(attrs)}
}

func (c *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: c.next.WithGroup(name)}
}
