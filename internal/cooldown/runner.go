package cooldown

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pittpv/mon-far-app/internal/domain"
)

// Runner triggers periodic reconciliation passes, catching records that
// lost their timer to a bug or an ignored immediate fire. An interval
// of zero disables the loop; the boot-time pass still runs.
type Runner struct {
	reconciler domain.ReconcileService
	interval   time.Duration
	clock      clockwork.Clock
	stopCh     chan struct{}
	stopOnce   sync.Once
}

func NewRunner(reconciler domain.ReconcileService, interval time.Duration, clock clockwork.Clock) *Runner {
	return &Runner{
		reconciler: reconciler,
		interval:   interval,
		clock:      clock,
		stopCh:     make(chan struct{}),
	}
}

// Start runs the reconciliation loop until Stop is called or the
// context is cancelled.
func (r *Runner) Start(ctx context.Context) {
	if r.interval <= 0 {
		slog.Info("Periodic restore disabled")
		return
	}

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	slog.Info("Restore runner started", "interval", r.interval.String())
	for {
		select {
		case <-ticker.Chan():
			if _, err := r.reconciler.RestoreAll(ctx); err != nil {
				slog.Error("Periodic restore failed", "error", err)
			}
		case <-r.stopCh:
			slog.Info("Restore runner stopped")
			return
		case <-ctx.Done():
			slog.Info("Restore runner context cancelled")
			return
		}
	}
}

// Stop gracefully stops the reconciliation loop.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})
}
