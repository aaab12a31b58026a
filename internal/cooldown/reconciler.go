package cooldown

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/pittpv/mon-far-app/internal/domain"
	"github.com/pittpv/mon-far-app/internal/metrics"
	"github.com/pittpv/mon-far-app/internal/platform/correlation"
)

// Reconciler rebuilds the in-memory timer registry from persisted
// state. It runs at boot, on demand, and periodically; overlapping
// invocations collapse into one pass.
type Reconciler struct {
	store  domain.RecordStore
	ledger *Ledger
	timers *Registry
	clock  clockwork.Clock
	group  singleflight.Group
}

var _ domain.ReconcileService = (*Reconciler)(nil)

func NewReconciler(store domain.RecordStore, ledger *Ledger, timers *Registry, clock clockwork.Clock) *Reconciler {
	return &Reconciler{
		store:  store,
		ledger: ledger,
		timers: timers,
		clock:  clock,
	}
}

// RestoreAll scans every subscription, prunes records whose cooldown
// ended while nobody was watching, and re-arms timers for the rest.
// Records that expired during downtime are deleted without a late
// notification. One failing user is skipped and counted, not fatal.
func (r *Reconciler) RestoreAll(ctx context.Context) (domain.RestoreSummary, error) {
	v, err, _ := r.group.Do("restore", func() (any, error) {
		return r.restoreAll(ctx)
	})
	summary, _ := v.(domain.RestoreSummary)
	return summary, err
}

func (r *Reconciler) restoreAll(ctx context.Context) (domain.RestoreSummary, error) {
	// Boot and runner passes arrive without a correlation ID.
	ctx = correlation.Ensure(ctx)

	start := r.clock.Now()
	defer func() {
		metrics.ReconcileDuration.Observe(r.clock.Since(start).Seconds())
	}()

	var summary domain.RestoreSummary

	subs, err := r.store.ListAll(ctx)
	if err != nil {
		metrics.ReconcileRunsTotal.WithLabelValues("error").Inc()
		return summary, fmt.Errorf("list subscriptions: %w", err)
	}

	now := r.clock.Now().Unix()
	for i := range subs {
		restored, cleaned, err := r.restoreUser(ctx, &subs[i], now)
		if err != nil {
			summary.Errors++
			slog.WarnContext(ctx, "Failed to restore user, skipping", "fid", subs[i].FID, "error", err)
			continue
		}
		summary.Restored += restored
		summary.Cleaned += cleaned
	}

	metrics.ReconcileRunsTotal.WithLabelValues("ok").Inc()
	metrics.ReconcileRestoredTotal.Add(float64(summary.Restored))
	metrics.ReconcileCleanedTotal.Add(float64(summary.Cleaned))
	slog.InfoContext(ctx, "Restore pass complete",
		"subscriptions", len(subs),
		"restored", summary.Restored,
		"cleaned", summary.Cleaned,
		"errors", summary.Errors)
	return summary, nil
}

func (r *Reconciler) restoreUser(ctx context.Context, sub *domain.Subscription, now int64) (restored, cleaned int, err error) {
	if expired := sub.PruneExpired(now); expired > 0 {
		if err := r.store.Upsert(ctx, sub); err != nil {
			return 0, 0, fmt.Errorf("persist pruned records: %w", err)
		}
		cleaned = expired
		metrics.RecordsPrunedTotal.WithLabelValues("reconcile").Add(float64(expired))
	}

	if len(sub.Records) == 0 {
		return restored, cleaned, nil
	}

	// A user with any live timer is considered armed; partial timer
	// loss does not happen, the registry is dropped as a whole.
	if r.timers.HasActive(sub.FID) {
		return restored, cleaned, nil
	}

	for _, rec := range sub.Records {
		r.ledger.armRecord(sub.FID, rec)
		restored++
	}
	return restored, cleaned, nil
}
