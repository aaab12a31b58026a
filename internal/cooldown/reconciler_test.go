package cooldown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pittpv/mon-far-app/internal/domain"
	"github.com/pittpv/mon-far-app/internal/metrics"
)

func newTestReconciler(store *testStore, notifier *mockNotifier, clock clockwork.Clock) (*Reconciler, *Ledger, *Registry) {
	ledger, timers := newTestLedger(store, notifier, clock)
	return NewReconciler(store, ledger, timers, clock), ledger, timers
}

func TestReconciler_RestoreAll_ArmsPersistedCooldowns(t *testing.T) {
	clock := clockwork.NewFakeClock()
	now := clock.Now().Unix()

	store := newTestStore(
		testSub(101, record(addrA, "monad", now-1000), record(addrB, "base", now-2000)),
		testSub(102, record(addrA, "monad", now-500)),
	)
	reconciler, _, timers := newTestReconciler(store, &mockNotifier{}, clock)

	summary, err := reconciler.RestoreAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.RestoreSummary{Restored: 3}, summary)
	assert.Equal(t, 3, timers.ActiveCount())
	assert.True(t, timers.HasActive(101))
	assert.True(t, timers.HasActive(102))
}

func TestReconciler_RestoreAll_CleansExpiredWithoutNotifying(t *testing.T) {
	clock := clockwork.NewFakeClock()
	now := clock.Now().Unix()

	expired := record(addrA, "monad", now-2*cooldownSecs)
	active := record(addrB, "monad", now-cooldownSecs/2)
	store := newTestStore(testSub(testFID, expired, active))
	notifier := &mockNotifier{}
	reconciler, _, timers := newTestReconciler(store, notifier, clock)

	summary, err := reconciler.RestoreAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.RestoreSummary{Restored: 1, Cleaned: 1}, summary)
	assert.Equal(t, 1, timers.ActiveCount())

	sub, _ := store.get(testFID)
	require.Len(t, sub.Records, 1)
	assert.Equal(t, addrB, sub.Records[0].TokenAddress)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, notifier.callCount(), "downtime expiries are dropped, never notified late")
}

func TestReconciler_RestoreAll_SecondPassIsIdempotent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	now := clock.Now().Unix()

	store := newTestStore(testSub(testFID,
		record(addrA, "monad", now-2*cooldownSecs),
		record(addrB, "monad", now-1000),
	))
	reconciler, _, timers := newTestReconciler(store, &mockNotifier{}, clock)

	first, err := reconciler.RestoreAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.RestoreSummary{Restored: 1, Cleaned: 1}, first)

	second, err := reconciler.RestoreAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.RestoreSummary{}, second, "armed users are left alone")
	assert.Equal(t, 1, timers.ActiveCount())
}

func TestReconciler_RestoreAll_SkipsUsersWithLiveTimers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := newTestStore(testSub(testFID))
	reconciler, ledger, timers := newTestReconciler(store, &mockNotifier{}, clock)

	require.NoError(t, ledger.RecordVote(context.Background(), voteEvent(addrA, clock.Now().Unix())))
	require.Equal(t, 1, timers.ActiveCount())

	summary, err := reconciler.RestoreAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.RestoreSummary{}, summary)
	assert.Equal(t, 1, timers.ActiveCount(), "no duplicate timers for armed users")
}

func TestReconciler_RestoreAll_FailedUserSkippedAndCounted(t *testing.T) {
	clock := clockwork.NewFakeClock()
	now := clock.Now().Unix()

	broken := testSub(101, record(addrA, "monad", now-2*cooldownSecs), record(addrB, "monad", now-1000))
	healthy := testSub(102, record(addrA, "monad", now-2*cooldownSecs), record(addrC, "base", now-1000))
	store := newTestStore(broken, healthy)
	store.upsertFn = func(_ context.Context, sub *domain.Subscription) error {
		if sub.FID == 101 {
			return errors.New("write refused")
		}
		store.write(sub)
		return nil
	}
	reconciler, _, timers := newTestReconciler(store, &mockNotifier{}, clock)

	summary, err := reconciler.RestoreAll(context.Background())

	require.NoError(t, err, "one broken user does not fail the pass")
	assert.Equal(t, domain.RestoreSummary{Restored: 1, Cleaned: 1, Errors: 1}, summary)
	assert.False(t, timers.HasActive(101), "skipped user is not half-armed")
	assert.True(t, timers.HasActive(102))
}

func TestReconciler_RestoreAll_ListFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := newTestStore()
	store.listFn = func(_ context.Context) ([]domain.Subscription, error) {
		return nil, errors.New("backend down")
	}
	reconciler, _, _ := newTestReconciler(store, &mockNotifier{}, clock)

	initialErrors := testutil.ToFloat64(metrics.ReconcileRunsTotal.WithLabelValues("error"))

	summary, err := reconciler.RestoreAll(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "list subscriptions")
	assert.Equal(t, domain.RestoreSummary{}, summary)
	assert.Equal(t, initialErrors+1, testutil.ToFloat64(metrics.ReconcileRunsTotal.WithLabelValues("error")))
}

func TestReconciler_RestoreAll_RestoredTimersFire(t *testing.T) {
	clock := clockwork.NewFakeClock()
	now := clock.Now().Unix()

	// 300 seconds of this cooldown were still left when the process died.
	rec := record(addrA, "monad", now-cooldownSecs+300)
	store := newTestStore(testSub(testFID, rec))
	notifier := &mockNotifier{}
	reconciler, _, _ := newTestReconciler(store, notifier, clock)

	summary, err := reconciler.RestoreAll(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.RestoreSummary{Restored: 1}, summary)

	clock.Advance(300 * time.Second)

	assert.Eventually(t, func() bool { return notifier.callCount() == 1 }, 5*time.Second, 10*time.Millisecond)
	call := notifier.getCalls()[0]
	assert.Equal(t, testFID, call.fid)
	assert.Equal(t, rec.CooldownEnd, call.cooldownEnd, "restored timer fires for the original window")

	assert.Eventually(t, func() bool {
		sub, ok := store.get(testFID)
		return ok && len(sub.Records) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestReconciler_RestoreAll_EmptySubscriptionLeftAlone(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := newTestStore(testSub(testFID))
	store.upsertFn = func(_ context.Context, _ *domain.Subscription) error {
		t.Error("no write expected for a subscription without records")
		return nil
	}
	reconciler, _, timers := newTestReconciler(store, &mockNotifier{}, clock)

	summary, err := reconciler.RestoreAll(context.Background())

	require.NoError(t, err)
	assert.Equal(t, domain.RestoreSummary{}, summary)
	assert.Equal(t, 0, timers.ActiveCount())
}
