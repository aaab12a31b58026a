package cooldown

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pittpv/mon-far-app/internal/domain"
	"github.com/pittpv/mon-far-app/internal/metrics"
)

// Registry holds the live cooldown timers, at most one per user and
// record key. Entries are non-owning: dropping them loses no data, the
// Reconciler can always rebuild from the record store.
type Registry struct {
	clock clockwork.Clock

	mu    sync.Mutex
	users map[int64]map[domain.RecordKey]*timerEntry
	count int
}

type timerEntry struct {
	timer       clockwork.Timer
	cooldownEnd int64
}

func NewRegistry(clock clockwork.Clock) *Registry {
	return &Registry{
		clock: clock,
		users: make(map[int64]map[domain.RecordKey]*timerEntry),
	}
}

// Schedule arms a timer firing onFire when cooldownEnd passes. Any
// existing timer for the same user and key is canceled first, so the
// latest schedule always wins. A deadline already in the past fires
// onFire on a fresh goroutine without registering anything.
func (r *Registry) Schedule(fid int64, key domain.RecordKey, cooldownEnd int64, onFire func()) {
	r.mu.Lock()

	if r.cancelLocked(fid, key) {
		metrics.TimersScheduledTotal.WithLabelValues("replaced").Inc()
	}

	now := r.clock.Now().Unix()
	if cooldownEnd <= now {
		r.mu.Unlock()
		metrics.TimersScheduledTotal.WithLabelValues("immediate").Inc()
		go onFire()
		return
	}

	entry := &timerEntry{cooldownEnd: cooldownEnd}
	entry.timer = r.clock.AfterFunc(time.Duration(cooldownEnd-now)*time.Second, func() {
		// A replaced or canceled timer may still fire: only the entry
		// that is still registered for the key gets to notify.
		if !r.claim(fid, key, entry) {
			return
		}
		metrics.TimersFiredTotal.Inc()
		onFire()
	})

	bucket, ok := r.users[fid]
	if !ok {
		bucket = make(map[domain.RecordKey]*timerEntry)
		r.users[fid] = bucket
	}
	bucket[key] = entry
	r.count++
	metrics.TimersActive.Set(float64(r.count))
	r.mu.Unlock()

	metrics.TimersScheduledTotal.WithLabelValues("deferred").Inc()
}

// claim removes the entry if it is still the registered one for the key.
func (r *Registry) claim(fid int64, key domain.RecordKey, entry *timerEntry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.users[fid]
	if bucket == nil || bucket[key] != entry {
		return false
	}
	r.removeLocked(fid, key, bucket)
	return true
}

// CancelAll stops every timer for the user, for unsubscribe and
// invalidated delivery targets.
func (r *Registry) CancelAll(fid int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bucket := r.users[fid]
	for key, entry := range bucket {
		entry.timer.Stop()
		r.removeLocked(fid, key, bucket)
		metrics.TimersCanceledTotal.Inc()
	}
}

// HasActive reports whether the user has at least one armed timer.
func (r *Registry) HasActive(fid int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users[fid]) > 0
}

// ActiveCount returns the number of armed timers across all users.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

func (r *Registry) cancelLocked(fid int64, key domain.RecordKey) bool {
	bucket := r.users[fid]
	entry, ok := bucket[key]
	if !ok {
		return false
	}
	entry.timer.Stop()
	r.removeLocked(fid, key, bucket)
	metrics.TimersCanceledTotal.Inc()
	return true
}

func (r *Registry) removeLocked(fid int64, key domain.RecordKey, bucket map[domain.RecordKey]*timerEntry) {
	delete(bucket, key)
	if len(bucket) == 0 {
		delete(r.users, fid)
	}
	r.count--
	metrics.TimersActive.Set(float64(r.count))
}
