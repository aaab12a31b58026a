package store

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/pittpv/mon-far-app/internal/domain"
)

// MemoryStore keeps subscriptions in process memory. State is lost on
// restart, so it suits development and tests only.
type MemoryStore struct {
	clock clockwork.Clock

	mu   sync.RWMutex
	subs map[int64]*domain.Subscription
}

func NewMemoryStore(clock clockwork.Clock) *MemoryStore {
	return &MemoryStore{
		clock: clock,
		subs:  make(map[int64]*domain.Subscription),
	}
}

func (s *MemoryStore) Get(_ context.Context, fid int64) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[fid]
	if !ok {
		return nil, domain.ErrSubscriptionNotFound
	}
	return copySubscription(sub), nil
}

func (s *MemoryStore) Upsert(_ context.Context, sub *domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copySubscription(sub)
	if existing, ok := s.subs[sub.FID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt == 0 {
		stored.CreatedAt = s.clock.Now().Unix()
	}
	s.subs[sub.FID] = stored
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, fid int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.subs, fid)
	return nil
}

func (s *MemoryStore) ListAll(_ context.Context) ([]domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, *copySubscription(sub))
	}
	return out, nil
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

// copySubscription clones a subscription including its records slice,
// so callers can never alias the stored state.
func copySubscription(sub *domain.Subscription) *domain.Subscription {
	out := *sub
	if sub.Records != nil {
		out.Records = append([]domain.CooldownRecord(nil), sub.Records...)
	}
	return &out
}
