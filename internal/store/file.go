package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/jonboulle/clockwork"

	"github.com/pittpv/mon-far-app/internal/domain"
)

// FileStore persists all subscriptions as one JSON document, rewritten
// atomically on every mutation. It keeps a full copy in memory, so it
// suits single-instance deployments with modest user counts.
type FileStore struct {
	clock clockwork.Clock
	path  string

	mu   sync.RWMutex
	subs map[int64]*domain.Subscription
}

func NewFileStore(path string, clock clockwork.Clock) (*FileStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store file path cannot be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &FileStore{
		clock: clock,
		path:  path,
		subs:  make(map[int64]*domain.Subscription),
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Get(_ context.Context, fid int64) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[fid]
	if !ok {
		return nil, domain.ErrSubscriptionNotFound
	}
	return copySubscription(sub), nil
}

func (s *FileStore) Upsert(_ context.Context, sub *domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := copySubscription(sub)
	if existing, ok := s.subs[sub.FID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt == 0 {
		stored.CreatedAt = s.clock.Now().Unix()
	}
	s.subs[sub.FID] = stored

	if err := s.persistLocked(); err != nil {
		delete(s.subs, sub.FID)
		return err
	}
	return nil
}

func (s *FileStore) Delete(_ context.Context, fid int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed, ok := s.subs[fid]
	if !ok {
		return nil
	}
	delete(s.subs, fid)

	if err := s.persistLocked(); err != nil {
		s.subs[fid] = removed
		return err
	}
	return nil
}

func (s *FileStore) ListAll(_ context.Context) ([]domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, *copySubscription(sub))
	}
	return out, nil
}

func (s *FileStore) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("store file unavailable: %w", err)
	}
	return nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s.persistLocked()
	}
	if err != nil {
		return fmt.Errorf("failed to read store file: %w", err)
	}

	var subs []domain.Subscription
	if err := json.Unmarshal(data, &subs); err != nil {
		return fmt.Errorf("failed to decode store file %s: %w", s.path, err)
	}

	for i := range subs {
		s.subs[subs[i].FID] = &subs[i]
	}
	return nil
}

// persistLocked rewrites the whole document via a temp file and rename,
// so a crash mid-write never leaves a truncated store behind.
func (s *FileStore) persistLocked() error {
	subs := make([]domain.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, *sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].FID < subs[j].FID })

	data, err := json.MarshalIndent(subs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode subscriptions: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp store file: %w", err)
	}
	if err := syncFile(tmp); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

func syncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open temp store file for sync: %w", err)
	}
	defer f.Close()

	if err := f.Sync(); err != nil {
		return fmt.Errorf("failed to sync temp store file: %w", err)
	}
	return nil
}
