package store

import (
	"context"
	"fmt"

	"github.com/pittpv/mon-far-app/internal/domain"
	"github.com/pittpv/mon-far-app/internal/platform/crypto"
)

// tokenCipher encrypts delivery tokens on their way into the backing
// store and decrypts them on the way out. Empty tokens pass through,
// so a subscription without a target still reads as targetless in the
// raw store.
type tokenCipher struct {
	inner  domain.RecordStore
	cipher crypto.Service
}

func newTokenCipher(inner domain.RecordStore, cipher crypto.Service) *tokenCipher {
	return &tokenCipher{inner: inner, cipher: cipher}
}

func (s *tokenCipher) Get(ctx context.Context, fid int64) (*domain.Subscription, error) {
	sub, err := s.inner.Get(ctx, fid)
	if err != nil {
		return nil, err
	}
	if err := s.revealToken(sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *tokenCipher) Upsert(ctx context.Context, sub *domain.Subscription) error {
	if sub.Token == "" {
		return s.inner.Upsert(ctx, sub)
	}

	encrypted, err := s.cipher.Encrypt(sub.Token)
	if err != nil {
		return fmt.Errorf("failed to encrypt token for fid %d: %w", sub.FID, err)
	}

	stored := copySubscription(sub)
	stored.Token = encrypted
	return s.inner.Upsert(ctx, stored)
}

func (s *tokenCipher) Delete(ctx context.Context, fid int64) error {
	return s.inner.Delete(ctx, fid)
}

func (s *tokenCipher) ListAll(ctx context.Context) ([]domain.Subscription, error) {
	subs, err := s.inner.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range subs {
		if err := s.revealToken(&subs[i]); err != nil {
			return nil, err
		}
	}
	return subs, nil
}

func (s *tokenCipher) Ping(ctx context.Context) error { return s.inner.Ping(ctx) }

func (s *tokenCipher) Close() error { return s.inner.Close() }

func (s *tokenCipher) revealToken(sub *domain.Subscription) error {
	if sub.Token == "" {
		return nil
	}
	token, err := s.cipher.Decrypt(sub.Token)
	if err != nil {
		return fmt.Errorf("failed to decrypt token for fid %d: %w", sub.FID, err)
	}
	sub.Token = token
	return nil
}
