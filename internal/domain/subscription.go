package domain

import (
	"context"
	"strings"
)

// NetworkUnknown is stored when a vote event arrives without a network
// identifier. Records under it are tracked like any other network.
const NetworkUnknown = "unknown"

// RecordKey identifies one cooldown record within a subscription:
// the same token address on two networks is two independent cooldowns.
type RecordKey struct {
	TokenAddress string
	Network      string
}

// NewRecordKey normalizes the composite key: addresses are compared
// case-insensitively, so they are lowercased once on the way in, and a
// missing network falls back to NetworkUnknown.
func NewRecordKey(tokenAddress, network string) RecordKey {
	network = strings.ToLower(strings.TrimSpace(network))
	if network == "" {
		network = NetworkUnknown
	}
	return RecordKey{
		TokenAddress: strings.ToLower(strings.TrimSpace(tokenAddress)),
		Network:      network,
	}
}

func (k RecordKey) String() string {
	return k.TokenAddress + "@" + k.Network
}

// CooldownRecord tracks a single running vote cooldown. CooldownEnd is
// always VotedAt plus the configured cooldown duration, never stored
// independently of it.
type CooldownRecord struct {
	TokenAddress string `json:"tokenAddress"`
	Network      string `json:"network"`
	VotedAt      int64  `json:"votedAt"`
	CooldownEnd  int64  `json:"cooldownEnd"`
}

func (r CooldownRecord) Key() RecordKey {
	return NewRecordKey(r.TokenAddress, r.Network)
}

// Expired reports whether the cooldown has already ended at the given
// unix time. Boundary counts as expired: a record ending exactly now is
// due for notification, not for a timer.
func (r CooldownRecord) Expired(now int64) bool {
	return r.CooldownEnd <= now
}

// Subscription is one user's delivery capability plus all of their
// running cooldowns. The FID is the stable external user identifier.
type Subscription struct {
	FID       int64            `json:"fid"`
	Token     string           `json:"token"`
	URL       string           `json:"url"`
	Records   []CooldownRecord `json:"records,omitempty"`
	CreatedAt int64            `json:"createdAt"`
}

// HasTarget reports whether the subscription carries a usable delivery
// capability. Without one, votes are tracked nowhere and notifications
// cannot be sent.
func (s *Subscription) HasTarget() bool {
	return s != nil && s.Token != "" && s.URL != ""
}

// Record returns the cooldown record matching the key, if present.
func (s *Subscription) Record(key RecordKey) (CooldownRecord, bool) {
	for _, r := range s.Records {
		if r.Key() == key {
			return r, true
		}
	}
	return CooldownRecord{}, false
}

// UpsertRecord overwrites the record with the same key or appends a new
// one. A repeat vote for the same token and network replaces the old
// window entirely (last write wins).
func (s *Subscription) UpsertRecord(rec CooldownRecord) {
	key := rec.Key()
	for i, r := range s.Records {
		if r.Key() == key {
			s.Records[i] = rec
			return
		}
	}
	s.Records = append(s.Records, rec)
}

// RemoveRecord deletes the record with the given key and reports whether
// it was present. The subscription itself stays, even with no records.
func (s *Subscription) RemoveRecord(key RecordKey) bool {
	for i, r := range s.Records {
		if r.Key() == key {
			s.Records = append(s.Records[:i], s.Records[i+1:]...)
			return true
		}
	}
	return false
}

// PruneExpired drops every record whose cooldown has ended and returns
// how many were removed.
func (s *Subscription) PruneExpired(now int64) int {
	kept := s.Records[:0]
	removed := 0
	for _, r := range s.Records {
		if r.Expired(now) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.Records = kept
	return removed
}

// ActiveRecords returns the records still cooling down at the given time.
func (s *Subscription) ActiveRecords(now int64) []CooldownRecord {
	var active []CooldownRecord
	for _, r := range s.Records {
		if !r.Expired(now) {
			active = append(active, r)
		}
	}
	return active
}

// RecordStore persists subscriptions with their cooldown records. All
// implementations must be safe for concurrent use; read-modify-write
// consistency per user is the caller's responsibility.
type RecordStore interface {
	// Get returns the subscription for the user, or ErrSubscriptionNotFound.
	Get(ctx context.Context, fid int64) (*Subscription, error)
	// Upsert creates or replaces the subscription. CreatedAt is set on
	// first persist and preserved on later writes.
	Upsert(ctx context.Context, sub *Subscription) error
	// Delete removes the subscription. Deleting an absent one is a no-op.
	Delete(ctx context.Context, fid int64) error
	// ListAll returns every stored subscription, for reconciliation.
	ListAll(ctx context.Context) ([]Subscription, error)
	// Ping reports backend health for readiness checks.
	Ping(ctx context.Context) error
	Close() error
}
