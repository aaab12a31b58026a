package cooldown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/pittpv/mon-far-app/internal/domain"
	"github.com/pittpv/mon-far-app/internal/metrics"
)

// ExpiryNotifier delivers the cooldown-ended notification for one
// record. Implementations load the delivery capability fresh at fire
// time; the returned error carries detail for the OutcomeError case.
type ExpiryNotifier interface {
	NotifyExpired(ctx context.Context, fid int64, key domain.RecordKey, cooldownEnd int64) (domain.SendOutcome, error)
}

// Ledger ingests vote events and owns every state transition on the
// record store: merging cooldown records, pruning expired ones, and the
// post-notification cleanup. It is the only writer besides the
// Reconciler's batch prune.
type Ledger struct {
	store    domain.RecordStore
	timers   *Registry
	notifier ExpiryNotifier
	cooldown time.Duration
	sendWait time.Duration
	clock    clockwork.Clock
}

var _ domain.CooldownService = (*Ledger)(nil)

func NewLedger(store domain.RecordStore, timers *Registry, notifier ExpiryNotifier, cooldown, sendWait time.Duration, clock clockwork.Clock) *Ledger {
	return &Ledger{
		store:    store,
		timers:   timers,
		notifier: notifier,
		cooldown: cooldown,
		sendWait: sendWait,
		clock:    clock,
	}
}

// RecordVote starts (or restarts) the cooldown for the voted token.
// Users without a subscription are dropped silently: there is nobody to
// notify, so there is nothing to track. Persistence failures propagate
// to the caller; no timer is armed for a record that was never saved.
func (l *Ledger) RecordVote(ctx context.Context, event domain.VoteEvent) error {
	start := l.clock.Now()
	defer func() {
		metrics.VoteIngestDuration.Observe(l.clock.Since(start).Seconds())
	}()

	key := domain.NewRecordKey(event.TokenAddress, event.Network)

	sub, err := l.store.Get(ctx, event.FID)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			metrics.VotesTotal.WithLabelValues("no_subscription").Inc()
			slog.Debug("Vote ignored, user has no subscription",
				"fid", event.FID, "token", key.TokenAddress, "network", key.Network)
			return nil
		}
		metrics.VotesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("load subscription for fid %d: %w", event.FID, err)
	}
	if !sub.HasTarget() {
		metrics.VotesTotal.WithLabelValues("no_subscription").Inc()
		slog.Debug("Vote ignored, subscription has no delivery target", "fid", event.FID)
		return nil
	}

	now := l.clock.Now().Unix()
	votedAt := event.VotedAt()
	rec := domain.CooldownRecord{
		TokenAddress: key.TokenAddress,
		Network:      key.Network,
		VotedAt:      votedAt,
		CooldownEnd:  votedAt + int64(l.cooldown.Seconds()),
	}

	if pruned := sub.PruneExpired(now); pruned > 0 {
		metrics.RecordsPrunedTotal.WithLabelValues("vote").Add(float64(pruned))
	}
	sub.UpsertRecord(rec)

	if err := l.store.Upsert(ctx, sub); err != nil {
		metrics.VotesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("persist vote for fid %d: %w", event.FID, err)
	}

	// Checked before arming the new timer: a fresh registry after a
	// restart means the user's other records lost their timers too.
	needRearm := !l.timers.HasActive(event.FID)

	l.armRecord(event.FID, rec)

	if needRearm {
		for _, other := range sub.ActiveRecords(now) {
			if other.Key() == key {
				continue
			}
			l.armRecord(event.FID, other)
		}
	}

	metrics.VotesTotal.WithLabelValues("recorded").Inc()
	slog.Info("Vote recorded",
		"fid", event.FID,
		"token", key.TokenAddress,
		"network", key.Network,
		"voted_at", votedAt,
		"cooldown_end", rec.CooldownEnd)
	return nil
}

// RemoveVoteRecord deletes exactly one record after a successful
// delivery. Absent subscriptions and already-removed records are benign.
func (l *Ledger) RemoveVoteRecord(ctx context.Context, fid int64, key domain.RecordKey) error {
	sub, err := l.store.Get(ctx, fid)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			slog.Debug("No subscription while removing record", "fid", fid, "record", key.String())
			return nil
		}
		return fmt.Errorf("load subscription for fid %d: %w", fid, err)
	}

	if !sub.RemoveRecord(key) {
		slog.Debug("Cooldown record already gone", "fid", fid, "record", key.String())
		return nil
	}

	if err := l.store.Upsert(ctx, sub); err != nil {
		return fmt.Errorf("persist record removal for fid %d: %w", fid, err)
	}
	return nil
}

// SaveSubscription stores the delivery capability from a lifecycle
// event, preserving any cooldown records already tracked. A user who
// re-enables notifications after a restart gets their timers back here.
func (l *Ledger) SaveSubscription(ctx context.Context, fid int64, token, url string) error {
	sub, err := l.store.Get(ctx, fid)
	if err != nil {
		if !errors.Is(err, domain.ErrSubscriptionNotFound) {
			return fmt.Errorf("load subscription for fid %d: %w", fid, err)
		}
		sub = &domain.Subscription{FID: fid}
	}
	sub.Token = token
	sub.URL = url

	if err := l.store.Upsert(ctx, sub); err != nil {
		return fmt.Errorf("persist subscription for fid %d: %w", fid, err)
	}

	if !l.timers.HasActive(fid) {
		now := l.clock.Now().Unix()
		for _, rec := range sub.ActiveRecords(now) {
			l.armRecord(fid, rec)
		}
	}

	slog.Info("Subscription saved", "fid", fid)
	return nil
}

// RemoveSubscription drops the user entirely: persisted records and all
// armed timers. Used for lifecycle removal events and invalidated
// delivery targets.
func (l *Ledger) RemoveSubscription(ctx context.Context, fid int64) error {
	if err := l.store.Delete(ctx, fid); err != nil {
		return fmt.Errorf("delete subscription for fid %d: %w", fid, err)
	}
	l.timers.CancelAll(fid)
	slog.Info("Subscription removed", "fid", fid)
	return nil
}

// armRecord registers the expiry pipeline for one record. The callback
// runs on a timer goroutine with its own timeout; its failures are
// logged here and never surface to the vote path.
func (l *Ledger) armRecord(fid int64, rec domain.CooldownRecord) {
	key := rec.Key()
	end := rec.CooldownEnd
	l.timers.Schedule(fid, key, end, func() {
		l.handleExpiry(fid, key, end)
	})
}

// handleExpiry runs when a cooldown ends: deliver, then apply the
// outcome's state transition.
func (l *Ledger) handleExpiry(fid int64, key domain.RecordKey, cooldownEnd int64) {
	ctx, cancel := context.WithTimeout(context.Background(), l.sendWait)
	defer cancel()

	outcome, err := l.notifier.NotifyExpired(ctx, fid, key, cooldownEnd)
	metrics.NotificationsTotal.WithLabelValues(string(outcome)).Inc()

	switch outcome {
	case domain.OutcomeDelivered:
		slog.Info("Cooldown notification delivered", "fid", fid, "record", key.String())
		if err := l.RemoveVoteRecord(ctx, fid, key); err != nil {
			// The notification went out; the stale record is pruned by
			// the next reconciliation pass.
			slog.Error("Failed to remove record after delivery", "fid", fid, "record", key.String(), "error", err)
		}
	case domain.OutcomeInvalidTarget:
		slog.Warn("Delivery target invalid, dropping subscription", "fid", fid)
		if err := l.RemoveSubscription(ctx, fid); err != nil {
			slog.Error("Failed to drop subscription with invalid target", "fid", fid, "error", err)
		}
	case domain.OutcomeNoTarget:
		slog.Debug("No delivery target at expiry", "fid", fid, "record", key.String())
	case domain.OutcomeThrottled:
		slog.Warn("Notification throttled, record kept", "fid", fid, "record", key.String())
	default:
		slog.Error("Notification failed, record kept", "fid", fid, "record", key.String(), "error", err)
	}
}
