package domain

import "context"

// VoteEvent is one observed vote, as delivered by the event source
// webhook. OccurredAt is the receipt-side timestamp; BlockTime is the
// chain's own timestamp for the transaction and wins when present.
type VoteEvent struct {
	FID          int64
	TokenAddress string
	Network      string
	OccurredAt   int64
	BlockTime    int64
}

// VotedAt picks the authoritative cooldown start for the event.
func (e VoteEvent) VotedAt() int64 {
	if e.BlockTime > 0 {
		return e.BlockTime
	}
	return e.OccurredAt
}

// CooldownService is the application layer contract for vote ingestion
// and subscription lifecycle - handlers route all writes through here.
type CooldownService interface {
	RecordVote(ctx context.Context, event VoteEvent) error
	SaveSubscription(ctx context.Context, fid int64, token, url string) error
	RemoveSubscription(ctx context.Context, fid int64) error
}

// RestoreSummary reports one reconciliation pass: how many timers were
// re-armed, how many stale records were pruned, and how many users
// failed and were skipped.
type RestoreSummary struct {
	Restored int `json:"restored"`
	Cleaned  int `json:"cleaned"`
	Errors   int `json:"errors"`
}

// ReconcileService rebuilds in-memory timers from persisted state.
type ReconcileService interface {
	RestoreAll(ctx context.Context) (RestoreSummary, error)
}
