package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRecordKey_Normalizes(t *testing.T) {
	key := NewRecordKey("0xABCDef0123456789abcdef0123456789ABCDEF01", " Base ")
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", key.TokenAddress)
	assert.Equal(t, "base", key.Network)

	key = NewRecordKey("0xabc", "")
	assert.Equal(t, NetworkUnknown, key.Network)
}

func TestRecordKey_SameAddressDifferentNetwork(t *testing.T) {
	a := NewRecordKey("0xabc", "base")
	b := NewRecordKey("0xabc", "monad")
	assert.NotEqual(t, a, b)
}

func TestCooldownRecord_Expired_BoundaryCountsAsExpired(t *testing.T) {
	rec := CooldownRecord{CooldownEnd: 1000}
	assert.False(t, rec.Expired(999))
	assert.True(t, rec.Expired(1000))
	assert.True(t, rec.Expired(1001))
}

func TestSubscription_UpsertRecord_ReplacesSameKey(t *testing.T) {
	sub := &Subscription{FID: 7}
	sub.UpsertRecord(CooldownRecord{TokenAddress: "0xAAA", Network: "base", VotedAt: 100, CooldownEnd: 200})
	sub.UpsertRecord(CooldownRecord{TokenAddress: "0xaaa", Network: "base", VotedAt: 150, CooldownEnd: 250})

	require.Len(t, sub.Records, 1)
	assert.Equal(t, int64(250), sub.Records[0].CooldownEnd)

	sub.UpsertRecord(CooldownRecord{TokenAddress: "0xaaa", Network: "monad", VotedAt: 160, CooldownEnd: 260})
	assert.Len(t, sub.Records, 2)
}

func TestSubscription_RemoveRecord(t *testing.T) {
	sub := &Subscription{
		Records: []CooldownRecord{
			{TokenAddress: "0xaaa", Network: "base"},
			{TokenAddress: "0xbbb", Network: "base"},
		},
	}

	assert.True(t, sub.RemoveRecord(NewRecordKey("0xAAA", "base")))
	assert.False(t, sub.RemoveRecord(NewRecordKey("0xAAA", "base")))
	require.Len(t, sub.Records, 1)
	assert.Equal(t, "0xbbb", sub.Records[0].TokenAddress)
}

func TestSubscription_PruneExpired(t *testing.T) {
	sub := &Subscription{
		Records: []CooldownRecord{
			{TokenAddress: "0xaaa", Network: "base", CooldownEnd: 100},
			{TokenAddress: "0xbbb", Network: "base", CooldownEnd: 300},
			{TokenAddress: "0xccc", Network: "monad", CooldownEnd: 150},
		},
	}

	removed := sub.PruneExpired(200)

	assert.Equal(t, 2, removed)
	require.Len(t, sub.Records, 1)
	assert.Equal(t, "0xbbb", sub.Records[0].TokenAddress)
}

func TestSubscription_ActiveRecords(t *testing.T) {
	sub := &Subscription{
		Records: []CooldownRecord{
			{TokenAddress: "0xaaa", CooldownEnd: 100},
			{TokenAddress: "0xbbb", CooldownEnd: 300},
		},
	}

	active := sub.ActiveRecords(200)
	require.Len(t, active, 1)
	assert.Equal(t, "0xbbb", active[0].TokenAddress)
	assert.Len(t, sub.Records, 2, "ActiveRecords must not mutate")
}

func TestSubscription_HasTarget(t *testing.T) {
	assert.False(t, (*Subscription)(nil).HasTarget())
	assert.False(t, (&Subscription{Token: "t"}).HasTarget())
	assert.False(t, (&Subscription{URL: "u"}).HasTarget())
	assert.True(t, (&Subscription{Token: "t", URL: "u"}).HasTarget())
}

func TestVoteEvent_VotedAt_PrefersBlockTime(t *testing.T) {
	assert.Equal(t, int64(500), VoteEvent{OccurredAt: 900, BlockTime: 500}.VotedAt())
	assert.Equal(t, int64(900), VoteEvent{OccurredAt: 900}.VotedAt())
}
