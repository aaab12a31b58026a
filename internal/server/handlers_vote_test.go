package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pittpv/mon-far-app/internal/domain"
)

const testTokenAddress = "0x7a2088a1bFc9d81c55368AE168C2C02570cB814F"

func TestHandleVote_RecordsVote(t *testing.T) {
	cooldowns := &mockCooldownService{}
	srv := newTestServer(t, cooldowns)

	votedAt := testServerEpoch.Add(-time.Minute).Unix()
	blockTime := testServerEpoch.Add(-2 * time.Minute).Unix()
	body := fmt.Sprintf(`{"fid": 4242, "tokenAddress": %q, "network": "monad", "timestamp": %d, "blockTimestamp": %d}`,
		testTokenAddress, votedAt, blockTime)

	rec := postJSON(srv, "/api/vote", body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	votes := cooldowns.recordedVotes()
	require.Len(t, votes, 1)
	assert.Equal(t, domain.VoteEvent{
		FID:          4242,
		TokenAddress: testTokenAddress,
		Network:      "monad",
		OccurredAt:   votedAt,
		BlockTime:    blockTime,
	}, votes[0])
}

func TestHandleVote_BlockTimestampOptional(t *testing.T) {
	cooldowns := &mockCooldownService{}
	srv := newTestServer(t, cooldowns)

	votedAt := testServerEpoch.Add(-time.Minute).Unix()
	body := fmt.Sprintf(`{"fid": 7, "tokenAddress": %q, "network": "monad", "timestamp": %d}`,
		testTokenAddress, votedAt)

	rec := postJSON(srv, "/api/vote", body)

	assert.Equal(t, http.StatusOK, rec.Code)
	votes := cooldowns.recordedVotes()
	require.Len(t, votes, 1)
	assert.Zero(t, votes[0].BlockTime)
	assert.Equal(t, votedAt, votes[0].VotedAt())
}

func TestHandleVote_ValidationErrors(t *testing.T) {
	validTS := testServerEpoch.Add(-time.Minute).Unix()
	futureTS := testServerEpoch.Add(eventClockSkew + time.Minute).Unix()

	valid := func(overrides string) string {
		return fmt.Sprintf(`{"fid": 4242, "tokenAddress": %q, "network": "monad", "timestamp": %d%s}`,
			testTokenAddress, validTS, overrides)
	}

	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{
			name:    "malformed JSON",
			body:    `{"fid": `,
			wantMsg: "invalid request body",
		},
		{
			name:    "missing fid",
			body:    fmt.Sprintf(`{"tokenAddress": %q, "network": "monad", "timestamp": %d}`, testTokenAddress, validTS),
			wantMsg: "fid must be a positive integer",
		},
		{
			name:    "negative fid",
			body:    fmt.Sprintf(`{"fid": -1, "tokenAddress": %q, "network": "monad", "timestamp": %d}`, testTokenAddress, validTS),
			wantMsg: "fid must be a positive integer",
		},
		{
			name:    "address without 0x prefix",
			body:    fmt.Sprintf(`{"fid": 4242, "tokenAddress": "7a2088a1bFc9d81c55368AE168C2C02570cB814F", "network": "monad", "timestamp": %d}`, validTS),
			wantMsg: "tokenAddress must be 0x followed by 40 hex characters",
		},
		{
			name:    "address too short",
			body:    fmt.Sprintf(`{"fid": 4242, "tokenAddress": "0xabc", "network": "monad", "timestamp": %d}`, validTS),
			wantMsg: "tokenAddress must be 0x followed by 40 hex characters",
		},
		{
			name:    "address with non-hex characters",
			body:    fmt.Sprintf(`{"fid": 4242, "tokenAddress": "0xZZ2088a1bFc9d81c55368AE168C2C02570cB814F", "network": "monad", "timestamp": %d}`, validTS),
			wantMsg: "tokenAddress must be 0x followed by 40 hex characters",
		},
		{
			name:    "missing network",
			body:    fmt.Sprintf(`{"fid": 4242, "tokenAddress": %q, "timestamp": %d}`, testTokenAddress, validTS),
			wantMsg: "network is required",
		},
		{
			name:    "network too long",
			body:    fmt.Sprintf(`{"fid": 4242, "tokenAddress": %q, "network": %q, "timestamp": %d}`, testTokenAddress, strings.Repeat("a", 33), validTS),
			wantMsg: "network must be at most 32 characters",
		},
		{
			name:    "timestamp implausibly old",
			body:    fmt.Sprintf(`{"fid": 4242, "tokenAddress": %q, "network": "monad", "timestamp": %d}`, testTokenAddress, earliestEventTime-1),
			wantMsg: "timestamp is implausibly old",
		},
		{
			name:    "timestamp in the future",
			body:    fmt.Sprintf(`{"fid": 4242, "tokenAddress": %q, "network": "monad", "timestamp": %d}`, testTokenAddress, futureTS),
			wantMsg: "timestamp is in the future",
		},
		{
			name:    "block timestamp implausibly old",
			body:    valid(fmt.Sprintf(`, "blockTimestamp": %d`, earliestEventTime-1)),
			wantMsg: "blockTimestamp is implausibly old",
		},
		{
			name:    "block timestamp in the future",
			body:    valid(fmt.Sprintf(`, "blockTimestamp": %d`, futureTS)),
			wantMsg: "blockTimestamp is in the future",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cooldowns := &mockCooldownService{}
			srv := newTestServer(t, cooldowns)

			rec := postJSON(srv, "/api/vote", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantMsg)
			assert.Contains(t, rec.Body.String(), `"type":"validation"`)
			assert.Empty(t, cooldowns.recordedVotes(), "invalid vote must not reach the ledger")
		})
	}
}

func TestHandleVote_TimestampAtSkewBoundaryAccepted(t *testing.T) {
	cooldowns := &mockCooldownService{}
	srv := newTestServer(t, cooldowns)

	boundary := testServerEpoch.Add(eventClockSkew).Unix()
	body := fmt.Sprintf(`{"fid": 4242, "tokenAddress": %q, "network": "monad", "timestamp": %d}`,
		testTokenAddress, boundary)

	rec := postJSON(srv, "/api/vote", body)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, cooldowns.recordedVotes(), 1)
}

func TestHandleVote_LedgerFailure(t *testing.T) {
	cooldowns := &mockCooldownService{
		recordVoteFn: func(ctx context.Context, event domain.VoteEvent) error {
			return errors.New("store unavailable")
		},
	}
	srv := newTestServer(t, cooldowns)

	body := fmt.Sprintf(`{"fid": 4242, "tokenAddress": %q, "network": "monad", "timestamp": %d}`,
		testTokenAddress, testServerEpoch.Add(-time.Minute).Unix())

	rec := postJSON(srv, "/api/vote", body)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "failed to record vote")
	assert.Contains(t, rec.Body.String(), `"type":"internal"`)
}
