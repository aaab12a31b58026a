package domain

import "context"

// SendOutcome classifies one delivery attempt. The caller's recovery
// diverges on it: delivered removes the record, invalid_target removes
// the whole subscription, throttled and error leave state untouched.
type SendOutcome string

const (
	OutcomeDelivered     SendOutcome = "delivered"
	OutcomeInvalidTarget SendOutcome = "invalid_target"
	OutcomeThrottled     SendOutcome = "throttled"
	OutcomeError         SendOutcome = "error"
	// OutcomeNoTarget is decided before the transport is ever called:
	// the user has no delivery capability at fire time.
	OutcomeNoTarget SendOutcome = "no_target"
)

// Transport message limits. Messages exceeding them are rejected before
// the wire, never truncated by the transport.
const (
	MaxTitleLength          = 32
	MaxBodyLength           = 128
	MaxIdempotencyKeyLength = 128
	MaxTargetURLLength      = 1024
)

// PushMessage is one notification handed to the push transport. The
// idempotency key must be deterministic for one logical expiry so that
// racing duplicates collapse server-side.
type PushMessage struct {
	IdempotencyKey string
	Title          string
	Body           string
	TargetURL      string
	Token          string
}

// PushTransport delivers notifications to a user's endpoint. Send
// returns the outcome classification; err carries detail only for the
// OutcomeError case and for pre-wire validation failures.
type PushTransport interface {
	Send(ctx context.Context, endpoint string, msg PushMessage) (SendOutcome, error)
}
