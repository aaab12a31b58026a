package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/pittpv/mon-far-app/internal/domain"
	"github.com/pittpv/mon-far-app/internal/metrics"
)

const notificationTitle = "Vote cooldown ended"

// displayNames maps network identifiers to what the notification shows.
// Unlisted networks fall back to a capitalized form of the raw id.
var displayNames = map[string]string{
	"monad":         "Monad",
	"monad-testnet": "Monad Testnet",
	"base":          "Base",
	"ethereum":      "Ethereum",
	"optimism":      "Optimism",
	"arbitrum":      "Arbitrum",

	domain.NetworkUnknown: "an unknown network",
}

// Notifier turns an expired cooldown into one push notification.
type Notifier struct {
	store     domain.RecordStore
	transport domain.PushTransport
	targetURL string
	clock     clockwork.Clock
}

func NewNotifier(store domain.RecordStore, transport domain.PushTransport, targetURL string, clock clockwork.Clock) *Notifier {
	return &Notifier{
		store:     store,
		transport: transport,
		targetURL: targetURL,
		clock:     clock,
	}
}

// NotifyExpired loads the user's delivery capability fresh (it may have
// changed since the timer was armed), sends the message, and returns
// the transport's outcome. It performs no store writes: the caller owns
// the state transition for each outcome.
func (n *Notifier) NotifyExpired(ctx context.Context, fid int64, key domain.RecordKey, cooldownEnd int64) (domain.SendOutcome, error) {
	sub, err := n.store.Get(ctx, fid)
	if err != nil {
		if errors.Is(err, domain.ErrSubscriptionNotFound) {
			return domain.OutcomeNoTarget, nil
		}
		return domain.OutcomeError, fmt.Errorf("load delivery target for fid %d: %w", fid, err)
	}
	if !sub.HasTarget() {
		return domain.OutcomeNoTarget, nil
	}

	msg := domain.PushMessage{
		IdempotencyKey: IdempotencyKey(fid, key, cooldownEnd),
		Title:          notificationTitle,
		Body:           messageBody(key),
		TargetURL:      n.targetURL,
		Token:          sub.Token,
	}

	start := n.clock.Now()
	outcome, err := n.transport.Send(ctx, sub.URL, msg)
	metrics.NotificationSendDuration.Observe(n.clock.Since(start).Seconds())

	if err != nil {
		return outcome, fmt.Errorf("send notification for fid %d: %w", fid, err)
	}
	return outcome, nil
}

// IdempotencyKey is deterministic for one logical expiry, so a timer
// racing a reconciliation re-fire collapses to one delivery on the
// transport side. Address and network are clipped to keep the key well
// under the transport's length limit.
func IdempotencyKey(fid int64, key domain.RecordKey, cooldownEnd int64) string {
	return fmt.Sprintf("vote-cd:%d:%s:%s:%d",
		fid, clip(key.TokenAddress, 10), clip(key.Network, 8), cooldownEnd)
}

func messageBody(key domain.RecordKey) string {
	return fmt.Sprintf("You can vote for %s on %s again!",
		shortAddress(key.TokenAddress), networkName(key.Network))
}

// shortAddress renders an EVM address as 0x1234...abcd. Anything too
// short to clip is shown as-is.
func shortAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

func networkName(network string) string {
	if name, ok := displayNames[network]; ok {
		return name
	}
	return strings.ToUpper(network[:1]) + network[1:]
}

func clip(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
