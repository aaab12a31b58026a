package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"time"
	"unicode/utf8"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/pittpv/mon-far-app/internal/domain"
	"github.com/pittpv/mon-far-app/internal/metrics"
)

// PushClient delivers notifications with one JSON POST per message to
// the user's notification endpoint. A local rate limiter answers
// throttled without touching the wire, and a circuit breaker fails fast
// while the remote side is down.
type PushClient struct {
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

var _ domain.PushTransport = (*PushClient)(nil)

func NewPushClient(timeout time.Duration, ratePerSec float64, burst int) *PushClient {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "push-transport",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"component", name,
				"from", from.String(),
				"to", to.String())
			metrics.NotifyBreakerState.Set(stateToFloat(to))
		},
	})

	return &PushClient{
		http:    &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), burst),
		breaker: breaker,
	}
}

type sendRequest struct {
	NotificationID string   `json:"notificationId"`
	Title          string   `json:"title"`
	Body           string   `json:"body"`
	TargetURL      string   `json:"targetUrl"`
	Tokens         []string `json:"tokens"`
}

type sendResponse struct {
	Result struct {
		SuccessfulTokens  []string `json:"successfulTokens"`
		InvalidTokens     []string `json:"invalidTokens"`
		RateLimitedTokens []string `json:"rateLimitedTokens"`
	} `json:"result"`
}

// Send posts the message and classifies the answer. Responses the
// endpoint actually produced (including invalid and rate-limited) count
// as breaker successes; only transport failures and 5xx trip it.
func (c *PushClient) Send(ctx context.Context, endpoint string, msg domain.PushMessage) (domain.SendOutcome, error) {
	if err := validateMessage(msg); err != nil {
		return domain.OutcomeError, err
	}

	if !c.limiter.Allow() {
		return domain.OutcomeThrottled, nil
	}

	result, err := c.breaker.Execute(func() (any, error) {
		outcome, err := c.post(ctx, endpoint, msg)
		if err != nil {
			return nil, err
		}
		return outcome, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return domain.OutcomeError, fmt.Errorf("push transport unavailable: %w", err)
		}
		return domain.OutcomeError, err
	}

	return result.(domain.SendOutcome), nil
}

func (c *PushClient) post(ctx context.Context, endpoint string, msg domain.PushMessage) (domain.SendOutcome, error) {
	payload, err := json.Marshal(sendRequest{
		NotificationID: msg.IdempotencyKey,
		Title:          msg.Title,
		Body:           msg.Body,
		TargetURL:      msg.TargetURL,
		Tokens:         []string{msg.Token},
	})
	if err != nil {
		return domain.OutcomeError, fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return domain.OutcomeError, fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.OutcomeError, fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.OutcomeError, fmt.Errorf("read notification response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return classify(body, msg.Token)
	case http.StatusNotFound, http.StatusGone:
		return domain.OutcomeInvalidTarget, nil
	case http.StatusTooManyRequests:
		return domain.OutcomeThrottled, nil
	default:
		return domain.OutcomeError, fmt.Errorf("send failed with status %d: %s", resp.StatusCode, string(body))
	}
}

// classify reads the per-token result lists out of a 200 response.
func classify(body []byte, token string) (domain.SendOutcome, error) {
	var parsed sendResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.OutcomeError, fmt.Errorf("decode notification response: %w", err)
	}

	switch {
	case slices.Contains(parsed.Result.InvalidTokens, token):
		return domain.OutcomeInvalidTarget, nil
	case slices.Contains(parsed.Result.RateLimitedTokens, token):
		return domain.OutcomeThrottled, nil
	case slices.Contains(parsed.Result.SuccessfulTokens, token):
		return domain.OutcomeDelivered, nil
	default:
		return domain.OutcomeError, errors.New("token missing from transport response")
	}
}

func validateMessage(msg domain.PushMessage) error {
	if utf8.RuneCountInString(msg.Title) > domain.MaxTitleLength {
		return fmt.Errorf("title is %d runes, limit %d: %w",
			utf8.RuneCountInString(msg.Title), domain.MaxTitleLength, domain.ErrMessageTooLong)
	}
	if utf8.RuneCountInString(msg.Body) > domain.MaxBodyLength {
		return fmt.Errorf("body is %d runes, limit %d: %w",
			utf8.RuneCountInString(msg.Body), domain.MaxBodyLength, domain.ErrMessageTooLong)
	}
	if len(msg.IdempotencyKey) > domain.MaxIdempotencyKeyLength {
		return fmt.Errorf("idempotency key is %d bytes, limit %d: %w",
			len(msg.IdempotencyKey), domain.MaxIdempotencyKeyLength, domain.ErrMessageTooLong)
	}
	if len(msg.TargetURL) > domain.MaxTargetURLLength {
		return fmt.Errorf("target url is %d bytes, limit %d: %w",
			len(msg.TargetURL), domain.MaxTargetURLLength, domain.ErrMessageTooLong)
	}
	return nil
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
