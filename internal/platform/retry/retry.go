// Package retry runs operations with capped exponential backoff. The
// caller classifies each failure; classification, not error text,
// decides whether the loop keeps going.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// Action tells the loop what a failure means.
type Action int

const (
	Stop  Action = iota // give up, the failure cannot heal
	Retry               // back off exponentially and try again
	After               // throttled upstream, wait the longer interval
)

// Policy bounds one retry loop. A nil Clock means wall time; tests
// inject a fake one.
type Policy struct {
	MaxAttempts      int
	InitialBackoff   time.Duration
	RateLimitBackoff time.Duration
	OnRetry          func(attempt int, err error, backoff time.Duration)
	Clock            clockwork.Clock
}

func (p Policy) clock() clockwork.Clock {
	if p.Clock != nil {
		return p.Clock
	}
	return clockwork.NewRealClock()
}

type Classify func(err error) Action

type Operation[T any] func() (T, error)

type VoidOperation func() error

// Do runs op until it succeeds, classify says Stop, attempts run out,
// or ctx is cancelled. The backoff doubles after every attempt; a
// rate-limit classification swaps in RateLimitBackoff first.
func Do[T any](ctx context.Context, p Policy, classify Classify, op Operation[T]) (T, error) {
	var zero T
	backoff := p.InitialBackoff

	for attempt := 1; ; attempt++ {
		val, err := op()
		if err == nil {
			return val, nil
		}

		switch classify(err) {
		case Stop:
			return zero, &PermanentError{Err: err}
		case After:
			backoff = p.RateLimitBackoff
		}

		if attempt >= p.MaxAttempts {
			return zero, fmt.Errorf("gave up after %d attempts: %w", p.MaxAttempts, err)
		}

		if p.OnRetry != nil {
			p.OnRetry(attempt, err, backoff)
		}

		select {
		case <-p.clock().After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return zero, fmt.Errorf("retry aborted by context: %w", ctx.Err())
		}
	}
}

// DoVoid is Do for operations that return no value.
func DoVoid(ctx context.Context, p Policy, classify Classify, op VoidOperation) error {
	_, err := Do(ctx, p, classify, func() (struct{}, error) { return struct{}{}, op() })
	return err
}

// PermanentError marks a failure the classifier declared not worth
// retrying. Unwrap exposes the original error.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }
