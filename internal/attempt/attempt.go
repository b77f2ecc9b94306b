// Package attempt provides a bounded retry combinator.
//
// Every loop that waits on untrusted backend output goes through Do so that
// no call site can spin forever: a Policy always carries an attempt ceiling,
// and Do returns a tagged Outcome instead of an open-ended error stream.
package attempt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
)

// ErrExhausted marks an outcome whose attempt budget ran out.
var ErrExhausted = errors.New("attempts exhausted")

// Backoff selects how the delay grows between attempts.
type Backoff int

const (
	// Fixed waits Delay between every attempt.
	Fixed Backoff = iota
	// Linear waits Delay, 2*Delay, 3*Delay, ...
	Linear
	// Exponential waits Delay, 2*Delay, 4*Delay, ... capped at MaxDelay.
	Exponential
)

// Policy bounds a retry loop.
type Policy struct {
	// Attempts is the total number of tries, including the first. Values
	// below 1 are treated as 1.
	Attempts int
	Delay    time.Duration
	MaxDelay time.Duration
	Backoff  Backoff
	// Jitter adds a random delay in [0, Jitter) on top of the backoff.
	Jitter time.Duration

	// RetryIf reports whether err is worth another attempt. Nil retries
	// every error.
	RetryIf func(error) bool

	// OnRetry is called after each failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

// Outcome is the tagged result of Do.
type Outcome[T any] struct {
	Value    T
	Attempts int
	// Err is nil on success. It wraps ErrExhausted when the budget ran
	// out, the context error on cancellation, or the last error when
	// RetryIf rejected it.
	Err error
}

// OK reports whether the call eventually succeeded.
func (o Outcome[T]) OK() bool {
	return o.Err == nil
}

// Exhausted reports whether every allowed attempt failed.
func (o Outcome[T]) Exhausted() bool {
	return errors.Is(o.Err, ErrExhausted)
}

// Do runs fn until it succeeds, the policy gives up, or ctx is done.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) Outcome[T] {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var out Outcome[T]
	rejected := false

	value, err := retry.DoWithData(
		func() (T, error) {
			out.Attempts++
			return fn(ctx)
		},
		p.options(ctx, attempts, &rejected)...,
	)
	if err == nil {
		out.Value = value
		return out
	}

	switch {
	case ctx.Err() != nil:
		out.Err = fmt.Errorf("cancelled after %d attempts: %w", out.Attempts, ctx.Err())
	case rejected:
		out.Err = err
	default:
		out.Err = fmt.Errorf("%w after %d attempts: %w", ErrExhausted, out.Attempts, err)
	}
	return out
}

func (p Policy) options(ctx context.Context, attempts int, rejected *bool) []retry.Option {
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(p.Delay),
		retry.LastErrorOnly(true),
		retry.DelayType(p.delayType()),
		retry.RetryIf(func(err error) bool {
			if p.RetryIf == nil || p.RetryIf(err) {
				return true
			}
			*rejected = true
			return false
		}),
	}
	if p.MaxDelay > 0 {
		opts = append(opts, retry.MaxDelay(p.MaxDelay))
	}
	if p.Jitter > 0 {
		opts = append(opts, retry.MaxJitter(p.Jitter))
	}
	if p.OnRetry != nil {
		opts = append(opts, retry.OnRetry(func(n uint, err error) {
			if int(n)+1 < attempts {
				p.OnRetry(int(n)+1, err)
			}
		}))
	}
	return opts
}

func (p Policy) delayType() retry.DelayTypeFunc {
	var base retry.DelayTypeFunc
	switch p.Backoff {
	case Linear:
		delay := p.Delay
		base = func(n uint, _ error, _ *retry.Config) time.Duration {
			return delay * time.Duration(n+1)
		}
	case Exponential:
		base = retry.BackOffDelay
	default:
		base = retry.FixedDelay
	}
	if p.Jitter > 0 {
		return retry.CombineDelay(base, retry.RandomDelay)
	}
	return base
}
