// Package retry re-runs failed store writes with exponential backoff.
package retry

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
	MaxRetries      uint64
	Permanent       []error
}

var DefaultPolicy = Policy{
	InitialInterval: 50 * time.Millisecond,
	MaxInterval:     time.Second,
	MaxElapsed:      5 * time.Second,
	MaxRetries:      5,
}

// WithPermanent returns a copy of p that never retries errors matching
// targets, such as not-found or validation failures.
func (p Policy) WithPermanent(targets ...error) Policy {
	p.Permanent = append(append([]error(nil), p.Permanent...), targets...)
	return p
}

func (p Policy) isPermanent(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	for _, target := range p.Permanent {
		if errors.Is(err, target) {
			return true
		}
	}

	return false
}

func (p Policy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = p.MaxElapsed

	var bo backoff.BackOff = b
	if p.MaxRetries > 0 {
		bo = backoff.WithMaxRetries(bo, p.MaxRetries)
	}

	return backoff.WithContext(bo, ctx)
}

// Do runs op until it succeeds, returns a permanent error, or the policy
// gives up. The last error is returned unwrapped.
func (p Policy) Do(ctx context.Context, logger *log.Logger, name string, op func() error) error {
	attempt := 0
	return backoff.RetryNotify(
		func() error {
			attempt++
			err := op()
			if err != nil && p.isPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		},
		p.backOff(ctx),
		func(err error, wait time.Duration) {
			if logger != nil {
				logger.Printf("%s: attempt %d failed, retrying in %s: %v", name, attempt, wait, err)
			}
		},
	)
}

func Do(ctx context.Context, logger *log.Logger, name string, op func() error) error {
	return DefaultPolicy.Do(ctx, logger, name, op)
}
