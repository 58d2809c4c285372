// Package opengine implements the multi-phase shard map operation engine:
// the Do/Undo phase sequence, the pending-operations log, the crash
// recovery scanner, and the retry/backoff policy that wraps every catalog
// call (spec.md §4.4, §4.7, §4.9).
package opengine

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dreamware/shardcatalog/internal/shardmaperr"
)

// Policy is the retry/backoff configuration of spec.md §4.7: at most
// MaxAttempts tries, starting at BaseDelay and growing exponentially (the
// backoff library's default multiplier and jitter) up to MaxDelay,
// giving up once the cumulative elapsed time would exceed MaxCumulative (0
// meaning unbounded). The zero Policy — (1, 0, 0, 0) — means "try once,
// never retry", the spec's stated default.
type Policy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	MaxCumulative time.Duration
}

// DefaultPolicy is the spec's stated default: a single attempt, no backoff.
var DefaultPolicy = Policy{MaxAttempts: 1}

// Do runs fn under policy, retrying only when the error is classified
// transient by shardmaperr.IsTransient. A permanent error, or the final
// attempt's error, is returned as-is.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	if policy.MaxAttempts <= 0 {
		policy = DefaultPolicy
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = policy.BaseDelay
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = backoff.DefaultInitialInterval
	}
	eb.MaxInterval = policy.MaxDelay
	if eb.MaxInterval <= 0 {
		eb.MaxInterval = eb.InitialInterval
	}
	eb.MaxElapsedTime = policy.MaxCumulative

	var bo backoff.BackOff = eb
	bo = backoff.WithMaxRetries(bo, uint64(policy.MaxAttempts-1))
	bo = backoff.WithContext(bo, ctx)

	var lastErr error
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if attempt >= policy.MaxAttempts || !shardmaperr.IsTransient(lastErr) {
			return backoff.Permanent(lastErr)
		}
		return lastErr
	}, bo)

	if err == nil {
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return err
}
