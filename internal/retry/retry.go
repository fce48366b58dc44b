// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

// Package retry applies bounded exponential backoff to rate-limited calls.
package retry

import (
	"context"
	"log/slog"
	"time"

	goretry "github.com/sethvargo/go-retry"

	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

// Policy bounds retries of rate-limited calls. Only errors classified by
// errors.IsRateLimited are retried; everything else returns immediately.
type Policy struct {
	// MaxAttempts counts the first call. Values below 1 mean a single call.
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy is four attempts starting at 500ms and capped at 8s.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 4, BaseDelay: 500 * time.Millisecond, MaxDelay: 8 * time.Second}
}

func (p Policy) backoff() goretry.Backoff {
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultPolicy().BaseDelay
	}
	retries := uint64(0)
	if p.MaxAttempts > 1 {
		retries = uint64(p.MaxAttempts - 1)
	}

	b := goretry.NewExponential(base)
	if p.MaxDelay > 0 {
		b = goretry.WithCappedDuration(p.MaxDelay, b)
	}
	return goretry.WithMaxRetries(retries, b)
}

// Do runs fn until it succeeds, fails with a non-retryable error, the
// attempts run out, or ctx is done. The last error is returned unchanged.
func Do(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	return goretry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err == nil || !mserr.IsRateLimited(err) {
			return err
		}
		slog.Warn("rate limited, backing off", "op", op, "attempt", attempt, "error", err)
		return goretry.RetryableError(err)
	})
}
