/*
Copyright © 2025 the shipit authors
SPDX-License-Identifier: Apache-2.0
*/

// Package waitfor provides the single wait-for-condition primitive backing
// every bounded polling loop in the pipeline: namespace deletion, rollout
// readiness, monitoring component availability, and external address
// assignment. Each wait declares its interval, attempt bound, and what a
// timeout means (fatal error vs. logged warning).
package waitfor

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	apperrors "github.com/chatdocs/shipit/pkg/errors"
)

// Policy decides how Wait treats an exhausted attempt bound.
type Policy int

const (
	// Fatal returns a TIMEOUT StructuredError when the bound is exhausted.
	Fatal Policy = iota
	// Warn logs a warning and returns nil when the bound is exhausted.
	Warn
)

// ConditionFunc reports whether the awaited condition holds. Returning an
// error aborts the wait immediately; the error is passed through unchanged.
type ConditionFunc func(ctx context.Context) (done bool, err error)

// Condition describes one bounded polling loop.
type Condition struct {
	// Description names the condition in log and error messages.
	Description string
	// Interval is the delay between attempts.
	Interval time.Duration
	// Attempts bounds the loop; total wait is Interval * Attempts.
	Attempts int
	// OnTimeout selects the exhaustion behavior.
	OnTimeout Policy
}

// Wait polls fn at the condition's interval until it reports done, returns
// an error, the context is canceled, or the attempt bound is exhausted.
// The first attempt runs immediately.
func (c Condition) Wait(ctx context.Context, fn ConditionFunc) error {
	timeout := c.Interval * time.Duration(c.Attempts)

	err := wait.PollUntilContextTimeout(ctx, c.Interval, timeout, true,
		func(ctx context.Context) (bool, error) {
			return fn(ctx)
		},
	)
	if err == nil {
		return nil
	}

	// Context cancellation is not a timeout; propagate as-is.
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if !wait.Interrupted(err) {
		return err
	}

	if c.OnTimeout == Warn {
		slog.Warn("condition not met within bound, continuing",
			"condition", c.Description,
			"attempts", c.Attempts,
			"interval", c.Interval.String())
		return nil
	}

	return apperrors.WrapWithContext(
		apperrors.ErrCodeTimeout,
		"timed out waiting for "+c.Description,
		err,
		map[string]any{
			"attempts": c.Attempts,
			"interval": c.Interval.String(),
		},
	)
}
