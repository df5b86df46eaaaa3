// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package poll

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Prober makes a single blocking reachability attempt
type Prober interface {
	Probe(ctx context.Context, addr string) bool
}

type ProberFunc func(ctx context.Context, addr string) bool

func (f ProberFunc) Probe(ctx context.Context, addr string) bool {
	return f(ctx, addr)
}

func reachOp(want bool) string {
	if want {
		return "reachable"
	}

	return "unreachable"
}

// WaitReachable probes the address until its reachability equals want or the timeout elapses
func WaitReachable(ctx context.Context, res Resource, prober Prober, addr string, want bool, interval, timeout time.Duration) error {
	start := time.Now()
	deadline := start.Add(timeout)

	for attempt := 1; ; attempt++ {
		reachable := prober.Probe(ctx, addr)
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("probing %s: %w", res, err)
		}
		slog.Debug("Probed", "kind", res.Kind, "id", res.ID, "addr", addr, "attempt", attempt, "reachable", reachable)

		if reachable == want {
			slog.Info("Reachability confirmed", "kind", res.Kind, "id", res.ID, "addr", addr, "state", reachOp(want), "took", time.Since(start).Round(time.Second))

			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			slog.Error("Reachability timed out", "kind", res.Kind, "id", res.ID, "addr", addr, "want", reachOp(want), "timeout", timeout)

			return &TimeoutError{Resource: res, Op: "become " + reachOp(want), LastState: reachOp(!want), Timeout: timeout}
		}

		if err := wait(ctx, min(interval, remaining)); err != nil {
			return fmt.Errorf("probing %s: %w", res, err)
		}
	}
}

// Target is a single reachability check of a fan-out
type Target struct {
	Resource Resource
	Addr     string
}

// FanOut waits for every target concurrently and returns once all of them completed or timed out. There is no early
// cancellation, every task only writes its own result slot. The optional done callback is called as each target
// completes.
func FanOut(ctx context.Context, prober Prober, targets []Target, want bool, interval, timeout time.Duration, done func(Target, error)) []error {
	errs := make([]error, len(targets))

	g := &errgroup.Group{}
	for idx, target := range targets {
		g.Go(func() error {
			errs[idx] = WaitReachable(ctx, target.Resource, prober, target.Addr, want, interval, timeout)
			if done != nil {
				done(target, errs[idx])
			}

			return nil
		})
	}
	_ = g.Wait()

	return errs
}
