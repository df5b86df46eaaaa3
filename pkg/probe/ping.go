// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

// Package probe checks reachability of resources from the machine running the validator.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"
)

const (
	DefaultPingTimeout    = 1 * time.Second
	DefaultMaxConcurrency = 32
)

// Ping probes with a single ICMP echo through the system ping binary
type Ping struct {
	Timeout time.Duration

	pings *semaphore.Weighted
	run   func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewPing(maxConcurrency int64) *Ping {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}

	return &Ping{
		Timeout: DefaultPingTimeout,
		pings:   semaphore.NewWeighted(maxConcurrency),
		run:     runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput() //nolint:wrapcheck
}

func (p *Ping) Probe(ctx context.Context, addr string) bool {
	if err := p.pings.Acquire(ctx, 1); err != nil {
		return false
	}
	defer p.pings.Release(1)

	wait := max(int(p.Timeout.Seconds()), 1)
	ctx, cancel := context.WithTimeout(ctx, time.Duration(wait+5)*time.Second)
	defer cancel()

	out, err := p.run(ctx, "ping", "-c", "1", "-W", fmt.Sprint(wait), addr)
	slog.Debug("Ping result", "addr", addr, "ok", err == nil, "out", strings.TrimSpace(string(out)))

	return err == nil
}
