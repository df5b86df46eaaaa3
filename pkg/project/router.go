// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/cloudcix/validator/pkg/cix"
	"github.com/cloudcix/validator/pkg/poll"
)

// Router verifies the virtual router of a project
type Router struct {
	api     API
	prober  poll.Prober
	timings *Timings
	token   string

	ProjectID int
	Handle    cix.VirtualRouter
	VPNs      []cix.VPN
}

func (r *Router) resource() poll.Resource {
	return poll.Resource{Kind: cix.KindVirtualRouter, ID: strconv.Itoa(r.Handle.ID)}
}

func (r *Router) UpdateToken(token string) {
	r.token = token
}

func (r *Router) verify(ctx context.Context, table poll.Table[cix.State], timing Timing) error {
	read := func(ctx context.Context) (cix.State, error) {
		return r.api.ReadState(ctx, r.token, cix.KindVirtualRouter, r.Handle.ID)
	}

	result, err := poll.Poll(ctx, r.resource(), read, table, timing.Interval.Duration, timing.Timeout.Duration)
	if err != nil {
		return fmt.Errorf("verifying %s of virtual router %d in project %d: %w", table.Name, r.Handle.ID, r.ProjectID, err)
	}
	r.Handle.State = result.LastState

	return nil
}

func (r *Router) CheckBuild(ctx context.Context) error {
	slog.Info("Checking virtual router build", "id", r.Handle.ID, "project", r.ProjectID)

	return r.verify(ctx, routerBuildTable, r.timings.RouterBuild)
}

func (r *Router) CheckUpdate(ctx context.Context) error {
	slog.Info("Checking virtual router update", "id", r.Handle.ID, "project", r.ProjectID)

	return r.verify(ctx, routerUpdateTable, r.timings.RouterUpdate)
}

func (r *Router) CheckDelete(ctx context.Context) error {
	slog.Info("Checking virtual router delete", "id", r.Handle.ID, "project", r.ProjectID)

	return r.verify(ctx, routerDeleteTable, r.timings.RouterDelete)
}

// CheckReachable pings the public address of the virtual router until it replies
func (r *Router) CheckReachable(ctx context.Context) error {
	addr := r.Handle.PublicIP()
	if addr == "" {
		return fmt.Errorf("virtual router %d: %w", r.Handle.ID, ErrNoPublicIP)
	}

	slog.Info("Checking virtual router is reachable", "id", r.Handle.ID, "addr", addr)

	if err := poll.WaitReachable(ctx, r.resource(), r.prober, addr, true, r.timings.Ping.Interval.Duration, r.timings.Ping.Timeout.Duration); err != nil {
		return fmt.Errorf("checking virtual router %d: %w", r.Handle.ID, err)
	}

	return nil
}
