// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudcix/validator/pkg/cix"
	"github.com/cloudcix/validator/pkg/util/sshutil"
)

const DefaultTunnelCommand = "show security ike security-associations"

// TunnelChecker verifies the VPN tunnels of a virtual router are up
type TunnelChecker interface {
	CheckTunnels(ctx context.Context, token string, router *Router) error
}

type RouterReader interface {
	ReadRouter(ctx context.Context, token string, id int) (*cix.Router, error)
}

// TunnelInspector reads the IKE security associations from the physical router hosting the virtual router
type TunnelInspector struct {
	API     RouterReader
	Timing  Timing
	Proxy   *sshutil.Remote
	Command string

	// wait is replaced in tests
	wait func(ctx context.Context, cfg *sshutil.Config, cmd string, interval time.Duration) (string, string, error)
}

var _ TunnelChecker = (*TunnelInspector)(nil)

func (t *TunnelInspector) CheckTunnels(ctx context.Context, token string, router *Router) error {
	if len(router.VPNs) == 0 {
		slog.Debug("No VPNs to check", "router", router.Handle.ID)

		return nil
	}

	phys, err := t.API.ReadRouter(ctx, token, router.Handle.RouterID)
	if err != nil {
		return fmt.Errorf("reading router %d: %w", router.Handle.RouterID, err)
	}

	cmd := t.Command
	if cmd == "" {
		cmd = DefaultTunnelCommand
	}
	timing := t.Timing
	if timing.Timeout.Duration == 0 {
		timing = DefaultTimings.VPN
	}
	wait := t.wait
	if wait == nil {
		wait = func(ctx context.Context, cfg *sshutil.Config, cmd string, interval time.Duration) (string, string, error) {
			return cfg.Wait(ctx, cmd, interval)
		}
	}

	cfg := &sshutil.Config{
		Remote: sshutil.Remote{
			User: phys.Username,
			Host: phys.ManagementIP,
		},
		Proxy:    t.Proxy,
		Password: phys.Credentials,
	}

	slog.Info("Checking VPN tunnels", "router", phys.ID, "host", phys.ManagementIP, "vpns", len(router.VPNs))

	ctx, cancel := context.WithTimeout(ctx, timing.Timeout.Duration)
	defer cancel()

	out, errOut, err := wait(ctx, cfg, cmd, timing.Interval.Duration)
	if err != nil {
		return fmt.Errorf("router %d: %w", phys.ID, errors.Join(ErrVPNCheck, err))
	}
	if errOut != "" {
		return fmt.Errorf("router %d: %w: %s", phys.ID, ErrVPNCheck, errOut) //nolint:goerr113
	}

	slog.Info("VPN tunnels", "router", phys.ID, "associations", out)

	return nil
}
