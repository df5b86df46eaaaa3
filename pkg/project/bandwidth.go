// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"context"
	"errors"
	"log/slog"

	"github.com/cloudcix/validator/pkg/stress"
)

// BandwidthTester stresses a single VM reachable on the given public address
type BandwidthTester interface {
	Test(ctx context.Context, name string, addr string) error
}

// CheckBandwidth runs the bandwidth test against every probeable VM one after another and returns the number of VMs
// that failed it. An operator abort skips the remaining VMs without counting them.
func (p *Project) CheckBandwidth(ctx context.Context) (int, error) {
	if err := p.created(); err != nil {
		return 0, err
	}
	if p.opts.Bandwidth == nil {
		slog.Warn("No bandwidth tester configured, skipping", "project", p.ID)

		return 0, nil
	}

	failed := 0
	for _, vm := range p.VMs {
		addr, ok := vm.Probeable()
		if !ok {
			slog.Info("Skipping bandwidth test of VM", "id", vm.Handle.ID, "name", vm.Handle.Name)

			continue
		}

		slog.Info("Testing VM bandwidth", "id", vm.Handle.ID, "name", vm.Handle.Name, "addr", addr)
		err := p.opts.Bandwidth.Test(ctx, vm.Handle.Name, addr)
		if errors.Is(err, stress.ErrAborted) {
			slog.Warn("Bandwidth test aborted, skipping remaining VMs", "project", p.ID, "vm", vm.Handle.Name)

			break
		}
		if err != nil {
			slog.Error("Bandwidth test failed", "id", vm.Handle.ID, "name", vm.Handle.Name, "err", err)
			failed++

			continue
		}
		slog.Info("Bandwidth test passed", "id", vm.Handle.ID, "name", vm.Handle.Name)
	}

	return failed, nil
}
