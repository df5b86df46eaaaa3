// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"context"
	"log/slog"

	"github.com/cloudcix/validator/pkg/poll"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// Recheck pings all probeable VMs of the project concurrently and returns the number of VMs that didn't reply in
// time. Failures are only reported, long running projects are expected to lose a VM now and then.
func (p *Project) Recheck(ctx context.Context) (int, error) {
	if err := p.created(); err != nil {
		return 0, err
	}

	targets := []poll.Target{}
	for _, vm := range p.VMs {
		addr, ok := vm.Probeable()
		if !ok {
			slog.Debug("Skipping recheck of VM", "id", vm.Handle.ID, "name", vm.Handle.Name)

			continue
		}
		targets = append(targets, poll.Target{Resource: vm.resource(), Addr: addr})
	}

	slog.Info("Rechecking VMs are reachable", "project", p.ID, "vms", len(targets))

	var bar *mpb.Bar
	var pb *mpb.Progress
	if p.opts.Progress != nil && slog.Default().Enabled(ctx, slog.LevelInfo) && len(targets) > 0 {
		pb = mpb.New(mpb.WithWidth(60), mpb.WithOutput(p.opts.Progress))
		bar = pb.AddBar(int64(len(targets)),
			mpb.PrependDecorators(
				decor.Name("recheck", decor.WCSyncSpaceR),
				decor.CountersNoUnit("%d / %d", decor.WCSyncSpace),
			),
			mpb.AppendDecorators(
				decor.OnComplete(decor.Elapsed(decor.ET_STYLE_GO, decor.WCSyncSpace), "done"),
			),
		)
	}

	timing := p.opts.Timings.Recheck
	errs := poll.FanOut(ctx, p.prober, targets, true, timing.Interval.Duration, timing.Timeout.Duration, func(target poll.Target, err error) {
		if err != nil {
			slog.Warn("VM isn't reachable", "vm", target.Resource.ID, "addr", target.Addr, "err", err)
		}
		if bar != nil {
			bar.Increment()
		}
	})

	if pb != nil {
		pb.Wait()
	}

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}

	if failed > 0 {
		slog.Warn("Recheck finished with unreachable VMs", "project", p.ID, "failed", failed, "total", len(targets))
	} else {
		slog.Info("Recheck finished", "project", p.ID, "total", len(targets))
	}

	return failed, nil
}
