// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cloudcix/validator/pkg/cix"
	"github.com/cloudcix/validator/pkg/poll"
)

// PhantomImage is the display name of manually provisioned images without an automated build
const PhantomImage = "Manual"

// VM verifies a single VM of a project
type VM struct {
	api     API
	prober  poll.Prober
	timings *Timings
	token   string

	Handle cix.VM
}

func (vm *VM) resource() poll.Resource {
	return poll.Resource{Kind: cix.KindVM, ID: strconv.Itoa(vm.Handle.ID)}
}

func (vm *VM) UpdateToken(token string) {
	vm.token = token
}

// Phantom reports whether the VM is backed by a manually provisioned image
func (vm *VM) Phantom() bool {
	return vm.Handle.Image.DisplayName == PhantomImage
}

// Probeable reports whether the VM can be pinged and its address
func (vm *VM) Probeable() (string, bool) {
	if vm.Phantom() {
		return "", false
	}

	addr := vm.Handle.PublicIP()

	return addr, addr != ""
}

func (vm *VM) verify(ctx context.Context, table poll.Table[cix.State], timing Timing) error {
	read := func(ctx context.Context) (cix.State, error) {
		return vm.api.ReadState(ctx, vm.token, cix.KindVM, vm.Handle.ID)
	}

	result, err := poll.Poll(ctx, vm.resource(), read, table, timing.Interval.Duration, timing.Timeout.Duration)
	if err != nil {
		return fmt.Errorf("verifying %s of vm %d (%s): %w", table.Name, vm.Handle.ID, vm.Handle.Image.DisplayName, err)
	}
	vm.Handle.State = result.LastState

	return nil
}

func (vm *VM) CheckBuild(ctx context.Context) error {
	slog.Info("Checking VM build", "id", vm.Handle.ID, "name", vm.Handle.Name, "image", vm.Handle.Image.DisplayName)

	return vm.verify(ctx, vmBuildTable, vm.timings.VMBuild)
}

func (vm *VM) CheckUpdating(ctx context.Context) error {
	slog.Info("Checking VM update", "id", vm.Handle.ID, "name", vm.Handle.Name)

	return vm.verify(ctx, vmUpdatingTable, vm.timings.VMUpdating)
}

func (vm *VM) CheckDelete(ctx context.Context) error {
	slog.Info("Checking VM delete", "id", vm.Handle.ID, "name", vm.Handle.Name)

	return vm.verify(ctx, vmDeleteTable, vm.timings.VMDelete)
}

// CheckRunning makes a single read and fails unless the VM is running
func (vm *VM) CheckRunning(ctx context.Context) error {
	state, err := vm.api.ReadState(ctx, vm.token, cix.KindVM, vm.Handle.ID)
	if err != nil {
		return fmt.Errorf("reading state of vm %d: %w", vm.Handle.ID, err)
	}

	if state != cix.StateRunning {
		return fmt.Errorf("vm %d isn't running: %w", vm.Handle.ID, &poll.StateError{Resource: vm.resource(), Op: "running", State: state.String()})
	}
	vm.Handle.State = state

	slog.Info("VM is running", "id", vm.Handle.ID, "name", vm.Handle.Name)

	return nil
}

func (vm *VM) Stop(ctx context.Context) error {
	slog.Info("Stopping VM", "id", vm.Handle.ID, "name", vm.Handle.Name)

	if err := vm.api.UpdateState(ctx, vm.token, cix.KindVM, vm.Handle.ID, cix.StateQuiesce); err != nil {
		return fmt.Errorf("stopping vm %d: %w", vm.Handle.ID, err)
	}

	return vm.verify(ctx, vmStopTable, vm.timings.VMStop)
}

func (vm *VM) Start(ctx context.Context) error {
	slog.Info("Starting VM", "id", vm.Handle.ID, "name", vm.Handle.Name)

	if err := vm.api.UpdateState(ctx, vm.token, cix.KindVM, vm.Handle.ID, cix.StateRestart); err != nil {
		return fmt.Errorf("starting vm %d: %w", vm.Handle.ID, err)
	}

	return vm.verify(ctx, vmStartTable, vm.timings.VMStart)
}

// CheckReachable waits for the VM to reply to pings, VMs that can't be probed get a grace period instead
func (vm *VM) CheckReachable(ctx context.Context) error {
	return vm.checkReachability(ctx, true)
}

// CheckUnreachable waits for the VM to stop replying to pings, VMs that can't be probed get a grace period instead
func (vm *VM) CheckUnreachable(ctx context.Context) error {
	return vm.checkReachability(ctx, false)
}

func (vm *VM) checkReachability(ctx context.Context, want bool) error {
	addr, ok := vm.Probeable()
	if !ok {
		reason := "no public ip"
		if vm.Phantom() {
			reason = "phantom"
		}
		slog.Warn("Skipping ping, waiting grace period", "id", vm.Handle.ID, "reason", reason, "grace", vm.timings.Grace.Duration)

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for vm %d: %w", vm.Handle.ID, ctx.Err())
		case <-time.After(vm.timings.Grace.Duration):
			return nil
		}
	}

	if err := poll.WaitReachable(ctx, vm.resource(), vm.prober, addr, want, vm.timings.Ping.Interval.Duration, vm.timings.Ping.Timeout.Duration); err != nil {
		return fmt.Errorf("checking vm %d: %w", vm.Handle.ID, err)
	}

	return nil
}

// Restart stops the VM and starts it again, verifying state and reachability after each step
func (vm *VM) Restart(ctx context.Context) error {
	slog.Info("Restarting VM", "id", vm.Handle.ID, "name", vm.Handle.Name)

	if err := vm.Stop(ctx); err != nil {
		return err
	}
	if err := vm.CheckUnreachable(ctx); err != nil {
		return err
	}
	if err := vm.Start(ctx); err != nil {
		return err
	}

	return vm.CheckReachable(ctx)
}
