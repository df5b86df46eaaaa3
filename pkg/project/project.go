// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

// Package project drives a provisioned project through its lifecycle and verifies every transition through the
// control plane state and through reachability of the resources.
package project

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"dario.cat/mergo"
	"github.com/cloudcix/validator/pkg/cix"
	"github.com/cloudcix/validator/pkg/poll"
	"github.com/cloudcix/validator/pkg/topology"
)

// API is the part of the control plane client used by the project and its controllers
type API interface {
	CreateCloud(ctx context.Context, token string, topo *topology.Topology) (*cix.Cloud, error)
	UpdateCloud(ctx context.Context, token string, projectID int, topo *topology.Topology) error
	ReadState(ctx context.Context, token string, kind string, id int) (cix.State, error)
	UpdateState(ctx context.Context, token string, kind string, id int, state cix.State) error
	ReadProject(ctx context.Context, token string, id int) (*cix.Project, error)
	ListVMs(ctx context.Context, token string, filter cix.VMFilter) ([]cix.VM, error)
}

// Extender adds resources to an existing topology for the update phase
type Extender interface {
	AddVM(topo *topology.Topology) (*topology.VMSpec, error)
	AddFirewallRule(topo *topology.Topology) (*topology.FirewallRule, error)
}

type Phase string

const (
	PhaseNew       Phase = "new"
	PhaseCreated   Phase = "created"
	PhaseVerified  Phase = "verified"
	PhaseRestarted Phase = "restarted"
	PhaseUpdated   Phase = "updated"
	PhaseDeleted   Phase = "deleted"
)

type Options struct {
	Timings Timings

	// VPN checks the tunnels of the virtual router after it's reachable if set
	VPN TunnelChecker
	// Bandwidth is used by CheckBandwidth
	Bandwidth BandwidthTester
	// Progress renders a progress bar of the concurrent reachability recheck if set
	Progress io.Writer
}

// Project is a single provisioned project and the controllers of its resources
type Project struct {
	api      API
	prober   poll.Prober
	extender Extender
	opts     Options
	token    string

	Topology *topology.Topology
	Phase    Phase
	ID       int
	Subnets  []cix.Subnet
	Router   *Router
	VMs      []*VM
}

func New(api API, prober poll.Prober, extender Extender, topo *topology.Topology, token string, opts Options) (*Project, error) {
	if err := mergo.Merge(&opts.Timings, DefaultTimings); err != nil {
		return nil, fmt.Errorf("merging default timings: %w", err)
	}

	return &Project{
		api:      api,
		prober:   prober,
		extender: extender,
		opts:     opts,
		token:    token,
		Topology: topo,
		Phase:    PhaseNew,
	}, nil
}

func (p *Project) Name() string {
	return p.Topology.Project.Name
}

// UpdateToken propagates a refreshed token to the project and all of its controllers
func (p *Project) UpdateToken(token string) {
	p.token = token
	if p.Router != nil {
		p.Router.UpdateToken(token)
	}
	for _, vm := range p.VMs {
		vm.UpdateToken(token)
	}
}

func (p *Project) newVM(handle cix.VM) *VM {
	return &VM{
		api:     p.api,
		prober:  p.prober,
		timings: &p.opts.Timings,
		token:   p.token,
		Handle:  handle,
	}
}

func (p *Project) created() error {
	if p.ID == 0 || p.Router == nil {
		return fmt.Errorf("project %s: %w", p.Name(), ErrNotCreated)
	}

	return nil
}

// Create submits the topology and correlates the returned VMs to the generated ones by name. The known
// internal error of the control plane is only logged, later phases fail on such a project.
func (p *Project) Create(ctx context.Context) error {
	slog.Info("Creating project", "name", p.Name(), "region", p.Topology.Project.RegionID, "vms", len(p.Topology.VMs))

	cloud, err := p.api.CreateCloud(ctx, p.token, p.Topology)
	if errors.Is(err, cix.ErrNotAvailable) {
		slog.Warn("Ignoring known control plane error on create", "name", p.Name(), "err", err)

		return nil
	}
	if err != nil {
		return fmt.Errorf("creating project %s: %w", p.Name(), err)
	}

	p.ID = cloud.Project.ID
	p.Subnets = cloud.VirtualRouter.Subnets
	p.Router = &Router{
		api:       p.api,
		prober:    p.prober,
		timings:   &p.opts.Timings,
		token:     p.token,
		ProjectID: p.ID,
		Handle:    cloud.VirtualRouter,
		VPNs:      cloud.VPNs,
	}

	vms, err := p.correlate(cloud.VMs)
	if err != nil {
		return fmt.Errorf("creating project %s: %w", p.Name(), err)
	}
	if err := p.checkCorrelated(vms); err != nil {
		return fmt.Errorf("creating project %s: %w", p.Name(), err)
	}
	p.VMs = vms
	p.Phase = PhaseCreated

	slog.Info("Project created", "name", p.Name(), "id", p.ID, "router", p.Router.Handle.ID, "vms", len(p.VMs))

	return nil
}

// CheckCreate verifies the router and every VM are built, first through the control plane and then by reachability
func (p *Project) CheckCreate(ctx context.Context) error {
	if err := p.created(); err != nil {
		return err
	}

	slog.Info("Verifying project build", "id", p.ID)

	if err := p.Router.CheckBuild(ctx); err != nil {
		return err
	}
	for _, vm := range p.VMs {
		if err := vm.CheckBuild(ctx); err != nil {
			return err
		}
	}

	if err := p.Router.CheckReachable(ctx); err != nil {
		return err
	}
	if p.opts.VPN != nil {
		if err := p.opts.VPN.CheckTunnels(ctx, p.token, p.Router); err != nil {
			return fmt.Errorf("project %d: %w", p.ID, err)
		}
	}
	for _, vm := range p.VMs {
		if err := vm.CheckReachable(ctx); err != nil {
			return err
		}
	}

	p.Phase = PhaseVerified

	return nil
}

// Restart stops and starts every VM one after another, the first failure stops the whole restart
func (p *Project) Restart(ctx context.Context) error {
	if err := p.created(); err != nil {
		return err
	}

	slog.Info("Restarting project", "id", p.ID, "vms", len(p.VMs))

	for _, vm := range p.VMs {
		if err := vm.Restart(ctx); err != nil {
			return fmt.Errorf("restarting project %d: %w", p.ID, err)
		}
	}

	p.Phase = PhaseRestarted

	return nil
}

// Update reconciles identifiers, adds a firewall rule and then a VM, verifying the router, the existing VMs and
// the new VM after each submission
func (p *Project) Update(ctx context.Context) error {
	if err := p.created(); err != nil {
		return err
	}

	slog.Info("Updating project", "id", p.ID)

	if err := p.reconcile(); err != nil {
		return fmt.Errorf("updating project %d: %w", p.ID, err)
	}

	rule, err := p.extender.AddFirewallRule(p.Topology)
	if err != nil {
		return fmt.Errorf("updating project %d: %w", p.ID, err)
	}
	slog.Info("Adding firewall rule", "id", p.ID, "source", rule.Source, "destination", rule.Destination)

	if err := p.api.UpdateCloud(ctx, p.token, p.ID, p.Topology); err != nil {
		return fmt.Errorf("updating project %d firewall: %w", p.ID, err)
	}
	for _, vm := range p.VMs {
		if err := vm.CheckRunning(ctx); err != nil {
			return err
		}
	}
	if err := p.Router.CheckUpdate(ctx); err != nil {
		return err
	}

	spec, err := p.extender.AddVM(p.Topology)
	if err != nil {
		return fmt.Errorf("updating project %d: %w", p.ID, err)
	}
	slog.Info("Adding VM", "id", p.ID, "name", spec.Name, "image", spec.ImageID)

	if err := p.api.UpdateCloud(ctx, p.token, p.ID, p.Topology); err != nil {
		return fmt.Errorf("updating project %d vms: %w", p.ID, err)
	}

	known := make([]int, 0, len(p.VMs))
	for _, vm := range p.VMs {
		known = append(known, vm.Handle.ID)
	}
	handles, err := p.api.ListVMs(ctx, p.token, cix.VMFilter{ProjectID: p.ID, ExcludeIDs: known})
	if err != nil {
		return fmt.Errorf("listing new vms of project %d: %w", p.ID, err)
	}
	added, err := p.correlate(handles)
	if err != nil {
		return fmt.Errorf("updating project %d: %w", p.ID, err)
	}
	if err := p.checkCorrelated(append(slices.Clone(p.VMs), added...)); err != nil {
		return fmt.Errorf("updating project %d: %w", p.ID, err)
	}

	for _, vm := range p.VMs {
		if err := vm.CheckUpdating(ctx); err != nil {
			return err
		}
	}
	for _, vm := range added {
		if err := vm.CheckBuild(ctx); err != nil {
			return err
		}
	}
	for _, vm := range added {
		if err := vm.CheckReachable(ctx); err != nil {
			return err
		}
	}

	p.VMs = append(p.VMs, added...)
	p.Phase = PhaseUpdated

	return nil
}

// Delete scrubs the project and verifies the router, every VM and finally the project itself are gone
func (p *Project) Delete(ctx context.Context) error {
	if err := p.created(); err != nil {
		return err
	}

	slog.Info("Deleting project", "id", p.ID)

	if err := p.api.UpdateState(ctx, p.token, cix.KindProject, p.ID, cix.StateScrub); err != nil {
		return fmt.Errorf("deleting project %d: %w", p.ID, err)
	}

	if err := p.Router.CheckDelete(ctx); err != nil {
		return err
	}
	for _, vm := range p.VMs {
		if err := vm.CheckDelete(ctx); err != nil {
			return err
		}
		if err := vm.CheckUnreachable(ctx); err != nil {
			return err
		}
	}

	read := func(ctx context.Context) (bool, error) {
		project, err := p.api.ReadProject(ctx, p.token, p.ID)
		if err != nil {
			return false, err //nolint:wrapcheck
		}

		return project.ShutDown, nil
	}
	timing := p.opts.Timings.ProjectDelete
	if _, err := poll.Poll(ctx, poll.Resource{Kind: cix.KindProject, ID: fmt.Sprint(p.ID)}, read, projectShutDownTable, timing.Interval.Duration, timing.Timeout.Duration); err != nil {
		return fmt.Errorf("deleting project %d: %w", p.ID, err)
	}

	p.Phase = PhaseDeleted
	slog.Info("Project deleted", "id", p.ID, "name", p.Name())

	return nil
}
