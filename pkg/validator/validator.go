// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

// Package validator runs the validation modes against a region and renders the region reports.
package validator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/cloudcix/validator/pkg/cix"
	"github.com/cloudcix/validator/pkg/poll"
	"github.com/cloudcix/validator/pkg/project"
	"github.com/cloudcix/validator/pkg/stress"
	"github.com/cloudcix/validator/pkg/topology"
	"github.com/samber/lo"
)

// ControlPlane is everything the validator needs from the control plane
type ControlPlane interface {
	project.API
	project.RouterReader

	Token(ctx context.Context, creds cix.Credentials) (string, error)
	ListRegions(ctx context.Context, token string) ([]cix.Address, error)
	ListServers(ctx context.Context, token string, region string, enabledOnly bool) ([]cix.Server, error)
	ListAssets(ctx context.Context, token string, region string, tags []string) ([]cix.Asset, error)
	ListOpenProjects(ctx context.Context, token string) ([]cix.Project, error)
	ListImages(ctx context.Context, token string, region string) ([]topology.Image, error)
}

type Mode string

const (
	ModeLight  Mode = "light"
	ModeCustom Mode = "custom"
	ModeHeavy  Mode = "heavy"
)

var ErrInvalidRegion = errors.New("invalid region")

// checkRegion rejects region ids that aren't positive numbers before anything is sent to the control plane
func checkRegion(region string) error {
	if id, err := strconv.Atoi(region); err != nil || id <= 0 {
		return fmt.Errorf("region %q: %w", region, ErrInvalidRegion)
	}

	return nil
}

type Validator struct {
	cfg      *Config
	api      ControlPlane
	prober   poll.Prober
	prompter Prompter
	out      io.Writer
	rng      *rand.Rand
	now      func() time.Time

	// Generator is exposed so callers can make generation deterministic
	Generator *topology.Generator
	// Progress receives progress bars, nil disables them
	Progress io.Writer
}

func New(cfg *Config, api ControlPlane, prober poll.Prober, prompter Prompter, out io.Writer) *Validator {
	v := &Validator{
		cfg:      cfg,
		api:      api,
		prober:   prober,
		prompter: prompter,
		out:      out,
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec
		now:      time.Now,
	}
	v.Generator = topology.NewGenerator(v.catalog)

	return v
}

// NewClient builds the control plane client from the config
func NewClient(cfg *Config) (*cix.Client, error) {
	client, err := cix.NewClient(cfg.clientConfig())
	if err != nil {
		return nil, fmt.Errorf("creating api client: %w", err)
	}

	return client, nil
}

func (v *Validator) adminToken(ctx context.Context) (string, error) {
	token, err := v.api.Token(ctx, v.cfg.Admin.cix())
	if err != nil {
		return "", fmt.Errorf("getting admin token: %w", err)
	}

	return token, nil
}

func (v *Validator) robotToken(ctx context.Context) (string, error) {
	token, err := v.api.Token(ctx, v.cfg.Robot.cix())
	if err != nil {
		return "", fmt.Errorf("getting robot token: %w", err)
	}

	return token, nil
}

func (v *Validator) catalog(ctx context.Context, region string) ([]topology.Image, error) {
	token, err := v.adminToken(ctx)
	if err != nil {
		return nil, err
	}

	return v.api.ListImages(ctx, token, region) //nolint:wrapcheck
}

func (v *Validator) newProject(topo *topology.Topology, token string, bandwidth bool) (*project.Project, error) {
	opts := project.Options{
		Timings:  v.cfg.Timings,
		Progress: v.Progress,
	}
	if v.cfg.VPNCheck {
		opts.VPN = &project.TunnelInspector{
			API:    v.api,
			Timing: v.cfg.Timings.VPN,
			Proxy:  v.cfg.VPNProxy.remote(),
		}
	}
	if bandwidth {
		tester, err := stress.NewTester(v.cfg.Bandwidth, vmPassword(v.prompter))
		if err != nil {
			return nil, fmt.Errorf("creating bandwidth tester: %w", err)
		}
		opts.Bandwidth = tester
	}

	p, err := project.New(v.api, v.prober, v.Generator, topo, token, opts)
	if err != nil {
		return nil, fmt.Errorf("creating project: %w", err)
	}

	return p, nil
}

// Generate only builds the topology of the mode, custom mode reads the document from path
func (v *Validator) Generate(ctx context.Context, mode Mode, region, path string) (*topology.Topology, error) {
	if err := checkRegion(region); err != nil {
		return nil, err
	}

	name := projectName(string(mode), v.now())

	switch mode {
	case ModeLight:
		return v.Generator.Light(ctx, region, name) //nolint:wrapcheck
	case ModeCustom:
		doc, err := topology.LoadCustomDocument(path)
		if err != nil {
			return nil, fmt.Errorf("loading custom document: %w", err)
		}

		return v.Generator.Custom(ctx, region, doc) //nolint:wrapcheck
	case ModeHeavy:
		return v.Generator.Heavy(ctx, region, name, topology.HeavyOptions{ //nolint:wrapcheck
			Family:        topology.OSFamilyUnix,
			CPU:           v.cfg.Heavy.CPU,
			RAM:           v.cfg.Heavy.RAM,
			StorageGB:     v.cfg.Heavy.StorageGB,
			StorageTypeID: cix.StorageTypeHDD,
		})
	default:
		return nil, fmt.Errorf("unknown mode %q", mode) //nolint:goerr113
	}
}

// Light builds a project with one VM per image, then restarts, updates and deletes it
func (v *Validator) Light(ctx context.Context, region string) error {
	if err := checkRegion(region); err != nil {
		return err
	}

	slog.Info("Running validator light", "region", region)

	topo, err := v.Generator.Light(ctx, region, projectName(string(ModeLight), v.now()))
	if err != nil {
		return fmt.Errorf("generating light topology: %w", err)
	}

	token, err := v.adminToken(ctx)
	if err != nil {
		return err
	}

	p, err := v.newProject(topo, token, false)
	if err != nil {
		return err
	}

	for _, phase := range []func(context.Context) error{p.Create, p.CheckCreate, p.Restart, p.Update, p.Delete} {
		if err := phase(ctx); err != nil {
			return err //nolint:wrapcheck
		}
	}

	slog.Info("Validator light passed", "region", region, "project", p.ID)

	return nil
}

// Custom builds the project described by the document, checks bandwidth, restarts and deletes it
func (v *Validator) Custom(ctx context.Context, region, path string) error {
	if err := checkRegion(region); err != nil {
		return err
	}

	slog.Info("Running validator custom", "region", region, "document", filepath.Base(path))

	doc, err := topology.LoadCustomDocument(path)
	if err != nil {
		return fmt.Errorf("loading custom document: %w", err)
	}

	topo, err := v.Generator.Custom(ctx, region, doc)
	if err != nil {
		return fmt.Errorf("generating custom topology: %w", err)
	}

	token, err := v.adminToken(ctx)
	if err != nil {
		return err
	}

	p, err := v.newProject(topo, token, true)
	if err != nil {
		return err
	}

	if err := p.Create(ctx); err != nil {
		return err //nolint:wrapcheck
	}
	if err := p.CheckCreate(ctx); err != nil {
		return err //nolint:wrapcheck
	}

	failed, err := p.CheckBandwidth(ctx)
	if err != nil {
		return err //nolint:wrapcheck
	}
	if failed > 0 {
		slog.Warn("Bandwidth test failed for some VMs", "project", p.ID, "failed", failed)
	}

	if err := p.Restart(ctx); err != nil {
		return err //nolint:wrapcheck
	}
	if err := p.Delete(ctx); err != nil {
		return err //nolint:wrapcheck
	}

	slog.Info("Validator custom passed", "region", region, "project", p.ID, "bandwidthFailures", failed)

	return nil
}

type heavyKind struct {
	family      topology.OSFamily
	storageType int
}

func (k heavyKind) String() string {
	storage := "HDD"
	if k.storageType == cix.StorageTypeSSD {
		storage = "SSD"
	}

	return string(k.family) + "+" + storage
}

// Heavy fills the region with small projects of every kind until each kind fails to be created, verifies them,
// reports the utilisation and then restarts and deletes all of them. Failures of the last two steps don't stop
// the run.
func (v *Validator) Heavy(ctx context.Context, region string) error {
	if err := checkRegion(region); err != nil {
		return err
	}

	slog.Info("Running validator heavy", "region", region)

	robot, err := v.robotToken(ctx)
	if err != nil {
		return err
	}

	servers, err := v.api.ListServers(ctx, robot, region, true)
	if err != nil {
		return fmt.Errorf("listing servers: %w", err)
	}
	writeCapacity(v.out, RegionCapacity(servers))

	kinds := []heavyKind{
		{topology.OSFamilyWindows, cix.StorageTypeHDD},
		{topology.OSFamilyWindows, cix.StorageTypeSSD},
		{topology.OSFamilyUnix, cix.StorageTypeHDD},
		{topology.OSFamilyUnix, cix.StorageTypeSSD},
	}

	projects := []*project.Project{}
	for len(kinds) > 0 {
		if v.cfg.Heavy.MaxProjects > 0 && len(projects) >= v.cfg.Heavy.MaxProjects {
			slog.Info("Reached max projects", "max", v.cfg.Heavy.MaxProjects)

			break
		}

		kind := kinds[v.rng.IntN(len(kinds))]
		p, err := v.heavyProject(ctx, region, len(projects), kind)
		if err != nil {
			slog.Warn("Projects of this kind failed, not creating more", "kind", kind, "err", err)
			kinds = slices.DeleteFunc(kinds, func(k heavyKind) bool { return k == kind })

			continue
		}
		projects = append(projects, p)
	}

	slog.Info("Region filled", "region", region, "projects", len(projects))

	for _, p := range projects {
		token, err := v.adminToken(ctx)
		if err != nil {
			return err
		}
		p.UpdateToken(token)

		if err := p.CheckCreate(ctx); err != nil {
			return err //nolint:wrapcheck
		}
	}

	robot, err = v.robotToken(ctx)
	if err != nil {
		return err
	}
	vms, err := v.api.ListVMs(ctx, robot, cix.VMFilter{ExcludeState: cix.StateClosed})
	if err != nil {
		return fmt.Errorf("listing vms: %w", err)
	}
	writeUtilisation(v.out, ServerUtilisation(servers, vms))

	failures := 0
	for _, step := range []string{"recheck", "restart", "delete"} {
		for _, p := range projects {
			token, err := v.adminToken(ctx)
			if err != nil {
				return err
			}
			p.UpdateToken(token)

			switch step {
			case "recheck":
				_, err = p.Recheck(ctx)
			case "restart":
				err = p.Restart(ctx)
			case "delete":
				err = p.Delete(ctx)
			}
			if err != nil {
				failures++
				slog.Error("Heavy step failed, continuing", "step", step, "project", p.ID, "err", err)
			}
		}
	}

	if failures > 0 {
		return fmt.Errorf("validator heavy: %d project steps failed", failures) //nolint:goerr113
	}

	slog.Info("Validator heavy passed", "region", region, "projects", len(projects))

	return nil
}

var errNoImageOfKind = errors.New("no image of this kind")

func (v *Validator) heavyProject(ctx context.Context, region string, idx int, kind heavyKind) (*project.Project, error) {
	name := projectName(string(ModeHeavy)+"-"+strconv.Itoa(idx), v.now())
	topo, err := v.Generator.Heavy(ctx, region, name, topology.HeavyOptions{
		Family:        kind.family,
		CPU:           v.cfg.Heavy.CPU,
		RAM:           v.cfg.Heavy.RAM,
		StorageGB:     v.cfg.Heavy.StorageGB,
		StorageTypeID: kind.storageType,
	})
	if err != nil {
		return nil, fmt.Errorf("generating heavy topology: %w", err)
	}
	if topo == nil {
		return nil, errNoImageOfKind
	}

	token, err := v.adminToken(ctx)
	if err != nil {
		return nil, err
	}

	p, err := v.newProject(topo, token, false)
	if err != nil {
		return nil, err
	}
	if err := p.Create(ctx); err != nil {
		return nil, err //nolint:wrapcheck
	}
	if p.Phase != project.PhaseCreated {
		return nil, fmt.Errorf("project %s: %w", name, project.ErrNotCreated)
	}

	return p, nil
}

// Regions prints the cloud regions
func (v *Validator) Regions(ctx context.Context) ([]cix.Address, error) {
	token, err := v.adminToken(ctx)
	if err != nil {
		return nil, err
	}

	regions, err := v.api.ListRegions(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("listing regions: %w", err)
	}
	writeRegions(v.out, regions)

	return regions, nil
}

// Servers prints the servers of the region with their asset tags and locations
func (v *Validator) Servers(ctx context.Context, region string) error {
	if err := checkRegion(region); err != nil {
		return err
	}

	token, err := v.adminToken(ctx)
	if err != nil {
		return err
	}

	servers, err := v.api.ListServers(ctx, token, region, false)
	if err != nil {
		return fmt.Errorf("listing servers: %w", err)
	}

	tags := lo.Uniq(lo.FilterMap(servers, func(s cix.Server, _ int) (string, bool) {
		if s.AssetTag == nil {
			return "", false
		}

		return *s.AssetTag, true
	}))

	assets := []cix.Asset{}
	if len(tags) > 0 {
		assets, err = v.api.ListAssets(ctx, token, region, tags)
		if err != nil {
			slog.Warn("Listing assets failed", "region", region, "err", err)
		}
	}
	writeServers(v.out, region, servers, assets)

	return nil
}

// Projects prints the open projects and returns their count
func (v *Validator) Projects(ctx context.Context, region string) (int, error) {
	if err := checkRegion(region); err != nil {
		return 0, err
	}

	token, err := v.robotToken(ctx)
	if err != nil {
		return 0, err
	}

	projects, err := v.api.ListOpenProjects(ctx, token)
	if err != nil {
		return 0, fmt.Errorf("listing projects: %w", err)
	}
	writeProjects(v.out, region, projects)

	return len(projects), nil
}

// Run is the interactive entrypoint: pick a region, look at its hardware and projects and pick a mode
func (v *Validator) Run(ctx context.Context) error {
	regions, err := v.Regions(ctx)
	if err != nil {
		return err
	}

	names := lo.Map(regions, func(r cix.Address, _ int) string { return fmt.Sprintf("%d %s", r.ID, r.Name) })
	selected, err := v.prompter.Select("Region to validate", names)
	if err != nil {
		return fmt.Errorf("selecting region: %w", err)
	}
	region := strconv.Itoa(regions[selected].ID)

	if err := v.Servers(ctx, region); err != nil {
		return err
	}
	count, err := v.Projects(ctx, region)
	if err != nil {
		return err
	}

	modes := []Mode{ModeLight, ModeCustom}
	if count == 0 {
		modes = append(modes, ModeHeavy)
	}
	selected, err = v.prompter.Select("Option to run", lo.Map(modes, func(m Mode, _ int) string { return "Validator " + string(m) }))
	if err != nil {
		return fmt.Errorf("selecting option: %w", err)
	}

	switch modes[selected] {
	case ModeLight:
		return v.Light(ctx, region)
	case ModeCustom:
		docs, err := v.cfg.CustomDocuments()
		if err != nil {
			return err
		}
		doc, err := v.prompter.Select("Configuration to run", docs)
		if err != nil {
			return fmt.Errorf("selecting configuration: %w", err)
		}

		return v.Custom(ctx, region, filepath.Join(v.cfg.ConfigsDir, docs[doc]))
	case ModeHeavy:
		return v.Heavy(ctx, region)
	}

	return nil
}
