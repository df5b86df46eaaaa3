// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"

	"github.com/samber/lo"
	"github.com/sethvargo/go-password/password"
)

const (
	TestVMPrefix   = "TestVM"
	NewVMPrefix    = "New-TestVM"
	RandomVMPrefix = "RandomVM"
)

var (
	// ErrCatalogUnavailable is returned by catalog functions when the region has no image catalog yet
	ErrCatalogUnavailable = errors.New("image catalog not available")
	ErrNoImages           = errors.New("no images available")
	ErrNoOtherSubnet      = errors.New("no subnet other than the gateway subnet")
	ErrUnknownSubnet      = errors.New("unknown subnet")
)

var randomStorageSizes = []int{50, 100, 150, 200, 250}

// CatalogFunc lists the images available in a region
type CatalogFunc func(ctx context.Context, region string) ([]Image, error)

type Generator struct {
	Catalog  CatalogFunc
	Rand     *rand.Rand
	MaxDraws int
}

func NewGenerator(catalog CatalogFunc) *Generator {
	return &Generator{
		Catalog:  catalog,
		Rand:     newRand(),
		MaxDraws: DefaultMaxDraws,
	}
}

// pass is the state of a single generation call, the ledger lives only as long as it
type pass struct {
	rng   *rand.Rand
	alloc *Allocator
	topo  *Topology
	used  Ledger
}

func (g *Generator) newPass(topo *Topology) *pass {
	rng := g.Rand
	if rng == nil {
		rng = newRand()
	}

	used := NewLedger()
	for _, subnet := range topo.Subnets {
		used.Add(subnet.Gateway())
	}
	for _, vm := range topo.VMs {
		for _, ip := range vm.IPAddresses {
			if ip.Address != "" {
				used.Add(ip.Address)
			}
		}
	}

	return &pass{
		rng:   rng,
		alloc: &Allocator{Rand: rng, MaxDraws: g.MaxDraws},
		topo:  topo,
		used:  used,
	}
}

// take allocates an address from the subnet (or a random topology subnet if empty) and commits it to the ledger
func (p *pass) take(subnet string) (string, error) {
	if subnet == "" {
		if len(p.topo.Subnets) == 0 {
			return "", fmt.Errorf("allocating address: %w", ErrUnknownSubnet)
		}
		subnet = pick(p.rng, p.topo.Subnets).AddressRange
	}

	addr, err := p.alloc.Allocate(subnet, p.used)
	if err != nil {
		return "", fmt.Errorf("allocating address: %w", err)
	}
	p.used.Add(addr)

	return addr, nil
}

func (p *pass) otherSubnets(gateway string) []Subnet {
	return lo.Filter(p.topo.Subnets, func(s Subnet, _ int) bool {
		return s.AddressRange != gateway
	})
}

// addresses returns the gateway address plus one non-NAT address per other subnet for multi-IP images
func (p *pass) addresses(gateway string, image Image) ([]IPAddress, error) {
	gatewayIP, err := p.take(gateway)
	if err != nil {
		return nil, err
	}

	ips := []IPAddress{{Address: gatewayIP, NAT: true}}
	if !image.MultipleIPs {
		return ips, nil
	}

	for _, subnet := range p.otherSubnets(gateway) {
		ip, err := p.take(subnet.AddressRange)
		if err != nil {
			return nil, err
		}
		ips = append(ips, IPAddress{Address: ip})
	}

	return ips, nil
}

func (g *Generator) images(ctx context.Context, region string) ([]Image, error) {
	if g.Catalog == nil {
		return nil, fmt.Errorf("listing images for region %s: no catalog", region) //nolint:goerr113
	}

	images, err := g.Catalog(ctx, region)
	if errors.Is(err, ErrCatalogUnavailable) {
		slog.Warn("Image catalog not available yet, continuing without images", "region", region)

		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing images for region %s: %w", region, err)
	}

	return images, nil
}

func defaultFirewallRule(debug bool) FirewallRule {
	return FirewallRule{
		Allow:        true,
		Source:       "*",
		Destination:  TestSubnet,
		Protocol:     "any",
		DebugLogging: debug,
	}
}

func defaultVPN() (VPN, error) {
	psk, err := password.Generate(32, 8, 0, false, true)
	if err != nil {
		return VPN{}, fmt.Errorf("generating pre-shared key: %w", err)
	}

	return VPN{
		Description:         "Home",
		VPNType:             "site_to_site",
		IKEAuthentication:   "sha-384",
		IKEEncryption:       "aes-256-cbc",
		IKELifetime:         18000,
		IKEDHGroups:         "group2",
		IKEPreSharedKey:     psk,
		IKEVersion:          "v1-only",
		IKEMode:             "main",
		IKEGatewayType:      "public_ip",
		IKEGatewayValue:     UpdateSource,
		IPSecAuthentication: "hmac-sha-256-128",
		IPSecEncryption:     "aes-256-cbc",
		IPSecLifetime:       18000,
		IPSecPFSGroups:      "group2",
		IPSecEstablishTime:  "immediately",
		Routes: []VPNRoute{
			{LocalSubnet: TestSubnet, RemoteSubnet: "172.16.32.0/24"},
		},
	}, nil
}

func defaultVM(name string, image Image, gateway string, ips []IPAddress) VMSpec {
	return VMSpec{
		ImageID:       strconv.Itoa(image.ID),
		Name:          name,
		CPU:           1,
		RAM:           1,
		GatewaySubnet: gateway,
		IPAddresses:   ips,
		DNS:           DefaultDNS,
		StorageTypeID: DefaultStorageTypeID,
		Storages: []Storage{
			{Primary: true, Name: "C", GB: DefaultStorageGB},
		},
	}
}

// Light builds the fixed single subnet topology with one VM per image available in the region
func (g *Generator) Light(ctx context.Context, region, name string) (*Topology, error) {
	images, err := g.images(ctx, region)
	if err != nil {
		return nil, err
	}

	vpn, err := defaultVPN()
	if err != nil {
		return nil, err
	}

	topo := &Topology{
		Project:       Project{RegionID: region, Name: name},
		Subnets:       []Subnet{{AddressRange: TestSubnet, Name: TestSubnetName}},
		FirewallRules: []FirewallRule{defaultFirewallRule(false)},
		VPNs:          []VPN{vpn},
		Images:        images,
	}

	p := g.newPass(topo)
	for _, image := range images {
		gateway := pick(p.rng, topo.Subnets).AddressRange
		ips, err := p.addresses(gateway, image)
		if err != nil {
			return nil, fmt.Errorf("vm for image %q: %w", image.DisplayName, err)
		}

		topo.VMs = append(topo.VMs, defaultVM(VMName(TestVMPrefix, image), image, gateway, ips))
	}

	if err := topo.Validate(); err != nil {
		return nil, fmt.Errorf("validating light topology: %w", err)
	}

	return topo, nil
}

type HeavyOptions struct {
	Family        OSFamily
	CPU           int
	RAM           int
	StorageGB     int
	StorageTypeID int
}

// Heavy builds a single VM topology on the test subnet from a random image of the requested family. It returns
// nil without error when the region has no such image.
func (g *Generator) Heavy(ctx context.Context, region, name string, opts HeavyOptions) (*Topology, error) {
	images, err := g.images(ctx, region)
	if err != nil {
		return nil, err
	}

	matching := lo.Filter(images, func(image Image, _ int) bool {
		return image.Family() == opts.Family
	})
	if len(matching) == 0 {
		slog.Warn("No images of the requested family", "region", region, "family", opts.Family)

		return nil, nil
	}

	topo := &Topology{
		Project:       Project{RegionID: region, Name: name},
		Subnets:       []Subnet{{AddressRange: TestSubnet, Name: TestSubnetName}},
		FirewallRules: []FirewallRule{defaultFirewallRule(true)},
		Images:        images,
	}

	p := g.newPass(topo)
	image := pick(p.rng, matching)
	ip, err := p.take(TestSubnet)
	if err != nil {
		return nil, err
	}

	vm := defaultVM(VMName(TestVMPrefix, image), image, TestSubnet, []IPAddress{{Address: ip, NAT: true}})
	vm.CPU = max(opts.CPU, 1)
	vm.RAM = max(opts.RAM, 1)
	vm.StorageTypeID = max(opts.StorageTypeID, DefaultStorageTypeID)
	vm.Storages = []Storage{{Primary: true, Name: "TestHD", GB: max(opts.StorageGB, 1)}}
	topo.VMs = append(topo.VMs, vm)

	if err := topo.Validate(); err != nil {
		return nil, fmt.Errorf("validating heavy topology: %w", err)
	}

	return topo, nil
}

// AddVM appends a new VM built from a random catalog image to an existing topology
func (g *Generator) AddVM(topo *Topology) (*VMSpec, error) {
	if len(topo.Images) == 0 {
		return nil, fmt.Errorf("adding vm: %w", ErrNoImages)
	}

	p := g.newPass(topo)
	image := pick(p.rng, topo.Images)
	gateway := pick(p.rng, topo.Subnets).AddressRange
	ips, err := p.addresses(gateway, image)
	if err != nil {
		return nil, fmt.Errorf("adding vm for image %q: %w", image.DisplayName, err)
	}

	vm := defaultVM(VMName(NewVMPrefix, image), image, gateway, ips)
	vm.Storages = []Storage{{Primary: true, Name: "NewHDD", GB: DefaultStorageGB}}
	topo.VMs = append(topo.VMs, vm)

	return &topo.VMs[len(topo.VMs)-1], nil
}

// AddFirewallRule appends a rule allowing the update source to reach a random subnet
func (g *Generator) AddFirewallRule(topo *Topology) (*FirewallRule, error) {
	if len(topo.Subnets) == 0 {
		return nil, fmt.Errorf("adding firewall rule: %w", ErrUnknownSubnet)
	}

	p := g.newPass(topo)
	topo.FirewallRules = append(topo.FirewallRules, FirewallRule{
		Allow:       true,
		Source:      UpdateSource,
		Destination: pick(p.rng, topo.Subnets).AddressRange,
		Protocol:    "any",
	})

	return &topo.FirewallRules[len(topo.FirewallRules)-1], nil
}
