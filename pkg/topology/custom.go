// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"

	"sigs.k8s.io/yaml"
)

var ErrNoTemplateVM = errors.New("random vms need at least one vm in vm_list as a template")

// CustomDocument is the user provided description of a custom topology
type CustomDocument struct {
	Project       CustomProject  `json:"project"`
	Subnets       []CustomSubnet `json:"subnets" validate:"required,min=1,dive"`
	FirewallRules []FirewallRule `json:"firewall_rules,omitempty" validate:"dive"`
	VPNs          []VPN          `json:"vpns,omitempty" validate:"dive"`
	VMs           CustomVMs      `json:"vms"`
}

type CustomProject struct {
	Name string `json:"name" validate:"required"`
}

type CustomSubnet struct {
	Gateway string `json:"gateway" validate:"required,ipv4"`
	Mask    int    `json:"mask" validate:"min=1,max=30"`
	Name    string `json:"name" validate:"required"`
}

func (s CustomSubnet) AddressRange() string {
	return s.Gateway + "/" + strconv.Itoa(s.Mask)
}

type CustomVMs struct {
	Random bool       `json:"random,omitempty"`
	Count  int        `json:"count,omitempty" validate:"min=0"`
	List   []CustomVM `json:"vm_list,omitempty" validate:"dive"`
}

type CustomVM struct {
	Name          string            `json:"name" validate:"required"`
	ImageID       int               `json:"image_id"`
	CPU           int               `json:"cpu" validate:"min=0"`
	RAM           int               `json:"ram" validate:"min=0"`
	GatewaySubnet string            `json:"gateway_subnet" validate:"required,prefix4"`
	IPAddresses   []CustomIPAddress `json:"ip_addresses" validate:"required,min=1,dive"`
	DNS           string            `json:"dns,omitempty"`
	StorageTypeID int               `json:"storage_type_id,omitempty"`
	Storages      []Storage         `json:"storages,omitempty" validate:"dive"`
	Replicate     int               `json:"replicate,omitempty" validate:"min=0"`
}

// CustomIPAddress has an empty address when it has to be allocated
type CustomIPAddress struct {
	Address string `json:"address,omitempty" validate:"omitempty,ipv4"`
	NAT     bool   `json:"nat"`
}

// LoadCustomDocument reads and validates a custom topology document
func LoadCustomDocument(path string) (*CustomDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading custom document: %w", err)
	}

	return ParseCustomDocument(data)
}

func ParseCustomDocument(data []byte) (*CustomDocument, error) {
	doc := &CustomDocument{}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("unmarshalling custom document: %w", err)
	}

	if err := validate.Struct(doc); err != nil {
		return nil, fmt.Errorf("validating custom document: %w", err)
	}

	if doc.VMs.Random && len(doc.VMs.List) == 0 {
		return nil, ErrNoTemplateVM
	}

	return doc, nil
}

// Custom builds a topology from the custom document, either count random VMs shaped after the first declared VM
// or the declared VMs with their replicas
func (g *Generator) Custom(ctx context.Context, region string, doc *CustomDocument) (*Topology, error) {
	images, err := g.images(ctx, region)
	if err != nil {
		return nil, err
	}

	topo := &Topology{
		Project:       Project{RegionID: region, Name: doc.Project.Name},
		FirewallRules: append([]FirewallRule{}, doc.FirewallRules...),
		VPNs:          append([]VPN{}, doc.VPNs...),
		Images:        images,
	}
	for _, subnet := range doc.Subnets {
		prefix, err := netip.ParsePrefix(subnet.AddressRange())
		if err != nil {
			return nil, fmt.Errorf("subnet %s: %w", subnet.Name, err)
		}

		topo.Subnets = append(topo.Subnets, Subnet{
			AddressRange: prefix.String(),
			Name:         subnet.Name,
		})
	}

	p := g.newPass(topo)

	if doc.VMs.Random {
		if len(doc.VMs.List) == 0 {
			return nil, ErrNoTemplateVM
		}

		if err := p.randomVMs(images, doc.VMs.List[0], doc.VMs.Count); err != nil {
			return nil, err
		}
	} else {
		for _, vm := range doc.VMs.List {
			for _, ip := range vm.IPAddresses {
				if ip.Address != "" {
					p.used.Add(ip.Address)
				}
			}
		}

		for _, vm := range doc.VMs.List {
			if err := p.declaredVMs(vm); err != nil {
				return nil, err
			}
		}
	}

	if err := topo.Validate(); err != nil {
		return nil, fmt.Errorf("validating custom topology: %w", err)
	}

	return topo, nil
}

func (p *pass) checkGateway(gateway string) error {
	for _, subnet := range p.topo.Subnets {
		if subnet.AddressRange == gateway {
			return nil
		}
	}

	return fmt.Errorf("gateway subnet %s: %w", gateway, ErrUnknownSubnet)
}

// fill copies the address template, giving NAT entries the gateway address and other empty entries a fresh
// address from a random non-gateway subnet
func (p *pass) fill(template []CustomIPAddress, gateway, gatewayIP string, literal bool) ([]IPAddress, error) {
	ips := make([]IPAddress, 0, len(template))
	for _, entry := range template {
		if literal && entry.Address != "" {
			ips = append(ips, IPAddress{Address: entry.Address, NAT: entry.NAT})

			continue
		}

		if entry.NAT {
			ips = append(ips, IPAddress{Address: gatewayIP, NAT: true})

			continue
		}

		others := p.otherSubnets(gateway)
		if len(others) == 0 {
			return nil, fmt.Errorf("gateway %s: %w", gateway, ErrNoOtherSubnet)
		}
		ip, err := p.take(pick(p.rng, others).AddressRange)
		if err != nil {
			return nil, err
		}
		ips = append(ips, IPAddress{Address: ip})
	}

	return ips, nil
}

func (p *pass) randomVMs(images []Image, template CustomVM, count int) error {
	if count > 0 && len(images) == 0 {
		return fmt.Errorf("random vms: %w", ErrNoImages)
	}
	if err := p.checkGateway(template.GatewaySubnet); err != nil {
		return err
	}

	for idx := range count {
		image := pick(p.rng, images)

		gatewayIP, err := p.take(template.GatewaySubnet)
		if err != nil {
			return fmt.Errorf("random vm %d: %w", idx, err)
		}

		ips := []IPAddress{{Address: gatewayIP, NAT: true}}
		if len(template.IPAddresses) > 1 && image.MultipleIPs {
			if ips, err = p.fill(template.IPAddresses, template.GatewaySubnet, gatewayIP, false); err != nil {
				return fmt.Errorf("random vm %d: %w", idx, err)
			}
		}

		vm := defaultVM(fmt.Sprintf("%s-%d", VMName(RandomVMPrefix, image), idx), image, template.GatewaySubnet, ips)
		vm.CPU = 1 + p.rng.IntN(2)
		vm.RAM = 1 + p.rng.IntN(2)

		vm.Storages = nil
		for hd := range 1 + p.rng.IntN(2) {
			vm.Storages = append(vm.Storages, Storage{
				Primary: hd == 0,
				Name:    fmt.Sprintf("TestHD-%d", hd),
				GB:      pick(p.rng, randomStorageSizes),
			})
		}

		p.topo.VMs = append(p.topo.VMs, vm)
	}

	return nil
}

func (p *pass) declaredVMs(decl CustomVM) error {
	if err := p.checkGateway(decl.GatewaySubnet); err != nil {
		return fmt.Errorf("vm %s: %w", decl.Name, err)
	}

	replicas := max(decl.Replicate, 1)
	for idx := range replicas {
		name := decl.Name
		if replicas > 1 {
			name = fmt.Sprintf("%s-%d", decl.Name, idx)
		}

		gatewayIP := ""
		for _, entry := range decl.IPAddresses {
			if entry.NAT && entry.Address != "" {
				gatewayIP = entry.Address

				break
			}
		}
		if gatewayIP == "" {
			var err error
			if gatewayIP, err = p.take(decl.GatewaySubnet); err != nil {
				return fmt.Errorf("vm %s: %w", name, err)
			}
		}

		ips, err := p.fill(decl.IPAddresses, decl.GatewaySubnet, gatewayIP, true)
		if err != nil {
			return fmt.Errorf("vm %s: %w", name, err)
		}

		storages := append([]Storage{}, decl.Storages...)
		if len(storages) == 0 {
			storages = []Storage{{Primary: true, Name: "C", GB: DefaultStorageGB}}
		}

		dns := decl.DNS
		if dns == "" {
			dns = DefaultDNS
		}

		p.topo.VMs = append(p.topo.VMs, VMSpec{
			ImageID:       strconv.Itoa(decl.ImageID),
			Name:          name,
			CPU:           max(decl.CPU, 1),
			RAM:           max(decl.RAM, 1),
			GatewaySubnet: decl.GatewaySubnet,
			IPAddresses:   ips,
			DNS:           dns,
			StorageTypeID: max(decl.StorageTypeID, DefaultStorageTypeID),
			Storages:      storages,
		})
	}

	return nil
}
