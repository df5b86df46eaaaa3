// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package project

import (
	"log/slog"

	"github.com/cloudcix/validator/pkg/cix"
	"github.com/cloudcix/validator/pkg/topology"
	"github.com/samber/lo"
)

// correlate matches control plane VMs to the generated VMs by exact name and records the assigned ids
func (p *Project) correlate(handles []cix.VM) ([]*VM, error) {
	vms := make([]*VM, 0, len(handles))
	for _, handle := range handles {
		_, idx, ok := lo.FindIndexOf(p.Topology.VMs, func(spec topology.VMSpec) bool {
			return spec.Name == handle.Name
		})
		if !ok {
			return nil, &CorrelationError{Kind: cix.KindVM, Name: handle.Name}
		}
		p.Topology.VMs[idx].ID = handle.ID

		vms = append(vms, p.newVM(handle))
	}

	return vms, nil
}

// checkCorrelated fails for the first generated VM without a controller, the control plane would create such a VM
// again on the next submission
func (p *Project) checkCorrelated(vms []*VM) error {
	for _, spec := range p.Topology.VMs {
		if !lo.ContainsBy(vms, func(vm *VM) bool { return vm.Handle.Name == spec.Name }) {
			return &CorrelationError{Kind: cix.KindVM, Name: spec.Name}
		}
	}

	return nil
}

// reconcile copies the control plane ids of subnets, VPNs, VMs, storages and addresses into the topology so the
// following update references existing resources instead of creating them again. A VM that can't be matched by name
// in either direction is fatal, storages and addresses without a match are left for the control plane to create.
func (p *Project) reconcile() error {
	for idx := range p.Topology.Subnets {
		subnet := &p.Topology.Subnets[idx]
		if remote, ok := lo.Find(p.Subnets, func(s cix.Subnet) bool { return s.AddressRange == subnet.AddressRange }); ok {
			subnet.ID = remote.ID
			subnet.AddressID = remote.AddressID
			subnet.VLAN = remote.VLAN
			subnet.VXLAN = remote.VXLAN
		}
	}

	for idx := range p.Topology.VPNs {
		vpn := &p.Topology.VPNs[idx]
		if remote, ok := lo.Find(p.Router.VPNs, func(v cix.VPN) bool { return v.Description == vpn.Description }); ok {
			vpn.ID = remote.ID
		}
	}

	if err := p.checkCorrelated(p.VMs); err != nil {
		return err
	}

	for _, vm := range p.VMs {
		_, idx, ok := lo.FindIndexOf(p.Topology.VMs, func(spec topology.VMSpec) bool {
			return spec.Name == vm.Handle.Name
		})
		if !ok {
			return &CorrelationError{Kind: cix.KindVM, Name: vm.Handle.Name}
		}

		spec := &p.Topology.VMs[idx]
		spec.ID = vm.Handle.ID

		for sIdx := range spec.Storages {
			storage := &spec.Storages[sIdx]
			remote, ok := lo.Find(vm.Handle.Storages, func(s cix.VMStorage) bool { return s.Name == storage.Name })
			if !ok {
				slog.Debug("Storage not found on control plane", "vm", spec.Name, "storage", storage.Name)

				continue
			}
			storage.ID = remote.ID
			storage.VMID = vm.Handle.ID
		}

		for aIdx := range spec.IPAddresses {
			addr := &spec.IPAddresses[aIdx]
			remote, ok := lo.Find(vm.Handle.IPAddresses, func(ip cix.IPAddress) bool { return ip.Address == addr.Address })
			if !ok {
				slog.Debug("Address not found on control plane", "vm", spec.Name, "address", addr.Address)

				continue
			}
			addr.ID = remote.ID
		}
	}

	return nil
}
