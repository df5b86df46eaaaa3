// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"errors"
	"fmt"
	"net/netip"

	"github.com/go-playground/validator/v10"
)

var validate = newValidate()

// newValidate registers prefix4 for IPv4 address ranges that keep the gateway host bits, e.g. 10.0.0.1/24
func newValidate() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("prefix4", func(fl validator.FieldLevel) bool {
		prefix, err := netip.ParsePrefix(fl.Field().String())

		return err == nil && prefix.Addr().Is4()
	}); err != nil {
		panic(err)
	}

	return v
}

var ErrInvalidTopology = errors.New("invalid topology")

// Validate checks the field constraints and the cross references: gateway subnets exist, every address is a host
// address of some topology subnet and unique across the topology, exactly one NAT address inside the gateway subnet
// and exactly one primary storage per VM.
func (t *Topology) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTopology, err)
	}

	gateways := map[string]bool{}
	for _, subnet := range t.Subnets {
		if gateways[subnet.AddressRange] {
			return fmt.Errorf("%w: duplicate subnet %s", ErrInvalidTopology, subnet.AddressRange)
		}
		gateways[subnet.AddressRange] = true
	}

	seen := NewLedger()
	for _, subnet := range t.Subnets {
		seen.Add(subnet.Gateway())
	}

	var errs []error
	for _, vm := range t.VMs {
		if !gateways[vm.GatewaySubnet] {
			errs = append(errs, fmt.Errorf("vm %s: gateway subnet %s: %w", vm.Name, vm.GatewaySubnet, ErrUnknownSubnet))

			continue
		}

		nat := 0
		for _, ip := range vm.IPAddresses {
			if seen.Has(ip.Address) {
				errs = append(errs, fmt.Errorf("vm %s: address %s is already used", vm.Name, ip.Address)) //nolint:goerr113
			}
			seen.Add(ip.Address)

			if ip.NAT {
				nat++
				if ok, err := HostRange(vm.GatewaySubnet, ip.Address); err != nil || !ok {
					errs = append(errs, fmt.Errorf("vm %s: nat address %s outside of gateway subnet %s", vm.Name, ip.Address, vm.GatewaySubnet)) //nolint:goerr113
				}

				continue
			}

			inside := false
			for _, subnet := range t.Subnets {
				if ok, err := HostRange(subnet.AddressRange, ip.Address); err == nil && ok {
					inside = true

					break
				}
			}
			if !inside {
				errs = append(errs, fmt.Errorf("vm %s: address %s isn't a host address of any subnet", vm.Name, ip.Address)) //nolint:goerr113
			}
		}
		if nat != 1 {
			errs = append(errs, fmt.Errorf("vm %s: expected exactly one nat address, got %d", vm.Name, nat)) //nolint:goerr113
		}

		primary := 0
		for _, storage := range vm.Storages {
			if storage.Primary {
				primary++
			}
		}
		if primary != 1 {
			errs = append(errs, fmt.Errorf("vm %s: expected exactly one primary storage, got %d", vm.Name, primary)) //nolint:goerr113
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidTopology, errors.Join(errs...))
	}

	return nil
}
