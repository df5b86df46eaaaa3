// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

var testImages = []Image{
	{ID: 3, DisplayName: "Ubuntu 22.04", AnswerFileName: "ubuntu", MultipleIPs: true},
	{ID: 5, DisplayName: "CentOS Stream 9", AnswerFileName: "centos"},
	{ID: 7, DisplayName: "Windows Server 2022", AnswerFileName: "windows"},
	{ID: 9, DisplayName: "Manual", AnswerFileName: ""},
}

func catalog(images []Image, err error) CatalogFunc {
	return func(_ context.Context, _ string) ([]Image, error) {
		return images, err
	}
}

func testGenerator(images []Image, err error) *Generator {
	g := NewGenerator(catalog(images, err))
	g.Rand = testRand()

	return g
}

func requireInvariants(t *testing.T, topo *Topology) {
	t.Helper()

	require.NoError(t, topo.Validate())

	subnets := map[string]bool{}
	for _, subnet := range topo.Subnets {
		subnets[subnet.AddressRange] = true
	}

	seen := map[string]bool{}
	for _, vm := range topo.VMs {
		require.True(t, subnets[vm.GatewaySubnet], "vm %s gateway %s", vm.Name, vm.GatewaySubnet)

		nat := 0
		for _, ip := range vm.IPAddresses {
			require.False(t, seen[ip.Address], "address %s used twice", ip.Address)
			seen[ip.Address] = true
			if ip.NAT {
				nat++
			}
		}
		require.Equal(t, 1, nat, "vm %s", vm.Name)
	}
}

func TestLight(t *testing.T) {
	topo, err := testGenerator(testImages, nil).Light(context.Background(), "region-1", "light-project")
	require.NoError(t, err)
	requireInvariants(t, topo)

	require.Equal(t, Project{RegionID: "region-1", Name: "light-project"}, topo.Project)
	require.Equal(t, []Subnet{{AddressRange: TestSubnet, Name: TestSubnetName}}, topo.Subnets)
	require.Equal(t, []FirewallRule{{Allow: true, Source: "*", Destination: TestSubnet, Protocol: "any"}}, topo.FirewallRules)

	require.Len(t, topo.VPNs, 1)
	require.Equal(t, "Home", topo.VPNs[0].Description)
	require.Len(t, topo.VPNs[0].IKEPreSharedKey, 32)
	require.Equal(t, []VPNRoute{{LocalSubnet: TestSubnet, RemoteSubnet: "172.16.32.0/24"}}, topo.VPNs[0].Routes)

	require.Len(t, topo.VMs, len(testImages))
	for idx, vm := range topo.VMs {
		require.Equal(t, fmt.Sprint(testImages[idx].ID), vm.ImageID)
		require.True(t, strings.HasPrefix(vm.Name, "TestVM-"))
		require.NotContains(t, vm.Name, " ")
		require.Equal(t, TestSubnet, vm.GatewaySubnet)
		require.Len(t, vm.IPAddresses, 1)
		require.NotEqual(t, "192.168.123.1", vm.IPAddresses[0].Address)
		require.Equal(t, []Storage{{Primary: true, Name: "C", GB: 50}}, vm.Storages)
		require.Equal(t, DefaultDNS, vm.DNS)
	}
	require.Equal(t, "TestVM-Ubuntu-22.04", topo.VMs[0].Name)
}

func TestLightCatalog(t *testing.T) {
	topo, err := testGenerator(nil, fmt.Errorf("wrapped: %w", ErrCatalogUnavailable)).Light(context.Background(), "r", "p")
	require.NoError(t, err)
	require.Empty(t, topo.VMs)

	_, err = testGenerator(nil, errors.New("boom")).Light(context.Background(), "r", "p") //nolint:goerr113
	require.ErrorContains(t, err, "boom")
}

func TestMultipleIPsPolicy(t *testing.T) {
	topo := &Topology{
		Subnets: []Subnet{
			{AddressRange: "10.0.0.1/24", Name: "a"},
			{AddressRange: "10.0.1.1/24", Name: "b"},
			{AddressRange: "10.0.2.1/24", Name: "c"},
		},
	}

	for _, tt := range []struct {
		name  string
		image Image
		want  int
	}{
		{
			name:  "multiple",
			image: Image{ID: 1, DisplayName: "multi", MultipleIPs: true},
			want:  3,
		},
		{
			name:  "single",
			image: Image{ID: 2, DisplayName: "single"},
			want:  1,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			p := testGenerator(nil, nil).newPass(topo)
			ips, err := p.addresses("10.0.1.1/24", tt.image)
			require.NoError(t, err)
			require.Len(t, ips, tt.want)

			require.True(t, ips[0].NAT)
			ok, err := HostRange("10.0.1.1/24", ips[0].Address)
			require.NoError(t, err)
			require.True(t, ok)

			covered := map[string]bool{"10.0.1.1/24": true}
			for _, ip := range ips[1:] {
				require.False(t, ip.NAT)
				for _, subnet := range topo.Subnets {
					if ok, _ := HostRange(subnet.AddressRange, ip.Address); ok {
						covered[subnet.AddressRange] = true
					}
				}
			}
			require.Len(t, covered, tt.want)
		})
	}
}

func TestHeavy(t *testing.T) {
	g := testGenerator(testImages, nil)

	topo, err := g.Heavy(context.Background(), "r", "heavy", HeavyOptions{
		Family:        OSFamilyWindows,
		CPU:           1,
		RAM:           1,
		StorageGB:     50,
		StorageTypeID: 2,
	})
	require.NoError(t, err)
	requireInvariants(t, topo)

	require.Len(t, topo.VMs, 1)
	require.Empty(t, topo.VPNs)
	require.True(t, topo.FirewallRules[0].DebugLogging)
	require.Equal(t, "7", topo.VMs[0].ImageID)
	require.Equal(t, 2, topo.VMs[0].StorageTypeID)
	require.Equal(t, []Storage{{Primary: true, Name: "TestHD", GB: 50}}, topo.VMs[0].Storages)

	topo, err = testGenerator(testImages[:2], nil).Heavy(context.Background(), "r", "heavy", HeavyOptions{Family: OSFamilyWindows})
	require.NoError(t, err)
	require.Nil(t, topo)
}

func TestAddVMAndFirewallRule(t *testing.T) {
	g := testGenerator(testImages, nil)

	topo, err := g.Light(context.Background(), "r", "p")
	require.NoError(t, err)

	vm, err := g.AddVM(topo)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(vm.Name, "New-TestVM-"))
	require.Equal(t, []Storage{{Primary: true, Name: "NewHDD", GB: 50}}, vm.Storages)
	require.Len(t, topo.VMs, len(testImages)+1)
	requireInvariants(t, topo)

	rule, err := g.AddFirewallRule(topo)
	require.NoError(t, err)
	require.Equal(t, FirewallRule{Allow: true, Source: UpdateSource, Destination: TestSubnet, Protocol: "any"}, *rule)
	require.Len(t, topo.FirewallRules, 2)

	_, err = g.AddVM(&Topology{Subnets: topo.Subnets})
	require.ErrorIs(t, err, ErrNoImages)
}

func TestFamily(t *testing.T) {
	for _, tt := range []struct {
		answer string
		want   OSFamily
	}{
		{answer: "ubuntu", want: OSFamilyUnix},
		{answer: "CentOS ", want: OSFamilyUnix},
		{answer: "Windows", want: OSFamilyWindows},
		{answer: "", want: OSFamilyOther},
	} {
		t.Run(tt.answer, func(t *testing.T) {
			require.Equal(t, tt.want, Image{AnswerFileName: tt.answer}.Family())
		})
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Topology {
		return &Topology{
			Project: Project{RegionID: "r", Name: "p"},
			Subnets: []Subnet{{AddressRange: TestSubnet, Name: TestSubnetName}},
			VMs: []VMSpec{
				{
					ImageID:       "1",
					Name:          "vm",
					CPU:           1,
					RAM:           1,
					GatewaySubnet: TestSubnet,
					IPAddresses:   []IPAddress{{Address: "192.168.123.10", NAT: true}},
					StorageTypeID: 1,
					Storages:      []Storage{{Primary: true, Name: "C", GB: 50}},
				},
			},
		}
	}

	for _, tt := range []struct {
		name   string
		mutate func(topo *Topology)
		err    bool
	}{
		{
			name:   "valid",
			mutate: func(_ *Topology) {},
		},
		{
			name: "unknown-gateway",
			mutate: func(topo *Topology) {
				topo.VMs[0].GatewaySubnet = "10.0.0.1/24"
			},
			err: true,
		},
		{
			name: "broadcast",
			mutate: func(topo *Topology) {
				topo.VMs[0].IPAddresses[0].Address = "192.168.123.255"
			},
			err: true,
		},
		{
			name: "gateway-address",
			mutate: func(topo *Topology) {
				topo.VMs[0].IPAddresses[0].Address = "192.168.123.1"
			},
			err: true,
		},
		{
			name: "two-primary",
			mutate: func(topo *Topology) {
				topo.VMs[0].Storages = append(topo.VMs[0].Storages, Storage{Primary: true, Name: "D", GB: 10})
			},
			err: true,
		},
		{
			name: "no-nat",
			mutate: func(topo *Topology) {
				topo.VMs[0].IPAddresses[0].NAT = false
			},
			err: true,
		},
		{
			name: "duplicate",
			mutate: func(topo *Topology) {
				dup := topo.VMs[0]
				dup.Name = "dup"
				topo.VMs = append(topo.VMs, dup)
			},
			err: true,
		},
		{
			name: "zero-cpu",
			mutate: func(topo *Topology) {
				topo.VMs[0].CPU = 0
			},
			err: true,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			topo := valid()
			tt.mutate(topo)

			err := topo.Validate()
			if tt.err {
				require.ErrorIs(t, err, ErrInvalidTopology)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
