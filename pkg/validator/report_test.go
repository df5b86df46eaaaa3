// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package validator

import (
	"bytes"
	"testing"

	"github.com/cloudcix/validator/pkg/cix"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T {
	return &v
}

var testServers = []cix.Server{
	{
		ID: 1, Model: "R640", Host: true, Cores: 10, RAM: 108, GB: 1100, HDD: 1100, AssetTag: ptr("A-1"),
		Type: cix.TypeRef{ID: cix.ServerTypeKVM}, StorageType: cix.TypeRef{ID: cix.StorageTypeHDD},
	},
	{
		ID: 2, Model: "R650", Cores: 20, RAM: 208, GB: 2100, Flash: 2100,
		Type: cix.TypeRef{ID: cix.ServerTypeHyperV}, StorageType: cix.TypeRef{ID: cix.StorageTypeSSD},
	},
}

func TestRegionCapacity(t *testing.T) {
	caps := RegionCapacity(testServers)
	require.Len(t, caps, 4)

	require.Equal(t, Capacity{Label: "Windows + HDD"}, caps[0])
	require.Equal(t, "Windows + SSD", caps[1].Label)
	require.InDelta(t, 20*8*0.77, caps[1].Cores, 1e-9)
	require.InDelta(t, 200*0.77, caps[1].RAM, 1e-9)
	require.InDelta(t, 2000*0.77, caps[1].SSD, 1e-9)
	require.Zero(t, caps[1].HDD)

	require.Equal(t, "Unix + HDD", caps[2].Label)
	require.InDelta(t, 10*8*0.77, caps[2].Cores, 1e-9)
	require.InDelta(t, 100*0.77, caps[2].RAM, 1e-9)
	require.InDelta(t, 1000*0.77, caps[2].HDD, 1e-9)

	require.Equal(t, Capacity{Label: "Unix + SSD"}, caps[3])
}

func TestServerUtilisation(t *testing.T) {
	vms := []cix.VM{
		{ServerID: 1, CPU: 2, RAM: 4, Storages: []cix.VMStorage{{GB: 50}, {GB: 50}}},
		{ServerID: 1, CPU: 2, RAM: 4, Storages: []cix.VMStorage{{GB: 10}}},
		{ServerID: 2, CPU: 4, RAM: 52, Storages: []cix.VMStorage{{GB: 210}}},
		{ServerID: 3, CPU: 64},
	}

	utils := ServerUtilisation(testServers, vms)
	require.Equal(t, []Utilisation{
		{ServerID: 1, Cores: 4, RAM: 8, HDD: 110, CoresPct: 5, RAMPct: 7.407, HDDPct: 10},
		{ServerID: 2, Cores: 4, RAM: 52, SSD: 210, CoresPct: 2.5, RAMPct: 25, SSDPct: 10},
	}, utils)
}

func TestServerUtilisationEmptyServer(t *testing.T) {
	utils := ServerUtilisation([]cix.Server{{ID: 9}}, nil)
	require.Equal(t, []Utilisation{{ServerID: 9}}, utils)
}

func TestWriteServers(t *testing.T) {
	buf := &bytes.Buffer{}
	writeServers(buf, "7", testServers, []cix.Asset{{AssetTag: "A-1", Location: "Rack 4 U12"}})

	out := buf.String()
	require.Contains(t, out, "Servers in region #7")
	require.Contains(t, out, "Rack4U12")
	require.Contains(t, out, "KVM")
	require.Contains(t, out, "HyperV")
	require.Contains(t, out, "?")

	buf.Reset()
	writeServers(buf, "7", nil, nil)
	require.Equal(t, "No servers found in region #7\n", buf.String())
}

func TestWriteProjects(t *testing.T) {
	buf := &bytes.Buffer{}
	writeProjects(buf, "7", []cix.Project{{ID: 12, Name: "customer-a", AddressID: 99}})
	require.Contains(t, buf.String(), "customer-a")

	buf.Reset()
	writeProjects(buf, "7", nil)
	require.Equal(t, "No projects found in region #7\n", buf.String())
}
