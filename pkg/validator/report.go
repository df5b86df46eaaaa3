// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package validator

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/cloudcix/validator/pkg/cix"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
)

const (
	Oversubscription = 8
	RAMBaseGB        = 8
	DiskBaseGB       = 100
	CPUCreateLimit   = 0.77
	RAMCreateLimit   = 0.77
	DiskCreateLimit  = 0.77
)

func newTable(w io.Writer, title string, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle(title)
	t.AppendHeader(header)

	return t
}

func writeRegions(w io.Writer, regions []cix.Address) {
	t := newTable(w, "Available Regions", table.Row{"ID", "Name"})
	for _, region := range regions {
		t.AppendRow(table.Row{region.ID, region.Name})
	}
	t.Render()
}

func serverType(server cix.Server) string {
	if server.Type.ID == cix.ServerTypeHyperV {
		return "HyperV"
	}

	return "KVM"
}

func writeServers(w io.Writer, region string, servers []cix.Server, assets []cix.Asset) {
	if len(servers) == 0 {
		fmt.Fprintf(w, "No servers found in region #%s\n", region)

		return
	}

	byTag := lo.KeyBy(assets, func(a cix.Asset) string { return a.AssetTag })

	t := newTable(w, "Servers in region #"+region, table.Row{"Model", "Host", "RAM (GB)", "HDD (GB)", "SSD (GB)", "Asset Tag", "Location", "Type"})
	for _, server := range servers {
		tag, location := "?", "?"
		if server.AssetTag != nil {
			if asset, ok := byTag[*server.AssetTag]; ok {
				tag = asset.AssetTag
				location = strings.ReplaceAll(asset.Location, " ", "")
			}
		}

		t.AppendRow(table.Row{
			server.Model,
			lo.Ternary(server.Host, "Yes", "No"),
			server.RAM,
			server.HDD,
			server.Flash,
			tag,
			location,
			serverType(server),
		})
	}
	t.Render()
}

func writeProjects(w io.Writer, region string, projects []cix.Project) {
	if len(projects) == 0 {
		fmt.Fprintf(w, "No projects found in region #%s\n", region)

		return
	}

	t := newTable(w, "Projects in region #"+region, table.Row{"ID", "Name", "Customer"})
	for _, project := range projects {
		t.AppendRow(table.Row{project.ID, project.Name, project.AddressID})
	}
	t.Render()
}

// Capacity is what can still be created on one kind of server of a region
type Capacity struct {
	Label string
	Cores float64
	RAM   float64
	HDD   float64
	SSD   float64
}

var capacityKinds = []struct {
	label       string
	serverType  int
	storageType int
}{
	{"Windows + HDD", cix.ServerTypeHyperV, cix.StorageTypeHDD},
	{"Windows + SSD", cix.ServerTypeHyperV, cix.StorageTypeSSD},
	{"Unix + HDD", cix.ServerTypeKVM, cix.StorageTypeHDD},
	{"Unix + SSD", cix.ServerTypeKVM, cix.StorageTypeSSD},
}

// RegionCapacity sums the creatable cores, RAM and storage per server and storage type
func RegionCapacity(servers []cix.Server) []Capacity {
	caps := make([]Capacity, 0, len(capacityKinds))
	for _, kind := range capacityKinds {
		c := Capacity{Label: kind.label}
		storage := 0.0
		for _, server := range servers {
			if server.Type.ID != kind.serverType || server.StorageType.ID != kind.storageType {
				continue
			}

			c.Cores += float64(server.Cores) * Oversubscription * CPUCreateLimit
			c.RAM += float64(server.RAM-RAMBaseGB) * RAMCreateLimit
			storage += float64(server.GB-DiskBaseGB) * DiskCreateLimit
		}
		if kind.storageType == cix.StorageTypeHDD {
			c.HDD = storage
		} else {
			c.SSD = storage
		}

		caps = append(caps, c)
	}

	return caps
}

func writeCapacity(w io.Writer, caps []Capacity) {
	t := newTable(w, "Server Stats", table.Row{"Server Type", "Cores", "RAM (GB)", "HDD (GB)", "SSD (GB)"})
	for _, c := range caps {
		t.AppendRow(table.Row{c.Label, round(c.Cores), round(c.RAM), round(c.HDD), round(c.SSD)})
	}
	t.Render()
}

// Utilisation is what the VMs placed on a server use of it
type Utilisation struct {
	ServerID int
	Cores    int
	RAM      int
	HDD      int
	SSD      int
	CoresPct float64
	RAMPct   float64
	HDDPct   float64
	SSDPct   float64
}

func percent(used, total float64) float64 {
	if total <= 0 {
		return 0
	}

	return round(used / total * 100)
}

func round(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// ServerUtilisation computes the use of every server from the VMs placed on it, closed VMs are expected to be
// filtered out already
func ServerUtilisation(servers []cix.Server, vms []cix.VM) []Utilisation {
	byServer := lo.GroupBy(vms, func(vm cix.VM) int { return vm.ServerID })

	out := make([]Utilisation, 0, len(servers))
	for _, server := range servers {
		u := Utilisation{ServerID: server.ID}
		storage := 0
		for _, vm := range byServer[server.ID] {
			u.Cores += vm.CPU
			u.RAM += vm.RAM
			storage += lo.SumBy(vm.Storages, func(s cix.VMStorage) int { return s.GB })
		}

		u.CoresPct = percent(float64(u.Cores), float64(server.Cores*Oversubscription))
		u.RAMPct = percent(float64(u.RAM), float64(server.RAM))
		switch server.StorageType.ID {
		case cix.StorageTypeHDD:
			u.HDD = storage
			u.HDDPct = percent(float64(storage), float64(server.GB))
		case cix.StorageTypeSSD:
			u.SSD = storage
			u.SSDPct = percent(float64(storage), float64(server.GB))
		}

		out = append(out, u)
	}

	return out
}

func writeUtilisation(w io.Writer, utils []Utilisation) {
	t := newTable(w, "Server Utilisation", table.Row{"Server", "Cores", "RAM", "HDD", "SSD"})
	for _, u := range utils {
		t.AppendRow(table.Row{
			u.ServerID,
			fmt.Sprintf("%v%% - %d cores", u.CoresPct, u.Cores),
			fmt.Sprintf("%v%% - %dGB", u.RAMPct, u.RAM),
			fmt.Sprintf("%v%% - %dGB", u.HDDPct, u.HDD),
			fmt.Sprintf("%v%% - %dGB", u.SSDPct, u.SSD),
		})
	}
	t.Render()
}
