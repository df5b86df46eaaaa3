// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package cix

type envelope[T any] struct {
	Content T `json:"content"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	APIKey   string `json:"api_key"`
}

// Cloud is the result of a topology submission
type Cloud struct {
	Project       Project       `json:"project"`
	VirtualRouter VirtualRouter `json:"virtual_router"`
	VPNs          []VPN         `json:"vpns"`
	VMs           []VM          `json:"vms"`
}

type Project struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	AddressID int    `json:"address_id"`
	RegionID  int    `json:"region_id"`
	Closed    bool   `json:"closed"`
	ShutDown  bool   `json:"shut_down"`
	State     State  `json:"state"`
}

type VirtualRouter struct {
	ID        int        `json:"id"`
	State     State      `json:"state"`
	RouterID  int        `json:"router_id"`
	IPAddress *IPAddress `json:"ip_address"`
	Subnets   []Subnet   `json:"subnets"`
}

// PublicIP is the address the virtual router is reachable on
func (vr VirtualRouter) PublicIP() string {
	if vr.IPAddress == nil {
		return ""
	}

	return vr.IPAddress.Address
}

type Subnet struct {
	ID           int    `json:"id"`
	AddressRange string `json:"address_range"`
	AddressID    int    `json:"address_id"`
	VLAN         int    `json:"vlan"`
	VXLAN        int    `json:"vxlan"`
}

type VPN struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

type IPAddress struct {
	ID       int        `json:"id"`
	Address  string     `json:"address"`
	PublicIP *IPAddress `json:"public_ip,omitempty"`
}

type VMImage struct {
	ID          int    `json:"id"`
	DisplayName string `json:"display_name"`
}

type VMStorage struct {
	ID      int    `json:"id"`
	VMID    int    `json:"vm_id"`
	Name    string `json:"name"`
	GB      int    `json:"gb"`
	Primary bool   `json:"primary"`
}

type VM struct {
	ID          int         `json:"id"`
	Name        string      `json:"name"`
	State       State       `json:"state"`
	ProjectID   int         `json:"project_id"`
	ServerID    int         `json:"server_id"`
	CPU         int         `json:"cpu"`
	RAM         int         `json:"ram"`
	Image       VMImage     `json:"image"`
	IPAddresses []IPAddress `json:"ip_addresses"`
	Storages    []VMStorage `json:"storages"`
}

// PublicIP returns the first public address of the VM
func (vm VM) PublicIP() string {
	for _, ip := range vm.IPAddresses {
		if ip.PublicIP != nil && ip.PublicIP.Address != "" {
			return ip.PublicIP.Address
		}
	}

	return ""
}

// Router is the physical router hosting virtual routers
type Router struct {
	ID           int    `json:"id"`
	ManagementIP string `json:"management_ip"`
	Username     string `json:"username"`
	Credentials  string `json:"credentials"`
}

// Address is a membership address, cloud regions are addresses
type Address struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type TypeRef struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

const (
	ServerTypeHyperV = 1
	ServerTypeKVM    = 2

	StorageTypeHDD = 1
	StorageTypeSSD = 2
)

type Server struct {
	ID          int     `json:"id"`
	Model       string  `json:"model"`
	Host        bool    `json:"host"`
	Enabled     bool    `json:"enabled"`
	Cores       int     `json:"cores"`
	RAM         int     `json:"ram"`
	GB          int     `json:"gb"`
	HDD         int     `json:"hdd"`
	Flash       int     `json:"flash"`
	AssetTag    *string `json:"asset_tag"`
	Type        TypeRef `json:"type"`
	StorageType TypeRef `json:"storage_type"`
}

type Asset struct {
	ID       int    `json:"id"`
	AssetTag string `json:"asset_tag"`
	Location string `json:"location"`
}
