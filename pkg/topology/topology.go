// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

// Package topology describes the resources submitted to the control plane for one project and generates them.
package topology

import (
	"strings"
)

const (
	DefaultDNS           = "8.8.8.8,8.8.4.4"
	DefaultStorageTypeID = 1
	DefaultStorageGB     = 50

	TestSubnet     = "192.168.123.1/24"
	TestSubnetName = "Test"

	// UpdateSource is the source address of the firewall rule appended during the update phase
	UpdateSource = "91.103.3.36"
)

// Topology is the provisioning request for a single project
type Topology struct {
	Project       Project        `json:"project"`
	Subnets       []Subnet       `json:"subnets" validate:"required,min=1,dive"`
	FirewallRules []FirewallRule `json:"firewall_rules" validate:"dive"`
	VPNs          []VPN          `json:"vpns,omitempty" validate:"dive"`
	VMs           []VMSpec       `json:"vms" validate:"dive"`

	// Images is the catalog the topology was generated from, kept for later additions
	Images []Image `json:"-"`
}

type Project struct {
	RegionID string `json:"region_id" validate:"required"`
	Name     string `json:"name" validate:"required"`
}

type Subnet struct {
	ID           int    `json:"id,omitempty"`
	AddressRange string `json:"address_range" validate:"required,prefix4"`
	Name         string `json:"name" validate:"required"`
	AddressID    int    `json:"address_id,omitempty"`
	VLAN         int    `json:"vlan,omitempty"`
	VXLAN        int    `json:"vxlan,omitempty"`
}

// Gateway returns the address part of the subnet's address range
func (s Subnet) Gateway() string {
	addr, _, _ := strings.Cut(s.AddressRange, "/")

	return addr
}

type FirewallRule struct {
	Allow        bool   `json:"allow"`
	Source       string `json:"source" validate:"required"`
	Destination  string `json:"destination" validate:"required"`
	Protocol     string `json:"protocol" validate:"required"`
	Port         string `json:"port,omitempty"`
	DebugLogging bool   `json:"debug_logging"`
	PCILogging   bool   `json:"pci_logging"`
}

type VPN struct {
	ID                  int        `json:"id,omitempty"`
	Description         string     `json:"description" validate:"required"`
	VPNType             string     `json:"vpn_type" validate:"required"`
	IKEAuthentication   string     `json:"ike_authentication"`
	IKEEncryption       string     `json:"ike_encryption"`
	IKELifetime         int        `json:"ike_lifetime"`
	IKEDHGroups         string     `json:"ike_dh_groups"`
	IKEPreSharedKey     string     `json:"ike_pre_shared_key"`
	IKEVersion          string     `json:"ike_version"`
	IKEMode             string     `json:"ike_mode"`
	IKEGatewayType      string     `json:"ike_gateway_type"`
	IKEGatewayValue     string     `json:"ike_gateway_value"`
	IPSecAuthentication string     `json:"ipsec_authentication"`
	IPSecEncryption     string     `json:"ipsec_encryption"`
	IPSecLifetime       int        `json:"ipsec_lifetime"`
	IPSecPFSGroups      string     `json:"ipsec_pfs_groups"`
	IPSecEstablishTime  string     `json:"ipsec_establish_time"`
	Routes              []VPNRoute `json:"routes" validate:"dive"`
}

type VPNRoute struct {
	LocalSubnet  string `json:"local_subnet" validate:"required,prefix4"`
	RemoteSubnet string `json:"remote_subnet" validate:"required,prefix4"`
}

// VMSpec is a locally generated VM description, ids are filled in once the control plane assigned them
type VMSpec struct {
	ID            int         `json:"id,omitempty"`
	ImageID       string      `json:"image_id" validate:"required"`
	Name          string      `json:"name" validate:"required"`
	CPU           int         `json:"cpu" validate:"min=1"`
	RAM           int         `json:"ram" validate:"min=1"`
	GatewaySubnet string      `json:"gateway_subnet" validate:"required,prefix4"`
	IPAddresses   []IPAddress `json:"ip_addresses" validate:"required,min=1,dive"`
	DNS           string      `json:"dns"`
	StorageTypeID int         `json:"storage_type_id" validate:"min=1"`
	Storages      []Storage   `json:"storages" validate:"required,min=1,dive"`
}

// GatewayIP returns the NAT-flagged address of the VM
func (vm VMSpec) GatewayIP() string {
	for _, ip := range vm.IPAddresses {
		if ip.NAT {
			return ip.Address
		}
	}

	return ""
}

type IPAddress struct {
	ID      int    `json:"id,omitempty"`
	Address string `json:"address" validate:"required,ipv4"`
	NAT     bool   `json:"nat"`
}

type Storage struct {
	ID      int    `json:"id,omitempty"`
	VMID    int    `json:"vm_id,omitempty"`
	Primary bool   `json:"primary"`
	Name    string `json:"name" validate:"required"`
	GB      int    `json:"gb" validate:"min=1"`
}

type OSFamily string

const (
	OSFamilyUnix    OSFamily = "unix"
	OSFamilyWindows OSFamily = "windows"
	OSFamilyOther   OSFamily = "other"
)

var OSFamilies = []OSFamily{
	OSFamilyUnix,
	OSFamilyWindows,
}

// Image is a catalog entry available in a region
type Image struct {
	ID             int    `json:"id"`
	DisplayName    string `json:"display_name"`
	AnswerFileName string `json:"answer_file_name"`
	MultipleIPs    bool   `json:"multiple_ips"`
}

// Family normalizes the image OS tag
func (i Image) Family() OSFamily {
	switch strings.ToLower(strings.TrimSpace(i.AnswerFileName)) {
	case "windows":
		return OSFamilyWindows
	case "ubuntu", "centos":
		return OSFamilyUnix
	default:
		return OSFamilyOther
	}
}

// VMName builds a VM name from a prefix and the image display name
func VMName(prefix string, image Image) string {
	return prefix + "-" + strings.ReplaceAll(image.DisplayName, " ", "-")
}
