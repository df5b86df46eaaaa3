// Copyright 2025 CloudCIX
// SPDX-License-Identifier: Apache-2.0

package topology

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/netip"

	"go4.org/netipx"
)

const DefaultMaxDraws = 1000

var (
	ErrAllocationExhausted = errors.New("allocation exhausted")
	ErrUnsupportedSubnet   = errors.New("only IPv4 subnets are supported")
)

// Ledger is the set of addresses already committed within one generation pass
type Ledger map[string]struct{}

func NewLedger(addrs ...string) Ledger {
	l := Ledger{}
	for _, addr := range addrs {
		l.Add(addr)
	}

	return l
}

func (l Ledger) Add(addr string) {
	l[normalizeAddr(addr)] = struct{}{}
}

func (l Ledger) Has(addr string) bool {
	_, ok := l[normalizeAddr(addr)]

	return ok
}

func normalizeAddr(addr string) string {
	if parsed, err := netip.ParseAddr(addr); err == nil {
		return parsed.String()
	}

	return addr
}

// Allocator draws random host addresses from CIDR blocks
type Allocator struct {
	Rand     *rand.Rand
	MaxDraws int
}

func NewAllocator(rng *rand.Rand) *Allocator {
	return &Allocator{
		Rand:     rng,
		MaxDraws: DefaultMaxDraws,
	}
}

// Allocate returns a random host address of the subnet that isn't in used. It never mutates used, so the caller
// has to record the result before the next call.
func (a *Allocator) Allocate(subnet string, used Ledger) (string, error) {
	prefix, err := netip.ParsePrefix(subnet)
	if err != nil {
		return "", fmt.Errorf("parsing subnet %q: %w", subnet, err)
	}
	prefix = prefix.Masked()
	if !prefix.Addr().Is4() {
		return "", fmt.Errorf("subnet %q: %w", subnet, ErrUnsupportedSubnet)
	}

	first := binary.BigEndian.Uint32(prefix.Addr().AsSlice())
	last := binary.BigEndian.Uint32(netipx.PrefixLastIP(prefix).AsSlice())

	// network and broadcast are excluded, /31 and /32 have no hosts
	if last-first < 2 {
		return "", fmt.Errorf("subnet %s has no host addresses: %w", prefix, ErrAllocationExhausted)
	}
	hosts := uint64(last - first - 1)

	maxDraws := a.MaxDraws
	if maxDraws <= 0 {
		maxDraws = DefaultMaxDraws
	}

	for range maxDraws {
		var raw [4]byte
		binary.BigEndian.PutUint32(raw[:], first+1+uint32(a.Rand.Uint64N(hosts))) //nolint:gosec
		addr := netip.AddrFrom4(raw).String()

		if !used.Has(addr) {
			return addr, nil
		}
	}

	return "", fmt.Errorf("subnet %s after %d draws: %w", prefix, maxDraws, ErrAllocationExhausted)
}

// HostRange reports whether addr is a host address of the subnet
func HostRange(subnet, addr string) (bool, error) {
	prefix, err := netip.ParsePrefix(subnet)
	if err != nil {
		return false, fmt.Errorf("parsing subnet %q: %w", subnet, err)
	}
	prefix = prefix.Masked()

	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return false, fmt.Errorf("parsing address %q: %w", addr, err)
	}

	if !prefix.Contains(ip) {
		return false, nil
	}

	return ip != prefix.Addr() && ip != netipx.PrefixLastIP(prefix), nil
}

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec
}

func pick[T any](rng *rand.Rand, items []T) T {
	return items[rng.IntN(len(items))]
}
