package inventory

import (
	"context"
	"net/netip"
	"slices"

	"firestige.xyz/pcaplens/internal/core"
	"firestige.xyz/pcaplens/internal/resolve"
)

// IPInventory records each network-layer address once, in first-seen order,
// with an IPv6-only index kept alongside.
type IPInventory struct {
	hosts   resolve.HostResolver
	records []core.IPRecord
	ipv6    []string
	seen    map[string]struct{}
}

// NewIPInventory creates an inventory that reverse-resolves new addresses.
func NewIPInventory(hosts resolve.HostResolver) *IPInventory {
	if hosts == nil {
		hosts = resolve.NopHost{}
	}
	return &IPInventory{
		hosts:   hosts,
		records: []core.IPRecord{},
		ipv6:    []string{},
		seen:    make(map[string]struct{}),
	}
}

// Observe records the header's source then destination address. Malformed
// address strings are skipped.
func (inv *IPInventory) Observe(ctx context.Context, ip *core.IPHeader) {
	if ip == nil {
		return
	}
	for _, addr := range [2]string{ip.SrcIP, ip.DstIP} {
		if addr == "" {
			continue
		}
		if _, ok := inv.seen[addr]; ok {
			continue
		}
		parsed, err := netip.ParseAddr(addr)
		if err != nil {
			continue
		}
		inv.seen[addr] = struct{}{}

		rec := core.IPRecord{
			IP:        addr,
			IsPrivate: IsPrivate(parsed),
			IsIPv6:    parsed.Is6(),
		}
		if name, ok := inv.hosts.LookupHost(ctx, addr); ok {
			rec.Resolved = &name
		}
		inv.records = append(inv.records, rec)
		if rec.IsIPv6 {
			inv.ipv6 = append(inv.ipv6, addr)
		}
	}
}

// nonGlobal lists IANA special-purpose ranges that are not publicly routable
// but are not covered by netip's private/loopback/link-local predicates.
var nonGlobal = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("64:ff9b:1::/48"),
	netip.MustParsePrefix("100::/64"),
	netip.MustParsePrefix("2001::/23"), // Teredo, benchmarking, ORCHIDv2
	netip.MustParsePrefix("2001:db8::/32"),
}

// IsPrivate reports whether addr is private-range, loopback or link-local.
// IPv4-mapped IPv6 addresses are classified by their IPv4 form.
func IsPrivate(addr netip.Addr) bool {
	a := addr.Unmap()
	if a.IsPrivate() || a.IsLoopback() || a.IsLinkLocalUnicast() || a.IsUnspecified() {
		return true
	}
	for _, p := range nonGlobal {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// Len returns the number of distinct addresses.
func (inv *IPInventory) Len() int {
	return len(inv.records)
}

// Records returns a copy of the records in first-seen order.
func (inv *IPInventory) Records() []core.IPRecord {
	out := make([]core.IPRecord, len(inv.records))
	copy(out, inv.records)
	return out
}

// IPv6 returns the IPv6 addresses in first-seen order.
func (inv *IPInventory) IPv6() []string {
	return slices.Clone(inv.ipv6)
}

// External returns the sorted addresses that are not private, loopback or
// link-local.
func (inv *IPInventory) External() []string {
	out := []string{}
	for _, rec := range inv.records {
		if !rec.IsPrivate {
			out = append(out, rec.IP)
		}
	}
	slices.Sort(out)
	return out
}
