package resolve

import (
	"net"

	"github.com/google/gopacket/macs"

	"firestige.xyz/pcaplens/internal/metrics"
)

// VendorResolver maps a MAC address to its manufacturer label.
type VendorResolver interface {
	LookupVendor(mac string) (string, bool)
}

// OUIResolver looks up the IEEE OUI prefix table bundled with gopacket.
type OUIResolver struct {
	prefixes map[[3]byte]string
}

// NewOUIResolver creates a resolver over gopacket's OUI table.
func NewOUIResolver() *OUIResolver {
	return &OUIResolver{prefixes: macs.ValidMACPrefixMap}
}

// LookupVendor returns the vendor registered for the first three octets.
// Unparseable addresses and unknown prefixes report ok=false.
func (r *OUIResolver) LookupVendor(mac string) (string, bool) {
	hw, err := net.ParseMAC(mac)
	if err != nil || len(hw) < 3 {
		metrics.ResolverLookupsTotal.WithLabelValues("oui", "failed").Inc()
		return "", false
	}
	vendor, ok := r.prefixes[[3]byte{hw[0], hw[1], hw[2]}]
	if !ok || vendor == "" {
		metrics.ResolverLookupsTotal.WithLabelValues("oui", "failed").Inc()
		return "", false
	}
	metrics.ResolverLookupsTotal.WithLabelValues("oui", "resolved").Inc()
	return vendor, true
}

// NopVendor never resolves anything.
type NopVendor struct{}

// LookupVendor implements VendorResolver.
func (NopVendor) LookupVendor(string) (string, bool) {
	return "", false
}
