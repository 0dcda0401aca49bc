// Package inventory keeps deduplicated, first-seen-ordered address records.
package inventory

import (
	"firestige.xyz/pcaplens/internal/core"
	"firestige.xyz/pcaplens/internal/resolve"
)

// MACInventory records each link-layer address once, in first-seen order.
type MACInventory struct {
	vendors resolve.VendorResolver
	records []core.MACRecord
	seen    map[string]struct{}
}

// NewMACInventory creates an inventory that labels new addresses with vendors.
func NewMACInventory(vendors resolve.VendorResolver) *MACInventory {
	if vendors == nil {
		vendors = resolve.NopVendor{}
	}
	return &MACInventory{
		vendors: vendors,
		records: []core.MACRecord{},
		seen:    make(map[string]struct{}),
	}
}

// Observe records the frame's source then destination address. An address
// already recorded is neither re-resolved nor re-tagged.
func (m *MACInventory) Observe(eth *core.EthernetHeader) {
	if eth == nil {
		return
	}
	for _, mac := range [2]string{eth.SrcMAC, eth.DstMAC} {
		if mac == "" {
			continue
		}
		if _, ok := m.seen[mac]; ok {
			continue
		}
		m.seen[mac] = struct{}{}

		rec := core.MACRecord{MAC: mac, Type: core.MACTypeDst}
		if mac == eth.SrcMAC {
			rec.Type = core.MACTypeSrc
		}
		if vendor, ok := m.vendors.LookupVendor(mac); ok {
			rec.Resolved = &vendor
		}
		m.records = append(m.records, rec)
	}
}

// Len returns the number of distinct addresses.
func (m *MACInventory) Len() int {
	return len(m.records)
}

// Records returns a copy of the records in first-seen order.
func (m *MACInventory) Records() []core.MACRecord {
	out := make([]core.MACRecord, len(m.records))
	copy(out, m.records)
	return out
}
