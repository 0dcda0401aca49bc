package source

import (
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/pcaplens/internal/core"
)

// layerNames maps decoded layers to Wireshark-style short names.
var layerNames = map[gopacket.LayerType]string{
	layers.LayerTypeEthernet:        "eth",
	layers.LayerTypeDot1Q:           "vlan",
	layers.LayerTypeLinuxSLL:        "sll",
	layers.LayerTypeLoopback:        "null",
	layers.LayerTypeARP:             "arp",
	layers.LayerTypeLLC:             "llc",
	layers.LayerTypeSNAP:            "snap",
	layers.LayerTypeSTP:             "stp",
	layers.LayerTypeIPv4:            "ip",
	layers.LayerTypeIPv6:            "ipv6",
	layers.LayerTypeIPv6HopByHop:    "ipv6.hopopts",
	layers.LayerTypeIPv6Fragment:    "ipv6.fraghdr",
	layers.LayerTypeICMPv4:          "icmp",
	layers.LayerTypeICMPv6:          "icmpv6",
	layers.LayerTypeIGMP:            "igmp",
	layers.LayerTypeGRE:             "gre",
	layers.LayerTypeSCTP:            "sctp",
	layers.LayerTypeTCP:             "tcp",
	layers.LayerTypeUDP:             "udp",
	layers.LayerTypeDNS:             "dns",
	layers.LayerTypeDHCPv4:          "dhcp",
	layers.LayerTypeDHCPv6:          "dhcpv6",
	layers.LayerTypeNTP:             "ntp",
	layers.LayerTypeTLS:             "tls",
	layers.LayerTypeSIP:             "sip",
	layers.LayerTypeVXLAN:           "vxlan",
	gopacket.LayerTypePayload:       "data",
	gopacket.LayerTypeDecodeFailure: "_ws.malformed",
}

// icmpv6Messages are decoded by gopacket as separate layers; Wireshark
// shows them inside the icmpv6 layer.
var icmpv6Messages = map[gopacket.LayerType]struct{}{
	layers.LayerTypeICMPv6Echo:                  {},
	layers.LayerTypeICMPv6RouterSolicitation:    {},
	layers.LayerTypeICMPv6RouterAdvertisement:   {},
	layers.LayerTypeICMPv6NeighborSolicitation:  {},
	layers.LayerTypeICMPv6NeighborAdvertisement: {},
	layers.LayerTypeICMPv6Redirect:              {},
}

// terminal layers carry no payload of their own. Bytes gopacket leaves after
// them are minimum-frame padding, not a data layer.
var terminal = map[gopacket.LayerType]struct{}{
	layers.LayerTypeARP: {},
	layers.LayerTypeSTP: {},
}

// LayerName returns the short name of a layer type.
func LayerName(t gopacket.LayerType) string {
	if name, ok := layerNames[t]; ok {
		return name
	}
	return strings.ToLower(t.String())
}

// Record extracts the fields the analyzer reads from a decoded packet.
// Timestamp is left to the caller.
func Record(pkt gopacket.Packet) core.PacketRecord {
	var rec core.PacketRecord

	prev := gopacket.LayerTypeZero
	for _, layer := range pkt.Layers() {
		t := layer.LayerType()
		if _, ok := icmpv6Messages[t]; ok {
			continue
		}
		if _, ok := terminal[prev]; ok && t == gopacket.LayerTypePayload {
			continue
		}
		prev = t
		rec.Layers = append(rec.Layers, LayerName(t))

		switch l := layer.(type) {
		case *layers.Ethernet:
			if rec.Ethernet == nil {
				rec.Ethernet = &core.EthernetHeader{
					SrcMAC: l.SrcMAC.String(),
					DstMAC: l.DstMAC.String(),
				}
			}
		case *layers.IPv4:
			rec.Networks = append(rec.Networks, core.IPHeader{Version: 4, SrcIP: l.SrcIP.String(), DstIP: l.DstIP.String()})
		case *layers.IPv6:
			rec.Networks = append(rec.Networks, core.IPHeader{Version: 6, SrcIP: l.SrcIP.String(), DstIP: l.DstIP.String()})
		case *layers.TCP:
			if rec.TCP == nil {
				rec.TCP = &core.TCPHeader{
					SrcPort: uint16(l.SrcPort),
					DstPort: uint16(l.DstPort),
					Seq:     l.Seq,
					Payload: l.Payload,
				}
			}
		case *layers.UDP:
			if rec.UDP == nil {
				rec.UDP = &core.UDPHeader{
					SrcPort: uint16(l.SrcPort),
					DstPort: uint16(l.DstPort),
					Payload: l.Payload,
				}
			}
		}
	}

	// The outermost header keys the transport stream.
	if len(rec.Networks) > 0 {
		rec.IP = &rec.Networks[0]
	}
	return rec
}
