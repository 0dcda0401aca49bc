// Package core defines core data structures with zero external dependencies.
package core

import "time"

// PacketRecord is one decoded frame produced by a packet source.
// Header pointers are nil when the layer is absent. Records are read-only
// once handed to the aggregator.
type PacketRecord struct {
	Timestamp time.Time
	Layers    []string // Protocol layer names, outermost to innermost

	Ethernet *EthernetHeader
	IP       *IPHeader // Outermost network header
	TCP      *TCPHeader
	UDP      *UDPHeader

	// Networks holds every IPv4/IPv6 header, outermost first. Tunnelled
	// frames (6in4, IP-in-IP) carry more than one.
	Networks []IPHeader
}

// NetworkHeaders returns every network header of the record. A record built
// with only IP set yields that header.
func (p *PacketRecord) NetworkHeaders() []IPHeader {
	if len(p.Networks) > 0 {
		return p.Networks
	}
	if p.IP != nil {
		return []IPHeader{*p.IP}
	}
	return nil
}

// HasTCPPayload reports whether the record carries a network header and a
// TCP segment with a non-empty payload.
func (p *PacketRecord) HasTCPPayload() bool {
	return p.IP != nil && p.TCP != nil && len(p.TCP.Payload) > 0
}

// HasUDPPayload reports whether the record carries a network header and a
// UDP datagram with a non-empty payload.
func (p *PacketRecord) HasUDPPayload() bool {
	return p.IP != nil && p.UDP != nil && len(p.UDP.Payload) > 0
}
