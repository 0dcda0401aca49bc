// Package core defines core types with zero external dependencies.
package core

// EthernetHeader represents the L2 addresses seen on a frame.
// Addresses use the colon-separated lowercase form, e.g. "00:1a:2b:3c:4d:5e".
type EthernetHeader struct {
	SrcMAC string
	DstMAC string
}

// IPHeader represents L3 IP addresses (IPv4/IPv6) in their textual form.
type IPHeader struct {
	Version uint8 // 4 or 6
	SrcIP   string
	DstIP   string
}

// TCPHeader represents the TCP fields the aggregator consumes.
type TCPHeader struct {
	SrcPort uint16
	DstPort uint16
	Seq     uint32
	Payload []byte // Segment payload, zero-copy slice into the frame
}

// UDPHeader represents the UDP fields the aggregator consumes.
type UDPHeader struct {
	SrcPort uint16
	DstPort uint16
	Payload []byte
}
