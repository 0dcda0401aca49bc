// Package core defines the analysis result model.
package core

import "firestige.xyz/pcaplens/internal/protocol"

// AnalysisResult is the complete summary of one capture. Built once per run
// and never mutated afterwards.
type AnalysisResult struct {
	File              string            `json:"file" yaml:"file"`
	CaptureInfo       CaptureInfo       `json:"capture_info" yaml:"capture_info"`
	Protocols         *protocol.Node    `json:"protocols" yaml:"protocols"`
	DeviceInfo        DeviceInfo        `json:"device_info" yaml:"device_info"`
	TCPStreams        []Stream          `json:"tcp_streams" yaml:"tcp_streams"`
	UDPStreams        []Stream          `json:"udp_streams" yaml:"udp_streams"`
	ExternalResources ExternalResources `json:"external_resources" yaml:"external_resources"`
}

// CaptureInfo holds capture-wide timing.
type CaptureInfo struct {
	StartTime    string  `json:"start_time" yaml:"start_time"` // ISO-8601, empty for an empty capture
	EndTime      string  `json:"end_time" yaml:"end_time"`
	Duration     float64 `json:"duration" yaml:"duration"` // Seconds
	TotalPackets int     `json:"total_packets" yaml:"total_packets"`
}

// DeviceInfo holds the deduplicated address inventories in first-seen order.
type DeviceInfo struct {
	MACAddresses  []MACRecord `json:"mac_addresses" yaml:"mac_addresses"`
	IPAddresses   []IPRecord  `json:"ip_addresses" yaml:"ip_addresses"`
	IPv6Addresses []string    `json:"ipv6_addresses" yaml:"ipv6_addresses"`
}

// MAC address sighting directions.
const (
	MACTypeSrc = "src"
	MACTypeDst = "dst"
)

// MACRecord is a link-layer address with its vendor label, if known.
type MACRecord struct {
	MAC      string  `json:"mac" yaml:"mac"`
	Resolved *string `json:"resolved" yaml:"resolved"`
	Type     string  `json:"type" yaml:"type"`
}

// IPRecord is a network-layer address with its attributes at first sighting.
type IPRecord struct {
	IP        string  `json:"ip" yaml:"ip"`
	Resolved  *string `json:"resolved" yaml:"resolved"`
	IsPrivate bool    `json:"is_private" yaml:"is_private"`
	IsIPv6    bool    `json:"is_ipv6" yaml:"is_ipv6"`
}

// Stream is one reassembled conversation. The endpoint fields are the first
// and second tuple of the canonical key, not necessarily the initiator.
type Stream struct {
	StreamIndex int    `json:"stream_index" yaml:"stream_index"`
	Text        string `json:"text" yaml:"text"`
	IPSrc       string `json:"ip_src" yaml:"ip_src"`
	SPort       uint16 `json:"sport" yaml:"sport"`
	IPDst       string `json:"ip_dst" yaml:"ip_dst"`
	DPort       uint16 `json:"dport" yaml:"dport"`
}

// ExternalResources lists public endpoints seen in the capture.
type ExternalResources struct {
	ExternalIPs []string `json:"external_ips" yaml:"external_ips"`
}
