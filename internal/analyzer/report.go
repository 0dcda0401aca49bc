package analyzer

import "firestige.xyz/pcaplens/internal/core"

// Result finalizes the accumulators into a result labelled with file.
// Every collection is non-nil and owned by the result, so observing more
// packets afterwards leaves it unchanged. Calling Result again yields an
// equal value.
func (a *Aggregator) Result(file string) *core.AnalysisResult {
	return &core.AnalysisResult{
		File:        file,
		CaptureInfo: a.timing.info(),
		Protocols:   a.tree.Clone(),
		DeviceInfo: core.DeviceInfo{
			MACAddresses:  a.macs.Records(),
			IPAddresses:   a.ips.Records(),
			IPv6Addresses: a.ips.IPv6(),
		},
		TCPStreams: a.tcp.Streams(),
		UDPStreams: a.udp.Streams(),
		ExternalResources: core.ExternalResources{
			ExternalIPs: a.ips.External(),
		},
	}
}
