// Package analyzer turns a packet sequence into an analysis result in a
// single pass.
package analyzer

import (
	"context"

	"firestige.xyz/pcaplens/internal/core"
	"firestige.xyz/pcaplens/internal/inventory"
	"firestige.xyz/pcaplens/internal/protocol"
	"firestige.xyz/pcaplens/internal/resolve"
	"firestige.xyz/pcaplens/internal/stream"
)

// Resolvers are the lookups consulted on the first sighting of an address.
// Nil fields disable the lookup.
type Resolvers struct {
	Hosts   resolve.HostResolver
	Vendors resolve.VendorResolver
}

// Aggregator holds the accumulators of one run. It has a single writer and
// is not safe for concurrent use.
type Aggregator struct {
	timing summary
	tree   *protocol.Node
	macs   *inventory.MACInventory
	ips    *inventory.IPInventory
	tcp    *stream.TCPTable
	udp    *stream.UDPTable
}

// NewAggregator creates an empty aggregator.
func NewAggregator(r Resolvers) *Aggregator {
	return &Aggregator{
		tree: protocol.NewTree(),
		macs: inventory.NewMACInventory(r.Vendors),
		ips:  inventory.NewIPInventory(r.Hosts),
		tcp:  stream.NewTCPTable(),
		udp:  stream.NewUDPTable(),
	}
}

// Observe folds one packet into every accumulator, in a fixed order:
// timing, protocol tree, MAC inventory, IP inventory, transport streams.
func (a *Aggregator) Observe(ctx context.Context, rec *core.PacketRecord) {
	a.timing.observe(rec.Timestamp)
	a.tree.Add(rec.Layers)
	a.macs.Observe(rec.Ethernet)
	for _, h := range rec.NetworkHeaders() {
		a.ips.Observe(ctx, &h)
	}

	switch {
	case rec.HasTCPPayload():
		k := stream.NewKey(rec.IP.SrcIP, rec.TCP.SrcPort, rec.IP.DstIP, rec.TCP.DstPort)
		a.tcp.Append(k, rec.TCP.Seq, rec.TCP.Payload)
	case rec.HasUDPPayload():
		k := stream.NewKey(rec.IP.SrcIP, rec.UDP.SrcPort, rec.IP.DstIP, rec.UDP.DstPort)
		a.udp.Append(k, rec.UDP.Payload)
	}
}

// Packets returns the number of packets observed so far.
func (a *Aggregator) Packets() int {
	return a.timing.packets
}
