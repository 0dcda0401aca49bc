// Package sourcetest builds synthetic captures for tests.
package sourcetest

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/require"
)

// Frame is one serialized packet and its capture time.
type Frame struct {
	Timestamp time.Time
	Data      []byte
}

// Endpoints describes the addresses of a synthetic frame.
type Endpoints struct {
	SrcMAC, DstMAC string
	SrcIP, DstIP   string
	SrcPort        uint16
	DstPort        uint16
}

var serializeOpts = gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}

func ethernet(t testing.TB, ep Endpoints, ethType layers.EthernetType) *layers.Ethernet {
	t.Helper()
	src, err := net.ParseMAC(orDefault(ep.SrcMAC, "02:00:00:00:00:01"))
	require.NoError(t, err)
	dst, err := net.ParseMAC(orDefault(ep.DstMAC, "02:00:00:00:00:02"))
	require.NoError(t, err)
	return &layers.Ethernet{SrcMAC: src, DstMAC: dst, EthernetType: ethType}
}

func network(t testing.TB, ep Endpoints, proto layers.IPProtocol) (gopacket.SerializableLayer, gopacket.NetworkLayer, layers.EthernetType) {
	t.Helper()
	src := net.ParseIP(ep.SrcIP)
	dst := net.ParseIP(ep.DstIP)
	require.NotNil(t, src, "bad source address %q", ep.SrcIP)
	require.NotNil(t, dst, "bad destination address %q", ep.DstIP)

	if src.To4() != nil {
		ip := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: proto, SrcIP: src.To4(), DstIP: dst.To4()}
		return ip, ip, layers.EthernetTypeIPv4
	}
	ip := &layers.IPv6{Version: 6, HopLimit: 64, NextHeader: proto, SrcIP: src, DstIP: dst}
	return ip, ip, layers.EthernetTypeIPv6
}

// TCP builds an Ethernet/IP/TCP frame. A nil payload yields a bare segment.
func TCP(t testing.TB, ts time.Time, ep Endpoints, seq uint32, payload []byte) Frame {
	t.Helper()
	ipLayer, netLayer, ethType := network(t, ep, layers.IPProtocolTCP)
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(ep.SrcPort),
		DstPort: layers.TCPPort(ep.DstPort),
		Seq:     seq,
		ACK:     len(payload) > 0,
		PSH:     len(payload) > 0,
		SYN:     len(payload) == 0,
		Window:  65535,
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(netLayer))

	stack := []gopacket.SerializableLayer{ethernet(t, ep, ethType), ipLayer, tcp}
	if len(payload) > 0 {
		stack = append(stack, gopacket.Payload(payload))
	}
	return Frame{Timestamp: ts, Data: serialize(t, stack...)}
}

// UDP builds an Ethernet/IP/UDP frame.
func UDP(t testing.TB, ts time.Time, ep Endpoints, payload []byte) Frame {
	t.Helper()
	ipLayer, netLayer, ethType := network(t, ep, layers.IPProtocolUDP)
	udp := &layers.UDP{SrcPort: layers.UDPPort(ep.SrcPort), DstPort: layers.UDPPort(ep.DstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(netLayer))

	stack := []gopacket.SerializableLayer{ethernet(t, ep, ethType), ipLayer, udp}
	if len(payload) > 0 {
		stack = append(stack, gopacket.Payload(payload))
	}
	return Frame{Timestamp: ts, Data: serialize(t, stack...)}
}

// SixInFour builds an Ethernet/IPv4/IPv6/UDP frame: inner IPv6 carried in
// IPv4 protocol 41. outer supplies the MACs and IPv4 addresses, inner the
// IPv6 addresses and ports.
func SixInFour(t testing.TB, ts time.Time, outer, inner Endpoints, payload []byte) Frame {
	t.Helper()
	outerIP, _, ethType := network(t, outer, layers.IPProtocolIPv6)
	require.Equal(t, layers.EthernetTypeIPv4, ethType, "outer endpoints must be IPv4")
	innerIP, innerNet, _ := network(t, inner, layers.IPProtocolUDP)

	udp := &layers.UDP{SrcPort: layers.UDPPort(inner.SrcPort), DstPort: layers.UDPPort(inner.DstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(innerNet))

	stack := []gopacket.SerializableLayer{ethernet(t, outer, ethType), outerIP, innerIP, udp}
	if len(payload) > 0 {
		stack = append(stack, gopacket.Payload(payload))
	}
	return Frame{Timestamp: ts, Data: serialize(t, stack...)}
}

// ARP builds an Ethernet/ARP request frame.
func ARP(t testing.TB, ts time.Time, ep Endpoints) Frame {
	t.Helper()
	eth := ethernet(t, ep, layers.EthernetTypeARP)
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   eth.SrcMAC,
		SourceProtAddress: net.ParseIP(ep.SrcIP).To4(),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    net.ParseIP(ep.DstIP).To4(),
	}
	return Frame{Timestamp: ts, Data: serialize(t, eth, arp)}
}

func serialize(t testing.TB, stack ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	require.NoError(t, gopacket.SerializeLayers(buf, serializeOpts, stack...))
	return buf.Bytes()
}

// WritePcap writes frames as a classic pcap file under dir and returns its path.
func WritePcap(t testing.TB, dir, name string, frames ...Frame) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	for _, fr := range frames {
		require.NoError(t, w.WritePacket(captureInfo(fr), fr.Data))
	}
	return path
}

// WritePcapNG writes frames as a pcapng file under dir and returns its path.
func WritePcapNG(t testing.TB, dir, name string, frames ...Frame) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := pcapgo.NewNgWriter(f, layers.LinkTypeEthernet)
	require.NoError(t, err)
	for _, fr := range frames {
		require.NoError(t, w.WritePacket(captureInfo(fr), fr.Data))
	}
	require.NoError(t, w.Flush())
	return path
}

func captureInfo(fr Frame) gopacket.CaptureInfo {
	return gopacket.CaptureInfo{
		Timestamp:     fr.Timestamp,
		CaptureLength: len(fr.Data),
		Length:        len(fr.Data),
	}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
