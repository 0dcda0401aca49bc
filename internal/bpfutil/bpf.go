// Package bpfutil compiles tcpdump-style filter expressions with libpcap.
package bpfutil

import (
	"fmt"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
	"golang.org/x/net/bpf"
)

// SnapLen is the snapshot length programs are compiled for.
const SnapLen = 262144

// Compile compiles expr for frames of the given link type into raw
// instructions the x/net/bpf VM can run.
func Compile(linkType layers.LinkType, expr string) ([]bpf.RawInstruction, error) {
	pcapBpf, err := pcap.CompileBPFFilter(linkType, SnapLen, expr)
	if err != nil {
		return nil, fmt.Errorf("failed to compile BPF filter: %w", err)
	}

	rawBpf := make([]bpf.RawInstruction, len(pcapBpf))
	for i, ins := range pcapBpf {
		rawBpf[i] = bpf.RawInstruction{Op: ins.Code, Jt: ins.Jt, Jf: ins.Jf, K: ins.K}
	}
	return rawBpf, nil
}

// Validate reports whether expr compiles for Ethernet frames.
func Validate(expr string) error {
	if expr == "" {
		return nil
	}
	_, err := Compile(layers.LinkTypeEthernet, expr)
	return err
}
