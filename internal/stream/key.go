// Package stream groups transport payloads into bidirectional conversations.
package stream

import (
	"cmp"
	"strings"
)

// Endpoint is one side of a conversation.
type Endpoint struct {
	Addr string
	Port uint16
}

// Compare orders endpoints by address string, then port.
func (e Endpoint) Compare(o Endpoint) int {
	if c := strings.Compare(e.Addr, o.Addr); c != 0 {
		return c
	}
	return cmp.Compare(e.Port, o.Port)
}

// Key is the canonical, direction-independent identity of a conversation:
// its two endpoints in ascending order. Both directions of a 4-tuple yield
// the same Key. Identical endpoints are valid.
type Key struct {
	A Endpoint
	B Endpoint
}

// NewKey builds the canonical key for a packet's source and destination.
func NewKey(srcAddr string, srcPort uint16, dstAddr string, dstPort uint16) Key {
	src := Endpoint{Addr: srcAddr, Port: srcPort}
	dst := Endpoint{Addr: dstAddr, Port: dstPort}
	if dst.Compare(src) < 0 {
		return Key{A: dst, B: src}
	}
	return Key{A: src, B: dst}
}
