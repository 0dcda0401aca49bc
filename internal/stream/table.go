package stream

import (
	"cmp"
	"slices"

	"firestige.xyz/pcaplens/internal/core"
	"firestige.xyz/pcaplens/internal/payload"
)

// Fragment is one TCP segment payload with its sequence number.
type Fragment struct {
	Seq     uint32
	Payload []byte
}

// table maps keys to fragment lists and remembers first-insertion order.
type table[F any] struct {
	keys    []Key
	entries [][]F
	index   map[Key]int
}

func (t *table[F]) append(k Key, f F) {
	if t.index == nil {
		t.index = make(map[Key]int)
	}
	i, ok := t.index[k]
	if !ok {
		i = len(t.keys)
		t.index[k] = i
		t.keys = append(t.keys, k)
		t.entries = append(t.entries, nil)
	}
	t.entries[i] = append(t.entries[i], f)
}

func (t *table[F]) len() int {
	return len(t.keys)
}

// TCPTable accumulates TCP fragments per conversation.
type TCPTable struct {
	t table[Fragment]
}

// NewTCPTable creates an empty TCP table.
func NewTCPTable() *TCPTable {
	return &TCPTable{}
}

// Append records a segment under k. Empty payloads are ignored.
func (t *TCPTable) Append(k Key, seq uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	t.t.append(k, Fragment{Seq: seq, Payload: data})
}

// Len returns the number of conversations.
func (t *TCPTable) Len() int {
	return t.t.len()
}

// Streams finalizes the table. Each conversation gets a zero-based index in
// first-seen order; its fragments are stably sorted by sequence number
// (plain unsigned compare, no wraparound handling) and decoded.
// The table is left untouched, so Streams may be called more than once.
func (t *TCPTable) Streams() []core.Stream {
	out := make([]core.Stream, 0, t.t.len())
	for i, k := range t.t.keys {
		frags := slices.Clone(t.t.entries[i])
		slices.SortStableFunc(frags, func(a, b Fragment) int {
			return cmp.Compare(a.Seq, b.Seq)
		})
		payloads := make([][]byte, len(frags))
		for j, f := range frags {
			payloads[j] = f.Payload
		}
		out = append(out, newStream(i, k, payloads))
	}
	return out
}

// UDPTable accumulates UDP payloads per conversation in arrival order.
type UDPTable struct {
	t table[[]byte]
}

// NewUDPTable creates an empty UDP table.
func NewUDPTable() *UDPTable {
	return &UDPTable{}
}

// Append records a datagram payload under k. Empty payloads are ignored.
func (t *UDPTable) Append(k Key, data []byte) {
	if len(data) == 0 {
		return
	}
	t.t.append(k, data)
}

// Len returns the number of conversations.
func (t *UDPTable) Len() int {
	return t.t.len()
}

// Streams finalizes the table in first-seen order without reordering payloads.
func (t *UDPTable) Streams() []core.Stream {
	out := make([]core.Stream, 0, t.t.len())
	for i, k := range t.t.keys {
		out = append(out, newStream(i, k, t.t.entries[i]))
	}
	return out
}

func newStream(index int, k Key, payloads [][]byte) core.Stream {
	return core.Stream{
		StreamIndex: index,
		Text:        payload.Decode(payloads),
		IPSrc:       k.A.Addr,
		SPort:       k.A.Port,
		IPDst:       k.B.Addr,
		DPort:       k.B.Port,
	}
}
