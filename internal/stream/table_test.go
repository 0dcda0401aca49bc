package stream

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPTableBidirectionalSharesIndex(t *testing.T) {
	table := NewTCPTable()
	table.Append(NewKey("10.0.0.1", 1234, "10.0.0.2", 80), 0, []byte("GET /"))
	table.Append(NewKey("10.0.0.2", 80, "10.0.0.1", 1234), 0, []byte("HTTP/1.1 200 OK"))

	streams := table.Streams()
	require.Len(t, streams, 1)

	s := streams[0]
	assert.Equal(t, 0, s.StreamIndex)
	assert.Equal(t, "GET /HTTP/1.1 200 OK", s.Text)
	assert.Equal(t, "10.0.0.1", s.IPSrc)
	assert.Equal(t, uint16(1234), s.SPort)
	assert.Equal(t, "10.0.0.2", s.IPDst)
	assert.Equal(t, uint16(80), s.DPort)
}

func TestTCPTableSortsBySequence(t *testing.T) {
	k := NewKey("10.0.0.1", 40000, "10.0.0.2", 80)
	frags := []Fragment{
		{Seq: 100, Payload: []byte("Hel")},
		{Seq: 103, Payload: []byte("lo, ")},
		{Seq: 107, Payload: []byte("world")},
	}

	expected := "Hello, world"
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		order := rng.Perm(len(frags))
		table := NewTCPTable()
		for _, j := range order {
			table.Append(k, frags[j].Seq, frags[j].Payload)
		}
		streams := table.Streams()
		require.Len(t, streams, 1)
		assert.Equal(t, expected, streams[0].Text, "order %v", order)
	}
}

func TestTCPTableEqualSequenceKeepsArrivalOrder(t *testing.T) {
	k := NewKey("10.0.0.1", 40000, "10.0.0.2", 80)
	table := NewTCPTable()
	table.Append(k, 7, []byte("b"))
	table.Append(k, 5, []byte("a"))
	table.Append(k, 7, []byte("c"))
	table.Append(k, 7, []byte("d"))

	streams := table.Streams()
	require.Len(t, streams, 1)
	assert.Equal(t, "abcd", streams[0].Text)
}

func TestTCPTableSequenceUnsignedNoWraparound(t *testing.T) {
	k := NewKey("10.0.0.1", 40000, "10.0.0.2", 80)
	table := NewTCPTable()
	table.Append(k, 0xFFFFFFF0, []byte("before-wrap "))
	table.Append(k, 0x00000010, []byte("after-wrap "))

	streams := table.Streams()
	require.Len(t, streams, 1)
	// Wrapped segment sorts first: plain unsigned order.
	assert.Equal(t, "after-wrap before-wrap ", streams[0].Text)
}

func TestTCPTableIgnoresEmptyPayload(t *testing.T) {
	table := NewTCPTable()
	table.Append(NewKey("10.0.0.1", 1, "10.0.0.2", 2), 0, nil)
	table.Append(NewKey("10.0.0.1", 1, "10.0.0.2", 2), 0, []byte{})

	assert.Equal(t, 0, table.Len())
	assert.Empty(t, table.Streams())
	assert.NotNil(t, table.Streams())
}

func TestTCPTableIndexFollowsFirstSeen(t *testing.T) {
	table := NewTCPTable()
	// Inserted in non-sorted key order.
	table.Append(NewKey("10.9.9.9", 1, "10.0.0.1", 2), 0, []byte("z"))
	table.Append(NewKey("10.0.0.1", 3, "10.0.0.2", 4), 0, []byte("a"))
	table.Append(NewKey("10.9.9.9", 1, "10.0.0.1", 2), 1, []byte("z2"))

	streams := table.Streams()
	require.Len(t, streams, 2)
	assert.Equal(t, 0, streams[0].StreamIndex)
	assert.Equal(t, "zz2", streams[0].Text)
	assert.Equal(t, 1, streams[1].StreamIndex)
	assert.Equal(t, "a", streams[1].Text)
}

func TestTCPTableStreamsIsRepeatable(t *testing.T) {
	k := NewKey("10.0.0.1", 1, "10.0.0.2", 2)
	table := NewTCPTable()
	table.Append(k, 2, []byte("b"))
	table.Append(k, 1, []byte("a"))

	assert.Equal(t, table.Streams(), table.Streams())
}

func TestUDPTableKeepsArrivalOrder(t *testing.T) {
	table := NewUDPTable()
	table.Append(NewKey("192.168.1.10", 5353, "224.0.0.251", 5353), []byte("q1"))
	table.Append(NewKey("192.168.1.10", 5353, "224.0.0.251", 5353), []byte("q2"))
	table.Append(NewKey("8.8.8.8", 53, "192.168.1.10", 40000), []byte("answer"))
	table.Append(NewKey("192.168.1.10", 40000, "8.8.8.8", 53), []byte("query"))

	streams := table.Streams()
	require.Len(t, streams, 2)
	assert.Equal(t, "q1q2", streams[0].Text)
	assert.Equal(t, "answerquery", streams[1].Text)
	assert.Equal(t, "192.168.1.10", streams[1].IPSrc)
	assert.Equal(t, uint16(40000), streams[1].SPort)
}

func TestUDPTableIgnoresEmptyPayload(t *testing.T) {
	table := NewUDPTable()
	table.Append(NewKey("10.0.0.1", 1, "10.0.0.2", 2), nil)

	assert.Equal(t, 0, table.Len())
}

func TestTablesAreIndependent(t *testing.T) {
	k := NewKey("10.0.0.1", 53, "10.0.0.2", 53)
	tcp := NewTCPTable()
	udp := NewUDPTable()
	udp.Append(NewKey("10.0.0.3", 1, "10.0.0.4", 2), []byte("other"))
	tcp.Append(k, 0, []byte("tcp"))
	udp.Append(k, []byte("udp"))

	require.Len(t, tcp.Streams(), 1)
	assert.Equal(t, 0, tcp.Streams()[0].StreamIndex)
	require.Len(t, udp.Streams(), 2)
	assert.Equal(t, 1, udp.Streams()[1].StreamIndex)
	assert.Equal(t, "udp", udp.Streams()[1].Text)
}
