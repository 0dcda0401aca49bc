package payload

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name     string
		payloads [][]byte
		expected string
	}{
		{"ascii", [][]byte{[]byte("GET /"), []byte(" HTTP/1.1")}, "GET / HTTP/1.1"},
		{"utf8 multibyte", [][]byte{[]byte("h\xc3\xa9llo")}, "héllo"},
		{"utf8 split across fragments", [][]byte{{0xc3}, {0xa9}}, "é"},
		{"invalid utf8 falls back", [][]byte{{0xff, 0xfe}}, "ÿþ"},
		{"mixed invalid whole buffer latin1", [][]byte{[]byte("caf\xe9 "), []byte("\xc3\xa9")}, "café Ã©"},
		{"nul bytes are valid utf8", [][]byte{{0x00, 0x41}}, "\x00A"},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Decode(tt.payloads))
		})
	}
}

func TestDecodeFallbackLength(t *testing.T) {
	text := Decode([][]byte{{0xff, 0xfe}})
	assert.Equal(t, 2, utf8.RuneCountInString(text))
	assert.True(t, utf8.ValidString(text))
}

func TestDecodeEveryByteValue(t *testing.T) {
	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}

	text := DecodeBytes(all)
	runes := []rune(text)
	assert.Len(t, runes, 256)
	for i, r := range runes {
		assert.Equal(t, rune(i), r)
	}
}

func TestJoinKeepsOrder(t *testing.T) {
	assert.Equal(t, []byte("abc"), Join([][]byte{[]byte("a"), []byte("b"), []byte("c")}))
}
