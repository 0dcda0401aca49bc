// Package payload turns reassembled stream bytes into text.
package payload

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

// Join concatenates payloads in order.
func Join(payloads [][]byte) []byte {
	return bytes.Join(payloads, nil)
}

// Decode concatenates payloads in order and decodes the result as UTF-8,
// falling back to Latin-1 (ISO 8859-1) when the bytes are not valid UTF-8.
// Latin-1 maps every byte to a code point, so Decode never fails.
func Decode(payloads [][]byte) string {
	return DecodeBytes(Join(payloads))
}

// DecodeBytes applies the UTF-8-then-Latin-1 policy to a single buffer.
func DecodeBytes(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return latin1(b)
}

func latin1(b []byte) string {
	out, err := charmap.ISO8859_1.NewDecoder().Bytes(b)
	if err != nil {
		// Unreachable for ISO 8859-1, every byte has a mapping.
		runes := make([]rune, len(b))
		for i, c := range b {
			runes[i] = rune(c)
		}
		return string(runes)
	}
	return string(out)
}
