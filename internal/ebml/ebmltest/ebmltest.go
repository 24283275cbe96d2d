// Package ebmltest assembles EBML byte fixtures for parser tests.
package ebmltest

import (
	"encoding/binary"
	"math"
	"math/bits"
)

// UnknownSize is the 8-byte size field marking a dynamic-sized element.
var UnknownSize = []byte{0x01, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// AppendID appends the raw identifier bytes of id.
func AppendID(buf []byte, id uint64) []byte {
	n := (bits.Len64(id) + 7) / 8
	if n == 0 {
		n = 1
	}
	for i := n - 1; i >= 0; i-- {
		buf = append(buf, byte(id>>(8*uint(i))))
	}
	return buf
}

// AppendSize appends n as the narrowest variable-length integer that does
// not collide with the dynamic-size pattern.
func AppendSize(buf []byte, n uint64) []byte {
	width := 1
	for width < 8 && n >= (uint64(1)<<(7*uint(width)))-1 {
		width++
	}
	return AppendVint(buf, n, width)
}

// AppendVint appends value encoded with exactly width bytes.
func AppendVint(buf []byte, value uint64, width int) []byte {
	v := uint64(1)<<(7*uint(width)) | value
	for i := width - 1; i >= 0; i-- {
		buf = append(buf, byte(v>>(8*uint(i))))
	}
	return buf
}

// Element returns an element with the given id whose payload is the
// concatenation of children.
func Element(id uint64, children ...[]byte) []byte {
	var payload []byte
	for _, c := range children {
		payload = append(payload, c...)
	}
	buf := AppendID(nil, id)
	buf = AppendSize(buf, uint64(len(payload)))
	return append(buf, payload...)
}

// DynamicElement returns an element with the unknown-size marker.
func DynamicElement(id uint64, children ...[]byte) []byte {
	buf := AppendID(nil, id)
	buf = append(buf, UnknownSize...)
	for _, c := range children {
		buf = append(buf, c...)
	}
	return buf
}

// Uint returns an unsigned integer element using the fewest bytes.
func Uint(id, v uint64) []byte {
	n := (bits.Len64(v) + 7) / 8
	if n == 0 {
		n = 1
	}
	payload := make([]byte, n)
	for i := 0; i < n; i++ {
		payload[n-1-i] = byte(v >> (8 * uint(i)))
	}
	return Element(id, payload)
}

// Float returns an 8-byte float element.
func Float(id uint64, v float64) []byte {
	payload := make([]byte, 8)
	binary.BigEndian.PutUint64(payload, math.Float64bits(v))
	return Element(id, payload)
}

// Float32 returns a 4-byte float element.
func Float32(id uint64, v float32) []byte {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, math.Float32bits(v))
	return Element(id, payload)
}
