// Package bytereader provides a bounds-checked, big-endian, position-tracking
// reader over a byte slice. It is the leaf on which the EBML and ISO-BMFF
// parsers are built.
package bytereader

import (
	"encoding/binary"
	"fmt"

	"github.com/zsiec/vodindex/internal/indexerr"
)

// ErrOverflow is returned when a read or skip would run past the end of the
// buffer. The reader position is left unchanged in that case.
var ErrOverflow = indexerr.Wrap(indexerr.ErrOverflow, "bytereader: overflow")

// Reader reads big-endian integers sequentially from a byte slice.
type Reader struct {
	data []byte
	pos  int
}

// New wraps length bytes of buf starting at offset. Out-of-range windows are
// clamped to the bytes actually available.
func New(buf []byte, offset, length int) *Reader {
	if offset < 0 {
		offset = 0
	}
	if offset > len(buf) {
		offset = len(buf)
	}
	end := offset + length
	if length < 0 || end > len(buf) {
		end = len(buf)
	}
	return &Reader{data: buf[offset:end]}
}

// NewReader wraps all of buf.
func NewReader(buf []byte) *Reader {
	return &Reader{data: buf}
}

func (r *Reader) need(n int) error {
	if n < 0 || n > len(r.data)-r.pos {
		return fmt.Errorf("%w: need %d bytes at position %d, have %d", ErrOverflow, n, r.pos, len(r.data)-r.pos)
	}
	return nil
}

// ReadUint8 reads one byte.
func (r *Reader) ReadUint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.data[r.pos]
	r.pos++
	return v, nil
}

// ReadUint16 reads a big-endian uint16.
func (r *Reader) ReadUint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

// ReadUint32 reads a big-endian uint32.
func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

// ReadUint64 reads a big-endian uint64.
func (r *Reader) ReadUint64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

// ReadBytes returns the next n bytes without copying.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.data[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

// Skip advances the position by n bytes.
func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

// HasMoreData reports whether unread bytes remain.
func (r *Reader) HasMoreData() bool {
	return r.pos < len(r.data)
}

// Position returns the number of bytes consumed so far.
func (r *Reader) Position() int {
	return r.pos
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Len returns the size of the wrapped window.
func (r *Reader) Len() int {
	return len(r.data)
}
