package ebml

import (
	"fmt"
	"math/bits"

	"github.com/zsiec/vodindex/internal/bytereader"
	"github.com/zsiec/vodindex/internal/indexerr"
)

// ErrEbmlOverflow is returned for a variable-length integer whose first byte
// is zero (a width above 8 bytes).
var ErrEbmlOverflow = indexerr.Wrap(indexerr.ErrUnsupportedFeature, "ebml: variable-length integer wider than 8 bytes")

// vint is a variable-length integer as it appears on the wire. raw holds all
// of its bytes concatenated, including the width marker bit.
type vint struct {
	raw   uint64
	width int
}

// readVint reads one variable-length integer. The width is the number of
// leading zero bits of the first byte plus one.
func readVint(r *bytereader.Reader) (vint, error) {
	first, err := r.ReadUint8()
	if err != nil {
		return vint{}, err
	}
	if first == 0 {
		return vint{}, ErrEbmlOverflow
	}
	width := bits.LeadingZeros8(first) + 1
	if width > 8 {
		return vint{}, ErrEbmlOverflow
	}

	v := vint{raw: uint64(first), width: width}
	for i := 1; i < width; i++ {
		b, err := r.ReadUint8()
		if err != nil {
			return vint{}, fmt.Errorf("vint byte %d of %d: %w", i+1, width, err)
		}
		v.raw = v.raw<<8 | uint64(b)
	}
	return v, nil
}

// dataMask returns the mask covering the 7*width data bits.
func (v vint) dataMask() uint64 {
	return (uint64(1) << (7 * uint(v.width))) - 1
}

// value returns the integer with the width marker removed.
func (v vint) value() uint64 {
	return v.raw & v.dataMask()
}

// isDynamicSize reports whether every data bit is set, the reserved pattern
// marking an element of unknown size.
func (v vint) isDynamicSize() bool {
	return isDynamicSizeValue(v.value(), v.width)
}

func isDynamicSizeValue(value uint64, width int) bool {
	return value == (uint64(1)<<(7*uint(width)))-1
}
