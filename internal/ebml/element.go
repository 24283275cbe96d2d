package ebml

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/zsiec/vodindex/internal/bytereader"
	"github.com/zsiec/vodindex/internal/indexerr"
)

// Errors from element payload interpretation.
var (
	ErrIntegerOverflow = indexerr.Wrap(indexerr.ErrUnsupportedFeature, "ebml: integer wider than 53 bits")
	ErrBadFloatSize    = indexerr.Wrap(indexerr.ErrBadFloatSize, "ebml: float must be 4 or 8 bytes")
)

// maxSafeInteger bounds the unsigned integers Uint accepts, so that values
// survive conversion to float64 seconds without loss.
const maxSafeInteger = uint64(1)<<53 - 1

// Element is a parsed EBML element: its identifier and the span of its
// payload.
type Element struct {
	// ID is the raw identifier bytes concatenated as an integer, marker bit
	// included (e.g. 0x18538067 for Segment).
	ID uint64

	data   []byte
	offset int64
}

// Data returns the payload bytes.
func (e Element) Data() []byte {
	return e.data
}

// Size returns the payload length in bytes.
func (e Element) Size() int {
	return len(e.data)
}

// Offset returns the absolute position of the payload's first byte relative
// to the root buffer the parsing started from.
func (e Element) Offset() int64 {
	return e.offset
}

// Parser returns a parser over the element's children.
func (e Element) Parser() *Parser {
	return NewParserAt(e.data, e.offset)
}

// Uint interprets the payload as a big-endian unsigned integer. An empty
// payload is zero.
func (e Element) Uint() (uint64, error) {
	if len(e.data) > 8 {
		return 0, fmt.Errorf("element %#x: %d byte integer: %w", e.ID, len(e.data), ErrEbmlOverflow)
	}
	var v uint64
	for _, b := range e.data {
		v = v<<8 | uint64(b)
	}
	if v > maxSafeInteger {
		return 0, fmt.Errorf("element %#x: %w", e.ID, ErrIntegerOverflow)
	}
	return v, nil
}

// Float interprets the payload as an IEEE-754 float of 4 or 8 bytes.
func (e Element) Float() (float64, error) {
	switch len(e.data) {
	case 4:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(e.data))), nil
	case 8:
		return math.Float64frombits(binary.BigEndian.Uint64(e.data)), nil
	default:
		return 0, fmt.Errorf("element %#x: %d bytes: %w", e.ID, len(e.data), ErrBadFloatSize)
	}
}

// Parser iterates the EBML elements of a buffer in order.
type Parser struct {
	r    *bytereader.Reader
	base int64
}

// NewParser returns a parser over data, with offsets measured from data[0].
func NewParser(data []byte) *Parser {
	return NewParserAt(data, 0)
}

// NewParserAt returns a parser over data whose first byte sits at absolute
// offset base.
func NewParserAt(data []byte, base int64) *Parser {
	return &Parser{r: bytereader.NewReader(data), base: base}
}

// HasMoreData reports whether another element may follow.
func (p *Parser) HasMoreData() bool {
	return p.r.HasMoreData()
}

// Position returns the absolute offset of the next unread byte.
func (p *Parser) Position() int64 {
	return p.base + int64(p.r.Position())
}

// ParseElement reads the next element. An element whose size field is the
// reserved all-ones pattern is dynamic-sized and takes the rest of the
// buffer; any other size is clamped to the bytes available, so a truncated
// buffer still yields its leading elements.
func (p *Parser) ParseElement() (Element, error) {
	id, err := readVint(p.r)
	if err != nil {
		return Element{}, &indexerr.ParseError{Container: "ebml", Field: "element id", Err: err}
	}
	size, err := readVint(p.r)
	if err != nil {
		return Element{}, &indexerr.ParseError{Container: "ebml", Field: fmt.Sprintf("size of element %#x", id.raw), Err: err}
	}

	n := p.r.Remaining()
	if !size.isDynamicSize() && size.value() < uint64(n) {
		n = int(size.value())
	}

	offset := p.Position()
	data, err := p.r.ReadBytes(n)
	if err != nil {
		return Element{}, &indexerr.ParseError{Container: "ebml", Field: fmt.Sprintf("payload of element %#x", id.raw), Err: err}
	}
	return Element{ID: id.raw, data: data, offset: offset}, nil
}

// Find scans forward for the first element with the given id, skipping any
// others. ok is false when the buffer ends first.
func (p *Parser) Find(id uint64) (elem Element, ok bool, err error) {
	for p.HasMoreData() {
		elem, err = p.ParseElement()
		if err != nil {
			return Element{}, false, err
		}
		if elem.ID == id {
			return elem, true, nil
		}
	}
	return Element{}, false, nil
}
