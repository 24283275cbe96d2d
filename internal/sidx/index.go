// Package sidx builds a segment index from an ISO-BMFF segment index box
// and probes MP4 init segments for the media timescale.
package sidx

import (
	"fmt"

	"github.com/zsiec/vodindex/internal/bytereader"
	"github.com/zsiec/vodindex/internal/indexerr"
	"github.com/zsiec/vodindex/internal/segment"
)

var (
	ErrNotSidx          = indexerr.Wrap(indexerr.ErrMalformedContainer, "sidx: no sidx box")
	ErrBadBoxSize       = indexerr.Wrap(indexerr.ErrMalformedContainer, "sidx: box size smaller than its header")
	ErrInvalidTimescale = indexerr.Wrap(indexerr.ErrZeroTimescale, "sidx: timescale is zero")
	ErrTypeNotSupported = indexerr.Wrap(indexerr.ErrUnsupportedFeature, "sidx: hierarchical reference")
	ErrEmptyReference   = indexerr.Wrap(indexerr.ErrMalformedContainer, "sidx: reference of zero bytes")
)

const boxTypeSidx = "sidx"

type boxHeader struct {
	typ string
	// size is the full box size, header included.
	size int64
	// headerLen covers size, type and any largesize field.
	headerLen int
}

func readBoxHeader(r *bytereader.Reader) (boxHeader, error) {
	size32, err := r.ReadUint32()
	if err != nil {
		return boxHeader{}, err
	}
	typ, err := r.ReadBytes(4)
	if err != nil {
		return boxHeader{}, err
	}
	h := boxHeader{typ: string(typ), size: int64(size32), headerLen: 8}
	switch size32 {
	case 1:
		large, err := r.ReadUint64()
		if err != nil {
			return boxHeader{}, err
		}
		if large > 1<<62 {
			return boxHeader{}, fmt.Errorf("box %q largesize %d: %w", h.typ, large, indexerr.ErrOverflow)
		}
		h.size = int64(large)
		h.headerLen = 16
	case 0:
		// Box extends to the end of the buffer.
		h.size = int64(h.headerLen + r.Remaining())
	}
	if h.size < int64(h.headerLen) {
		return boxHeader{}, fmt.Errorf("box %q size %d: %w", h.typ, h.size, ErrBadBoxSize)
	}
	return h, nil
}

// BuildIndex locates the sidx box in index and returns one reference per
// media subsegment. sidxOffset is the absolute position of index[0] in the
// resource; subsegment byte ranges follow the end of the box.
func BuildIndex(index []byte, sidxOffset int64, opts segment.Options) (*segment.Index, error) {
	r := bytereader.NewReader(index)
	var (
		h      boxHeader
		boxPos int
	)
	for {
		if !r.HasMoreData() {
			return nil, ErrNotSidx
		}
		boxPos = r.Position()
		var err error
		h, err = readBoxHeader(r)
		if err != nil {
			return nil, &indexerr.ParseError{Container: "sidx", Field: "box header", Err: err}
		}
		if h.typ == boxTypeSidx {
			break
		}
		if int64(r.Remaining()) < h.size-int64(h.headerLen) {
			return nil, fmt.Errorf("%q box of %d bytes runs past the buffer: %w", h.typ, h.size, ErrNotSidx)
		}
		if err := r.Skip(int(h.size) - h.headerLen); err != nil {
			return nil, &indexerr.ParseError{Container: "sidx", Field: fmt.Sprintf("%q box", h.typ), Err: err}
		}
	}

	refs, err := parseSidx(r, sidxOffset+int64(boxPos)+h.size, opts)
	if err != nil {
		return nil, err
	}
	ix := segment.NewIndex(refs)
	if err := ix.Validate(); err != nil {
		return nil, fmt.Errorf("sidx: %w", err)
	}
	return ix, nil
}

// parseSidx reads the full box body following the box header. firstByte is
// the absolute position just past the box.
func parseSidx(r *bytereader.Reader, firstByte int64, opts segment.Options) ([]segment.Reference, error) {
	field := func(name string, err error) error {
		return &indexerr.ParseError{Container: "sidx", Field: name, Err: err}
	}

	versionAndFlags, err := r.ReadUint32()
	if err != nil {
		return nil, field("version", err)
	}
	version := versionAndFlags >> 24

	// reference_ID
	if err := r.Skip(4); err != nil {
		return nil, field("reference_ID", err)
	}
	timescale, err := r.ReadUint32()
	if err != nil {
		return nil, field("timescale", err)
	}
	if timescale == 0 {
		return nil, ErrInvalidTimescale
	}

	var earliest, firstOffset uint64
	if version == 0 {
		e, err := r.ReadUint32()
		if err != nil {
			return nil, field("earliest_presentation_time", err)
		}
		o, err := r.ReadUint32()
		if err != nil {
			return nil, field("first_offset", err)
		}
		earliest, firstOffset = uint64(e), uint64(o)
	} else {
		if earliest, err = r.ReadUint64(); err != nil {
			return nil, field("earliest_presentation_time", err)
		}
		if firstOffset, err = r.ReadUint64(); err != nil {
			return nil, field("first_offset", err)
		}
	}
	if firstOffset > 1<<53 {
		return nil, field("first_offset", fmt.Errorf("%d: %w", firstOffset, indexerr.ErrOverflow))
	}

	// reserved
	if err := r.Skip(2); err != nil {
		return nil, field("reserved", err)
	}
	count, err := r.ReadUint16()
	if err != nil {
		return nil, field("reference_count", err)
	}

	refs := make([]segment.Reference, 0, count)
	unscaledStart := earliest
	startByte := firstByte + int64(firstOffset)
	for i := 0; i < int(count); i++ {
		word, err := r.ReadUint32()
		if err != nil {
			return nil, field(fmt.Sprintf("reference %d", i), err)
		}
		if word>>31 == 1 {
			return nil, fmt.Errorf("reference %d: %w", i, ErrTypeNotSupported)
		}
		size := int64(word & 0x7fffffff)
		if size == 0 {
			// A zero-byte subsegment has no valid range; the whole
			// index is rejected rather than trusted in part.
			return nil, fmt.Errorf("reference %d: %w", i, ErrEmptyReference)
		}

		duration, err := r.ReadUint32()
		if err != nil {
			return nil, field(fmt.Sprintf("subsegment_duration %d", i), err)
		}
		// SAP flags
		if err := r.Skip(4); err != nil {
			return nil, field(fmt.Sprintf("SAP %d", i), err)
		}

		unscaledEnd := unscaledStart + uint64(duration)
		start := float64(unscaledStart)/float64(timescale) + opts.TimestampOffset
		end := float64(unscaledEnd)/float64(timescale) + opts.TimestampOffset
		refs = append(refs, opts.NewReference(i, start, end, startByte, startByte+size-1))

		unscaledStart = unscaledEnd
		startByte += size
	}
	return refs, nil
}
