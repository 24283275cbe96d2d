package sidx

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/zsiec/vodindex/internal/indexerr"
	"github.com/zsiec/vodindex/internal/segment"
)

type sidxRef struct {
	hierarchical bool
	size         uint32
	duration     uint32
}

// sidxBytes assembles a sidx box by hand.
func sidxBytes(version byte, timescale uint32, earliest, firstOffset uint64, refs ...sidxRef) []byte {
	var body []byte
	body = append(body, version, 0, 0, 0)
	body = binary.BigEndian.AppendUint32(body, 1) // reference_ID
	body = binary.BigEndian.AppendUint32(body, timescale)
	if version == 0 {
		body = binary.BigEndian.AppendUint32(body, uint32(earliest))
		body = binary.BigEndian.AppendUint32(body, uint32(firstOffset))
	} else {
		body = binary.BigEndian.AppendUint64(body, earliest)
		body = binary.BigEndian.AppendUint64(body, firstOffset)
	}
	body = append(body, 0, 0)
	body = binary.BigEndian.AppendUint16(body, uint16(len(refs)))
	for _, r := range refs {
		word := r.size
		if r.hierarchical {
			word |= 1 << 31
		}
		body = binary.BigEndian.AppendUint32(body, word)
		body = binary.BigEndian.AppendUint32(body, r.duration)
		body = binary.BigEndian.AppendUint32(body, 0x90000000)
	}
	box := binary.BigEndian.AppendUint32(nil, uint32(8+len(body)))
	box = append(box, "sidx"...)
	return append(box, body...)
}

func TestBuildIndex(t *testing.T) {
	t.Parallel()
	box := sidxBytes(0, 1000, 500, 10,
		sidxRef{size: 1000, duration: 2000},
		sidxRef{size: 1500, duration: 2000},
		sidxRef{size: 700, duration: 1000},
	)
	const sidxOffset = 800

	ix, err := BuildIndex(box, sidxOffset, segment.Options{TimestampOffset: -0.5})
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if ix.Len() != 3 {
		t.Fatalf("Len = %d, want 3", ix.Len())
	}

	first := int64(sidxOffset + len(box) + 10)
	want := []struct {
		start, end         float64
		startByte, endByte int64
	}{
		{0, 2, first, first + 999},
		{2, 4, first + 1000, first + 2499},
		{4, 5, first + 2500, first + 3199},
	}
	for i, w := range want {
		ref, _ := ix.Get(i)
		if ref.StartTime != w.start || ref.EndTime != w.end {
			t.Errorf("ref %d: time [%v, %v), want [%v, %v)", i, ref.StartTime, ref.EndTime, w.start, w.end)
		}
		if ref.StartByte != w.startByte || ref.EndByte != w.endByte {
			t.Errorf("ref %d: bytes [%d, %d], want [%d, %d]", i, ref.StartByte, ref.EndByte, w.startByte, w.endByte)
		}
		if ref.Seq != i {
			t.Errorf("ref %d: Seq = %d", i, ref.Seq)
		}
	}
}

func TestBuildIndexVersion1(t *testing.T) {
	t.Parallel()
	earliest := uint64(1) << 40
	box := sidxBytes(1, 48000, earliest, 0, sidxRef{size: 64, duration: 48000})
	ix, err := BuildIndex(box, 0, segment.Options{})
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	ref, _ := ix.Get(0)
	wantStart := float64(earliest) / 48000
	if ref.StartTime != wantStart || ref.EndTime != float64(earliest+48000)/48000 {
		t.Errorf("time [%v, %v), want start %v", ref.StartTime, ref.EndTime, wantStart)
	}
	if ref.StartByte != int64(len(box)) {
		t.Errorf("StartByte = %d, want %d", ref.StartByte, len(box))
	}
}

func TestBuildIndexSkipsLeadingBoxes(t *testing.T) {
	t.Parallel()
	styp := append(binary.BigEndian.AppendUint32(nil, 16), "stypmsdh"...)
	styp = append(styp, 0, 0, 0, 0)
	box := sidxBytes(0, 1, 0, 0, sidxRef{size: 10, duration: 1})
	ix, err := BuildIndex(append(styp, box...), 100, segment.Options{})
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	ref, _ := ix.Get(0)
	if want := int64(100 + len(styp) + len(box)); ref.StartByte != want {
		t.Errorf("StartByte = %d, want %d", ref.StartByte, want)
	}
}

func TestBuildIndexLargeSize(t *testing.T) {
	t.Parallel()
	plain := sidxBytes(0, 1000, 0, 0, sidxRef{size: 100, duration: 1000})
	// Re-frame the same body with a 64-bit largesize header.
	body := plain[8:]
	box := binary.BigEndian.AppendUint32(nil, 1)
	box = append(box, "sidx"...)
	box = binary.BigEndian.AppendUint64(box, uint64(16+len(body)))
	box = append(box, body...)

	ix, err := BuildIndex(box, 0, segment.Options{})
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	ref, _ := ix.Get(0)
	if ref.StartByte != int64(len(box)) || ref.EndByte != int64(len(box))+99 {
		t.Errorf("bytes [%d, %d], want start %d", ref.StartByte, ref.EndByte, len(box))
	}
}

func TestBuildIndexContiguity(t *testing.T) {
	t.Parallel()
	for n := 1; n <= 50; n += 7 {
		var refs []sidxRef
		var total int64
		for i := 0; i < n; i++ {
			size := uint32(1000 + i*37)
			refs = append(refs, sidxRef{size: size, duration: uint32(90000 + i)})
			total += int64(size)
		}
		box := sidxBytes(0, 90000, 0, 0, refs...)
		ix, err := BuildIndex(box, 0, segment.Options{})
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		got := ix.References()
		if len(got) != n {
			t.Fatalf("n=%d: %d refs", n, len(got))
		}
		var covered int64
		for i, r := range got {
			covered += r.Size()
			if i > 0 && r.StartByte != got[i-1].EndByte+1 {
				t.Fatalf("n=%d: ref %d starts at %d after %d", n, i, r.StartByte, got[i-1].EndByte)
			}
		}
		if covered != total {
			t.Errorf("n=%d: covered %d bytes, want %d", n, covered, total)
		}
	}
}

func TestBuildIndexErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		data     []byte
		want     error
		category error
	}{
		{"empty", nil, ErrNotSidx, indexerr.ErrMalformedContainer},
		{"other box only", append(binary.BigEndian.AppendUint32(nil, 8), "free"...), ErrNotSidx, indexerr.ErrMalformedContainer},
		{"zero timescale", sidxBytes(0, 0, 0, 0), ErrInvalidTimescale, indexerr.ErrZeroTimescale},
		{"hierarchical", sidxBytes(0, 1000, 0, 0, sidxRef{hierarchical: true, size: 10, duration: 10}), ErrTypeNotSupported, indexerr.ErrUnsupportedFeature},
		{"truncated", sidxBytes(0, 1000, 0, 0, sidxRef{size: 10, duration: 10})[:30], indexerr.ErrOverflow, indexerr.ErrOverflow},
		{"size below header", append(binary.BigEndian.AppendUint32(nil, 4), "sidx"...), ErrBadBoxSize, indexerr.ErrMalformedContainer},
		{"zero-byte reference", sidxBytes(0, 1000, 0, 0, sidxRef{size: 10, duration: 10}, sidxRef{size: 0, duration: 10}), ErrEmptyReference, indexerr.ErrMalformedContainer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := BuildIndex(tt.data, 0, segment.Options{})
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, tt.category) {
				t.Errorf("err = %v, not in category %v", err, tt.category)
			}
		})
	}
}

func TestBuildIndexMatchesMp4ff(t *testing.T) {
	t.Parallel()
	box := &mp4.SidxBox{
		Version:                  1,
		ReferenceID:              1,
		Timescale:                12800,
		EarliestPresentationTime: 1024,
		FirstOffset:              0,
	}
	for i := 0; i < 4; i++ {
		box.SidxRefs = append(box.SidxRefs, mp4.SidxRef{
			ReferencedSize:     uint32(20_000 + i*1000),
			SubSegmentDuration: 25_600,
			StartsWithSAP:      1,
			SAPType:            1,
		})
	}
	var buf bytes.Buffer
	if err := box.Encode(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}

	ix, err := BuildIndex(buf.Bytes(), 1200, segment.Options{})
	if err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if ix.Len() != len(box.SidxRefs) {
		t.Fatalf("Len = %d, want %d", ix.Len(), len(box.SidxRefs))
	}
	start := int64(1200) + int64(buf.Len())
	ts := uint64(box.EarliestPresentationTime)
	for i, want := range box.SidxRefs {
		ref, _ := ix.Get(i)
		if ref.StartByte != start || ref.Size() != int64(want.ReferencedSize) {
			t.Errorf("ref %d: bytes [%d, %d], want start %d size %d", i, ref.StartByte, ref.EndByte, start, want.ReferencedSize)
		}
		if ref.StartTime != float64(ts)/12800 {
			t.Errorf("ref %d: start %v, want %v", i, ref.StartTime, float64(ts)/12800)
		}
		start += int64(want.ReferencedSize)
		ts += uint64(want.SubSegmentDuration)
	}
}

func FuzzBuildIndex(f *testing.F) {
	f.Add(sidxBytes(0, 1000, 0, 0, sidxRef{size: 100, duration: 1000}))
	f.Add(sidxBytes(1, 1000, 5, 5, sidxRef{size: 1, duration: 1}, sidxRef{size: 2, duration: 2}))
	f.Add([]byte{0, 0, 0, 1, 's', 'i', 'd', 'x'})
	f.Fuzz(func(t *testing.T, data []byte) {
		ix, err := BuildIndex(data, 0, segment.Options{})
		if err != nil {
			return
		}
		if err := ix.Validate(); err != nil {
			t.Fatalf("returned index fails validation: %v", err)
		}
	})
}

func BenchmarkBuildIndex(b *testing.B) {
	refs := make([]sidxRef, 1000)
	for i := range refs {
		refs[i] = sidxRef{size: 300_000, duration: 5 * 90000}
	}
	box := sidxBytes(0, 90000, 0, 0, refs...)
	b.ReportAllocs()
	for b.Loop() {
		if _, err := BuildIndex(box, 0, segment.Options{}); err != nil {
			b.Fatal(err)
		}
	}
}
