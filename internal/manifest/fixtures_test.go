package manifest

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/zsiec/vodindex/internal/ebml/ebmltest"
)

// resource is an origin file whose init and index sections sit back to
// back at its start.
type resource struct {
	data       []byte
	initRange  Range
	indexRange Range
}

// webmResource has cues at 0, 5 and 10 seconds and a 12 second duration.
func webmResource() resource {
	init := append(
		ebmltest.Element(0x1a45dfa3, ebmltest.Element(0x4282, []byte("webm"))),
		ebmltest.DynamicElement(0x18538067,
			ebmltest.Element(0x1549a966,
				ebmltest.Uint(0x2ad7b1, 1_000_000),
				ebmltest.Float(0x4489, 12000),
			),
		)...,
	)
	cuePoint := func(ms, pos uint64) []byte {
		return ebmltest.Element(0xbb,
			ebmltest.Uint(0xb3, ms),
			ebmltest.Element(0xb7, ebmltest.Uint(0xf7, 1), ebmltest.Uint(0xf1, pos)),
		)
	}
	index := ebmltest.Element(0x1c53bb6b, cuePoint(0, 0), cuePoint(5000, 1000), cuePoint(10000, 2500))
	return pack(init, index)
}

// mp4Resource has an init segment with one track and a sidx of three
// 4 second subsegments.
func mp4Resource(t *testing.T, mediaType string) resource {
	t.Helper()
	initSeg := mp4.CreateEmptyInit()
	initSeg.AddEmptyTrack(48000, mediaType, "und")
	var buf bytes.Buffer
	if err := initSeg.Encode(&buf); err != nil {
		t.Fatalf("encode init: %v", err)
	}

	var body []byte
	body = append(body, 0, 0, 0, 0)
	body = binary.BigEndian.AppendUint32(body, 1)
	body = binary.BigEndian.AppendUint32(body, 1000)
	body = binary.BigEndian.AppendUint32(body, 0)
	body = binary.BigEndian.AppendUint32(body, 0)
	body = append(body, 0, 0)
	body = binary.BigEndian.AppendUint16(body, 3)
	for i := 0; i < 3; i++ {
		body = binary.BigEndian.AppendUint32(body, 50_000)
		body = binary.BigEndian.AppendUint32(body, 4000)
		body = binary.BigEndian.AppendUint32(body, 0x90000000)
	}
	box := binary.BigEndian.AppendUint32(nil, uint32(8+len(body)))
	box = append(box, "sidx"...)
	box = append(box, body...)
	return pack(buf.Bytes(), box)
}

func pack(init, index []byte) resource {
	data := append(append([]byte{}, init...), index...)
	return resource{
		data:       data,
		initRange:  Range{Start: 0, End: Number(len(init) - 1)},
		indexRange: Range{Start: Number(len(init)), End: Number(len(data) - 1)},
	}
}

func (r resource) format(itag int, mimeType string, bitrate int) Format {
	init, index := r.initRange, r.indexRange
	return Format{Itag: itag, MimeType: mimeType, Bitrate: bitrate, InitRange: &init, IndexRange: &index}
}

// fakeFetcher serves resources by formatId and counts requests.
type fakeFetcher struct {
	mu        sync.Mutex
	resources map[int][]byte
	calls     []string
	err       error
	// failing maps format ids to errors returned at once, ahead of gate.
	failing map[int]error
	// gate, when set, blocks every fetch until closed.
	gate    chan struct{}
	started chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{resources: map[int][]byte{}}
}

func (f *fakeFetcher) serve(itag int, r resource) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resources[itag] = r.data
}

func (f *fakeFetcher) Fetch(ctx context.Context, uri string) ([]byte, error) {
	var itag int
	if _, rest, ok := strings.Cut(uri, "formatId="); ok {
		fmt.Sscanf(rest, "%d", &itag)
	}

	f.mu.Lock()
	f.calls = append(f.calls, uri)
	gate, started, err := f.gate, f.started, f.err
	failErr := f.failing[itag]
	f.mu.Unlock()

	if failErr != nil {
		return nil, failErr
	}
	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.resources[itag]
	if !ok {
		return nil, fmt.Errorf("no resource for format %d", itag)
	}
	return data, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) lastCall() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}
