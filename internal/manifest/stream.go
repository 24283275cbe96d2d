package manifest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zsiec/vodindex/internal/metrics"
	"github.com/zsiec/vodindex/internal/segment"
)

// ErrIndexClosed is returned to callers waiting on a segment index whose
// stream was closed before the fetch completed.
var ErrIndexClosed = errors.New("manifest: segment index closed during creation")

// StreamType classifies a stream.
type StreamType string

const (
	Audio StreamType = "audio"
	Video StreamType = "video"
	Text  StreamType = "text"
	Image StreamType = "image"
)

// HDR transfer classes.
const (
	HDRNone = "SDR"
	HDRPQ   = "PQ"
	HDRHLG  = "HLG"
)

// StreamError attributes a segment index failure to its stream.
type StreamError struct {
	StreamID int
	Type     StreamType
	FormatID int
	Err      error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %d (%s, format %d): %v", e.StreamID, e.Type, e.FormatID, e.Err)
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

type indexState int

const (
	indexAbsent indexState = iota
	indexFetching
	indexReady
)

func (s indexState) String() string {
	switch s {
	case indexAbsent:
		return "absent"
	case indexFetching:
		return "fetching"
	case indexReady:
		return "ready"
	default:
		return fmt.Sprintf("indexState(%d)", int(s))
	}
}

type indexFunc func(ctx context.Context) (*segment.Index, error)

// pendingIndex is the outcome of one in-flight creation, shared by every
// caller that asks while it runs. err is written before done is closed.
type pendingIndex struct {
	done chan struct{}
	err  error
}

// Stream is one audio, video, text or image rendition. Descriptive fields
// are fixed at assembly; the segment index is created lazily.
type Stream struct {
	ID        int        `json:"id"`
	Type      StreamType `json:"type"`
	FormatID  int        `json:"formatId,omitempty"`
	MimeType  string     `json:"mimeType"`
	Codecs    string     `json:"codecs,omitempty"`
	Bandwidth int        `json:"bandwidth,omitempty"`
	Language  string     `json:"language,omitempty"`
	Label     string     `json:"label,omitempty"`
	Roles     []string   `json:"roles,omitempty"`
	Primary   bool       `json:"primary"`

	Width      int     `json:"width,omitempty"`
	Height     int     `json:"height,omitempty"`
	FrameRate  float64 `json:"frameRate,omitempty"`
	HDR        string  `json:"hdr,omitempty"`
	ColorGamut string  `json:"colorGamut,omitempty"`

	AudioSampleRate int  `json:"audioSamplingRate,omitempty"`
	ChannelsCount   int  `json:"channelsCount,omitempty"`
	SpatialAudio    bool `json:"spatialAudio,omitempty"`

	Kind        string `json:"kind,omitempty"`
	TilesLayout string `json:"tilesLayout,omitempty"`

	build   indexFunc
	log     *slog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	state   indexState
	gen     uint64
	index   *segment.Index
	pending *pendingIndex
}

// CreateSegmentIndex builds the stream's segment index if it is absent.
// While a creation is in flight, later callers wait for it instead of
// starting another; once ready, calls return at once.
//
// The build runs on a context detached from every caller's cancellation,
// so one caller giving up does not fail the others. A caller whose ctx
// ends returns ctx.Err() and the build carries on for the rest; the fetch
// client's timeout bounds it.
func (s *Stream) CreateSegmentIndex(ctx context.Context) error {
	s.mu.Lock()
	var p *pendingIndex
	switch s.state {
	case indexReady:
		s.mu.Unlock()
		return nil
	case indexFetching:
		p = s.pending
	default:
		p = &pendingIndex{done: make(chan struct{})}
		s.state = indexFetching
		s.pending = p
		go s.runBuild(context.WithoutCancel(ctx), p, s.gen)
	}
	s.mu.Unlock()

	select {
	case <-p.done:
		return p.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Stream) runBuild(ctx context.Context, p *pendingIndex, gen uint64) {
	s.log.Debug("creating segment index")
	ix, err := s.build(ctx)

	s.mu.Lock()
	switch {
	case s.gen != gen:
		// Closed while fetching; the result is stale.
		err = ErrIndexClosed
	case err != nil:
		err = &StreamError{StreamID: s.ID, Type: s.Type, FormatID: s.FormatID, Err: err}
		s.state = indexAbsent
		s.pending = nil
	default:
		s.state = indexReady
		s.index = ix
		s.pending = nil
		s.metrics.IndexOpened()
	}
	s.mu.Unlock()

	p.err = err
	close(p.done)

	switch {
	case errors.Is(err, ErrIndexClosed):
		s.log.Debug("discarding segment index of closed stream")
	case err != nil:
		s.log.Warn("segment index creation failed", "error", err)
	default:
		s.log.Debug("segment index ready", "references", ix.Len())
	}
}

// CloseSegmentIndex releases the index. A creation still in flight is
// invalidated and its callers receive ErrIndexClosed.
func (s *Stream) CloseSegmentIndex() {
	s.mu.Lock()
	wasReady := s.state == indexReady
	if s.state != indexAbsent {
		s.gen++
	}
	s.state = indexAbsent
	s.index = nil
	s.pending = nil
	s.mu.Unlock()

	if wasReady {
		s.metrics.IndexClosed()
		s.log.Debug("segment index closed")
	}
}

// SegmentIndex returns the index once it is ready.
func (s *Stream) SegmentIndex() (*segment.Index, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index, s.state == indexReady
}

func (s *Stream) indexState() indexState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
