package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"math"

	"golang.org/x/sync/errgroup"
)

// Timeline is a static presentation of fixed duration that stays
// available indefinitely.
type Timeline struct {
	Static   bool    `json:"static"`
	Duration float64 `json:"duration"`
}

// AvailabilityWindow is always unbounded for on-demand content.
func (Timeline) AvailabilityWindow() float64 {
	return math.Inf(1)
}

// MarshalJSON writes the unbounded availability window as null.
func (t Timeline) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Static             bool     `json:"static"`
		Duration           float64  `json:"duration"`
		AvailabilityWindow *float64 `json:"availabilityWindow"`
	}{t.Static, t.Duration, nil})
}

// Variant is one playable audio and video combination.
type Variant struct {
	ID        int
	Bandwidth int
	Language  string
	Primary   bool
	// Audio or Video is nil when the variant lacks that type.
	Audio *Stream
	Video *Stream
}

// Streams returns the variant's non-nil streams.
func (v *Variant) Streams() []*Stream {
	var out []*Stream
	if v.Audio != nil {
		out = append(out, v.Audio)
	}
	if v.Video != nil {
		out = append(out, v.Video)
	}
	return out
}

// MarshalJSON refers to streams by id.
func (v *Variant) MarshalJSON() ([]byte, error) {
	out := struct {
		ID        int    `json:"id"`
		Bandwidth int    `json:"bandwidth"`
		Language  string `json:"language,omitempty"`
		Primary   bool   `json:"primary"`
		Audio     *int   `json:"audio"`
		Video     *int   `json:"video"`
	}{ID: v.ID, Bandwidth: v.Bandwidth, Language: v.Language, Primary: v.Primary}
	if v.Audio != nil {
		out.Audio = &v.Audio.ID
	}
	if v.Video != nil {
		out.Video = &v.Video.ID
	}
	return json.Marshal(out)
}

// Manifest is the assembled presentation handed to the playback engine.
type Manifest struct {
	Timeline     Timeline   `json:"presentationTimeline"`
	Variants     []*Variant `json:"variants"`
	AudioStreams []*Stream  `json:"audioStreams"`
	VideoStreams []*Stream  `json:"videoStreams"`
	TextStreams  []*Stream  `json:"textStreams"`
	ImageStreams []*Stream  `json:"imageStreams"`

	// FallbackVideoFormatID is the video format id sent with audio
	// requests when video is disabled; zero otherwise.
	FallbackVideoFormatID int `json:"fallbackVideoFormatId,omitempty"`
}

// Streams returns every stream in id order.
func (m *Manifest) Streams() []*Stream {
	all := make([]*Stream, 0, len(m.AudioStreams)+len(m.VideoStreams)+len(m.TextStreams)+len(m.ImageStreams))
	all = append(all, m.AudioStreams...)
	all = append(all, m.VideoStreams...)
	all = append(all, m.TextStreams...)
	all = append(all, m.ImageStreams...)
	byID := make([]*Stream, len(all))
	for _, s := range all {
		byID[s.ID] = s
	}
	return byID
}

// Stream returns the stream with the given id.
func (m *Manifest) Stream(id int) (*Stream, bool) {
	for _, s := range m.Streams() {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// Prepare creates the segment indexes of a variant's streams concurrently.
// Streams build independently: a failed stream does not cancel the others,
// and the failures are joined in the returned error.
func (m *Manifest) Prepare(ctx context.Context, v *Variant) error {
	return prepare(ctx, v.Streams())
}

// PrepareAll creates the segment index of every stream.
func (m *Manifest) PrepareAll(ctx context.Context) error {
	return prepare(ctx, m.Streams())
}

func prepare(ctx context.Context, streams []*Stream) error {
	var g errgroup.Group
	errs := make([]error, len(streams))
	for i, s := range streams {
		g.Go(func() error {
			err := s.CreateSegmentIndex(ctx)
			var se *StreamError
			if err != nil && !errors.As(err, &se) {
				err = &StreamError{StreamID: s.ID, Type: s.Type, FormatID: s.FormatID, Err: err}
			}
			errs[i] = err
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// StreamErrors splits an error from Prepare or PrepareAll by stream id.
// Errors not attributable to a stream are keyed by -1.
func StreamErrors(err error) map[int]error {
	if err == nil {
		return nil
	}
	var errs []error
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	} else {
		errs = []error{err}
	}
	out := make(map[int]error, len(errs))
	for _, e := range errs {
		var se *StreamError
		if errors.As(e, &se) {
			out[se.StreamID] = e
			continue
		}
		out[-1] = errors.Join(out[-1], e)
	}
	return out
}

// Close releases every stream's segment index.
func (m *Manifest) Close() {
	for _, s := range m.Streams() {
		s.CloseSegmentIndex()
	}
}
