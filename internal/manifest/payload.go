package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/zsiec/vodindex/internal/indexerr"
)

// ErrBadDescriptor reports a payload missing a required field.
var ErrBadDescriptor = indexerr.Wrap(indexerr.ErrBadDescriptor, "manifest: bad descriptor")

// Number is an integer that decodes from a JSON number or a numeric
// string, since upstream descriptors use both.
type Number int64

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("number %q: %w", data, err)
	}
	*n = Number(v)
	return nil
}

// Range is an inclusive byte range within a media resource.
type Range struct {
	Start Number `json:"start"`
	End   Number `json:"end"`
}

// Len returns the number of bytes covered.
func (r Range) Len() int64 {
	return int64(r.End-r.Start) + 1
}

// Format describes one audio or video rendition.
type Format struct {
	Itag         int    `json:"itag"`
	MimeType     string `json:"mimeType"`
	Bitrate      int    `json:"bitrate"`
	LastModified Number `json:"lastModified,omitempty"`
	XTags        string `json:"xtags,omitempty"`
	InitRange    *Range `json:"initRange"`
	IndexRange   *Range `json:"indexRange"`

	Width                        int     `json:"width,omitempty"`
	Height                       int     `json:"height,omitempty"`
	FrameRate                    float64 `json:"frameRate,omitempty"`
	ColorTransferCharacteristics string  `json:"colorTransferCharacteristics,omitempty"`
	ColorPrimaries               string  `json:"colorPrimaries,omitempty"`

	AudioSampleRate Number `json:"audioSampleRate,omitempty"`
	AudioChannels   int    `json:"audioChannels,omitempty"`
	Language        string `json:"language,omitempty"`
	Label           string `json:"label,omitempty"`
	SpatialAudio    bool   `json:"spatialAudio,omitempty"`

	IsDrc         bool `json:"isDrc,omitempty"`
	IsVoiceBoost  bool `json:"isVoiceBoost,omitempty"`
	IsOriginal    bool `json:"isOriginal,omitempty"`
	IsDubbed      bool `json:"isDubbed,omitempty"`
	IsAutoDubbed  bool `json:"isAutoDubbed,omitempty"`
	IsDescriptive bool `json:"isDescriptive,omitempty"`
	IsSecondary   bool `json:"isSecondary,omitempty"`
}

// IsAudio reports whether the mime type is audio/*.
func (f Format) IsAudio() bool { return strings.HasPrefix(f.MimeType, "audio/") }

// IsVideo reports whether the mime type is video/*.
func (f Format) IsVideo() bool { return strings.HasPrefix(f.MimeType, "video/") }

// Caption is a text track served as a single file.
type Caption struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	MimeType string `json:"mimeType"`
	Language string `json:"language"`
	URL      string `json:"url"`
}

// Storyboard is a grid of preview thumbnails split over several images.
type Storyboard struct {
	TemplateURL     string `json:"templateUrl"`
	MimeType        string `json:"mimeType"`
	Columns         int    `json:"columns"`
	Rows            int    `json:"rows"`
	ThumbnailCount  int    `json:"thumbnailCount"`
	ThumbnailWidth  int    `json:"thumbnailWidth"`
	ThumbnailHeight int    `json:"thumbnailHeight"`
	StoryboardCount int    `json:"storyboardCount"`
	// Interval is the time each thumbnail covers, in milliseconds.
	Interval float64 `json:"interval"`
}

// Payload is the upstream descriptor of one on-demand presentation.
type Payload struct {
	Duration    float64      `json:"duration"`
	Formats     []Format     `json:"formats"`
	Captions    []Caption    `json:"captions"`
	Storyboards []Storyboard `json:"storyboards"`
}

// ParsePayload decodes and validates a payload.
func ParsePayload(r io.Reader) (*Payload, error) {
	var p Payload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadDescriptor, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks that every field the assembler depends on is present.
func (p *Payload) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrBadDescriptor}, args...)...))
	}

	if p.Duration <= 0 {
		bad("duration %v", p.Duration)
	}
	for i, f := range p.Formats {
		switch {
		case f.Itag == 0:
			bad("format %d: missing itag", i)
		case f.MimeType == "":
			bad("format %d (itag %d): missing mimeType", i, f.Itag)
		case !f.IsAudio() && !f.IsVideo():
			bad("format %d (itag %d): mimeType %q is neither audio nor video", i, f.Itag, f.MimeType)
		case f.InitRange == nil || f.IndexRange == nil:
			bad("format %d (itag %d): missing initRange or indexRange", i, f.Itag)
		case f.InitRange.Len() <= 0 || f.IndexRange.Len() <= 0 || f.InitRange.Start < 0 || f.IndexRange.Start < 0:
			bad("format %d (itag %d): empty byte range", i, f.Itag)
		}
	}
	for i, c := range p.Captions {
		if c.URL == "" {
			bad("caption %d (%s): missing url", i, c.ID)
		}
	}
	for i, s := range p.Storyboards {
		switch {
		case s.TemplateURL == "":
			bad("storyboard %d: missing templateUrl", i)
		case s.Columns <= 0 || s.Rows <= 0 || s.StoryboardCount <= 0:
			bad("storyboard %d: empty grid", i)
		case s.Interval <= 0 && s.ThumbnailCount <= 0:
			bad("storyboard %d: neither interval nor thumbnailCount", i)
		}
	}
	return errors.Join(errs...)
}
