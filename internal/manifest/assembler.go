// Package manifest assembles an on-demand presentation descriptor into a
// manifest of variants and streams whose segment indexes are fetched and
// parsed lazily, one stream at a time.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/zsiec/vodindex/internal/indexerr"
	"github.com/zsiec/vodindex/internal/metrics"
	"github.com/zsiec/vodindex/internal/segment"
	"github.com/zsiec/vodindex/internal/sidx"
	"github.com/zsiec/vodindex/internal/webm"
)

// Errors from segment index creation.
var (
	ErrShortResponse        = indexerr.Wrap(indexerr.ErrNetworkFailure, "manifest: init+index response shorter than its byte ranges")
	ErrUnsupportedContainer = indexerr.Wrap(indexerr.ErrUnsupportedFeature, "manifest: unsupported container")
)

// DefaultScheme prefixes pseudo-URLs when Config.Scheme is empty.
const DefaultScheme = "vod"

// Fetcher resolves a pseudo-URL to the bytes it names.
type Fetcher interface {
	Fetch(ctx context.Context, uri string) ([]byte, error)
}

// Config holds assembler settings.
type Config struct {
	// Scheme of the pseudo-URLs handed to the delivery layer.
	Scheme string
	// RejectedAudioXTags lists xtags signatures of audio formats known to
	// be broken upstream; matching formats are skipped.
	RejectedAudioXTags []string
}

// Options select per-playback behavior.
type Options struct {
	VideoEnabled bool
}

// Assembler turns payloads into manifests.
type Assembler struct {
	cfg     Config
	fetcher Fetcher
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewAssembler creates an assembler. m may be nil. If log is nil,
// slog.Default() is used.
func NewAssembler(cfg Config, fetcher Fetcher, m *metrics.Metrics, log *slog.Logger) *Assembler {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Scheme == "" {
		cfg.Scheme = DefaultScheme
	}
	return &Assembler{
		cfg:     cfg,
		fetcher: fetcher,
		metrics: m,
		log:     log.With("component", "manifest-assembler"),
	}
}

// Build assembles a manifest. No network traffic happens here; segment
// indexes are created per stream on demand.
func (a *Assembler) Build(p *Payload, opts Options) (*Manifest, error) {
	m, err := a.build(p, opts)
	a.metrics.ObserveManifest(err)
	return m, err
}

func (a *Assembler) build(p *Payload, opts Options) (*Manifest, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	var audioFormats, videoFormats []Format
	for _, f := range p.Formats {
		switch {
		case f.IsAudio():
			if rejectedXTags(f.XTags, a.cfg.RejectedAudioXTags) {
				a.log.Info("skipping rejected audio format", "format", f.Itag, "xtags", f.XTags)
				continue
			}
			audioFormats = append(audioFormats, f)
		case f.IsVideo():
			videoFormats = append(videoFormats, f)
		}
	}

	m := &Manifest{
		Timeline: Timeline{Static: true, Duration: p.Duration},
	}
	nextID := 0
	newStream := func(typ StreamType, formatID int) *Stream {
		s := &Stream{
			ID:       nextID,
			Type:     typ,
			FormatID: formatID,
			metrics:  a.metrics,
			log:      a.log.With("stream", nextID, "type", string(typ), "format", formatID),
		}
		nextID++
		return s
	}

	if !opts.VideoEnabled {
		if rep, ok := representativeVideo(videoFormats); ok {
			m.FallbackVideoFormatID = rep.Itag
		}
	}

	siblings := len(audioFormats) > 1
	for _, f := range audioFormats {
		s := newStream(Audio, f.Itag)
		container, codecs := parseMimeType(f.MimeType)
		role := audioRole(f)
		s.MimeType = f.MimeType
		s.Codecs = codecs
		s.Bandwidth = f.Bitrate
		s.Language = canonicalLanguage(f.Language)
		s.Label = audioLabel(f, role, siblings)
		s.Roles = []string{role}
		s.Primary = role == RoleMain
		s.AudioSampleRate = int(f.AudioSampleRate)
		s.ChannelsCount = f.AudioChannels
		s.SpatialAudio = f.SpatialAudio

		u := streamURL{
			scheme:        a.cfg.Scheme,
			typ:           Audio,
			formatID:      f.Itag,
			drc:           f.IsDrc,
			voiceBoost:    f.IsVoiceBoost,
			videoFormatID: m.FallbackVideoFormatID,
			xtags:         f.XTags,
		}
		s.build = a.mediaIndex(s.Type, container, f, u, p.Duration)
		m.AudioStreams = append(m.AudioStreams, s)
	}
	sortAudio(m.AudioStreams)

	if opts.VideoEnabled {
		for _, f := range videoFormats {
			s := newStream(Video, f.Itag)
			container, codecs := parseMimeType(f.MimeType)
			s.MimeType = f.MimeType
			s.Codecs = codecs
			s.Bandwidth = f.Bitrate
			s.Width = f.Width
			s.Height = f.Height
			s.FrameRate = f.FrameRate
			s.HDR = hdrClass(f.ColorTransferCharacteristics)
			s.ColorGamut = colorGamut(f.ColorPrimaries)

			u := streamURL{
				scheme:     a.cfg.Scheme,
				typ:        Video,
				formatID:   f.Itag,
				resolution: f.Height,
				xtags:      f.XTags,
			}
			s.build = a.mediaIndex(s.Type, container, f, u, p.Duration)
			m.VideoStreams = append(m.VideoStreams, s)
		}
		sortVideo(m.VideoStreams)
	}

	for _, c := range p.Captions {
		s := newStream(Text, 0)
		s.MimeType = c.MimeType
		s.Language = canonicalLanguage(c.Language)
		s.Label = c.Label
		s.Kind = "subtitle"
		s.build = textIndex(c.URL, p.Duration)
		m.TextStreams = append(m.TextStreams, s)
	}

	for _, sb := range p.Storyboards {
		s := newStream(Image, 0)
		s.MimeType = sb.MimeType
		s.Width = sb.ThumbnailWidth * sb.Columns
		s.Height = sb.ThumbnailHeight * sb.Rows
		s.TilesLayout = fmt.Sprintf("%dx%d", sb.Columns, sb.Rows)
		s.build = storyboardIndex(sb, p.Duration)
		m.ImageStreams = append(m.ImageStreams, s)
	}

	m.Variants = buildVariants(m.AudioStreams, m.VideoStreams)

	a.log.Info("manifest assembled",
		"duration", p.Duration,
		"variants", len(m.Variants),
		"audio", len(m.AudioStreams),
		"video", len(m.VideoStreams),
		"text", len(m.TextStreams),
		"image", len(m.ImageStreams),
		"video_enabled", opts.VideoEnabled,
	)
	return m, nil
}

// buildVariants pairs every audio stream with every video stream. Without
// video streams each audio stream is a variant of its own, and without
// audio each video stream is.
func buildVariants(audio, video []*Stream) []*Variant {
	var variants []*Variant
	add := func(a, v *Stream) {
		vr := &Variant{ID: len(variants), Audio: a, Video: v}
		if a != nil {
			vr.Bandwidth += a.Bandwidth
			vr.Language = a.Language
			vr.Primary = a.Primary
		}
		if v != nil {
			vr.Bandwidth += v.Bandwidth
		}
		variants = append(variants, vr)
	}

	switch {
	case len(video) == 0:
		for _, a := range audio {
			add(a, nil)
		}
	case len(audio) == 0:
		for _, v := range video {
			add(nil, v)
		}
	default:
		for _, a := range audio {
			for _, v := range video {
				add(a, v)
			}
		}
	}
	return variants
}

// mediaIndex returns the factory that fetches one stream's init and index
// bytes in a single request and parses them.
func (a *Assembler) mediaIndex(typ StreamType, container string, f Format, u streamURL, duration float64) indexFunc {
	return func(ctx context.Context) (*segment.Index, error) {
		uri := u.initURL()
		start := time.Now()
		buf, err := a.fetcher.Fetch(ctx, uri)
		a.metrics.ObserveFetch(string(typ), len(buf), time.Since(start), err)
		if err != nil {
			if !errors.Is(err, indexerr.ErrNetworkFailure) {
				err = fmt.Errorf("%w: %w", indexerr.ErrNetworkFailure, err)
			}
			return nil, fmt.Errorf("fetch %s: %w", uri, err)
		}

		initBytes, err := sliceRange(buf, *f.InitRange)
		if err != nil {
			return nil, fmt.Errorf("init range: %w", err)
		}
		indexBytes, err := sliceRange(buf, *f.IndexRange)
		if err != nil {
			return nil, fmt.Errorf("index range: %w", err)
		}

		opts := segment.Options{
			URLFunc: u.segmentURLs(),
			Init: &segment.InitReference{
				URI:       uri,
				StartByte: int64(f.InitRange.Start),
				EndByte:   int64(f.InitRange.End),
			},
			AppendWindowStart: 0,
			AppendWindowEnd:   duration,
		}

		var ix *segment.Index
		switch container {
		case "webm":
			ix, err = webm.BuildIndex(initBytes, indexBytes, int64(f.InitRange.Start), opts)
		case "mp4":
			a.probeInit(initBytes, f.Itag)
			ix, err = sidx.BuildIndex(indexBytes, int64(f.IndexRange.Start), opts)
		default:
			err = fmt.Errorf("%q: %w", container, ErrUnsupportedContainer)
		}
		refs := 0
		if ix != nil {
			refs = ix.Len()
		}
		a.metrics.ObserveBuild(container, refs, err)
		return ix, err
	}
}

func (a *Assembler) probeInit(init []byte, itag int) {
	info, err := sidx.ProbeInit(init)
	if err != nil {
		a.log.Warn("mp4 init segment probe failed", "format", itag, "error", err)
		return
	}
	a.log.Debug("mp4 init segment", "format", itag, "timescale", info.Timescale, "handler", info.HandlerType)
}

func sliceRange(buf []byte, r Range) ([]byte, error) {
	if r.Start < 0 || r.End < r.Start || int64(r.End) >= int64(len(buf)) {
		return nil, fmt.Errorf("bytes %d-%d of %d: %w", r.Start, r.End, len(buf), ErrShortResponse)
	}
	return buf[r.Start : r.End+1], nil
}

// textIndex serves a caption file as a single segment spanning the whole
// presentation.
func textIndex(uri string, duration float64) indexFunc {
	return func(context.Context) (*segment.Index, error) {
		ref := segment.Reference{
			StartTime:       0,
			EndTime:         duration,
			StartByte:       0,
			EndByte:         segment.OpenEnd,
			AppendWindowEnd: duration,
			URLFunc:         func(int, int64) string { return uri },
		}
		return segment.NewIndex([]segment.Reference{ref}), nil
	}
}

// storyboardPlaceholder is replaced by the storyboard image number.
const storyboardPlaceholder = "$M"

// storyboardIndex splits the presentation into one window per thumbnail
// grid image. Images whose window would start at or past duration are
// dropped, and the last window ends at duration.
func storyboardIndex(sb Storyboard, duration float64) indexFunc {
	return func(context.Context) (*segment.Index, error) {
		perThumb := sb.Interval / 1000
		if perThumb <= 0 {
			perThumb = duration / float64(sb.ThumbnailCount)
		}
		window := perThumb * float64(sb.Columns*sb.Rows)

		count := sb.StoryboardCount
		if window > 0 {
			if n := int(math.Ceil(duration / window)); n < count {
				count = max(n, 1)
			}
		}

		refs := make([]segment.Reference, 0, count)
		for i := 0; i < count; i++ {
			start := min(float64(i)*window, duration)
			end := min(float64(i+1)*window, duration)
			if i == count-1 {
				end = duration
			}
			uri := strings.ReplaceAll(sb.TemplateURL, storyboardPlaceholder, strconv.Itoa(i))
			refs = append(refs, segment.Reference{
				Seq:             i,
				StartTime:       start,
				EndTime:         end,
				StartByte:       0,
				EndByte:         segment.OpenEnd,
				AppendWindowEnd: duration,
				URLFunc:         func(int, int64) string { return uri },
			})
		}
		return segment.NewIndex(refs), nil
	}
}
