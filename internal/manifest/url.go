package manifest

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/zsiec/vodindex/internal/segment"
)

// streamURL builds the pseudo-URLs the delivery layer resolves for one
// audio or video stream.
type streamURL struct {
	scheme   string
	typ      StreamType
	formatID int
	// resolution is the target height, video only.
	resolution int
	drc        bool
	voiceBoost bool
	// videoFormatID is the representative video format sent with audio
	// requests in audio-only playback; zero when unused.
	videoFormatID int
	xtags         string
}

func (u streamURL) base() string {
	var b strings.Builder
	b.WriteString(u.scheme)
	b.WriteString("://")
	b.WriteString(string(u.typ))
	b.WriteString("?formatId=")
	b.WriteString(strconv.Itoa(u.formatID))
	if u.resolution > 0 {
		b.WriteString("&resolution=")
		b.WriteString(strconv.Itoa(u.resolution))
	}
	if u.drc {
		b.WriteString("&drc")
	}
	if u.voiceBoost {
		b.WriteString("&vb")
	}
	if u.videoFormatID > 0 {
		b.WriteString("&videoFormatId=")
		b.WriteString(strconv.Itoa(u.videoFormatID))
	}
	if u.xtags != "" {
		b.WriteString("&xtags=")
		b.WriteString(url.QueryEscape(u.xtags))
	}
	return b.String()
}

// initURL requests the combined init and index bytes.
func (u streamURL) initURL() string {
	return u.base() + "&init"
}

// segmentURLs returns the producer stamped onto every media reference.
func (u streamURL) segmentURLs() segment.URLFunc {
	base := u.base()
	return func(seq int, startTimeMs int64) string {
		return base + "&startTimeMs=" + strconv.FormatInt(startTimeMs, 10) + "&sq=" + strconv.Itoa(seq)
	}
}
