package manifest

import (
	"mime"
	"sort"
	"strings"

	"golang.org/x/text/language"
)

// Audio roles, in the order the flags are consulted.
const (
	RoleDRC         = "drc"
	RoleVoiceBoost  = "voiceBoost"
	RoleDubbed      = "dubbed"
	RoleAutoDubbed  = "autoDubbed"
	RoleDescriptive = "descriptive"
	RoleSecondary   = "secondary"
	RoleMain        = "main"
)

const (
	labelStableVolume = "(Stable Volume)"
	labelVoiceBoost   = "(Voice Boost)"
)

func audioRole(f Format) string {
	switch {
	case f.IsDrc:
		return RoleDRC
	case f.IsVoiceBoost:
		return RoleVoiceBoost
	case f.IsDubbed:
		return RoleDubbed
	case f.IsAutoDubbed:
		return RoleAutoDubbed
	case f.IsDescriptive:
		return RoleDescriptive
	case f.IsSecondary:
		return RoleSecondary
	default:
		// Original and unflagged tracks are both the main track.
		return RoleMain
	}
}

// audioLabel prefers the descriptor's label; qualifiers only distinguish a
// track from its siblings.
func audioLabel(f Format, role string, siblings bool) string {
	if f.Label != "" {
		return f.Label
	}
	if !siblings {
		return ""
	}
	switch role {
	case RoleDRC:
		return labelStableVolume
	case RoleVoiceBoost:
		return labelVoiceBoost
	}
	return ""
}

// parseMimeType splits `audio/webm; codecs="opus"` into the container
// subtype and the codecs parameter.
func parseMimeType(mimeType string) (container, codecs string) {
	mediaType, params, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType, _, _ = strings.Cut(mimeType, ";")
		mediaType = strings.TrimSpace(mediaType)
	}
	_, container, _ = strings.Cut(mediaType, "/")
	return container, params["codecs"]
}

func hdrClass(transfer string) string {
	switch {
	case strings.Contains(transfer, "SMPTEST2084"):
		return HDRPQ
	case strings.Contains(transfer, "ARIB_STD_B67"):
		return HDRHLG
	default:
		return HDRNone
	}
}

func colorGamut(primaries string) string {
	if strings.Contains(primaries, "BT2020") {
		return "rec2020"
	}
	return "srgb"
}

// codecPriority orders video codecs AV1, VP9, H.264, then anything else.
func codecPriority(codecs string) int {
	c := strings.ToLower(codecs)
	switch {
	case strings.HasPrefix(c, "av01"):
		return 0
	case strings.HasPrefix(c, "vp9"), strings.HasPrefix(c, "vp09"):
		return 1
	case strings.HasPrefix(c, "avc1"), strings.HasPrefix(c, "avc3"):
		return 2
	default:
		return 3
	}
}

func sortAudio(streams []*Stream) {
	sort.SliceStable(streams, func(i, j int) bool {
		return streams[i].Bandwidth > streams[j].Bandwidth
	})
}

func sortVideo(streams []*Stream) {
	sort.SliceStable(streams, func(i, j int) bool {
		return codecPriority(streams[i].Codecs) < codecPriority(streams[j].Codecs)
	})
}

// canonicalLanguage normalizes a BCP 47 tag ("en-us" becomes "en-US").
// Tags that do not parse are passed through.
func canonicalLanguage(tag string) string {
	if tag == "" {
		return ""
	}
	t, err := language.Parse(tag)
	if err != nil {
		return tag
	}
	return t.String()
}

// representativeVideo returns the lowest-bitrate format with a width, the
// video format id carried by audio requests when video is disabled.
func representativeVideo(formats []Format) (Format, bool) {
	var (
		best  Format
		found bool
	)
	for _, f := range formats {
		if f.Width <= 0 {
			continue
		}
		if !found || f.Bitrate < best.Bitrate {
			best, found = f, true
		}
	}
	return best, found
}

func rejectedXTags(xtags string, blocklist []string) bool {
	if xtags == "" {
		return false
	}
	for _, sig := range blocklist {
		if sig != "" && strings.Contains(xtags, sig) {
			return true
		}
	}
	return false
}
