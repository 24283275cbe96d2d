// Package webm builds a segment index from the Cues of a WebM resource.
package webm

// Element identifiers, raw bytes including the width marker.
const (
	idEBML               = 0x1a45dfa3
	idSegment            = 0x18538067
	idInfo               = 0x1549a966
	idTimecodeScale      = 0x2ad7b1
	idDuration           = 0x4489
	idCues               = 0x1c53bb6b
	idCuePoint           = 0xbb
	idCueTime            = 0xb3
	idCueTrackPositions  = 0xb7
	idCueClusterPosition = 0xf1
	idCueReference       = 0xdb
)

// defaultTimecodeScale is the Matroska default, in nanoseconds.
const defaultTimecodeScale = 1_000_000
