// Package segment holds the container-independent output of the segment
// index builders: time- and byte-ranged references to fetchable media
// chunks, and the ordered index a stream seeks through.
package segment

import (
	"encoding/json"
	"math"
)

// OpenEnd marks a reference whose byte range runs to the end of the
// resource.
const OpenEnd int64 = -1

// URLFunc produces the fetch URL for a media segment from its sequence
// number and start time in milliseconds.
type URLFunc func(seq int, startTimeMs int64) string

// InitReference locates a stream's initialization segment.
type InitReference struct {
	URI       string `json:"uri"`
	StartByte int64  `json:"startByte"`
	EndByte   int64  `json:"endByte"`
}

// Reference describes one fetchable media chunk: its presentation time
// range in seconds and its inclusive byte range.
type Reference struct {
	Seq       int
	StartTime float64
	EndTime   float64
	StartByte int64
	// EndByte is inclusive, or OpenEnd.
	EndByte int64

	Init              *InitReference
	TimestampOffset   float64
	AppendWindowStart float64
	AppendWindowEnd   float64

	URLFunc URLFunc
}

// StartTimeMs returns the start time rounded to whole milliseconds.
func (r Reference) StartTimeMs() int64 {
	return int64(math.Round(r.StartTime * 1000))
}

// URL returns the fetch URL, or "" when the reference has no producer.
func (r Reference) URL() string {
	if r.URLFunc == nil {
		return ""
	}
	return r.URLFunc(r.Seq, r.StartTimeMs())
}

// IsOpenEnded reports whether the byte range runs to the end of the resource.
func (r Reference) IsOpenEnded() bool {
	return r.EndByte == OpenEnd
}

// Size returns the byte length, or -1 for an open-ended reference.
func (r Reference) Size() int64 {
	if r.IsOpenEnded() {
		return -1
	}
	return r.EndByte - r.StartByte + 1
}

type referenceJSON struct {
	Seq       int            `json:"seq"`
	StartTime float64        `json:"startTime"`
	EndTime   float64        `json:"endTime"`
	StartByte int64          `json:"startByte"`
	EndByte   *int64         `json:"endByte"`
	URL       string         `json:"url,omitempty"`
	Init      *InitReference `json:"init,omitempty"`
}

// MarshalJSON renders an open byte end as null.
func (r Reference) MarshalJSON() ([]byte, error) {
	out := referenceJSON{
		Seq:       r.Seq,
		StartTime: r.StartTime,
		EndTime:   r.EndTime,
		StartByte: r.StartByte,
		URL:       r.URL(),
		Init:      r.Init,
	}
	if !r.IsOpenEnded() {
		end := r.EndByte
		out.EndByte = &end
	}
	return json.Marshal(out)
}
