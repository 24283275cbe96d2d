package sidx

import (
	"fmt"

	"github.com/Eyevinn/mp4ff/bits"
	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/zsiec/vodindex/internal/indexerr"
)

// ErrNoMovie reports an init segment without a usable moov/trak.
var ErrNoMovie = indexerr.Wrap(indexerr.ErrMalformedContainer, "sidx: init segment has no track")

// InitInfo is what an MP4 init segment says about its first track.
type InitInfo struct {
	Timescale   uint32
	HandlerType string
}

// ProbeInit decodes an MP4 init segment and reports the media timescale
// and handler of its first track.
func ProbeInit(init []byte) (InitInfo, error) {
	sr := bits.NewFixedSliceReader(init)
	f, err := mp4.DecodeFileSR(sr)
	if err != nil {
		return InitInfo{}, &indexerr.ParseError{Container: "mp4", Field: "init segment", Err: fmt.Errorf("%w: %v", indexerr.ErrMalformedContainer, err)}
	}
	if f.Init == nil || f.Init.Moov == nil || f.Init.Moov.Trak == nil || f.Init.Moov.Trak.Mdia == nil {
		return InitInfo{}, ErrNoMovie
	}
	mdia := f.Init.Moov.Trak.Mdia
	var info InitInfo
	if mdia.Mdhd != nil {
		info.Timescale = mdia.Mdhd.Timescale
	}
	if mdia.Hdlr != nil {
		info.HandlerType = mdia.Hdlr.HandlerType
	}
	return info, nil
}
