package webm

import (
	"fmt"

	"github.com/zsiec/vodindex/internal/ebml"
	"github.com/zsiec/vodindex/internal/indexerr"
	"github.com/zsiec/vodindex/internal/segment"
)

var (
	ErrEBMLHeaderMissing               = indexerr.Wrap(indexerr.ErrMalformedContainer, "webm: EBML header element missing")
	ErrSegmentElementMissing           = indexerr.Wrap(indexerr.ErrMalformedContainer, "webm: Segment element missing")
	ErrInfoElementMissing              = indexerr.Wrap(indexerr.ErrMalformedContainer, "webm: Info element missing")
	ErrDurationElementMissing          = indexerr.Wrap(indexerr.ErrMalformedContainer, "webm: Duration element missing")
	ErrCuesElementMissing              = indexerr.Wrap(indexerr.ErrMalformedContainer, "webm: Cues element missing")
	ErrCueTimeElementMissing           = indexerr.Wrap(indexerr.ErrMalformedContainer, "webm: CueTime element missing")
	ErrCueTrackPositionsElementMissing = indexerr.Wrap(indexerr.ErrMalformedContainer, "webm: CueTrackPositions element missing")
	ErrTypeNotSupported                = indexerr.Wrap(indexerr.ErrUnsupportedFeature, "webm: indirect cue reference")
)

// segmentInfo is what the init section contributes to the index.
type segmentInfo struct {
	// offset is the absolute position of the Segment payload; cluster
	// positions are relative to it.
	offset int64
	// scale converts timecodes to seconds.
	scale    float64
	duration float64
}

type cuePoint struct {
	time   uint64
	offset uint64
}

// BuildIndex parses the init section (EBML header and Segment headers) and
// the Cues section of a WebM resource and returns one reference per cue
// point. initOffset is the absolute position of init[0] in the resource.
func BuildIndex(init, index []byte, initOffset int64, opts segment.Options) (*segment.Index, error) {
	info, err := parseInit(init, initOffset)
	if err != nil {
		return nil, err
	}
	cues, err := parseCues(index)
	if err != nil {
		return nil, err
	}

	refs := make([]segment.Reference, 0, len(cues))
	for i, cue := range cues {
		start := info.scale*float64(cue.time) + opts.TimestampOffset
		startByte := info.offset + int64(cue.offset)

		end := info.duration + opts.TimestampOffset
		endByte := segment.OpenEnd
		if i+1 < len(cues) {
			next := cues[i+1]
			end = info.scale*float64(next.time) + opts.TimestampOffset
			endByte = info.offset + int64(next.offset) - 1
		}
		refs = append(refs, opts.NewReference(i, start, end, startByte, endByte))
	}

	ix := segment.NewIndex(refs)
	if err := ix.Validate(); err != nil {
		return nil, fmt.Errorf("webm: %w", err)
	}
	return ix, nil
}

func parseInit(init []byte, initOffset int64) (segmentInfo, error) {
	p := ebml.NewParserAt(init, initOffset)

	header, err := p.ParseElement()
	if err != nil {
		return segmentInfo{}, err
	}
	if header.ID != idEBML {
		return segmentInfo{}, fmt.Errorf("first element %#x: %w", header.ID, ErrEBMLHeaderMissing)
	}
	if !p.HasMoreData() {
		return segmentInfo{}, ErrSegmentElementMissing
	}
	seg, err := p.ParseElement()
	if err != nil {
		return segmentInfo{}, err
	}
	if seg.ID != idSegment {
		return segmentInfo{}, fmt.Errorf("element %#x after header: %w", seg.ID, ErrSegmentElementMissing)
	}

	infoElem, ok, err := seg.Parser().Find(idInfo)
	if err != nil {
		return segmentInfo{}, err
	}
	if !ok {
		return segmentInfo{}, ErrInfoElementMissing
	}

	scaleNs := uint64(defaultTimecodeScale)
	var durationRaw float64
	haveDuration := false
	ip := infoElem.Parser()
	for ip.HasMoreData() {
		elem, err := ip.ParseElement()
		if err != nil {
			return segmentInfo{}, err
		}
		switch elem.ID {
		case idTimecodeScale:
			if scaleNs, err = elem.Uint(); err != nil {
				return segmentInfo{}, &indexerr.ParseError{Container: "webm", Field: "TimecodeScale", Err: err}
			}
		case idDuration:
			if durationRaw, err = elem.Float(); err != nil {
				return segmentInfo{}, &indexerr.ParseError{Container: "webm", Field: "Duration", Err: err}
			}
			haveDuration = true
		}
	}
	if !haveDuration {
		return segmentInfo{}, ErrDurationElementMissing
	}

	scale := float64(scaleNs) / 1e9
	return segmentInfo{
		offset:   seg.Offset(),
		scale:    scale,
		duration: durationRaw * scale,
	}, nil
}

func parseCues(index []byte) ([]cuePoint, error) {
	p := ebml.NewParser(index)
	cuesElem, err := p.ParseElement()
	if err != nil {
		return nil, err
	}
	if cuesElem.ID != idCues {
		return nil, fmt.Errorf("top element %#x: %w", cuesElem.ID, ErrCuesElementMissing)
	}

	var cues []cuePoint
	cp := cuesElem.Parser()
	for cp.HasMoreData() {
		elem, err := cp.ParseElement()
		if err != nil {
			return nil, err
		}
		if elem.ID != idCuePoint {
			continue
		}
		cue, err := parseCuePoint(elem)
		if err != nil {
			return nil, fmt.Errorf("cue point %d: %w", len(cues), err)
		}
		cues = append(cues, cue)
	}
	return cues, nil
}

func parseCuePoint(elem ebml.Element) (cuePoint, error) {
	var (
		cue          cuePoint
		timeElem     ebml.Element
		posElem      ebml.Element
		havePos      bool
		haveTimeElem bool
	)
	p := elem.Parser()
	for p.HasMoreData() {
		child, err := p.ParseElement()
		if err != nil {
			return cuePoint{}, err
		}
		switch child.ID {
		case idCueTime:
			timeElem, haveTimeElem = child, true
		case idCueTrackPositions:
			if !havePos {
				posElem, havePos = child, true
			}
		}
	}
	if !haveTimeElem {
		return cuePoint{}, ErrCueTimeElementMissing
	}
	if !havePos {
		return cuePoint{}, ErrCueTrackPositionsElementMissing
	}

	var err error
	if cue.time, err = timeElem.Uint(); err != nil {
		return cuePoint{}, &indexerr.ParseError{Container: "webm", Field: "CueTime", Err: err}
	}

	pp := posElem.Parser()
	for pp.HasMoreData() {
		child, err := pp.ParseElement()
		if err != nil {
			return cuePoint{}, err
		}
		switch child.ID {
		case idCueClusterPosition:
			if cue.offset, err = child.Uint(); err != nil {
				return cuePoint{}, &indexerr.ParseError{Container: "webm", Field: "CueClusterPosition", Err: err}
			}
		case idCueReference:
			return cuePoint{}, ErrTypeNotSupported
		}
	}
	return cue, nil
}
