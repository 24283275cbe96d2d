package segment

import (
	"fmt"
	"sort"

	"github.com/zsiec/vodindex/internal/indexerr"
)

// Errors returned by Validate.
var (
	ErrTimeGap       = indexerr.Wrap(indexerr.ErrMalformedContainer, "segment: references are not contiguous in time")
	ErrByteOverlap   = indexerr.Wrap(indexerr.ErrMalformedContainer, "segment: byte ranges overlap or are not increasing")
	ErrOpenNotLast   = indexerr.Wrap(indexerr.ErrMalformedContainer, "segment: open-ended reference before the last")
	ErrNegativeRange = indexerr.Wrap(indexerr.ErrMalformedContainer, "segment: reference ends before it starts")
)

// Index is the time-ordered list of references for one stream. It is
// immutable once built and safe for concurrent reads.
type Index struct {
	refs []Reference
}

// NewIndex wraps refs, which must already be in presentation order.
func NewIndex(refs []Reference) *Index {
	return &Index{refs: refs}
}

// Len returns the number of references.
func (ix *Index) Len() int {
	return len(ix.refs)
}

// Get returns the reference at position i.
func (ix *Index) Get(i int) (Reference, bool) {
	if i < 0 || i >= len(ix.refs) {
		return Reference{}, false
	}
	return ix.refs[i], true
}

// References returns a copy of the reference list.
func (ix *Index) References() []Reference {
	out := make([]Reference, len(ix.refs))
	copy(out, ix.refs)
	return out
}

// Find returns the position of the reference containing t. A time before
// the first reference maps to the first one; a time at or past the end of
// the last reference is not found.
func (ix *Index) Find(t float64) (int, bool) {
	n := len(ix.refs)
	if n == 0 || t >= ix.refs[n-1].EndTime {
		return 0, false
	}
	i := sort.Search(n, func(i int) bool { return ix.refs[i].StartTime > t })
	if i == 0 {
		return 0, true
	}
	return i - 1, true
}

// Validate checks that consecutive references share their time boundary
// and that byte ranges are non-overlapping and increasing, with only the
// last reference allowed an open end.
func (ix *Index) Validate() error {
	for i, r := range ix.refs {
		if r.EndTime < r.StartTime {
			return fmt.Errorf("reference %d [%v, %v): %w", i, r.StartTime, r.EndTime, ErrNegativeRange)
		}
		if r.IsOpenEnded() {
			if i != len(ix.refs)-1 {
				return fmt.Errorf("reference %d: %w", i, ErrOpenNotLast)
			}
		} else if r.EndByte < r.StartByte {
			return fmt.Errorf("reference %d bytes [%d, %d]: %w", i, r.StartByte, r.EndByte, ErrNegativeRange)
		}
		if i == 0 {
			continue
		}
		prev := ix.refs[i-1]
		if prev.EndTime != r.StartTime {
			return fmt.Errorf("reference %d ends at %v, %d starts at %v: %w", i-1, prev.EndTime, i, r.StartTime, ErrTimeGap)
		}
		if r.StartByte <= prev.EndByte {
			return fmt.Errorf("reference %d ends at byte %d, %d starts at %d: %w", i-1, prev.EndByte, i, r.StartByte, ErrByteOverlap)
		}
	}
	return nil
}
