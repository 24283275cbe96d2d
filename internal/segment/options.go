package segment

// Options carries the per-stream values the index builders stamp onto
// every reference they produce.
type Options struct {
	URLFunc URLFunc
	Init    *InitReference

	// TimestampOffset is added to every container timestamp.
	TimestampOffset   float64
	AppendWindowStart float64
	AppendWindowEnd   float64
}

// NewReference returns a reference carrying the option fields.
func (o Options) NewReference(seq int, start, end float64, startByte, endByte int64) Reference {
	return Reference{
		Seq:               seq,
		StartTime:         start,
		EndTime:           end,
		StartByte:         startByte,
		EndByte:           endByte,
		Init:              o.Init,
		TimestampOffset:   o.TimestampOffset,
		AppendWindowStart: o.AppendWindowStart,
		AppendWindowEnd:   o.AppendWindowEnd,
		URLFunc:           o.URLFunc,
	}
}
