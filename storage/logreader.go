package storage

import (
	"fmt"
	"time"

	"github.com/streamstore/logengine/codec"
	"github.com/streamstore/logengine/types"
)

// LogReader is a Log-level read session: caller supplies (start_offset,
// max_bytes, deadline); it resolves the starting segment via the segment
// set, then yields batches in order until a termination condition from
// §4.8/§4.4 is hit. It holds a shared reference to whichever segment it is
// currently reading, releasing it as it steps across a segment boundary.
type LogReader struct {
	log *Log

	cur       *Segment
	segReader *Reader

	nextOffset uint64
	bytesRead  int
	maxBytes   int
	typeFilter types.BatchType
	deadline   time.Time

	closed bool
}

// MakeReader constructs a LogReader starting at startOffset. maxBytes <= 0
// means unbounded; typeFilter == 0 means every batch type is returned,
// otherwise only batches whose header Type matches are materialized and
// everything else is skipped via the zero-copy skip path; a zero deadline
// means no time budget.
func (l *Log) MakeReader(startOffset uint64, maxBytes int, typeFilter types.BatchType, deadline time.Time) (*LogReader, error) {
	if startOffset < l.startOffset.Load() {
		return nil, fmt.Errorf("log: read at %d below start_offset %d: %w", startOffset, l.startOffset.Load(), types.ErrOutOfRange)
	}
	return &LogReader{log: l, nextOffset: startOffset, maxBytes: maxBytes, typeFilter: typeFilter, deadline: deadline}, nil
}

// Next returns the next batch at or after the reader's current offset.
// ok is false at a clean stopping point (end of available data, byte
// budget exhausted, or deadline reached); err is non-nil only on an actual
// decode or I/O failure.
func (r *LogReader) Next() (types.RecordBatch, bool, error) {
	for {
		if r.closed {
			return types.RecordBatch{}, false, nil
		}
		if !r.deadline.IsZero() && time.Now().After(r.deadline) {
			return types.RecordBatch{}, false, nil
		}
		if r.maxBytes > 0 && r.bytesRead >= r.maxBytes {
			return types.RecordBatch{}, false, nil
		}

		if r.cur == nil {
			seg, ok := r.log.segments.Lookup(r.nextOffset)
			if !ok {
				return types.RecordBatch{}, false, nil
			}
			seg.Acquire()
			r.cur = seg
			r.segReader = seg.ReaderFromOffset(r.nextOffset, int(r.log.cfg.DefaultReadBufferSize))
		}

		h, _, ok, err := r.segReader.NextHeader()
		if err != nil {
			r.Close()
			return types.RecordBatch{}, false, err
		}
		if !ok {
			if !r.advanceSegment() {
				return types.RecordBatch{}, false, nil
			}
			continue
		}
		if h.LastOffset() < r.nextOffset {
			r.segReader.SkipBody(h)
			continue
		}
		if r.typeFilter != 0 && h.Type != r.typeFilter {
			r.segReader.SkipBody(h)
			r.nextOffset = h.LastOffset() + 1
			continue
		}

		segmentBase := r.cur.BaseOffset()
		if rb, ok := r.log.cache.get(segmentBase, h.BaseOffset); ok {
			r.segReader.SkipBody(h)
			r.nextOffset = rb.LastOffset() + 1
			r.bytesRead += codec.HeaderSize + h.BodySize()
			return rb, true, nil
		}

		rb, err := r.segReader.ReadBody(h)
		if err != nil {
			r.Close()
			return types.RecordBatch{}, false, err
		}
		r.log.cache.add(segmentBase, h.BaseOffset, rb)
		r.nextOffset = rb.LastOffset() + 1
		r.bytesRead += codec.HeaderSize + h.BodySize()
		return rb, true, nil
	}
}

func (r *LogReader) advanceSegment() bool {
	cur := r.cur
	next, ok := r.log.segments.NextAfter(cur.BaseOffset())
	cur.Release()
	r.cur = nil
	r.segReader = nil
	if !ok {
		return false
	}
	next.Acquire()
	r.cur = next
	r.segReader = next.ReaderFromPosition(0, int(r.log.cfg.DefaultReadBufferSize))
	return true
}

// Close releases the reader's hold on whatever segment it's currently
// visiting. Idempotent.
func (r *LogReader) Close() {
	if r.cur != nil {
		r.cur.Release()
		r.cur = nil
	}
	r.closed = true
}
