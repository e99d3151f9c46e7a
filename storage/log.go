package storage

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/streamstore/logengine/logging"
	"github.com/streamstore/logengine/types"
)

// AppendResult is returned from a successful Append (§4.8).
type AppendResult struct {
	BaseOffset uint64
	LastOffset uint64
	ByteSize   int
	AppendTime time.Time
}

// Offsets is the Log's offset bookkeeping snapshot (§3).
type Offsets struct {
	StartOffset     uint64
	DirtyOffset     uint64
	CommittedOffset uint64
}

// Log is C8: one partition's segment set plus term, start offset, committed
// offset, and optional collectible offset. Log exclusively owns its
// segments; the op_lock/reader-token discipline of §5 is implemented by
// opMu (serializes append/flush/truncate/truncate_prefix/roll/compact) and
// each Segment's own refcount (the reader token, which blocks deletion of
// a segment but never blocks append).
type Log struct {
	ntp types.NTP
	cfg types.Configuration
	dir string

	opMu sync.Mutex

	segments *SegmentSet

	term atomic.Uint64

	startOffset     atomic.Uint64
	dirtyOffset     atomic.Uint64
	committedOffset atomic.Uint64

	collectibleOffset atomic.Int64 // -1 means "no bound"

	events chan Event
	cache  *batchCache

	closed atomic.Bool
}

// NewLog creates a fresh, empty Log rooted at dir with no segments yet —
// the first Append will create the initial active segment.
func NewLog(ntp types.NTP, dir string, cfg types.Configuration) *Log {
	l := &Log{
		ntp:      ntp,
		cfg:      cfg,
		dir:      dir,
		segments: NewSegmentSet(),
		events:   make(chan Event, 64),
		cache:    newBatchCache(cfg.BatchCacheSize),
	}
	l.startOffset.Store(0)
	l.dirtyOffset.Store(^uint64(0)) // -1: empty log, next append starts at 0
	l.committedOffset.Store(^uint64(0))
	l.collectibleOffset.Store(-1)
	return l
}

func (l *Log) NTP() types.NTP { return l.ntp }

func (l *Log) Offsets() Offsets {
	return Offsets{
		StartOffset:     l.startOffset.Load(),
		DirtyOffset:     l.dirtyOffset.Load(),
		CommittedOffset: l.committedOffset.Load(),
	}
}

func (l *Log) SetTerm(term uint64) { l.term.Store(term) }
func (l *Log) Term() uint64        { return l.term.Load() }

// SetCollectibleOffset sets the externally supplied safety bound the
// compactor/retention may not cross (§4.11).
func (l *Log) SetCollectibleOffset(offset uint64) { l.collectibleOffset.Store(int64(offset)) }

func (l *Log) collectible() (uint64, bool) {
	v := l.collectibleOffset.Load()
	if v < 0 {
		return 0, false
	}
	return uint64(v), true
}

// CollectibleOffset returns the externally supplied compaction/retention
// safety bound, if one has been set.
func (l *Log) CollectibleOffset() (uint64, bool) { return l.collectible() }

func (l *Log) activeSegment() (*Segment, bool) {
	seg, ok := l.segments.Last()
	if !ok || seg.Sealed() {
		return nil, false
	}
	return seg, true
}

// shouldRoll decides whether a new active segment must be created before
// writing rb, per §4.8's three roll triggers.
func (l *Log) shouldRoll(active *Segment, incomingTerm uint64) bool {
	if active == nil {
		return true
	}
	if active.Size() >= l.cfg.MaxSegmentSize {
		return true
	}
	if active.Term() != incomingTerm {
		return true
	}
	if l.cfg.MaxRecordsPerSegment > 0 {
		written := active.DirtyOffset() - active.BaseOffset() + 1
		if int64(written) >= l.cfg.MaxRecordsPerSegment {
			return true
		}
	}
	return false
}

func (l *Log) roll(nextBaseOffset uint64) (*Segment, error) {
	if active, ok := l.activeSegment(); ok {
		if err := active.Seal(); err != nil {
			return nil, fmt.Errorf("log: seal active segment before roll: %w", err)
		}
		l.emit(Event{Kind: SegmentSealed, BaseOffset: active.BaseOffset(), SizeBytes: active.Size()})
	}
	term := l.term.Load()
	onFlush := func(sizeBytes int64) {
		l.emit(Event{Kind: SegmentFlushed, BaseOffset: nextBaseOffset, SizeBytes: sizeBytes})
	}
	seg, err := CreateSegment(l.dir, nextBaseOffset, term, l.cfg, l.committedOffset.Load, onFlush)
	if err != nil {
		return nil, fmt.Errorf("log: roll: %w", err)
	}
	l.segments.Insert(seg)
	l.emit(Event{Kind: SegmentCreated, BaseOffset: nextBaseOffset})
	return seg, nil
}

// Append is totally ordered with respect to other op_lock operations: the
// batch is assigned base_offset = dirty_offset+1, rolled into a fresh
// segment if needed, and written to the active segment's appender.
func (l *Log) Append(rb types.RecordBatch) (AppendResult, error) {
	l.opMu.Lock()
	defer l.opMu.Unlock()
	if l.closed.Load() {
		return AppendResult{}, fmt.Errorf("log: append to %s: %w", l.ntp, types.ErrAlreadyClosed)
	}

	baseOffset := l.dirtyOffset.Load() + 1
	rb.BaseOffset = baseOffset
	if rb.RecordCount > 0 {
		rb.LastOffsetDelta = rb.RecordCount - 1
	} else {
		rb.LastOffsetDelta = 0
	}
	term := l.term.Load()

	active, ok := l.activeSegment()
	if !ok || l.shouldRoll(active, term) {
		var err error
		active, err = l.roll(baseOffset)
		if err != nil {
			return AppendResult{}, err
		}
	}

	sizeBefore := active.Size()
	if _, err := active.Append(rb); err != nil {
		return AppendResult{}, fmt.Errorf("log: append to segment base %d: %w", active.BaseOffset(), err)
	}
	l.dirtyOffset.Store(rb.LastOffset())

	return AppendResult{
		BaseOffset: rb.BaseOffset,
		LastOffset: rb.LastOffset(),
		ByteSize:   int(active.Size() - sizeBefore),
		AppendTime: time.Now(),
	}, nil
}

// Flush makes every append so far durable and advances committed_offset.
func (l *Log) Flush() error {
	l.opMu.Lock()
	defer l.opMu.Unlock()
	active, ok := l.activeSegment()
	if !ok {
		return nil
	}
	if err := active.Flush(); err != nil {
		return err
	}
	l.committedOffset.Store(l.dirtyOffset.Load())
	return nil
}

// TruncateSuffix discards every batch with base_offset >= atOffset. Per the
// decision recorded in the design ledger: atOffset == start_offset clears
// the whole log (every segment dropped), read as "truncate back to before
// anything was ever written".
func (l *Log) TruncateSuffix(atOffset uint64) error {
	l.opMu.Lock()
	defer l.opMu.Unlock()
	start := l.startOffset.Load()
	if atOffset <= start {
		segs := l.segments.All()
		for _, seg := range segs {
			l.segments.Remove(seg)
			if err := seg.Remove(); err != nil {
				logging.Error("log: truncate-to-start: remove segment base %d: %v", seg.BaseOffset(), err)
			}
		}
		l.dirtyOffset.Store(start - 1)
		l.committedOffset.Store(start - 1)
		return nil
	}

	segs := l.segments.All()
	for i := len(segs) - 1; i >= 0; i-- {
		seg := segs[i]
		if seg.BaseOffset() >= atOffset {
			l.segments.Remove(seg)
			if err := seg.Remove(); err != nil {
				logging.Error("log: truncate: remove segment base %d: %v", seg.BaseOffset(), err)
			}
			continue
		}
		if seg.MaxOffset() >= atOffset {
			wasSealed := seg.Sealed()
			if wasSealed {
				if err := l.reopenForTruncate(seg); err != nil {
					return err
				}
			}
			if err := seg.Truncate(atOffset); err != nil {
				return fmt.Errorf("log: truncate segment base %d: %w", seg.BaseOffset(), err)
			}
			if wasSealed {
				if err := seg.Seal(); err != nil {
					return fmt.Errorf("log: reseal segment base %d after truncate: %w", seg.BaseOffset(), err)
				}
			}
		}
		break
	}

	if last, ok := l.segments.Last(); ok {
		l.dirtyOffset.Store(last.DirtyOffset())
		l.committedOffset.Store(last.DirtyOffset())
	} else {
		l.dirtyOffset.Store(start - 1)
		l.committedOffset.Store(start - 1)
	}
	return nil
}

// reopenForTruncate gives a sealed segment a read-write file handle and an
// appender, since sealed segments are opened O_RDONLY and truncating the
// file in place needs a writable handle. TruncateSuffix reseals the
// segment after Segment.Truncate.
func (l *Log) reopenForTruncate(seg *Segment) error {
	return seg.reopenWritable()
}

// TruncatePrefix advances start_offset, deleting whole segments whose
// max_offset < atOffset. It does not rewrite the segment straddling
// atOffset (§4.9): reads below the new start_offset simply become invalid.
func (l *Log) TruncatePrefix(atOffset uint64) error {
	l.opMu.Lock()
	defer l.opMu.Unlock()
	for {
		first, ok := l.segments.First()
		if !ok || l.segments.Len() <= 1 {
			break
		}
		if first.MaxOffset() >= atOffset {
			break
		}
		if first.InUse() {
			break
		}
		l.segments.PopFront()
		if err := first.Remove(); err != nil {
			return fmt.Errorf("log: truncate_prefix: remove segment base %d: %w", first.BaseOffset(), err)
		}
		l.emit(Event{Kind: SegmentRemoved, BaseOffset: first.BaseOffset()})
	}
	if atOffset > l.startOffset.Load() {
		l.startOffset.Store(atOffset)
	}
	return nil
}

// Close seals the active segment (if any) and closes every sealed segment's
// file handle.
func (l *Log) Close() error {
	l.opMu.Lock()
	defer l.opMu.Unlock()
	if l.closed.Swap(true) {
		return nil
	}
	for _, seg := range l.segments.All() {
		if !seg.Sealed() {
			if err := seg.Seal(); err != nil {
				return err
			}
		}
		seg.file.Close()
	}
	return nil
}

func (l *Log) SegmentCount() int { return l.segments.Len() }

// Roll forces a new active segment to start at the next offset, even if no
// roll trigger has fired yet. Exposed for operator tooling (logctl roll).
func (l *Log) Roll() error {
	l.opMu.Lock()
	defer l.opMu.Unlock()
	if l.closed.Load() {
		return fmt.Errorf("log: roll %s: %w", l.ntp, types.ErrAlreadyClosed)
	}
	if _, ok := l.activeSegment(); !ok {
		return nil
	}
	_, err := l.roll(l.dirtyOffset.Load() + 1)
	return err
}
