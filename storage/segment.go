package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/streamstore/logengine/codec"
	"github.com/streamstore/logengine/types"
)

const segmentVersion = 1

// Segment is C6: the bundle of appender, index, and metadata covering a
// contiguous offset range written in one term. Exactly one segment per
// segment set is active (appendable); the rest are sealed (read-only).
type Segment struct {
	mu sync.RWMutex

	dir        string
	baseOffset uint64
	term       uint64
	version    int

	maxOffset      uint64
	dirtyOffset    uint64
	committed      atomic.Uint64
	firstTS, maxTS int64

	sealed bool

	appender *Appender
	index    *Index

	file fileHandle

	refCount atomic.Int32

	committedOffsetFunc func() uint64
	onFlush             func(sizeBytes int64)

	cfg types.Configuration
}

func segmentPath(dir string, baseOffset, term uint64, version int) string {
	return filepath.Join(dir, fmt.Sprintf("%020d-%d-v%d.log", baseOffset, term, version))
}

func offsetIndexPath(logPath string) string {
	return logPath[:len(logPath)-len(".log")] + ".offset_index"
}

func timeIndexPath(logPath string) string {
	return logPath[:len(logPath)-len(".log")] + ".time_index"
}

// CreateSegment creates a brand new active segment at baseOffset/term in dir.
// onFlush, if non-nil, is the segment-size notification callback of §4.3,
// threaded through to the segment's Appender and preserved across any later
// reopenWritable.
func CreateSegment(dir string, baseOffset, term uint64, cfg types.Configuration, committedOffsetFunc func() uint64, onFlush func(int64)) (*Segment, error) {
	path := segmentPath(dir, baseOffset, term, segmentVersion)
	file, err := openFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644, cfg)
	if err != nil {
		return nil, fmt.Errorf("segment: create %s: %w", path, err)
	}
	seg := &Segment{
		dir:                 dir,
		baseOffset:          baseOffset,
		term:                term,
		version:             segmentVersion,
		maxOffset:           baseOffset - 1,
		dirtyOffset:         baseOffset - 1,
		firstTS:             types.NoTimestamp,
		maxTS:               types.NoTimestamp,
		file:                file,
		index:               NewIndex(offsetIndexPath(path), timeIndexPath(path), baseOffset, cfg.IndexStep),
		committedOffsetFunc: committedOffsetFunc,
		onFlush:             onFlush,
		cfg:                 cfg,
	}
	appender, err := NewAppender(file, cfg.MaxBytesInWriterCache, cfg.WriterFlushPeriod, onFlush)
	if err != nil {
		file.Close()
		return nil, err
	}
	seg.appender = appender
	return seg, nil
}

// OpenSealedSegment opens an existing, sealed segment file read-only and
// loads (or, if absent/corrupt, schedules rebuild of) its indices.
func OpenSealedSegment(dir string, path string, baseOffset, term uint64, version int, cfg types.Configuration) (*Segment, error) {
	file, err := openFile(path, os.O_RDONLY, 0644, cfg)
	if err != nil {
		return nil, fmt.Errorf("segment: open %s: %w", path, err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("segment: stat %s: %w", path, err)
	}
	seg := &Segment{
		dir:        dir,
		baseOffset: baseOffset,
		term:       term,
		version:    version,
		firstTS:    types.NoTimestamp,
		maxTS:      types.NoTimestamp,
		sealed:     true,
		file:       file,
		index:      NewIndex(offsetIndexPath(path), timeIndexPath(path), baseOffset, cfg.IndexStep),
		cfg:        cfg,
	}
	seg.committed.Store(baseOffset - 1)
	if err := seg.index.Load(); err != nil {
		file.Close()
		return nil, err
	}
	if err := seg.scanToEstablishMetadata(stat.Size()); err != nil {
		file.Close()
		return nil, err
	}
	return seg, nil
}

// scanToEstablishMetadata walks the whole segment once at open time to
// learn max offset / timestamps, and rebuilds the index if Load left it
// empty (missing or corrupt side files, §4.5).
func (s *Segment) scanToEstablishMetadata(size int64) error {
	rebuild := len(s.index.offsets) == 0
	if rebuild {
		s.index.Reset()
	}
	r := NewReader(s.file, 0, int(s.cfg.DefaultReadBufferSize), func() int64 { return size }, nil)
	for {
		h, hpos, ok, err := r.NextHeader()
		if err != nil {
			return fmt.Errorf("segment: scan %s: %w", s.file.Name(), err)
		}
		if !ok {
			break
		}
		r.SkipBody(h)
		s.maxOffset = h.LastOffset()
		s.dirtyOffset = h.LastOffset()
		s.observeTimestamps(h.FirstTimestamp, h.MaxTimestamp)
		if rebuild {
			s.index.ForceSample(uint32(h.BaseOffset-s.baseOffset), uint32(hpos), h.MaxTimestamp)
		}
	}
	s.committed.Store(s.dirtyOffset)
	return nil
}

func (s *Segment) observeTimestamps(first, max int64) {
	if s.firstTS == types.NoTimestamp {
		s.firstTS = first
	}
	if max > s.maxTS {
		s.maxTS = max
	}
}

func (s *Segment) BaseOffset() uint64 { s.mu.RLock(); defer s.mu.RUnlock(); return s.baseOffset }
func (s *Segment) Term() uint64       { s.mu.RLock(); defer s.mu.RUnlock(); return s.term }

func (s *Segment) MaxOffset() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxOffset
}

func (s *Segment) DirtyOffset() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirtyOffset
}

func (s *Segment) CommittedOffset() uint64 { return s.committed.Load() }

// MaxTimestamp returns the greatest batch max_timestamp observed in the
// segment, or types.NoTimestamp if the segment is empty.
func (s *Segment) MaxTimestamp() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxTS
}

func (s *Segment) Sealed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sealed
}

// Size is the appender's dirty byte size (cache + written), or the file's
// stat size for a sealed segment.
func (s *Segment) Size() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.appender != nil {
		return s.appender.Size()
	}
	stat, err := s.file.Stat()
	if err != nil {
		return 0
	}
	return stat.Size()
}

// Acquire/Release implement the shared-reference counting of §3's ownership
// rule: a reader returned to a caller holds a reference that blocks deletion.
func (s *Segment) Acquire()    { s.refCount.Add(1) }
func (s *Segment) Release()    { s.refCount.Add(-1) }
func (s *Segment) InUse() bool { return s.refCount.Load() > 0 }

// Append encodes and writes rb, assigning no offsets itself — the caller
// (Log) has already stamped rb.BaseOffset/LastOffsetDelta. It returns the
// file position the batch was written at, for indexing.
func (s *Segment) Append(rb types.RecordBatch) (position int64, err error) {
	s.mu.Lock()
	if s.sealed {
		s.mu.Unlock()
		return 0, fmt.Errorf("segment: append to sealed segment: %w", types.ErrInvalidArgument)
	}
	position = s.appender.Size()
	buf := codec.EncodeBatch(rb)
	s.mu.Unlock()

	for _, chunk := range buf.Chunks() {
		if _, err := s.appender.Append(chunk); err != nil {
			return 0, err
		}
	}

	s.mu.Lock()
	s.dirtyOffset = rb.LastOffset()
	s.maxOffset = rb.LastOffset()
	s.observeTimestamps(rb.FirstTimestamp, rb.MaxTimestamp)
	s.mu.Unlock()

	s.index.MaybeSample(uint32(rb.BaseOffset-s.baseOffset), uint32(position), rb.MaxTimestamp, int64(buf.Size()))
	return position, nil
}

// Flush durably persists every append so far and advances the committed
// offset watermark.
func (s *Segment) Flush() error {
	s.mu.RLock()
	appender := s.appender
	s.mu.RUnlock()
	if appender == nil {
		return nil
	}
	if err := appender.Flush(); err != nil {
		return err
	}
	s.mu.RLock()
	dirty := s.dirtyOffset
	s.mu.RUnlock()
	s.committed.Store(dirty)
	return nil
}

// Seal flushes, persists the index, marks the segment read-only, closes the
// appender together with the read-write file handle it writes through, and
// reopens the file read-only so readers can still use it.
func (s *Segment) Seal() error {
	if err := s.Flush(); err != nil {
		return err
	}
	if err := s.index.Flush(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appender != nil {
		path := s.file.Name()
		if err := s.appender.Close(); err != nil {
			return err
		}
		s.appender = nil
		file, err := openFile(path, os.O_RDONLY, 0644, s.cfg)
		if err != nil {
			return fmt.Errorf("segment: reopen %s read-only: %w", path, err)
		}
		s.file = file
	}
	s.sealed = true
	return nil
}

// ReaderFromPosition builds a Reader starting at an absolute file position.
func (s *Segment) ReaderFromPosition(pos int64, bufSize int) *Reader {
	return NewReader(s.file, pos, bufSize, s.sizeNow, s.committedCeiling)
}

// ReaderFromOffset builds a Reader positioned at or before offset, using
// the sparse index to skip straight to the nearest sample.
func (s *Segment) ReaderFromOffset(offset uint64, bufSize int) *Reader {
	pos, found := s.index.FindPosition(offset)
	start := int64(0)
	if found {
		start = int64(pos)
	}
	return s.ReaderFromPosition(start, bufSize)
}

func (s *Segment) sizeNow() int64 {
	return s.Size()
}

func (s *Segment) committedCeiling() uint64 {
	if s.committedOffsetFunc != nil {
		return s.committedOffsetFunc()
	}
	return s.CommittedOffset()
}

// Truncate discards every batch with base_offset >= atOffset: it scans for
// the exact file position of that batch, truncates the underlying file
// there, and rewrites the index tail (§4.6).
func (s *Segment) Truncate(atOffset uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if atOffset <= s.baseOffset {
		return fmt.Errorf("segment: truncate at %d at or below base %d: %w", atOffset, s.baseOffset, types.ErrInvalidArgument)
	}
	if err := s.appender.Flush(); err != nil {
		return err
	}
	r := NewReader(s.file, 0, int(s.cfg.DefaultReadBufferSize), func() int64 { return s.appender.Size() }, nil)
	var cutPos int64 = -1
	newDirty := s.baseOffset - 1
	var newMaxTS int64 = types.NoTimestamp
	for {
		h, pos, ok, err := r.NextHeader()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if h.BaseOffset >= atOffset {
			cutPos = pos
			break
		}
		r.SkipBody(h)
		newDirty = h.LastOffset()
		if h.MaxTimestamp > newMaxTS {
			newMaxTS = h.MaxTimestamp
		}
	}
	if cutPos < 0 {
		return nil // atOffset is past the end; nothing to cut
	}
	if err := s.file.Truncate(cutPos); err != nil {
		return fmt.Errorf("segment: truncate file %s: %w", s.file.Name(), err)
	}
	s.dirtyOffset = newDirty
	s.maxOffset = newDirty
	s.maxTS = newMaxTS
	s.committed.Store(newDirty)
	s.index.TruncateAfter(atOffset)
	return s.index.Flush()
}

// reopenWritable upgrades a sealed segment's read-only file handle to
// read-write and rebuilds its appender, so TruncateSuffix can modify it in
// place. The caller re-seals afterward if the segment should stay sealed.
func (s *Segment) reopenWritable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.file.Name()
	s.file.Close()
	file, err := openFile(path, os.O_RDWR, 0644, s.cfg)
	if err != nil {
		return fmt.Errorf("segment: reopen %s writable: %w", path, err)
	}
	s.file = file
	appender, err := NewAppender(file, s.cfg.MaxBytesInWriterCache, 0, s.onFlush)
	if err != nil {
		return err
	}
	s.appender = appender
	s.sealed = false
	return nil
}

// Remove closes and deletes the segment's files from disk. The caller must
// ensure InUse() is false first.
func (s *Segment) Remove() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := s.file.Name()
	s.file.Close()
	if s.appender != nil {
		s.appender.Close()
	}
	var firstErr error
	for _, p := range []string{path, offsetIndexPath(path), timeIndexPath(path)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// RecoveryDeadline returns the time 30 seconds from now: a bound for an
// open-ended scan that gives up rather than block forever on a corrupt
// file. The scans in recovery.go run without it.
func RecoveryDeadline() time.Time { return time.Now().Add(30 * time.Second) }
