package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/streamstore/logengine/logging"
	"github.com/streamstore/logengine/types"
	"github.com/streamstore/logengine/utils"
)

type segmentMeta struct {
	baseOffset uint64
	term       uint64
	version    int
	path       string
}

func discoverSegments(dir string) ([]segmentMeta, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var metas []segmentMeta
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".log") {
			continue
		}
		var baseOffset, term uint64
		var version int
		if _, err := fmt.Sscanf(e.Name(), "%d-%d-v%d.log", &baseOffset, &term, &version); err != nil {
			logging.Warn("recovery: skipping unrecognized segment file %s: %v", e.Name(), err)
			continue
		}
		metas = append(metas, segmentMeta{baseOffset, term, version, filepath.Join(dir, e.Name())})
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].baseOffset < metas[j].baseOffset })
	return metas, nil
}

// RecoverLog opens every segment under dir for ntp, recovering the tail of
// the last one (§4.10). Earlier segments are sealed and assumed immutable;
// only the last is scanned and repaired.
func RecoverLog(dir string, ntp types.NTP, cfg types.Configuration) (*Log, error) {
	if err := utils.EnsurePath(dir, true); err != nil {
		return nil, fmt.Errorf("recovery: mkdir %s: %w", dir, err)
	}
	metas, err := discoverSegments(dir)
	if err != nil {
		return nil, fmt.Errorf("recovery: list %s: %w", dir, err)
	}

	l := NewLog(ntp, dir, cfg)
	for i, m := range metas {
		isLast := i == len(metas)-1
		if !isLast {
			seg, err := OpenSealedSegment(dir, m.path, m.baseOffset, m.term, m.version, cfg)
			if err != nil {
				return nil, fmt.Errorf("recovery: open sealed segment %s: %w", m.path, err)
			}
			l.segments.Insert(seg)
			continue
		}
		onFlush := func(sizeBytes int64) {
			l.emit(Event{Kind: SegmentFlushed, BaseOffset: m.baseOffset, SizeBytes: sizeBytes})
		}
		seg, err := recoverLastSegment(m.path, m.baseOffset, m.term, m.version, cfg, onFlush)
		if err != nil {
			return nil, fmt.Errorf("recovery: repair last segment %s: %w", m.path, err)
		}
		if seg == nil {
			continue
		}
		seg.committedOffsetFunc = l.committedOffset.Load
		l.segments.Insert(seg)
	}

	if first, ok := l.segments.First(); ok {
		l.startOffset.Store(first.BaseOffset())
	}
	if last, ok := l.segments.Last(); ok {
		l.dirtyOffset.Store(last.DirtyOffset())
		l.committedOffset.Store(last.DirtyOffset())
		l.term.Store(last.Term())
	}
	return l, nil
}

// recoverLastSegment rescans a segment from the beginning, stopping at the
// first batch that fails header or body validation — the boundary between
// valid data and torn-write garbage. It truncates the file to that
// boundary and rebuilds the index from the scan (cheaper to rebuild than
// to trust a possibly-stale index against data we're about to cut).
//
// A nil Segment return (with nil error) means the file was entirely
// invalid and empty, and has been deleted — the base offset is free for
// the next segment created at that position. If the file was entirely
// invalid but non-empty, it is quarantined by renaming it to
// "<name>.cannotrecover" rather than silently discarding its bytes, and a
// nil Segment is likewise returned so the caller treats the partition as
// having no active segment until an operator intervenes.
func recoverLastSegment(path string, baseOffset, term uint64, version int, cfg types.Configuration, onFlush func(int64)) (*Segment, error) {
	file, err := openFile(path, os.O_RDWR, 0644, cfg)
	if err != nil {
		return nil, fmt.Errorf("recovery: open %s: %w", path, err)
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("recovery: stat %s: %w", path, err)
	}
	size := stat.Size()

	seg := &Segment{
		baseOffset: baseOffset,
		term:       term,
		version:    version,
		firstTS:    types.NoTimestamp,
		maxTS:      types.NoTimestamp,
		file:       file,
		index:      NewIndex(offsetIndexPath(path), timeIndexPath(path), baseOffset, cfg.IndexStep),
		onFlush:    onFlush,
		cfg:        cfg,
	}

	r := NewReader(file, 0, int(cfg.DefaultReadBufferSize), func() int64 { return size }, nil)
	var validEnd int64
	dirty := baseOffset - 1
	maxTS := int64(types.NoTimestamp)
	for {
		h, pos, ok, err := r.NextHeader()
		if err != nil {
			logging.Warn("recovery: %s: stopping scan at byte %d: %v", path, pos, err)
			break
		}
		if !ok {
			break
		}
		rb, err := r.ReadBody(h)
		if err != nil {
			logging.Warn("recovery: %s: stopping scan at byte %d: %v", path, pos, err)
			break
		}
		validEnd = r.Position()
		dirty = rb.LastOffset()
		if rb.MaxTimestamp > maxTS {
			maxTS = rb.MaxTimestamp
		}
		seg.index.ForceSample(uint32(rb.BaseOffset-baseOffset), uint32(pos), rb.MaxTimestamp)
	}

	if validEnd < size {
		logging.Warn("recovery: %s: discarding %d bytes of tail garbage", path, size-validEnd)
	}
	if validEnd == 0 && size == 0 {
		file.Close()
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("recovery: remove empty invalid segment %s: %w", path, err)
		}
		os.Remove(offsetIndexPath(path))
		os.Remove(timeIndexPath(path))
		return nil, nil
	}
	if validEnd == 0 && size > 0 {
		file.Close()
		quarantined := path + ".cannotrecover"
		if err := os.Rename(path, quarantined); err != nil {
			return nil, fmt.Errorf("recovery: quarantine %s: %w", path, err)
		}
		os.Remove(offsetIndexPath(path))
		os.Remove(timeIndexPath(path))
		logging.Error("recovery: %s contains no valid batches and %d bytes of unreadable data; quarantined as %s, operator intervention required", path, size, quarantined)
		return nil, nil
	}
	if err := file.Truncate(validEnd); err != nil {
		file.Close()
		return nil, fmt.Errorf("recovery: truncate %s to %d: %w", path, validEnd, err)
	}

	seg.maxOffset = dirty
	seg.dirtyOffset = dirty
	seg.maxTS = maxTS
	seg.committed.Store(dirty)

	appender, err := NewAppender(file, cfg.MaxBytesInWriterCache, cfg.WriterFlushPeriod, onFlush)
	if err != nil {
		file.Close()
		return nil, err
	}
	seg.appender = appender
	if err := seg.index.Flush(); err != nil {
		return nil, err
	}
	return seg, nil
}
