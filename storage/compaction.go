package storage

import (
	"fmt"
	"os"
	"time"

	"github.com/streamstore/logengine/codec"
	"github.com/streamstore/logengine/compress"
	"github.com/streamstore/logengine/logging"
	"github.com/streamstore/logengine/types"
)

// ApplyRetention drops whole sealed segments from the head of the log per
// §4.11's time/size rules, respecting the collectible-offset safety bound
// and any in-flight readers. It never touches the active segment.
func (l *Log) ApplyRetention() (dropped int, err error) {
	l.opMu.Lock()
	defer l.opMu.Unlock()
	if !l.cfg.CleanupPolicy.HasDelete() {
		return 0, nil
	}
	collectible, hasCollectible := l.collectible()
	now := time.Now()

	for {
		segs := l.segments.All()
		if len(segs) <= 1 {
			break
		}
		oldest := segs[0]
		if !oldest.Sealed() || oldest.InUse() {
			break
		}
		if hasCollectible && oldest.MaxOffset() > collectible {
			break
		}

		var cumulative int64
		for _, s := range segs {
			cumulative += s.Size()
		}

		timeExpired := false
		if l.cfg.RetentionTime != nil && *l.cfg.RetentionTime >= 0 {
			maxTS := oldest.MaxTimestamp()
			if maxTS != types.NoTimestamp {
				cutoff := now.Add(-*l.cfg.RetentionTime).UnixMilli()
				timeExpired = maxTS < cutoff
			}
		}
		sizeExceeded := l.cfg.RetentionBytes != nil && *l.cfg.RetentionBytes >= 0 && cumulative > *l.cfg.RetentionBytes
		if !timeExpired && !sizeExceeded {
			break
		}

		l.segments.PopFront()
		if err := oldest.Remove(); err != nil {
			return dropped, fmt.Errorf("log: retention: remove segment base %d: %w", oldest.BaseOffset(), err)
		}
		l.emit(Event{Kind: SegmentRemoved, BaseOffset: oldest.BaseOffset()})
		dropped++
	}

	if first, ok := l.segments.First(); ok && first.BaseOffset() > l.startOffset.Load() {
		l.startOffset.Store(first.BaseOffset())
	}
	return dropped, nil
}

// Compact rewrites every eligible sealed segment, keeping only the latest
// record per key (§4.11). Offsets are preserved exactly — a compacted
// segment has gaps where dropped records used to be, never renumbering.
func (l *Log) Compact() (compacted int, err error) {
	l.opMu.Lock()
	defer l.opMu.Unlock()
	if !l.cfg.CleanupPolicy.HasCompact() {
		return 0, nil
	}
	collectible, hasCollectible := l.collectible()
	for _, seg := range l.segments.All() {
		if !seg.Sealed() || seg.InUse() {
			continue
		}
		if hasCollectible && seg.MaxOffset() > collectible {
			continue
		}
		changed, err := l.compactSegment(seg)
		if err != nil {
			return compacted, fmt.Errorf("log: compact segment base %d: %w", seg.BaseOffset(), err)
		}
		if changed {
			compacted++
			l.cache.purgeSegment(seg.BaseOffset())
		}
	}
	return compacted, nil
}

type decodedRecord struct {
	absOffset uint64
	timestamp int64
	producer  codec.Header
	rec       types.Record
}

// compactSegment finds the winning (greatest-offset) record per key across
// the segment, then rewrites the segment keeping only winners plus every
// keyless record, each re-encoded as its own single-record batch so its
// original absolute offset survives untouched.
func (l *Log) compactSegment(seg *Segment) (bool, error) {
	path := seg.file.Name()
	size := seg.Size()

	winner := map[string]uint64{}
	var all []decodedRecord

	scan := NewReader(seg.file, 0, int(l.cfg.DefaultReadBufferSize), func() int64 { return size }, nil)
	for {
		h, _, ok, err := scan.NextHeader()
		if err != nil {
			return false, err
		}
		if !ok {
			break
		}
		rb, err := scan.ReadBody(h)
		if err != nil {
			return false, err
		}
		records, err := decompressRecords(h, rb)
		if err != nil {
			return false, err
		}
		for _, rec := range records {
			abs := rb.BaseOffset + uint64(rec.OffsetDelta)
			all = append(all, decodedRecord{absOffset: abs, timestamp: rb.FirstTimestamp + rec.TimestampDelta, producer: h, rec: rec})
			if rec.Key != nil {
				k := string(rec.Key)
				if cur, ok := winner[k]; ok {
					if cur == abs {
						logging.Panic("compaction: duplicate record at offset %d for key %q in segment base %d", abs, rec.Key, seg.BaseOffset())
					}
					if abs > cur {
						winner[k] = abs
					}
				} else {
					winner[k] = abs
				}
			}
		}
	}

	droppedAny := false
	for _, d := range all {
		if d.rec.Key != nil && winner[string(d.rec.Key)] != d.absOffset {
			droppedAny = true
			break
		}
	}
	if !droppedAny {
		return false, nil
	}

	newPath := path + ".compacted"
	newFile, err := openFile(newPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644, l.cfg)
	if err != nil {
		return false, fmt.Errorf("compaction: create %s: %w", newPath, err)
	}

	newIndex := NewIndex(offsetIndexPath(newPath), timeIndexPath(newPath), seg.BaseOffset(), l.cfg.IndexStep)
	var pos int64
	var newMaxOffset uint64
	maxTS := int64(types.NoTimestamp)
	for _, d := range all {
		if d.rec.Key != nil && winner[string(d.rec.Key)] != d.absOffset {
			continue
		}
		rb := types.RecordBatch{
			BaseOffset:      d.absOffset,
			Type:            d.producer.Type,
			Attrs:           types.Attrs(0),
			FirstTimestamp:  d.timestamp,
			MaxTimestamp:    d.timestamp,
			LastOffsetDelta: 0,
			ProducerID:      d.producer.ProducerID,
			ProducerEpoch:   d.producer.ProducerEpoch,
			BaseSequence:    d.producer.BaseSequence,
			RecordCount:     1,
			Records: []types.Record{{
				Attributes:     d.rec.Attributes,
				TimestampDelta: 0,
				OffsetDelta:    0,
				Key:            d.rec.Key,
				Value:          d.rec.Value,
				Headers:        d.rec.Headers,
			}},
		}
		buf := codec.EncodeBatch(rb)
		for _, chunk := range buf.Chunks() {
			if _, err := newFile.Write(chunk); err != nil {
				newFile.Close()
				os.Remove(newPath)
				return false, fmt.Errorf("compaction: write %s: %w", newPath, err)
			}
		}
		newIndex.ForceSample(uint32(d.absOffset-seg.BaseOffset()), uint32(pos), d.timestamp)
		pos += int64(buf.Size())
		newMaxOffset = d.absOffset
		if d.timestamp > maxTS {
			maxTS = d.timestamp
		}
	}

	if err := newFile.Sync(); err != nil {
		newFile.Close()
		os.Remove(newPath)
		return false, fmt.Errorf("compaction: fsync %s: %w", newPath, err)
	}
	if err := newFile.Close(); err != nil {
		os.Remove(newPath)
		return false, fmt.Errorf("compaction: close %s: %w", newPath, err)
	}

	seg.mu.Lock()
	seg.file.Close()
	if err := os.Rename(newPath, path); err != nil {
		seg.mu.Unlock()
		return false, fmt.Errorf("compaction: rename %s to %s: %w", newPath, path, err)
	}
	reopened, err := openFile(path, os.O_RDONLY, 0644, l.cfg)
	if err != nil {
		seg.mu.Unlock()
		return false, fmt.Errorf("compaction: reopen %s: %w", path, err)
	}
	seg.file = reopened
	seg.index = newIndex
	seg.maxOffset = newMaxOffset
	seg.maxTS = maxTS
	seg.mu.Unlock()

	if err := seg.index.Flush(); err != nil {
		logging.Error("compaction: %s: index flush: %v", path, err)
	}
	return true, nil
}

func decompressRecords(h codec.Header, rb types.RecordBatch) ([]types.Record, error) {
	if h.Attrs.Compression() == types.CompressionNone {
		return rb.Records, nil
	}
	c := compress.ForType(h.Attrs.Compression())
	if c == nil {
		return nil, fmt.Errorf("compaction: unknown compression type %d: %w", h.Attrs.Compression(), types.ErrInvalidArgument)
	}
	raw, err := c.Decompress(rb.Body)
	if err != nil {
		return nil, fmt.Errorf("compaction: decompress batch at offset %d: %w", rb.BaseOffset, err)
	}
	return codec.DecodeRecords(raw, h.RecordCount)
}
