package storage

import (
	"testing"
	"time"

	"github.com/streamstore/logengine/types"
)

func keyedBatch(baseOffset uint64, key, value string) types.RecordBatch {
	rb := types.RecordBatch{
		BaseOffset: baseOffset,
		Type:       types.BatchTypeData,
		Records: []types.Record{
			{Key: []byte(key), Value: []byte(value)},
		},
		RecordCount: 1,
	}
	return rb
}

func logWithCompactPolicy(t *testing.T, dir string) *Log {
	t.Helper()
	cfg := testConfig(dir)
	cfg.CleanupPolicy = types.CleanupDeleteCompact
	return NewLog(testNTP(), dir, cfg)
}

func TestCompactDropsSupersededKeys(t *testing.T) {
	dir := t.TempDir()
	l := logWithCompactPolicy(t, dir)
	defer l.Close()

	seg, err := CreateSegment(dir, 0, 0, l.cfg, func() uint64 { return 2 }, nil)
	if err != nil {
		t.Fatalf("create segment: %v", err)
	}
	for i, v := range []string{"v1", "v2", "v3"} {
		rb := keyedBatch(uint64(i), "shared-key", v)
		if _, err := seg.Append(rb); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := seg.Seal(); err != nil {
		t.Fatalf("seal: %v", err)
	}
	l.segments.Insert(seg)

	tail, err := CreateSegment(dir, 3, 0, l.cfg, func() uint64 { return 3 }, nil)
	if err != nil {
		t.Fatalf("create tail segment: %v", err)
	}
	l.segments.Insert(tail)

	compacted, err := l.Compact()
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if compacted != 1 {
		t.Fatalf("compacted = %d, want 1", compacted)
	}

	r := NewReader(seg.file, 0, 4096, func() int64 { return seg.Size() }, nil)
	var survivors []uint64
	for {
		h, _, ok, err := r.NextHeader()
		if err != nil {
			t.Fatalf("next_header: %v", err)
		}
		if !ok {
			break
		}
		survivors = append(survivors, h.BaseOffset)
		r.SkipBody(h)
	}
	if len(survivors) != 1 || survivors[0] != 2 {
		t.Fatalf("surviving offsets = %v, want [2] (only the last write of shared-key)", survivors)
	}
}

func TestCompactPanicsOnDuplicateOffsetForSameKey(t *testing.T) {
	dir := t.TempDir()
	l := logWithCompactPolicy(t, dir)
	defer l.Close()

	seg, err := CreateSegment(dir, 0, 0, l.cfg, func() uint64 { return 0 }, nil)
	if err != nil {
		t.Fatalf("create segment: %v", err)
	}
	// Two distinct batches both claiming absolute offset 0 for the same
	// key simulates the corrupted-scan scenario compactSegment must treat
	// as a fatal invariant violation rather than silently pick one.
	for _, v := range []string{"v1", "v2"} {
		rb := keyedBatch(0, "dup-key", v)
		if _, err := seg.Append(rb); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := seg.Seal(); err != nil {
		t.Fatalf("seal: %v", err)
	}
	l.segments.Insert(seg)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected Compact to panic on a duplicate offset for the same key")
		}
	}()
	l.Compact()
}

func TestCompactSkipsSegmentsPastCollectibleOffset(t *testing.T) {
	dir := t.TempDir()
	l := logWithCompactPolicy(t, dir)
	defer l.Close()
	l.SetCollectibleOffset(0) // nothing past offset 0 may be touched

	seg, err := CreateSegment(dir, 0, 0, l.cfg, func() uint64 { return 2 }, nil)
	if err != nil {
		t.Fatalf("create segment: %v", err)
	}
	for i, v := range []string{"v1", "v2"} {
		rb := keyedBatch(uint64(i), "k", v)
		if _, err := seg.Append(rb); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := seg.Seal(); err != nil {
		t.Fatalf("seal: %v", err)
	}
	l.segments.Insert(seg)

	compacted, err := l.Compact()
	if err != nil {
		t.Fatalf("compact: %v", err)
	}
	if compacted != 0 {
		t.Fatalf("compacted = %d, want 0 (segment's max offset exceeds the collectible bound)", compacted)
	}
}

func TestApplyRetentionDropsExpiredSegments(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.CleanupPolicy = types.CleanupDelete
	past := time.Duration(0)
	cfg.RetentionTime = &past
	l := NewLog(testNTP(), dir, cfg)
	defer l.Close()

	seg, err := CreateSegment(dir, 0, 0, cfg, func() uint64 { return 0 }, nil)
	if err != nil {
		t.Fatalf("create segment: %v", err)
	}
	rb := keyedBatch(0, "k", "v")
	rb.MaxTimestamp = 1 // far in the past relative to "now - 0"
	if _, err := seg.Append(rb); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := seg.Seal(); err != nil {
		t.Fatalf("seal: %v", err)
	}
	l.segments.Insert(seg)

	tail, err := CreateSegment(dir, 1, 0, cfg, func() uint64 { return 1 }, nil)
	if err != nil {
		t.Fatalf("create tail: %v", err)
	}
	l.segments.Insert(tail)

	dropped, err := l.ApplyRetention()
	if err != nil {
		t.Fatalf("apply_retention: %v", err)
	}
	if dropped != 1 {
		t.Fatalf("dropped = %d, want 1", dropped)
	}
	if l.SegmentCount() != 1 {
		t.Fatalf("segment count after retention = %d, want 1", l.SegmentCount())
	}
}

func TestApplyRetentionNeverDropsTheOnlySegment(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.CleanupPolicy = types.CleanupDelete
	past := time.Duration(0)
	cfg.RetentionTime = &past
	l := NewLog(testNTP(), dir, cfg)
	defer l.Close()

	seg, err := CreateSegment(dir, 0, 0, cfg, func() uint64 { return 0 }, nil)
	if err != nil {
		t.Fatalf("create segment: %v", err)
	}
	rb := keyedBatch(0, "k", "v")
	rb.MaxTimestamp = 1
	if _, err := seg.Append(rb); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := seg.Seal(); err != nil {
		t.Fatalf("seal: %v", err)
	}
	l.segments.Insert(seg)

	dropped, err := l.ApplyRetention()
	if err != nil {
		t.Fatalf("apply_retention: %v", err)
	}
	if dropped != 0 {
		t.Fatalf("dropped = %d, want 0 (must not delete the log's only segment)", dropped)
	}
}
