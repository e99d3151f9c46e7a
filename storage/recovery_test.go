package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/streamstore/logengine/codec"
)

func TestRecoverLogReplaysAppendsAcrossSegments(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	cfg.MaxSegmentSize = 1 // one batch per segment, to exercise multi-segment recovery

	l := NewLog(testNTP(), dir, cfg)
	for i := 0; i < 4; i++ {
		mustAppend(t, l, "k", "v")
	}
	if err := l.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	recovered, err := RecoverLog(dir, testNTP(), cfg)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	defer recovered.Close()

	off := recovered.Offsets()
	if off.StartOffset != 0 || off.DirtyOffset != 3 {
		t.Fatalf("recovered offsets = %+v, want start=0 dirty=3", off)
	}
	if recovered.SegmentCount() != 4 {
		t.Fatalf("recovered segment count = %d, want 4", recovered.SegmentCount())
	}
}

func TestRecoverLastSegmentTruncatesTornTail(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	path := segmentPath(dir, 0, 1, segmentVersion)

	b0 := dataBatch("k0", "v0")
	b1 := dataBatch("k1", "v1")
	b1.BaseOffset = 1

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	buf0 := codec.EncodeBatch(b0)
	buf1 := codec.EncodeBatch(b1)
	full := append(append([]byte{}, buf0.Bytes()...), buf1.Bytes()...)
	// torn write: only the first batch plus half of the second batch's header lands
	torn := full[:len(buf0.Bytes())+codec.HeaderSize/2]
	if _, err := f.Write(torn); err != nil {
		t.Fatalf("write torn tail: %v", err)
	}
	f.Close()

	seg, err := recoverLastSegment(path, 0, 1, segmentVersion, cfg, nil)
	if err != nil {
		t.Fatalf("recover_last_segment: %v", err)
	}
	if seg == nil {
		t.Fatalf("expected a recovered segment, got nil")
	}
	if seg.DirtyOffset() != 0 {
		t.Fatalf("dirty_offset = %d, want 0 (only the first batch is valid)", seg.DirtyOffset())
	}

	stat, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if stat.Size() != int64(len(buf0.Bytes())) {
		t.Fatalf("file size after recovery = %d, want %d (torn tail discarded)", stat.Size(), len(buf0.Bytes()))
	}
}

func TestRecoverLastSegmentDeletesEmptyInvalidFile(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	path := segmentPath(dir, 0, 1, segmentVersion)

	if err := os.WriteFile(path, nil, 0644); err != nil {
		t.Fatalf("write empty file: %v", err)
	}

	seg, err := recoverLastSegment(path, 0, 1, segmentVersion, cfg, nil)
	if err != nil {
		t.Fatalf("recover_last_segment: %v", err)
	}
	if seg != nil {
		t.Fatalf("expected nil segment for an entirely invalid, empty file")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected empty invalid segment file to be removed, stat err = %v", err)
	}
}

func TestRecoverLastSegmentQuarantinesEntirelyInvalidNonEmptyFile(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(dir)
	path := segmentPath(dir, 0, 1, segmentVersion)

	if err := os.WriteFile(path, []byte{0xDE, 0xAD, 0xBE, 0xEF}, 0644); err != nil {
		t.Fatalf("write garbage: %v", err)
	}

	seg, err := recoverLastSegment(path, 0, 1, segmentVersion, cfg, nil)
	if err != nil {
		t.Fatalf("recover_last_segment: %v", err)
	}
	if seg != nil {
		t.Fatalf("expected nil segment for an entirely invalid file")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected original segment file to be gone, stat err = %v", err)
	}
	if _, err := os.Stat(path + ".cannotrecover"); err != nil {
		t.Fatalf("expected quarantined file at %s.cannotrecover: %v", path, err)
	}
}

func TestDiscoverSegmentsSortsByBaseOffset(t *testing.T) {
	dir := t.TempDir()
	for _, base := range []uint64{20, 0, 10} {
		path := segmentPath(dir, base, 1, segmentVersion)
		if err := os.WriteFile(path, nil, 0644); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	metas, err := discoverSegments(dir)
	if err != nil {
		t.Fatalf("discover_segments: %v", err)
	}
	if len(metas) != 3 {
		t.Fatalf("found %d segments, want 3", len(metas))
	}
	for i, want := range []uint64{0, 10, 20} {
		if metas[i].baseOffset != want {
			t.Fatalf("metas[%d].baseOffset = %d, want %d", i, metas[i].baseOffset, want)
		}
	}
}

func TestDiscoverSegmentsSkipsUnrecognizedFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "not-a-segment.log"), nil, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(segmentPath(dir, 5, 1, segmentVersion), nil, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	metas, err := discoverSegments(dir)
	if err != nil {
		t.Fatalf("discover_segments: %v", err)
	}
	if len(metas) != 1 || metas[0].baseOffset != 5 {
		t.Fatalf("metas = %+v, want exactly the base-5 segment", metas)
	}
}
