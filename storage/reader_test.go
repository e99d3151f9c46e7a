package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/streamstore/logengine/codec"
)

func TestReaderNextHeaderAndReadBody(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seg.log")

	b0 := dataBatch("k0", "v0")
	b0.BaseOffset = 0
	b1 := dataBatch("k1", "v1")
	b1.BaseOffset = 1

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	buf0 := codec.EncodeBatch(b0)
	buf1 := codec.EncodeBatch(b1)
	if _, err := f.Write(buf0.Bytes()); err != nil {
		t.Fatalf("write b0: %v", err)
	}
	if _, err := f.Write(buf1.Bytes()); err != nil {
		t.Fatalf("write b1: %v", err)
	}
	size := int64(buf0.Size() + buf1.Size())

	r := NewReader(f, 0, 4096, func() int64 { return size }, nil)

	h, _, ok, err := r.NextHeader()
	if err != nil || !ok {
		t.Fatalf("next_header 1: ok=%v err=%v", ok, err)
	}
	if h.BaseOffset != 0 {
		t.Fatalf("base_offset = %d, want 0", h.BaseOffset)
	}
	rb, err := r.ReadBody(h)
	if err != nil {
		t.Fatalf("read_body: %v", err)
	}
	if rb.BaseOffset != 0 {
		t.Fatalf("decoded base_offset = %d, want 0", rb.BaseOffset)
	}

	h2, _, ok, err := r.NextHeader()
	if err != nil || !ok {
		t.Fatalf("next_header 2: ok=%v err=%v", ok, err)
	}
	r.SkipBody(h2)

	_, _, ok, err = r.NextHeader()
	if err != nil {
		t.Fatalf("next_header at eof: %v", err)
	}
	if ok {
		t.Fatalf("expected clean stop at end of file")
	}
}

func TestReaderStopsAtCommittedOffsetCeiling(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seg.log")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	b0 := dataBatch("k0", "v0")
	b0.BaseOffset = 0
	b1 := dataBatch("k1", "v1")
	b1.BaseOffset = 1
	buf0 := codec.EncodeBatch(b0)
	buf1 := codec.EncodeBatch(b1)
	f.Write(buf0.Bytes())
	f.Write(buf1.Bytes())
	size := int64(buf0.Size() + buf1.Size())

	committed := uint64(0) // only offset 0 is committed
	r := NewReader(f, 0, 4096, func() int64 { return size }, func() uint64 { return committed })

	h, _, ok, err := r.NextHeader()
	if err != nil || !ok || h.BaseOffset != 0 {
		t.Fatalf("expected to read committed batch 0, got ok=%v err=%v h=%+v", ok, err, h)
	}
	r.SkipBody(h)

	_, _, ok, err = r.NextHeader()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected read to stop at the committed offset ceiling")
	}
}

func TestReaderDetectsCorruptHeader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "seg.log")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	b0 := dataBatch("k0", "v0")
	buf0 := codec.EncodeBatch(b0)
	data := buf0.Bytes()
	data[10] ^= 0xFF
	f.Write(data)
	size := int64(len(data))

	r := NewReader(f, 0, 4096, func() int64 { return size }, nil)
	if _, _, _, err := r.NextHeader(); err == nil {
		t.Fatalf("expected corrupt header to surface as an error")
	}
}
