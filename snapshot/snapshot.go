// Package snapshot implements the per-partition snapshot manager consensus
// reads/writes: a single file holding a fixed header (magic, version,
// last_included_offset, last_included_term, header crc) followed by
// opaque payload bytes and a terminator crc over the payload.
// It is modeled on Redpanda's storage/snapshot_manager, which writes to a
// temporary file and renames over the live snapshot so a reader never
// observes a partial write.
package snapshot

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/streamstore/logengine/types"
)

const (
	magic   uint32 = 0x4c534e50 // "LSNP"
	version uint32 = 1
	// headerSize covers magic, version, last_included_offset,
	// last_included_term, and the header crc, in that order.
	headerSize = 4 + 4 + 8 + 8 + 4
)

var enc = binary.BigEndian
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// Metadata is the fixed portion of a snapshot file, identifying the log
// position the payload was taken at.
type Metadata struct {
	LastIncludedOffset uint64
	LastIncludedTerm   uint64
}

// Manager reads and writes the single snapshot file for one partition,
// rooted at dir (typically the partition's own directory).
type Manager struct {
	dir string
}

// NewManager returns a Manager for the partition snapshot stored under dir.
func NewManager(dir string) *Manager {
	return &Manager{dir: dir}
}

func (m *Manager) path() string { return filepath.Join(m.dir, "snapshot") }
func (m *Manager) tempPath() string { return filepath.Join(m.dir, "snapshot.partial") }

// Writer is returned by StartSnapshot; the caller streams the payload to
// it and then calls FinishSnapshot to make it durable and visible.
type Writer struct {
	f    *os.File
	crc  uint32
	meta Metadata
	done bool
}

// encodeHeader serializes meta into the fixed header layout.
func encodeHeader(meta Metadata) []byte {
	hdr := make([]byte, headerSize)
	enc.PutUint32(hdr[0:4], magic)
	enc.PutUint32(hdr[4:8], version)
	enc.PutUint64(hdr[8:16], meta.LastIncludedOffset)
	enc.PutUint64(hdr[16:24], meta.LastIncludedTerm)
	headerCRC := crc32.Checksum(hdr[0:24], crcTable)
	enc.PutUint32(hdr[24:28], headerCRC)
	return hdr
}

// decodeHeader is the inverse of encodeHeader, validating magic, version,
// and header crc.
func decodeHeader(hdr []byte) (Metadata, error) {
	if len(hdr) < headerSize {
		return Metadata{}, fmt.Errorf("snapshot: short header (%d bytes): %w", len(hdr), types.ErrCorruptHeader)
	}
	gotMagic := enc.Uint32(hdr[0:4])
	if gotMagic != magic {
		return Metadata{}, fmt.Errorf("snapshot: bad magic %08x: %w", gotMagic, types.ErrCorruptHeader)
	}
	gotVersion := enc.Uint32(hdr[4:8])
	if gotVersion != version {
		return Metadata{}, fmt.Errorf("snapshot: unsupported version %d: %w", gotVersion, types.ErrCorruptHeader)
	}
	headerCRC := enc.Uint32(hdr[24:28])
	wantCRC := crc32.Checksum(hdr[0:24], crcTable)
	if headerCRC != wantCRC {
		return Metadata{}, fmt.Errorf("snapshot: header crc mismatch (got %08x want %08x): %w", headerCRC, wantCRC, types.ErrCorruptHeader)
	}
	return Metadata{
		LastIncludedOffset: enc.Uint64(hdr[8:16]),
		LastIncludedTerm:   enc.Uint64(hdr[16:24]),
	}, nil
}

// EncodeFrame serializes meta and payload into one self-contained
// snapshot frame (fixed header, payload, terminator crc) in memory. It is
// the same on-disk framing StartSnapshot/FinishSnapshot produce on a
// file, for a caller that already holds the whole payload and wants to
// write it through something other than a file — consensus's
// raft.SnapshotSink, which owns its own file lifecycle via raft's
// snapshot store.
func EncodeFrame(meta Metadata, payload []byte) []byte {
	hdr := encodeHeader(meta)
	trailer := make([]byte, 4)
	enc.PutUint32(trailer, crc32.Checksum(payload, crcTable))
	frame := make([]byte, 0, len(hdr)+len(payload)+len(trailer))
	frame = append(frame, hdr...)
	frame = append(frame, payload...)
	frame = append(frame, trailer...)
	return frame
}

// DecodeFrame is the inverse of EncodeFrame.
func DecodeFrame(data []byte) (Metadata, []byte, error) {
	if len(data) < headerSize+4 {
		return Metadata{}, nil, fmt.Errorf("snapshot: frame too small (%d bytes): %w", len(data), types.ErrCorruptHeader)
	}
	meta, err := decodeHeader(data[:headerSize])
	if err != nil {
		return Metadata{}, nil, err
	}
	payload := data[headerSize : len(data)-4]
	trailer := data[len(data)-4:]
	gotCRC := enc.Uint32(trailer)
	wantCRC := crc32.Checksum(payload, crcTable)
	if gotCRC != wantCRC {
		return Metadata{}, nil, fmt.Errorf("snapshot: payload crc mismatch (got %08x want %08x): %w", gotCRC, wantCRC, types.ErrCorruptBody)
	}
	return meta, payload, nil
}

// StartSnapshot opens a fresh temporary file and writes the fixed header
// for meta, returning a Writer the caller streams the payload through.
func (m *Manager) StartSnapshot(meta Metadata) (*Writer, error) {
	if err := os.MkdirAll(m.dir, 0750); err != nil {
		return nil, fmt.Errorf("snapshot: mkdir %s: %w", m.dir, err)
	}
	f, err := os.OpenFile(m.tempPath(), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("snapshot: create %s: %w", m.tempPath(), err)
	}
	if _, err := f.Write(encodeHeader(meta)); err != nil {
		f.Close()
		os.Remove(m.tempPath())
		return nil, fmt.Errorf("snapshot: write header: %w", err)
	}
	return &Writer{f: f, meta: meta}, nil
}

// Write streams payload bytes, accumulating the terminator crc.
func (w *Writer) Write(p []byte) (int, error) {
	if w.done {
		return 0, fmt.Errorf("snapshot: write after finish: %w", types.ErrInvalidArgument)
	}
	n, err := w.f.Write(p)
	if n > 0 {
		w.crc = crc32.Update(w.crc, crcTable, p[:n])
	}
	return n, err
}

// FinishSnapshot writes the terminator crc, fsyncs, and atomically renames
// the temporary file over the live snapshot.
func (m *Manager) FinishSnapshot(w *Writer) error {
	if w.done {
		return fmt.Errorf("snapshot: already finished: %w", types.ErrInvalidArgument)
	}
	w.done = true
	trailer := make([]byte, 4)
	enc.PutUint32(trailer, w.crc)
	if _, err := w.f.Write(trailer); err != nil {
		w.f.Close()
		return fmt.Errorf("snapshot: write terminator crc: %w", err)
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return fmt.Errorf("snapshot: fsync: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("snapshot: close: %w", err)
	}
	if err := os.Rename(m.tempPath(), m.path()); err != nil {
		return fmt.Errorf("snapshot: rename into place: %w", err)
	}
	return nil
}

// Abort discards an in-progress snapshot write without publishing it.
func (m *Manager) Abort(w *Writer) error {
	w.done = true
	w.f.Close()
	return os.Remove(m.tempPath())
}

// Reader exposes a snapshot's metadata and streams its validated payload.
type Reader struct {
	f    *os.File
	Meta Metadata
	size int64
}

// OpenSnapshot opens and validates the header of the partition's current
// snapshot, returning a Reader positioned at the start of the payload. The
// terminator crc is checked by Payload, which reads the whole payload.
func (m *Manager) OpenSnapshot() (*Reader, error) {
	f, err := os.Open(m.path())
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", m.path(), err)
	}
	stat, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("snapshot: stat: %w", err)
	}
	if stat.Size() < headerSize+4 {
		f.Close()
		return nil, fmt.Errorf("snapshot: file too small (%d bytes): %w", stat.Size(), types.ErrCorruptHeader)
	}
	hdr := make([]byte, headerSize)
	if _, err := io.ReadFull(f, hdr); err != nil {
		f.Close()
		return nil, fmt.Errorf("snapshot: read header: %w", err)
	}
	meta, err := decodeHeader(hdr)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Reader{
		f:    f,
		Meta: meta,
		size: stat.Size(),
	}, nil
}

// Payload returns the full validated payload, checking the terminator crc.
func (r *Reader) Payload() ([]byte, error) {
	defer r.f.Close()
	payloadSize := r.size - headerSize - 4
	if payloadSize < 0 {
		return nil, fmt.Errorf("snapshot: negative payload size: %w", types.ErrCorruptBody)
	}
	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(r.f, payload); err != nil {
		return nil, fmt.Errorf("snapshot: read payload: %w", err)
	}
	trailer := make([]byte, 4)
	if _, err := io.ReadFull(r.f, trailer); err != nil {
		return nil, fmt.Errorf("snapshot: read terminator crc: %w", err)
	}
	gotCRC := enc.Uint32(trailer)
	wantCRC := crc32.Checksum(payload, crcTable)
	if gotCRC != wantCRC {
		return nil, fmt.Errorf("snapshot: payload crc mismatch (got %08x want %08x): %w", gotCRC, wantCRC, types.ErrCorruptBody)
	}
	return payload, nil
}
