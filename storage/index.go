package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"sort"
	"sync"
)

// offsetEntrySize is 4 bytes relative offset + 4 bytes file position.
const offsetEntrySize = 8

// timeEntrySize is 8 bytes timestamp + 4 bytes relative offset.
const timeEntrySize = 12

// OffsetEntry is one sample of the sparse offset index (C5).
type OffsetEntry struct {
	RelativeOffset uint32
	Position       uint32
}

// TimeEntry is one sample of the sparse timestamp index (C5).
type TimeEntry struct {
	Timestamp      int64
	RelativeOffset uint32
}

// Index is the pair of sparse mappings described in §4.5: offset index
// and timestamp index, sampled on the same cadence and persisted to side
// files on seal.
type Index struct {
	mu sync.RWMutex

	baseOffset uint64
	step       int64

	offsets []OffsetEntry
	times   []TimeEntry

	bytesSinceSample int64

	offsetPath string
	timePath   string
}

// NewIndex creates an empty, in-memory index for a segment whose side
// files live at offsetPath/timePath.
func NewIndex(offsetPath, timePath string, baseOffset uint64, step int64) *Index {
	if step <= 0 {
		step = 32 << 10
	}
	return &Index{baseOffset: baseOffset, step: step, offsetPath: offsetPath, timePath: timePath}
}

// MaybeSample records an index entry for a batch just appended at
// position, if enough bytes have accumulated since the last sample.
// batchBytes is the size of the batch just written, used to advance the
// sampling cadence.
func (ix *Index) MaybeSample(relOffset uint32, position uint32, timestamp int64, batchBytes int64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.bytesSinceSample += batchBytes
	if ix.bytesSinceSample < ix.step && len(ix.offsets) > 0 {
		return
	}
	ix.bytesSinceSample = 0
	ix.offsets = append(ix.offsets, OffsetEntry{RelativeOffset: relOffset, Position: position})
	ix.times = append(ix.times, TimeEntry{Timestamp: timestamp, RelativeOffset: relOffset})
}

// ForceSample records an entry unconditionally; used when rebuilding the
// index from a full segment scan (recovery, or a missing/corrupt index at
// open).
func (ix *Index) ForceSample(relOffset uint32, position uint32, timestamp int64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.offsets = append(ix.offsets, OffsetEntry{RelativeOffset: relOffset, Position: position})
	ix.times = append(ix.times, TimeEntry{Timestamp: timestamp, RelativeOffset: relOffset})
	ix.bytesSinceSample = 0
}

// Reset discards every sample, used before a rebuild-by-scan.
func (ix *Index) Reset() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.offsets = nil
	ix.times = nil
	ix.bytesSinceSample = 0
}

// FindPosition returns the greatest indexed file position whose relative
// offset is <= target-base. The reader then scans forward from there to
// the exact batch (§4.5).
func (ix *Index) FindPosition(target uint64) (position uint32, found bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if target < ix.baseOffset || len(ix.offsets) == 0 {
		return 0, false
	}
	relTarget := uint32(target - ix.baseOffset)
	i := sort.Search(len(ix.offsets), func(i int) bool {
		return ix.offsets[i].RelativeOffset > relTarget
	})
	if i == 0 {
		return 0, false
	}
	return ix.offsets[i-1].Position, true
}

// FindOffsetForTime returns the first offset whose batch's max timestamp
// is >= ts, using the sparse time index as a starting hint.
func (ix *Index) FindOffsetForTime(ts int64) (offset uint64, found bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if len(ix.times) == 0 {
		return 0, false
	}
	i := sort.Search(len(ix.times), func(i int) bool {
		return ix.times[i].Timestamp >= ts
	})
	if i == len(ix.times) {
		return 0, false
	}
	return ix.baseOffset + uint64(ix.times[i].RelativeOffset), true
}

// TruncateAfter drops every sample whose relative offset is >= target-base,
// used when a segment is truncated in place (§4.6 Segment.truncate).
func (ix *Index) TruncateAfter(target uint64) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if target < ix.baseOffset {
		ix.offsets, ix.times = nil, nil
		return
	}
	relTarget := uint32(target - ix.baseOffset)
	i := sort.Search(len(ix.offsets), func(i int) bool { return ix.offsets[i].RelativeOffset >= relTarget })
	ix.offsets = ix.offsets[:i]
	j := sort.Search(len(ix.times), func(j int) bool { return ix.times[j].RelativeOffset >= relTarget })
	ix.times = ix.times[:j]
}

// Flush persists both side files, truncating and rewriting them whole —
// sparse indices are small enough that this is cheap and avoids partial
// writes corrupting a previously-valid index file.
func (ix *Index) Flush() error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if err := writeOffsetIndex(ix.offsetPath, ix.offsets); err != nil {
		return fmt.Errorf("index: flush offset index: %w", err)
	}
	if err := writeTimeIndex(ix.timePath, ix.times); err != nil {
		return fmt.Errorf("index: flush time index: %w", err)
	}
	return nil
}

// Load reads both side files from disk. A missing file is not an error —
// the caller is expected to rebuild by scan in that case (§4.5
// "if missing or corrupt at open, they are rebuilt by a full scan").
func (ix *Index) Load() error {
	offsets, offsetsOK, err := readOffsetIndex(ix.offsetPath)
	if err != nil {
		return err
	}
	times, timesOK, err := readTimeIndex(ix.timePath)
	if err != nil {
		return err
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if offsetsOK {
		ix.offsets = offsets
	}
	if timesOK {
		ix.times = times
	}
	return nil
}

func writeOffsetIndex(path string, entries []OffsetEntry) error {
	buf := make([]byte, len(entries)*offsetEntrySize)
	for i, e := range entries {
		binary.BigEndian.PutUint32(buf[i*offsetEntrySize:], e.RelativeOffset)
		binary.BigEndian.PutUint32(buf[i*offsetEntrySize+4:], e.Position)
	}
	return os.WriteFile(path, buf, 0644)
}

func readOffsetIndex(path string) ([]OffsetEntry, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(data)%offsetEntrySize != 0 {
		return nil, false, nil // corrupt: caller rebuilds
	}
	entries := make([]OffsetEntry, len(data)/offsetEntrySize)
	for i := range entries {
		entries[i].RelativeOffset = binary.BigEndian.Uint32(data[i*offsetEntrySize:])
		entries[i].Position = binary.BigEndian.Uint32(data[i*offsetEntrySize+4:])
	}
	return entries, true, nil
}

func writeTimeIndex(path string, entries []TimeEntry) error {
	buf := make([]byte, len(entries)*timeEntrySize)
	for i, e := range entries {
		binary.BigEndian.PutUint64(buf[i*timeEntrySize:], uint64(e.Timestamp))
		binary.BigEndian.PutUint32(buf[i*timeEntrySize+8:], e.RelativeOffset)
	}
	return os.WriteFile(path, buf, 0644)
}

func readTimeIndex(path string) ([]TimeEntry, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if len(data)%timeEntrySize != 0 {
		return nil, false, nil
	}
	entries := make([]TimeEntry, len(data)/timeEntrySize)
	for i := range entries {
		entries[i].Timestamp = int64(binary.BigEndian.Uint64(data[i*timeEntrySize:]))
		entries[i].RelativeOffset = binary.BigEndian.Uint32(data[i*timeEntrySize+8:])
	}
	return entries, true, nil
}
