package storage

import (
	"math/rand"
	"os"
	"time"

	"github.com/streamstore/logengine/types"
)

// fileHandle is the subset of *os.File every storage component needs.
// sanitizingFile implements it too, so sanitize_files can swap in fault
// injection transparently wherever a segment opens a file.
type fileHandle interface {
	Write(p []byte) (int, error)
	ReadAt(p []byte, off int64) (int, error)
	Sync() error
	Close() error
	Truncate(size int64) error
	Stat() (os.FileInfo, error)
	Name() string
}

// openFile opens path like os.OpenFile, wrapping the result in a
// sanitizingFile when cfg.SanitizeFiles is set.
func openFile(path string, flag int, perm os.FileMode, cfg types.Configuration) (fileHandle, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}
	if cfg.SanitizeFiles {
		return newSanitizingFile(f, time.Now().UnixNano(), 0.01, 0.01), nil
	}
	return f, nil
}

// sanitizingFile wraps an *os.File with I/O fault injection, enabled by
// the sanitize_files config knob. It models Redpanda's debug sanitizer:
// writes are occasionally torn (a short write that drops the tail of the
// buffer) and reads occasionally fail outright, so recovery code paths get
// exercised without waiting for a real crash.
type sanitizingFile struct {
	*os.File
	rng        *rand.Rand
	tearChance float64
	failChance float64
}

// newSanitizingFile wraps f with the given fault probabilities (0..1).
func newSanitizingFile(f *os.File, seed int64, tearChance, failChance float64) *sanitizingFile {
	return &sanitizingFile{File: f, rng: rand.New(rand.NewSource(seed)), tearChance: tearChance, failChance: failChance}
}

// Write occasionally tears: it writes only a random prefix of p and
// reports that prefix's length with no error, exactly mimicking a crash
// mid-write — the caller believes the write succeeded, as a real short
// write from the OS would also not necessarily surface as an error.
func (f *sanitizingFile) Write(p []byte) (int, error) {
	if len(p) > 0 && f.rng.Float64() < f.tearChance {
		n := f.rng.Intn(len(p))
		if n == 0 {
			n = 1
		}
		written, err := f.File.Write(p[:n])
		return written, err
	}
	return f.File.Write(p)
}

// ReadAt occasionally fails outright, modeling a transient I/O error on
// the read path.
func (f *sanitizingFile) ReadAt(p []byte, off int64) (int, error) {
	if f.rng.Float64() < f.failChance {
		return 0, types.ErrIOFailure
	}
	return f.File.ReadAt(p, off)
}
