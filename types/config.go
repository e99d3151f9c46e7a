package types

import "time"

// CleanupPolicy is a bitflag selecting how a log reclaims space.
type CleanupPolicy uint8

const (
	CleanupDelete       CleanupPolicy = 1 << 0
	CleanupCompact      CleanupPolicy = 1 << 1
	CleanupDeleteCompact              = CleanupDelete | CleanupCompact
)

func (p CleanupPolicy) HasDelete() bool  { return p&CleanupDelete != 0 }
func (p CleanupPolicy) HasCompact() bool { return p&CleanupCompact != 0 }

// Configuration holds every documented knob of §6.3. Tri-state options
// (value / disabled / unset-inherits-default) are pointer fields: nil means
// "unset, inherit the manager default".
type Configuration struct {
	BaseDir string

	MaxSegmentSize         int64
	MaxRecordsPerSegment   int64
	WriterFlushPeriod      time.Duration
	MaxBytesInWriterCache  int64
	IndexStep              int64
	DefaultReadBufferSize  int64
	CleanupPolicy          CleanupPolicy

	// BatchCacheSize is the number of decoded record batches the log keeps
	// in an LRU cache. 0 disables the cache.
	BatchCacheSize int

	// RetentionBytes and RetentionTime are tri-state: nil inherits the
	// manager default, a negative value disables the check, zero or
	// positive is an explicit limit.
	RetentionBytes *int64
	RetentionTime  *time.Duration

	// SanitizeFiles turns on fault-injecting file wrappers for testing
	// recovery against torn writes.
	SanitizeFiles bool
}

// DefaultConfiguration returns the manager-wide defaults new partitions
// inherit unless overridden.
func DefaultConfiguration(baseDir string) Configuration {
	return Configuration{
		BaseDir:               baseDir,
		MaxSegmentSize:        1 << 30, // 1 GiB
		MaxRecordsPerSegment:  0,       // 0 disables the record-count roll trigger
		WriterFlushPeriod:     500 * time.Millisecond,
		MaxBytesInWriterCache: 8 << 20, // 8 MiB
		IndexStep:             32 << 10, // 32 KiB
		DefaultReadBufferSize: 128 << 10, // 128 KiB
		CleanupPolicy:         CleanupDelete,
		BatchCacheSize:        4096,
	}
}

// Override returns a copy of base with every non-zero/non-nil field of o
// applied on top, the way a per-topic override layers over a manager
// default.
func (base Configuration) Override(o Configuration) Configuration {
	merged := base
	if o.BaseDir != "" {
		merged.BaseDir = o.BaseDir
	}
	if o.MaxSegmentSize != 0 {
		merged.MaxSegmentSize = o.MaxSegmentSize
	}
	if o.MaxRecordsPerSegment != 0 {
		merged.MaxRecordsPerSegment = o.MaxRecordsPerSegment
	}
	if o.WriterFlushPeriod != 0 {
		merged.WriterFlushPeriod = o.WriterFlushPeriod
	}
	if o.MaxBytesInWriterCache != 0 {
		merged.MaxBytesInWriterCache = o.MaxBytesInWriterCache
	}
	if o.IndexStep != 0 {
		merged.IndexStep = o.IndexStep
	}
	if o.DefaultReadBufferSize != 0 {
		merged.DefaultReadBufferSize = o.DefaultReadBufferSize
	}
	if o.CleanupPolicy != 0 {
		merged.CleanupPolicy = o.CleanupPolicy
	}
	if o.BatchCacheSize != 0 {
		merged.BatchCacheSize = o.BatchCacheSize
	}
	if o.RetentionBytes != nil {
		merged.RetentionBytes = o.RetentionBytes
	}
	if o.RetentionTime != nil {
		merged.RetentionTime = o.RetentionTime
	}
	merged.SanitizeFiles = merged.SanitizeFiles || o.SanitizeFiles
	return merged
}
