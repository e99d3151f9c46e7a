package storage

import (
	"fmt"
	"sync"
	"time"

	"github.com/streamstore/logengine/buffer"
	"github.com/streamstore/logengine/logging"
	"github.com/streamstore/logengine/types"
)

// Appender is the segment appender (C3): a sequential writer over a single
// file with a bounded in-memory write cache, periodic and explicit flush.
//
// The cooperative single-shard model of §5 maps onto a goroutine per
// appender serializing flushes, with a mutex standing in for the async
// semaphore; callers are expected to serialize Append themselves (the
// owning Log's op_lock), matching "writes never reorder".
type Appender struct {
	mu sync.Mutex

	file fileHandle
	path string

	cache       *buffer.Buffer
	cachedBytes int64
	writtenSize int64

	maxCacheBytes int64
	flushPeriod   time.Duration

	broken    bool
	brokenErr error
	closed    bool

	notFull *sync.Cond

	onFlush func(sizeBytes int64)

	stopTicker chan struct{}
	tickerDone chan struct{}
}

// NewAppender opens or attaches to file and starts its periodic flush
// timer. onFlush, if non-nil, is the segment-size notification callback of
// §4.3, invoked after every successful flush with the file's new total
// size.
func NewAppender(file fileHandle, maxCacheBytes int64, flushPeriod time.Duration, onFlush func(int64)) (*Appender, error) {
	stat, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("appender: stat %s: %w", file.Name(), err)
	}
	a := &Appender{
		file:          file,
		path:          file.Name(),
		cache:         buffer.New(),
		writtenSize:   stat.Size(),
		maxCacheBytes: maxCacheBytes,
		flushPeriod:   flushPeriod,
		onFlush:       onFlush,
		stopTicker:    make(chan struct{}),
		tickerDone:    make(chan struct{}),
	}
	a.notFull = sync.NewCond(&a.mu)
	if flushPeriod > 0 {
		go a.flushLoop()
	} else {
		close(a.tickerDone)
	}
	return a, nil
}

func (a *Appender) flushLoop() {
	defer close(a.tickerDone)
	ticker := time.NewTicker(a.flushPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := a.Flush(); err != nil {
				logging.Error("appender: periodic flush of %s failed: %v", a.path, err)
			}
		case <-a.stopTicker:
			return
		}
	}
}

// Append logically writes p to the tail: the bytes land in the write
// cache (or block until the cache drains, if it's already at capacity)
// and are visible to Flush once there.
func (a *Appender) Append(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for a.cachedBytes >= a.maxCacheBytes && !a.broken && !a.closed {
		a.notFull.Wait()
	}
	if a.broken {
		return 0, fmt.Errorf("appender: %s is broken: %w", a.path, a.brokenErr)
	}
	if a.closed {
		return 0, fmt.Errorf("appender: %s: %w", a.path, types.ErrAlreadyClosed)
	}
	a.cache.Append(p)
	a.cachedBytes += int64(len(p))
	return len(p), nil
}

// Flush makes every prior Append durable. A successful return means every
// byte appended before this call is on stable storage.
func (a *Appender) Flush() error {
	a.mu.Lock()
	if a.broken {
		err := a.brokenErr
		a.mu.Unlock()
		return err
	}
	pending := a.cache
	flushedBytes := a.cachedBytes
	a.cache = buffer.New()
	a.cachedBytes = 0
	a.mu.Unlock()

	if flushedBytes == 0 {
		return nil
	}

	for _, chunk := range pending.Chunks() {
		if _, err := a.file.Write(chunk); err != nil {
			a.markBroken(fmt.Errorf("%w: write %s: %v", types.ErrIOFailure, a.path, err))
			return a.brokenErr
		}
	}
	if err := a.file.Sync(); err != nil {
		a.markBroken(fmt.Errorf("%w: fsync %s: %v", types.ErrIOFailure, a.path, err))
		return a.brokenErr
	}

	a.mu.Lock()
	a.writtenSize += flushedBytes
	newSize := a.writtenSize
	a.notFull.Broadcast()
	a.mu.Unlock()

	if a.onFlush != nil {
		a.onFlush(newSize)
	}
	return nil
}

func (a *Appender) markBroken(err error) {
	a.mu.Lock()
	a.broken = true
	a.brokenErr = err
	a.notFull.Broadcast()
	a.mu.Unlock()
	logging.Error("appender: %v", err)
}

// Size returns the appender's best-known on-disk size plus unflushed cache
// bytes — the "dirty" size of the file.
func (a *Appender) Size() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.writtenSize + a.cachedBytes
}

// Broken reports whether a write or flush has failed; once broken, the
// appender never accepts further writes.
func (a *Appender) Broken() (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.broken, a.brokenErr
}

// Close flushes and closes the underlying file.
func (a *Appender) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.notFull.Broadcast()
	a.mu.Unlock()

	if a.flushPeriod > 0 {
		close(a.stopTicker)
		<-a.tickerDone
	}

	if err := a.Flush(); err != nil {
		a.file.Close()
		return err
	}
	return a.file.Close()
}
