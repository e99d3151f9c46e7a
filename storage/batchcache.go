package storage

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/streamstore/logengine/types"
)

// batchCacheKey identifies one decoded batch by the segment it lives in and
// its absolute base offset.
type batchCacheKey struct {
	segmentBase uint64
	offset      uint64
}

// batchCache is an optional cache of decoded batches, an LRU sized by
// batch count rather than bytes, since record batches vary wildly in size
// and the cache exists to avoid re-decoding hot reads, not to bound
// memory precisely.
type batchCache struct {
	lru *lru.Cache
}

func newBatchCache(size int) *batchCache {
	if size <= 0 {
		return nil
	}
	c, err := lru.New(size)
	if err != nil {
		return nil
	}
	return &batchCache{lru: c}
}

func (c *batchCache) get(segmentBase, offset uint64) (types.RecordBatch, bool) {
	if c == nil {
		return types.RecordBatch{}, false
	}
	v, ok := c.lru.Get(batchCacheKey{segmentBase, offset})
	if !ok {
		return types.RecordBatch{}, false
	}
	return v.(types.RecordBatch), true
}

func (c *batchCache) add(segmentBase, offset uint64, rb types.RecordBatch) {
	if c == nil {
		return
	}
	c.lru.Add(batchCacheKey{segmentBase, offset}, rb)
}

// purgeSegment evicts every cached batch belonging to segmentBase, used
// after compaction rewrites a segment's contents out from under any
// offsets already cached from it.
func (c *batchCache) purgeSegment(segmentBase uint64) {
	if c == nil {
		return
	}
	for _, k := range c.lru.Keys() {
		if key, ok := k.(batchCacheKey); ok && key.segmentBase == segmentBase {
			c.lru.Remove(key)
		}
	}
}
