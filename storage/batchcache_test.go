package storage

import (
	"testing"

	"github.com/streamstore/logengine/types"
)

func TestBatchCacheGetAddRoundTrip(t *testing.T) {
	c := newBatchCache(8)
	rb := types.RecordBatch{BaseOffset: 5}
	if _, ok := c.get(1, 5); ok {
		t.Fatalf("expected miss before add")
	}
	c.add(1, 5, rb)
	got, ok := c.get(1, 5)
	if !ok || got.BaseOffset != 5 {
		t.Fatalf("get after add = (%+v,%v), want a hit at base_offset 5", got, ok)
	}
}

func TestBatchCacheDistinguishesSegments(t *testing.T) {
	c := newBatchCache(8)
	c.add(1, 0, types.RecordBatch{BaseOffset: 0})
	if _, ok := c.get(2, 0); ok {
		t.Fatalf("same offset in a different segment should not hit")
	}
}

func TestBatchCachePurgeSegmentEvictsOnlyThatSegment(t *testing.T) {
	c := newBatchCache(8)
	c.add(1, 0, types.RecordBatch{BaseOffset: 0})
	c.add(2, 0, types.RecordBatch{BaseOffset: 0})
	c.purgeSegment(1)
	if _, ok := c.get(1, 0); ok {
		t.Fatalf("expected segment 1's entry to be purged")
	}
	if _, ok := c.get(2, 0); !ok {
		t.Fatalf("expected segment 2's entry to survive the purge")
	}
}

func TestBatchCacheDisabledWhenSizeIsZero(t *testing.T) {
	c := newBatchCache(0)
	if c != nil {
		t.Fatalf("expected a nil cache when size is 0")
	}
}

func TestBatchCacheNilReceiverIsSafeNoOp(t *testing.T) {
	var c *batchCache
	c.add(1, 0, types.RecordBatch{})
	c.purgeSegment(1)
	if _, ok := c.get(1, 0); ok {
		t.Fatalf("nil cache must always report a miss")
	}
}
