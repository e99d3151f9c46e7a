package storage

import (
	"fmt"
	"sync"

	"github.com/google/btree"

	"github.com/streamstore/logengine/types"
)

// segItem adapts *Segment to btree.Item, ordered by base offset — the
// segment set is C7's tree map keyed by base_offset.
type segItem struct {
	seg *Segment
}

func (a segItem) Less(than btree.Item) bool {
	return a.seg.BaseOffset() < than.(segItem).seg.BaseOffset()
}

// SegmentSet is the ordered set of a partition's segments. All mutating
// operations assume the caller holds the owning Log's op_lock (§5); lookups
// may run concurrently with them under the tree's own lock.
type SegmentSet struct {
	mu   sync.RWMutex
	tree *btree.BTree
}

func NewSegmentSet() *SegmentSet {
	return &SegmentSet{tree: btree.New(8)}
}

// Insert adds seg. Per §4.7, only ever called at the tail, maintaining the
// monotonicity invariant that every existing segment's base offset is less
// than seg's.
func (ss *SegmentSet) Insert(seg *Segment) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.tree.ReplaceOrInsert(segItem{seg})
}

// Lookup returns the segment with the greatest base_offset <= offset.
func (ss *SegmentSet) Lookup(offset uint64) (*Segment, bool) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	var found *Segment
	ss.tree.DescendLessOrEqual(segItem{&Segment{baseOffset: offset}}, func(i btree.Item) bool {
		found = i.(segItem).seg
		return false
	})
	if found == nil {
		return nil, false
	}
	return found, true
}

// First returns the segment with the smallest base offset.
func (ss *SegmentSet) First() (*Segment, bool) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	item := ss.tree.Min()
	if item == nil {
		return nil, false
	}
	return item.(segItem).seg, true
}

// Last returns the segment with the greatest base offset — the active
// segment, by convention.
func (ss *SegmentSet) Last() (*Segment, bool) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	item := ss.tree.Max()
	if item == nil {
		return nil, false
	}
	return item.(segItem).seg, true
}

// PopFront removes and returns the segment with the smallest base offset.
func (ss *SegmentSet) PopFront() (*Segment, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	item := ss.tree.Min()
	if item == nil {
		return nil, false
	}
	ss.tree.Delete(item)
	return item.(segItem).seg, true
}

// PopBack removes and returns the segment with the greatest base offset.
func (ss *SegmentSet) PopBack() (*Segment, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	item := ss.tree.Max()
	if item == nil {
		return nil, false
	}
	ss.tree.Delete(item)
	return item.(segItem).seg, true
}

// NextAfter returns the segment with the smallest base offset strictly
// greater than baseOffset, used by the log reader to step across a segment
// boundary.
func (ss *SegmentSet) NextAfter(baseOffset uint64) (*Segment, bool) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	var found *Segment
	ss.tree.AscendGreaterOrEqual(segItem{&Segment{baseOffset: baseOffset + 1}}, func(i btree.Item) bool {
		found = i.(segItem).seg
		return false
	})
	if found == nil {
		return nil, false
	}
	return found, true
}

// Remove deletes seg from the set by its base offset.
func (ss *SegmentSet) Remove(seg *Segment) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.tree.Delete(segItem{seg})
}

// Len returns the number of segments in the set.
func (ss *SegmentSet) Len() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return ss.tree.Len()
}

// All returns every segment in ascending base-offset order.
func (ss *SegmentSet) All() []*Segment {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	segs := make([]*Segment, 0, ss.tree.Len())
	ss.tree.Ascend(func(i btree.Item) bool {
		segs = append(segs, i.(segItem).seg)
		return true
	})
	return segs
}

// ValidateMonotonic checks the invariant of §4.7: for consecutive segments
// S_i, S_{i+1}, S_i.committed_offset < S_{i+1}.base_offset.
func (ss *SegmentSet) ValidateMonotonic() error {
	segs := ss.All()
	for i := 1; i < len(segs); i++ {
		if segs[i-1].CommittedOffset() >= segs[i].BaseOffset() {
			return fmt.Errorf("segment set: overlap between segment base %d (committed %d) and segment base %d: %w",
				segs[i-1].BaseOffset(), segs[i-1].CommittedOffset(), segs[i].BaseOffset(), types.ErrInvalidArgument)
		}
	}
	return nil
}
