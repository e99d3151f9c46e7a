package storage

import "testing"

func segAt(base uint64, committed uint64) *Segment {
	s := &Segment{baseOffset: base, maxOffset: committed}
	s.committed.Store(committed)
	return s
}

func TestSegmentSetOrderingAndLookup(t *testing.T) {
	ss := NewSegmentSet()
	ss.Insert(segAt(0, 9))
	ss.Insert(segAt(10, 19))
	ss.Insert(segAt(20, 29))

	if got, ok := ss.Lookup(15); !ok || got.BaseOffset() != 10 {
		t.Fatalf("lookup(15) = %v, want base 10", got)
	}
	if got, ok := ss.Lookup(0); !ok || got.BaseOffset() != 0 {
		t.Fatalf("lookup(0) = %v, want base 0", got)
	}
	if _, ok := ss.Lookup(100); !ok {
		t.Fatalf("lookup past the end should return the last segment")
	}

	first, ok := ss.First()
	if !ok || first.BaseOffset() != 0 {
		t.Fatalf("first = %v, want base 0", first)
	}
	last, ok := ss.Last()
	if !ok || last.BaseOffset() != 20 {
		t.Fatalf("last = %v, want base 20", last)
	}
}

func TestSegmentSetNextAfter(t *testing.T) {
	ss := NewSegmentSet()
	ss.Insert(segAt(0, 9))
	ss.Insert(segAt(10, 19))

	next, ok := ss.NextAfter(0)
	if !ok || next.BaseOffset() != 10 {
		t.Fatalf("next_after(0) = %v, want base 10", next)
	}
	if _, ok := ss.NextAfter(10); ok {
		t.Fatalf("expected no segment after the last one")
	}
}

func TestSegmentSetPopFrontBack(t *testing.T) {
	ss := NewSegmentSet()
	ss.Insert(segAt(0, 9))
	ss.Insert(segAt(10, 19))
	ss.Insert(segAt(20, 29))

	front, ok := ss.PopFront()
	if !ok || front.BaseOffset() != 0 {
		t.Fatalf("pop_front = %v, want base 0", front)
	}
	back, ok := ss.PopBack()
	if !ok || back.BaseOffset() != 20 {
		t.Fatalf("pop_back = %v, want base 20", back)
	}
	if ss.Len() != 1 {
		t.Fatalf("len = %d, want 1", ss.Len())
	}
}

func TestSegmentSetValidateMonotonicDetectsOverlap(t *testing.T) {
	ss := NewSegmentSet()
	ss.Insert(segAt(0, 15)) // committed past the next segment's base
	ss.Insert(segAt(10, 19))
	if err := ss.ValidateMonotonic(); err == nil {
		t.Fatalf("expected overlap to be detected")
	}
}

func TestSegmentSetValidateMonotonicAcceptsGaps(t *testing.T) {
	ss := NewSegmentSet()
	ss.Insert(segAt(0, 9))
	ss.Insert(segAt(50, 59)) // compaction can leave an intentional gap
	if err := ss.ValidateMonotonic(); err != nil {
		t.Fatalf("unexpected error for a non-overlapping gap: %v", err)
	}
}
