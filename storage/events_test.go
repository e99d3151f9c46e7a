package storage

import "testing"

func TestAppendEmitsSegmentCreatedEvent(t *testing.T) {
	dir := t.TempDir()
	l := NewLog(testNTP(), dir, testConfig(dir))
	defer l.Close()

	mustAppend(t, l, "k", "v")
	select {
	case ev := <-l.Events():
		if ev.Kind != SegmentCreated {
			t.Fatalf("event kind = %v, want SegmentCreated", ev.Kind)
		}
		if ev.AtUnixMs == 0 {
			t.Fatalf("expected AtUnixMs to be stamped")
		}
	default:
		t.Fatalf("expected a segment_created event after the first append")
	}
}

func TestFlushEmitsSegmentFlushedEvent(t *testing.T) {
	dir := t.TempDir()
	l := NewLog(testNTP(), dir, testConfig(dir))
	defer l.Close()

	mustAppend(t, l, "k", "v")
	<-l.Events() // drain the segment_created event from the append above

	if err := l.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	select {
	case ev := <-l.Events():
		if ev.Kind != SegmentFlushed {
			t.Fatalf("event kind = %v, want SegmentFlushed", ev.Kind)
		}
		if ev.SizeBytes <= 0 {
			t.Fatalf("expected a positive SizeBytes, got %d", ev.SizeBytes)
		}
	default:
		t.Fatalf("expected a segment_flushed event after Flush")
	}
}

func TestEventKindString(t *testing.T) {
	cases := map[EventKind]string{
		SegmentCreated: "segment_created",
		SegmentFlushed: "segment_flushed",
		SegmentSealed:  "segment_sealed",
		SegmentRemoved: "segment_removed",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Fatalf("%v.String() = %q, want %q", kind, got, want)
		}
	}
	if got := EventKind(99).String(); got != "unknown" {
		t.Fatalf("unknown kind string = %q, want %q", got, "unknown")
	}
}
