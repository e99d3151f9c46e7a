package storage

import "github.com/streamstore/logengine/utils"

// EventKind distinguishes the lifecycle notifications a Log emits so
// retention/roll policies and observers can react without polling the
// filesystem.
type EventKind int

const (
	SegmentCreated EventKind = iota
	SegmentFlushed
	SegmentSealed
	SegmentRemoved
)

func (k EventKind) String() string {
	switch k {
	case SegmentCreated:
		return "segment_created"
	case SegmentFlushed:
		return "segment_flushed"
	case SegmentSealed:
		return "segment_sealed"
	case SegmentRemoved:
		return "segment_removed"
	default:
		return "unknown"
	}
}

// Event is one lifecycle notification about a segment belonging to a Log.
type Event struct {
	Kind       EventKind
	BaseOffset uint64
	SizeBytes  int64
	AtUnixMs   uint64
}

// Events returns the Log's event channel. Sends never block: the channel
// is buffered, and when it is full the new event is dropped, so an observer
// that does not keep up misses events. It lets observers follow growth
// without probing the file (§4.3); it is not a durable log of its own.
func (l *Log) Events() <-chan Event { return l.events }

func (l *Log) emit(ev Event) {
	ev.AtUnixMs = utils.NowAsUnixMilli()
	select {
	case l.events <- ev:
	default:
	}
}
