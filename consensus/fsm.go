package consensus

import (
	"bytes"
	"fmt"
	"io"

	"github.com/hashicorp/go-msgpack/v2/codec"
	"github.com/hashicorp/raft"

	"github.com/streamstore/logengine/logging"
	"github.com/streamstore/logengine/logmanager"
	"github.com/streamstore/logengine/snapshot"
	"github.com/streamstore/logengine/types"
)

// FSM applies committed Commands to the node's registered Logs. It knows
// nothing about segments, offsets, or recovery beyond the two setters it
// calls — the heavy storage logic it defers to lives in logmanager/storage.
type FSM struct {
	logs *logmanager.Manager
}

// NewFSM wraps logs for use as a raft.FSM.
func NewFSM(logs *logmanager.Manager) *FSM {
	return &FSM{logs: logs}
}

// Apply decodes and applies one committed raft.Log entry, dispatching on
// log.Type.
func (f *FSM) Apply(l *raft.Log) any {
	switch l.Type {
	case raft.LogCommand:
		cmd, err := DecodeCommand(l.Data)
		if err != nil {
			return fmt.Errorf("consensus: apply: %w", err)
		}
		return f.applyCommand(cmd)
	default:
		return fmt.Errorf("consensus: unknown raft log type: %v", l.Type)
	}
}

func (f *FSM) applyCommand(cmd Command) error {
	ntp := types.NTP{Namespace: cmd.Namespace, Topic: cmd.Topic, Partition: cmd.Partition}
	log, ok := f.logs.Get(ntp)
	if !ok {
		logging.Warn("consensus: %v command for unregistered partition %s", cmd.Kind, ntp)
		return nil
	}
	switch cmd.Kind {
	case SetTerm:
		log.SetTerm(cmd.Term)
	case SetCollectibleOffset:
		log.SetCollectibleOffset(cmd.Offset)
	default:
		return fmt.Errorf("consensus: unknown command kind %v", cmd.Kind)
	}
	return nil
}

type snapshotEntry struct {
	Namespace         string
	Topic             string
	Partition         uint32
	Term              uint64
	CollectibleOffset uint64
	HasCollectible    bool
}

type fsmSnapshot struct {
	entries []snapshotEntry
}

// Snapshot captures term and collectible-offset for every registered
// partition — the state a restored follower needs to resume enforcing
// retention/compaction bounds correctly.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	var entries []snapshotEntry
	for _, log := range f.logs.All() {
		ntp := log.NTP()
		entry := snapshotEntry{
			Namespace: ntp.Namespace,
			Topic:     ntp.Topic,
			Partition: ntp.Partition,
			Term:      log.Term(),
		}
		if offset, ok := log.CollectibleOffset(); ok {
			entry.CollectibleOffset = offset
			entry.HasCollectible = true
		}
		entries = append(entries, entry)
	}
	return &fsmSnapshot{entries: entries}, nil
}

// Persist frames the encoded entries with the same header/payload/
// terminator-crc layout the per-partition snapshot files on disk use,
// via snapshot.EncodeFrame. Raft's own snapshot store (raft.NewFileSnapshotStore
// in node.go) owns the file lifecycle around sink, so LastIncludedOffset/
// LastIncludedTerm are left zero here — the data they'd otherwise carry
// is already recorded per partition inside entries.
func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, msgpackHandle)
	if err := enc.Encode(s.entries); err != nil {
		sink.Cancel()
		return fmt.Errorf("consensus: snapshot encode: %w", err)
	}
	frame := snapshot.EncodeFrame(snapshot.Metadata{}, buf.Bytes())
	if _, err := sink.Write(frame); err != nil {
		sink.Cancel()
		return fmt.Errorf("consensus: snapshot write: %w", err)
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}

// Restore replays a snapshot's per-partition term/collectible-offset state
// onto whatever Logs are registered at restore time.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("consensus: restore read: %w", err)
	}
	_, payload, err := snapshot.DecodeFrame(data)
	if err != nil {
		return fmt.Errorf("consensus: restore decode frame: %w", err)
	}
	var entries []snapshotEntry
	dec := codec.NewDecoderBytes(payload, msgpackHandle)
	if err := dec.Decode(&entries); err != nil {
		return fmt.Errorf("consensus: restore decode: %w", err)
	}
	for _, e := range entries {
		ntp := types.NTP{Namespace: e.Namespace, Topic: e.Topic, Partition: e.Partition}
		log, ok := f.logs.Get(ntp)
		if !ok {
			logging.Warn("consensus: restore: skipping unregistered partition %s", ntp)
			continue
		}
		log.SetTerm(e.Term)
		if e.HasCollectible {
			log.SetCollectibleOffset(e.CollectibleOffset)
		}
	}
	return nil
}
