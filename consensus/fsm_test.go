package consensus

import (
	"bytes"
	"testing"

	"github.com/hashicorp/raft"

	"github.com/streamstore/logengine/logmanager"
	"github.com/streamstore/logengine/types"
)

func testManager(t *testing.T) (*logmanager.Manager, types.NTP) {
	t.Helper()
	dir := t.TempDir()
	m := logmanager.New(dir, types.DefaultConfiguration(dir))
	ntp := types.NTP{Namespace: "ns", Topic: "orders", Partition: 0}
	if _, err := m.GetOrCreate(ntp, types.Configuration{}); err != nil {
		t.Fatalf("get_or_create: %v", err)
	}
	return m, ntp
}

func TestFSMApplySetTerm(t *testing.T) {
	m, ntp := testManager(t)
	f := NewFSM(m)

	data, err := EncodeCommand(Command{Kind: SetTerm, Namespace: ntp.Namespace, Topic: ntp.Topic, Partition: ntp.Partition, Term: 7})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if res := f.Apply(&raft.Log{Type: raft.LogCommand, Data: data}); res != nil {
		t.Fatalf("apply returned %v, want nil", res)
	}

	log, ok := m.Get(ntp)
	if !ok {
		t.Fatalf("expected registered log")
	}
	if log.Term() != 7 {
		t.Fatalf("term = %d, want 7", log.Term())
	}
}

func TestFSMApplyUnregisteredPartitionIsANoop(t *testing.T) {
	m, _ := testManager(t)
	f := NewFSM(m)
	other := types.NTP{Namespace: "ns", Topic: "other", Partition: 9}
	data, err := EncodeCommand(Command{Kind: SetTerm, Namespace: other.Namespace, Topic: other.Topic, Partition: other.Partition, Term: 1})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if res := f.Apply(&raft.Log{Type: raft.LogCommand, Data: data}); res != nil {
		t.Fatalf("apply for an unregistered partition should not error, got %v", res)
	}
}

type fakeSink struct {
	bytes.Buffer
	canceled bool
}

func (s *fakeSink) ID() string    { return "fake" }
func (s *fakeSink) Cancel() error { s.canceled = true; return nil }
func (s *fakeSink) Close() error  { return nil }

func TestFSMSnapshotRestoreRoundTrip(t *testing.T) {
	m, ntp := testManager(t)
	log, _ := m.Get(ntp)
	log.SetTerm(5)
	log.SetCollectibleOffset(99)

	f := NewFSM(m)
	snap, err := f.Snapshot()
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	sink := &fakeSink{}
	if err := snap.Persist(sink); err != nil {
		t.Fatalf("persist: %v", err)
	}

	// simulate a restore onto a fresh manager where state was wiped.
	m2, ntp2 := testManager(t)
	if ntp2 != ntp {
		t.Fatalf("expected the same ntp across fresh managers")
	}
	f2 := NewFSM(m2)
	if err := f2.Restore(&readCloser{bytes.NewReader(sink.Bytes())}); err != nil {
		t.Fatalf("restore: %v", err)
	}
	log2, _ := m2.Get(ntp2)
	if log2.Term() != 5 {
		t.Fatalf("restored term = %d, want 5", log2.Term())
	}
	offset, ok := log2.CollectibleOffset()
	if !ok || offset != 99 {
		t.Fatalf("restored collectible offset = (%d,%v), want (99,true)", offset, ok)
	}
}

type readCloser struct {
	*bytes.Reader
}

func (readCloser) Close() error { return nil }
