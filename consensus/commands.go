package consensus

import (
	"bytes"
	"fmt"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

// CommandKind selects what a raft log entry does to a registered Log.
// Consensus in this engine is deliberately thin: the only state a Raft
// group needs to agree on is which term a partition is currently in and
// how far it is safe to compact.
type CommandKind uint8

const (
	SetTerm CommandKind = iota
	SetCollectibleOffset
)

func (k CommandKind) String() string {
	switch k {
	case SetTerm:
		return "set_term"
	case SetCollectibleOffset:
		return "set_collectible_offset"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Command is the payload of a single raft.Log entry.
type Command struct {
	Kind      CommandKind
	Namespace string
	Topic     string
	Partition uint32
	Term      uint64
	Offset    uint64
}

var msgpackHandle = &codec.MsgpackHandle{}

// EncodeCommand serializes cmd for raft.Raft.Apply using msgpack, already
// in the dependency closure pulled in by hashicorp/raft's own RPC layer.
func EncodeCommand(cmd Command) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, msgpackHandle)
	if err := enc.Encode(cmd); err != nil {
		return nil, fmt.Errorf("consensus: encode command: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeCommand is the inverse of EncodeCommand, applied to a raft.Log's
// Data field inside FSM.Apply.
func DecodeCommand(data []byte) (Command, error) {
	var cmd Command
	dec := codec.NewDecoderBytes(data, msgpackHandle)
	if err := dec.Decode(&cmd); err != nil {
		return Command{}, fmt.Errorf("consensus: decode command: %w", err)
	}
	return cmd, nil
}
