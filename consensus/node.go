package consensus

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"

	"github.com/streamstore/logengine/logging"
	"github.com/streamstore/logengine/logmanager"
)

// NodeConfig configures a single raft participant: its identity, bind
// address, data directory, and whether it should bootstrap a new cluster.
type NodeConfig struct {
	NodeID    string
	BindAddr  string
	DataDir   string
	Bootstrap bool
}

// Node wraps a raft.Raft instance applying Commands to an FSM backed by a
// logmanager.Manager. Cluster membership/transport beyond this single TCP
// listener is out of scope — the Node exists so the engine has somewhere
// to route term-bump and collectible-offset agreement, not to be a full
// clustering layer.
type Node struct {
	raft *raft.Raft
	fsm  *FSM
}

// NewNode sets up storage, snapshotting, and transport for raft and starts
// it: bolt-backed log/stable store, file snapshot store, TCP transport,
// optional single-node bootstrap.
func NewNode(cfg NodeConfig, logs *logmanager.Manager) (*Node, error) {
	dir := filepath.Join(cfg.DataDir, "raft")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("consensus: create data directory: %w", err)
	}

	store, err := raftboltdb.NewBoltStore(filepath.Join(dir, "bolt"))
	if err != nil {
		return nil, fmt.Errorf("consensus: create bolt store: %w", err)
	}

	snapshots, err := raft.NewFileSnapshotStore(filepath.Join(dir, "snapshot"), 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("consensus: create snapshot store: %w", err)
	}

	tcpAddr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("consensus: resolve address %s: %w", cfg.BindAddr, err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, tcpAddr, 10, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("consensus: create tcp transport: %w", err)
	}

	fsm := NewFSM(logs)

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)
	raftCfg.Logger = newHCLogAdapter("consensus")

	r, err := raft.NewRaft(raftCfg, fsm, store, store, snapshots, transport)
	if err != nil {
		return nil, fmt.Errorf("consensus: create raft instance: %w", err)
	}

	if cfg.Bootstrap {
		hasState, err := raft.HasExistingState(store, store, snapshots)
		if err != nil {
			return nil, fmt.Errorf("consensus: check existing state: %w", err)
		}
		if !hasState {
			future := r.BootstrapCluster(raft.Configuration{
				Servers: []raft.Server{{ID: raftCfg.LocalID, Address: transport.LocalAddr()}},
			})
			if err := future.Error(); err != nil {
				logging.Error("consensus: bootstrap cluster: %v", err)
			}
		}
	}

	return &Node{raft: r, fsm: fsm}, nil
}

// Apply encodes cmd and submits it to the raft group, blocking until it
// commits or timeout elapses.
func (n *Node) Apply(cmd Command, timeout time.Duration) error {
	data, err := EncodeCommand(cmd)
	if err != nil {
		return err
	}
	future := n.raft.Apply(data, timeout)
	return future.Error()
}

// IsLeader reports whether this node currently holds raft leadership.
func (n *Node) IsLeader() bool { return n.raft.State() == raft.Leader }

// Shutdown stops the raft instance.
func (n *Node) Shutdown() error {
	return n.raft.Shutdown().Error()
}
