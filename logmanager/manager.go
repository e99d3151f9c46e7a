// Package logmanager discovers a node's partition directories at startup,
// recovers each one's Log, and owns the per-NTP registry handed out to
// callers, keyed by an immutable radix tree instead of a global map
// guarded by ad hoc locking.
package logmanager

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/hashicorp/go-multierror"

	"github.com/streamstore/logengine/logging"
	"github.com/streamstore/logengine/storage"
	"github.com/streamstore/logengine/types"
	"github.com/streamstore/logengine/utils"
)

// Manager owns every partition Log on this node.
type Manager struct {
	mu   sync.Mutex
	tree *iradix.Tree

	baseDir string
	cfg     types.Configuration

	maintenancePeriod time.Duration
	stopMaintenance   chan struct{}
	maintenanceDone   chan struct{}
}

// New creates an empty Manager rooted at baseDir. Call Discover to recover
// whatever partitions already exist on disk.
func New(baseDir string, cfg types.Configuration) *Manager {
	return &Manager{
		tree:              iradix.New(),
		baseDir:           baseDir,
		cfg:               cfg,
		maintenancePeriod: time.Minute,
	}
}

func key(ntp types.NTP) []byte { return []byte(ntp.String()) }

// Get returns the Log for ntp, if one is registered.
func (m *Manager) Get(ntp types.NTP) (*storage.Log, bool) {
	m.mu.Lock()
	tree := m.tree
	m.mu.Unlock()
	v, ok := tree.Get(key(ntp))
	if !ok {
		return nil, false
	}
	return v.(*storage.Log), true
}

// GetOrCreate returns the existing Log for ntp, or recovers/creates one on
// disk under override (layered over the manager's default Configuration).
func (m *Manager) GetOrCreate(ntp types.NTP, override types.Configuration) (*storage.Log, error) {
	if log, ok := m.Get(ntp); ok {
		return log, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.tree.Get(key(ntp)); ok {
		return v.(*storage.Log), nil
	}
	dir := m.partitionDir(ntp)
	cfg := m.cfg.Override(override)
	log, err := storage.RecoverLog(dir, ntp, cfg)
	if err != nil {
		return nil, fmt.Errorf("logmanager: recover %s: %w", ntp, err)
	}
	newTree, _, _ := m.tree.Insert(key(ntp), log)
	m.tree = newTree
	return log, nil
}

func (m *Manager) partitionDir(ntp types.NTP) string {
	return filepath.Join(m.baseDir, ntp.Namespace, ntp.Topic, strconv.FormatUint(uint64(ntp.Partition), 10))
}

// Remove closes and deregisters ntp's Log. It does not delete its files.
func (m *Manager) Remove(ntp types.NTP) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.tree.Get(key(ntp))
	if !ok {
		return nil
	}
	log := v.(*storage.Log)
	newTree, _, _ := m.tree.Delete(key(ntp))
	m.tree = newTree
	return log.Close()
}

// All returns every currently registered Log.
func (m *Manager) All() []*storage.Log {
	m.mu.Lock()
	tree := m.tree
	m.mu.Unlock()
	logs := make([]*storage.Log, 0, tree.Len())
	tree.Root().Walk(func(_ []byte, v interface{}) bool {
		logs = append(logs, v.(*storage.Log))
		return false
	})
	return logs
}

// Discover walks baseDir/<namespace>/<topic>/<partition> and recovers
// every partition it finds, per §4.10 steps 1-2.
func (m *Manager) Discover() error {
	nsEntries, err := os.ReadDir(m.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return utils.EnsurePath(m.baseDir, true)
		}
		return fmt.Errorf("logmanager: discover: read %s: %w", m.baseDir, err)
	}
	for _, nsEntry := range nsEntries {
		if !nsEntry.IsDir() {
			continue
		}
		nsPath := filepath.Join(m.baseDir, nsEntry.Name())
		topicEntries, err := os.ReadDir(nsPath)
		if err != nil {
			return fmt.Errorf("logmanager: discover: read %s: %w", nsPath, err)
		}
		for _, topicEntry := range topicEntries {
			if !topicEntry.IsDir() {
				continue
			}
			topicPath := filepath.Join(nsPath, topicEntry.Name())
			partEntries, err := os.ReadDir(topicPath)
			if err != nil {
				return fmt.Errorf("logmanager: discover: read %s: %w", topicPath, err)
			}
			for _, partEntry := range partEntries {
				if !partEntry.IsDir() {
					continue
				}
				partition, err := strconv.ParseUint(partEntry.Name(), 10, 32)
				if err != nil {
					logging.Warn("logmanager: skipping non-numeric partition dir %s", filepath.Join(topicPath, partEntry.Name()))
					continue
				}
				ntp := types.NTP{Namespace: nsEntry.Name(), Topic: topicEntry.Name(), Partition: uint32(partition)}
				if _, err := m.GetOrCreate(ntp, types.Configuration{}); err != nil {
					return fmt.Errorf("logmanager: discover %s: %w", ntp, err)
				}
				logging.Info("logmanager: recovered partition %s", ntp)
			}
		}
	}
	return nil
}

// StartMaintenance launches the periodic flush/retention/compaction
// sweep.
func (m *Manager) StartMaintenance() {
	m.stopMaintenance = make(chan struct{})
	m.maintenanceDone = make(chan struct{})
	go m.maintenanceLoop()
}

func (m *Manager) maintenanceLoop() {
	defer close(m.maintenanceDone)
	ticker := time.NewTicker(m.maintenancePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.runMaintenanceSweep()
		case <-m.stopMaintenance:
			return
		}
	}
}

func (m *Manager) runMaintenanceSweep() {
	for _, log := range m.All() {
		if err := log.Flush(); err != nil {
			logging.Error("logmanager: flush %s: %v", log.NTP(), err)
		}
		if _, err := log.ApplyRetention(); err != nil {
			logging.Error("logmanager: retention %s: %v", log.NTP(), err)
		}
		if _, err := log.Compact(); err != nil {
			logging.Error("logmanager: compact %s: %v", log.NTP(), err)
		}
	}
}

// Stop halts maintenance and closes every managed Log in parallel,
// aggregating every failure rather than stopping at the first.
func (m *Manager) Stop() error {
	if m.stopMaintenance != nil {
		close(m.stopMaintenance)
		<-m.maintenanceDone
	}

	logs := m.All()
	var wg sync.WaitGroup
	errs := make(chan error, len(logs))
	for _, log := range logs {
		wg.Add(1)
		go func(l *storage.Log) {
			defer wg.Done()
			if err := l.Close(); err != nil {
				errs <- fmt.Errorf("%s: %w", l.NTP(), err)
			}
		}(log)
	}
	wg.Wait()
	close(errs)

	var result *multierror.Error
	for err := range errs {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
