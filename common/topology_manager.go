package common

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"pce/metrics"
	"pce/topology"
)

// TopologyManager caches the latest topology read from a store. Every caller
// gets its own deep copy, so concurrent computations never share state.
type TopologyManager struct {
	store       topology.Store
	metrics     *metrics.Registry
	network     *topology.Network
	updatedAt   time.Time
	mutex       sync.RWMutex
	initialized bool
}

func NewTopologyManager(store topology.Store, m *metrics.Registry) *TopologyManager {
	return &TopologyManager{store: store, metrics: m}
}

// SetTopology replaces the snapshot with a copy of network.
func (tm *TopologyManager) SetTopology(network *topology.Network) error {
	if network == nil {
		return topology.ErrEmptyTopology
	}
	if err := network.Validate(); err != nil {
		return err
	}
	snapshot := network.Copy()

	tm.mutex.Lock()
	defer tm.mutex.Unlock()
	tm.network = snapshot
	tm.updatedAt = time.Now()
	tm.initialized = true
	log.Infof("SetTopology, node num: %d , link num: %d ", len(snapshot.Nodes), len(snapshot.Links))
	return nil
}

// Refresh reads the store and swaps in the result. A failed read keeps the
// previous snapshot.
func (tm *TopologyManager) Refresh(ctx context.Context) error {
	if tm.store == nil {
		return fmt.Errorf("refresh topology: no store configured")
	}
	network, err := tm.store.Read(ctx)
	if err == nil {
		err = tm.SetTopology(network)
	}
	if err != nil {
		tm.metrics.RecordTopology(err, 0, 0)
		return fmt.Errorf("refresh topology: %w", err)
	}
	tm.metrics.RecordTopology(nil, tm.NodeCount(), tm.LinkCount())
	return nil
}

func (tm *TopologyManager) IsInitialized() bool {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()
	return tm.initialized
}

// GetNetwork returns a copy of the current snapshot.
func (tm *TopologyManager) GetNetwork() (*topology.Network, error) {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	if !tm.initialized {
		return nil, topology.ErrNotLoaded
	}
	return tm.network.Copy(), nil
}

// Read makes the manager usable as a topology.Store, loading the snapshot on
// first use.
func (tm *TopologyManager) Read(ctx context.Context) (*topology.Network, error) {
	if !tm.IsInitialized() {
		if err := tm.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	return tm.GetNetwork()
}

func (tm *TopologyManager) UpdatedAt() time.Time {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()
	return tm.updatedAt
}

func (tm *TopologyManager) NodeCount() int {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()
	if tm.network == nil {
		return 0
	}
	return len(tm.network.Nodes)
}

func (tm *TopologyManager) LinkCount() int {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()
	if tm.network == nil {
		return 0
	}
	return len(tm.network.Links)
}

// Run refreshes the snapshot every interval until ctx is done.
func (tm *TopologyManager) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		log.Warnf("Run: refresh interval %v disabled periodic topology refresh", interval)
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Infof("Run: topology refresher stopped")
			return
		case <-ticker.C:
			if err := tm.Refresh(ctx); err != nil {
				log.Warningf("Run: %v, keeping snapshot from %s (%d nodes, %d links)",
					err, tm.UpdatedAt().Format(time.RFC3339), tm.NodeCount(), tm.LinkCount())
			}
		}
	}
}
