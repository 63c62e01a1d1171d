// Package pathstore keeps the node lists of computed services so later
// requests can ask to be diverse from them.
package pathstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// Store reads and writes service paths. GetPath reports found=false, not an
// error, when the service has no stored path.
type Store interface {
	GetPath(ctx context.Context, serviceName string) ([]string, bool, error)
	PutPath(ctx context.Context, serviceName string, nodes []string) error
	DeletePath(ctx context.Context, serviceName string) error
}

// record is the value kept by the remote backends.
type record struct {
	ServiceName string    `json:"service_name"`
	Nodes       []string  `json:"nodes"`
	StoredAt    time.Time `json:"stored_at"`
}

func encode(serviceName string, nodes []string) ([]byte, error) {
	data, err := json.Marshal(record{ServiceName: serviceName, Nodes: nodes, StoredAt: time.Now()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal path of %s: %w", serviceName, err)
	}
	return data, nil
}

func decode(serviceName string, data []byte) ([]string, error) {
	var r record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal path of %s: %w", serviceName, err)
	}
	return r.Nodes, nil
}

type MemoryStore struct {
	paths map[string][]string
	mu    sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{paths: make(map[string][]string)}
}

func (s *MemoryStore) GetPath(_ context.Context, serviceName string) ([]string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	nodes, ok := s.paths[serviceName]
	if !ok {
		return nil, false, nil
	}
	return append([]string(nil), nodes...), true, nil
}

func (s *MemoryStore) PutPath(_ context.Context, serviceName string, nodes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths[serviceName] = append([]string(nil), nodes...)
	return nil
}

func (s *MemoryStore) DeletePath(_ context.Context, serviceName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.paths, serviceName)
	return nil
}
