package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/Benny93/fedgraph/internal/federation"
)

// MemoryBackend is an in-memory implementation of StorageBackend for testing.
type MemoryBackend struct {
	mu   sync.RWMutex
	feds map[string]*federation.Federation
}

// NewMemoryBackend creates a new in-memory storage backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		feds: make(map[string]*federation.Federation),
	}
}

// Initialize implements StorageBackend.
func (m *MemoryBackend) Initialize(path string, readOnly bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.feds == nil {
		m.feds = make(map[string]*federation.Federation)
	}
	return nil
}

// Close implements StorageBackend.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feds = nil
	return nil
}

// SaveFederation implements StorageBackend.
func (m *MemoryBackend) SaveFederation(ctx context.Context, fed *federation.Federation) error {
	if fed.Name == "" {
		return ErrInvalidName
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.feds == nil {
		return ErrNotInitialized
	}
	stored := *fed
	m.feds[fed.Name] = &stored
	return nil
}

// LoadFederation implements StorageBackend.
func (m *MemoryBackend) LoadFederation(ctx context.Context, name string) (*federation.Federation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fed, ok := m.feds[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	out := *fed
	return &out, nil
}

// GetSummary implements StorageBackend.
func (m *MemoryBackend) GetSummary(ctx context.Context, name string) (*federation.Summary, error) {
	fed, err := m.LoadFederation(ctx, name)
	if err != nil {
		return nil, err
	}
	s := fed.Summary()
	return &s, nil
}

// ListFederations implements StorageBackend.
func (m *MemoryBackend) ListFederations(ctx context.Context) ([]federation.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	summaries := make([]federation.Summary, 0, len(m.feds))
	for _, fed := range m.feds {
		summaries = append(summaries, fed.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Name < summaries[j].Name
	})
	return summaries, nil
}

// DeleteFederation implements StorageBackend.
func (m *MemoryBackend) DeleteFederation(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.feds[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(m.feds, name)
	return nil
}

// FederationCount implements StorageBackend.
func (m *MemoryBackend) FederationCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.feds)
}
