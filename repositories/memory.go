package repositories

import (
	"context"
	"slices"
	"sync"

	"github.com/cryptotracker/imagebuild/core/domain"
	"github.com/cryptotracker/imagebuild/core/ports"
	"go.opentelemetry.io/otel"
)

// MemoryStore implements BuildRepository with in-memory storage (maps)
type MemoryStore struct {
	builds map[string]domain.BuildRecord
	mu     sync.RWMutex
}

var _ ports.BuildRepository = (*MemoryStore)(nil)

// NewMemoryStorage initializes the MemoryStore struct and its maps
func NewMemoryStorage() *MemoryStore {
	return &MemoryStore{
		builds: map[string]domain.BuildRecord{},
	}
}

// GetBuild returns a build record from an in-memory map
func (m *MemoryStore) GetBuild(ctx context.Context, id string) (domain.BuildRecord, error) {
	_, span := otel.Tracer("").Start(ctx, "MemoryStore.GetBuild")
	defer span.End()

	m.mu.RLock()
	defer m.mu.RUnlock()
	if value, ok := m.builds[id]; ok {
		return value, nil
	}
	return domain.BuildRecord{}, domain.ErrBuildNotFound
}

// ListBuilds returns every record, most recent first
func (m *MemoryStore) ListBuilds(ctx context.Context) ([]domain.BuildRecord, error) {
	_, span := otel.Tracer("").Start(ctx, "MemoryStore.ListBuilds")
	defer span.End()

	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]domain.BuildRecord, 0, len(m.builds))
	for _, r := range m.builds {
		records = append(records, r)
	}
	slices.SortFunc(records, func(a, b domain.BuildRecord) int {
		return b.Started.Compare(a.Started)
	})
	return records, nil
}

// StoreBuild stores a build record to an in-memory map
func (m *MemoryStore) StoreBuild(ctx context.Context, record domain.BuildRecord) error {
	_, span := otel.Tracer("").Start(ctx, "MemoryStore.StoreBuild")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.builds[record.ID] = record
	return nil
}
