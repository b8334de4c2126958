package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/DRSN-tech/photo-search/internal/domain"
	"github.com/DRSN-tech/photo-search/pkg/e"
	"github.com/jimlawless/whereami"
)

// VectorIndex: векторный индекс в памяти с полным перебором.
// Подходит для каталогов до десятков тысяч изображений. Безопасен для конкурентного использования.
type VectorIndex struct {
	mu      sync.RWMutex
	metric  domain.Metric
	dim     int
	entries map[string]domain.IndexEntry
}

func NewVectorIndex(metric domain.Metric, dim int) *VectorIndex {
	return &VectorIndex{
		metric:  metric,
		dim:     dim,
		entries: make(map[string]domain.IndexEntry),
	}
}

// Insert добавляет записи атомарно: при ошибке индекс не меняется.
func (m *VectorIndex) Insert(ctx context.Context, entries ...domain.IndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if len(entry.Vector) != m.dim {
			return e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: entry %s has %d, index has %d",
				e.ErrDimensionMismatch, entry.ID, len(entry.Vector), m.dim))
		}
		if _, ok := m.entries[entry.ID]; ok {
			return e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: %s", e.ErrDuplicateEntry, entry.ID))
		}
		if _, ok := seen[entry.ID]; ok {
			return e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: %s", e.ErrDuplicateEntry, entry.ID))
		}
		seen[entry.ID] = struct{}{}
	}

	for _, entry := range entries {
		cp := make([]float32, len(entry.Vector))
		copy(cp, entry.Vector)
		entry.Vector = cp
		m.entries[entry.ID] = entry
	}

	return nil
}

func (m *VectorIndex) Search(ctx context.Context, vector []float32, limit int) ([]domain.Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.entries) == 0 {
		return nil, e.Wrap(whereami.WhereAmI(), e.ErrIndexEmpty)
	}
	if len(vector) != m.dim {
		return nil, e.Wrap(whereami.WhereAmI(), fmt.Errorf("%w: query has %d, index has %d",
			e.ErrDimensionMismatch, len(vector), m.dim))
	}
	if limit <= 0 {
		return []domain.Hit{}, nil
	}

	hits := make([]domain.Hit, 0, len(m.entries))
	for _, entry := range m.entries {
		hits = append(hits, domain.Hit{
			ID:      entry.ID,
			Score:   m.metric.Score(vector, entry.Vector),
			Payload: entry.Payload,
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		di, dj := m.metric.ToDistance(hits[i].Score), m.metric.ToDistance(hits[j].Score)
		if di != dj {
			return di < dj
		}
		return hits[i].ID < hits[j].ID
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}

	return hits, nil
}

func (m *VectorIndex) Delete(ctx context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		delete(m.entries, id)
	}

	return nil
}

func (m *VectorIndex) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries = make(map[string]domain.IndexEntry)

	return nil
}

func (m *VectorIndex) Size(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.entries), nil
}

func (m *VectorIndex) Metric() domain.Metric {
	return m.metric
}
