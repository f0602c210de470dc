package vectorstore

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Memory is an in-process Store.
type Memory struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
}

func NewMemory() *Memory {
	return &Memory{collections: make(map[string]map[string]Document)}
}

func (m *Memory) Upsert(_ context.Context, collection string, docs []Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if !ok {
		c = make(map[string]Document)
		m.collections[collection] = c
	}
	for _, d := range docs {
		if d.ID == "" {
			return fmt.Errorf("vectorstore: document without id in %s", collection)
		}
		d.Vector = slices.Clone(d.Vector)
		c[d.ID] = d
	}
	return nil
}

func (m *Memory) Search(_ context.Context, collection string, vector []float64, topK int) ([]Match, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := m.collections[collection]
	matches := make([]Match, 0, len(c))
	for _, d := range c {
		if len(d.Vector) != len(vector) {
			return nil, fmt.Errorf("vectorstore: dimension mismatch in %s: index %d, query %d", collection, len(d.Vector), len(vector))
		}
		matches = append(matches, Match{
			ID:          d.ID,
			Name:        d.Name,
			Description: d.Description,
			Similarity:  innerProduct(d.Vector, vector),
		})
	}
	return rank(matches, topK), nil
}

// Len reports the number of documents in a collection.
func (m *Memory) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.collections[collection])
}

func innerProduct(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
