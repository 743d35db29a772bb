// internal/pipeline/store.go
package pipeline

import (
	"context"
	"sync"

	"meal-kcal/internal/models"
)

// RecognitionStore keeps one recognition per raw image path.
type RecognitionStore interface {
	GetRecognition(ctx context.Context, rawPath string) (models.RecognitionRecord, bool, error)
	PutRecognition(ctx context.Context, rec models.RecognitionRecord) error
	ListRecognitions(ctx context.Context) ([]models.RecognitionRecord, error)
}

// MemoryStore is a RecognitionStore that lives for one process.
type MemoryStore struct {
	mu    sync.RWMutex
	recs  map[string]models.RecognitionRecord
	order []string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{recs: make(map[string]models.RecognitionRecord)}
}

func (m *MemoryStore) GetRecognition(_ context.Context, rawPath string) (models.RecognitionRecord, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.recs[rawPath]
	return rec, ok, nil
}

func (m *MemoryStore) PutRecognition(_ context.Context, rec models.RecognitionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recs[rec.RawImagePath]; !ok {
		m.order = append(m.order, rec.RawImagePath)
	}
	m.recs[rec.RawImagePath] = rec
	return nil
}

// ListRecognitions returns records in insertion order.
func (m *MemoryStore) ListRecognitions(context.Context) ([]models.RecognitionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.RecognitionRecord, 0, len(m.order))
	for _, p := range m.order {
		out = append(out, m.recs[p])
	}
	return out, nil
}
