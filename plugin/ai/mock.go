package ai

import (
	"context"
	"sync"
)

// MockEmbeddingService is a mock implementation of EmbeddingService for testing.
type MockEmbeddingService struct {
	mu sync.Mutex

	// Vectors maps input text to the vector to return.
	Vectors map[string][]float32
	// Default is returned for texts not present in Vectors.
	Default []float32
	// Err, when set, fails every call.
	Err error
	// Available controls IsAvailable.
	Available bool
	// CallCount counts backend calls (one per Embed, one per EmbedBatch).
	CallCount int
}

// NewMockEmbeddingService creates a mock that is available by default.
func NewMockEmbeddingService() *MockEmbeddingService {
	return &MockEmbeddingService{
		Vectors:   make(map[string][]float32),
		Default:   []float32{1, 0, 0},
		Available: true,
	}
}

func (m *MockEmbeddingService) Embed(_ context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	if m.Err != nil {
		return nil, m.Err
	}
	if vec, ok := m.Vectors[text]; ok {
		return vec, nil
	}
	return m.Default, nil
}

func (m *MockEmbeddingService) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CallCount++
	if m.Err != nil {
		return nil, m.Err
	}
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if vec, ok := m.Vectors[text]; ok {
			vectors[i] = vec
		} else {
			vectors[i] = m.Default
		}
	}
	return vectors, nil
}

func (m *MockEmbeddingService) Dimensions() int {
	return len(m.Default)
}

func (m *MockEmbeddingService) IsAvailable() bool {
	return m.Available
}

var _ EmbeddingService = (*MockEmbeddingService)(nil)
