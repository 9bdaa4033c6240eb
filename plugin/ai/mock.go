package ai

import (
	"context"
	"sync"
)

// MockEmbeddingService is a mock implementation of EmbeddingService for testing.
// Vectors are looked up by text; unknown texts get DefaultVector.
type MockEmbeddingService struct {
	mu sync.Mutex

	Vectors       map[string][]float32
	DefaultVector []float32
	Err           error
	ModelName     string

	BatchCalls [][]string
}

// NewMockEmbeddingService creates a new MockEmbeddingService.
func NewMockEmbeddingService(vectors map[string][]float32) *MockEmbeddingService {
	if vectors == nil {
		vectors = make(map[string][]float32)
	}
	return &MockEmbeddingService{Vectors: vectors, ModelName: "mock-embedding"}
}

func (m *MockEmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (m *MockEmbeddingService) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.BatchCalls = append(m.BatchCalls, append([]string(nil), texts...))
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if v, ok := m.Vectors[t]; ok {
			out[i] = v
		} else {
			out[i] = m.DefaultVector
		}
	}
	return out, nil
}

func (m *MockEmbeddingService) Model() string {
	return m.ModelName
}

func (m *MockEmbeddingService) Dimensions() int {
	return len(m.DefaultVector)
}

// CallCount returns the number of EmbedBatch calls.
func (m *MockEmbeddingService) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.BatchCalls)
}

// Ensure MockEmbeddingService implements EmbeddingService
var _ EmbeddingService = (*MockEmbeddingService)(nil)
