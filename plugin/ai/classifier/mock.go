package classifier

import (
	"context"
	"sync"

	"github.com/hrygo/repairsense/store"
)

// MockClassifier is a mock implementation of Classifier for testing.
// Texts missing from Results are classified as unknown/unknown.
type MockClassifier struct {
	mu sync.Mutex

	Results map[string]store.ClassificationResult
	Err     error

	BatchCalls [][]string
}

// NewMockClassifier creates a MockClassifier answering from results.
func NewMockClassifier(results map[string]store.ClassificationResult) *MockClassifier {
	if results == nil {
		results = make(map[string]store.ClassificationResult)
	}
	return &MockClassifier{Results: results}
}

func (m *MockClassifier) Predict(ctx context.Context, text string) (store.ClassificationResult, error) {
	results, err := m.PredictBatch(ctx, []string{text})
	if err != nil {
		return store.ClassificationResult{}, err
	}
	return results[0], nil
}

func (m *MockClassifier) PredictBatch(_ context.Context, texts []string) ([]store.ClassificationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.BatchCalls = append(m.BatchCalls, append([]string(nil), texts...))
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]store.ClassificationResult, len(texts))
	for i, t := range texts {
		if r, ok := m.Results[t]; ok {
			out[i] = r
		} else {
			out[i] = store.UnknownResult()
		}
	}
	return out, nil
}

// CallCount returns the number of batch calls made.
func (m *MockClassifier) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.BatchCalls)
}

// Ensure MockClassifier implements Classifier
var _ Classifier = (*MockClassifier)(nil)
