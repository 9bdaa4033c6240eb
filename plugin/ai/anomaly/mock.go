package anomaly

import (
	"context"
	"sync"
)

// MockDetector is a mock implementation of Detector for testing.
// Texts listed in Anomalies are flagged; everything else is normal.
type MockDetector struct {
	mu sync.Mutex

	Anomalies map[string]bool
	Err       error

	BatchCalls [][]string
}

// NewMockDetector creates a MockDetector flagging the given texts.
func NewMockDetector(anomalies ...string) *MockDetector {
	m := &MockDetector{Anomalies: make(map[string]bool)}
	for _, a := range anomalies {
		m.Anomalies[a] = true
	}
	return m
}

func (m *MockDetector) IsAnomaly(ctx context.Context, text string) (bool, error) {
	flags, err := m.IsAnomalyBatch(ctx, []string{text})
	if err != nil {
		return false, err
	}
	return flags[0], nil
}

func (m *MockDetector) IsAnomalyBatch(_ context.Context, texts []string) ([]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.BatchCalls = append(m.BatchCalls, append([]string(nil), texts...))
	if m.Err != nil {
		return nil, m.Err
	}
	flags := make([]bool, len(texts))
	for i, t := range texts {
		flags[i] = m.Anomalies[t]
	}
	return flags, nil
}

// CallCount returns the number of batch calls made.
func (m *MockDetector) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.BatchCalls)
}

// Ensure MockDetector implements Detector
var _ Detector = (*MockDetector)(nil)
