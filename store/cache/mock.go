package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hrygo/repairsense/store"
)

// MockRegister is an in-memory Register for testing that records every call.
type MockRegister struct {
	mu    sync.Mutex
	store map[string]store.ClassificationResult

	// FailSets makes every Set report failure without storing.
	FailSets bool

	GetCalls []string
	SetCalls []string
	SetTTLs  []time.Duration
}

// NewMockRegister creates a new MockRegister.
func NewMockRegister() *MockRegister {
	return &MockRegister{
		store: make(map[string]store.ClassificationResult),
	}
}

// Seed stores a value without recording a Set call.
func (m *MockRegister) Seed(key string, value store.ClassificationResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[key] = value
}

// Get retrieves a value from cache.
func (m *MockRegister) Get(_ context.Context, key string) (store.ClassificationResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetCalls = append(m.GetCalls, key)
	v, ok := m.store[key]
	return v, ok
}

// Set stores a value in cache.
func (m *MockRegister) Set(_ context.Context, key string, value store.ClassificationResult, ttl time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SetCalls = append(m.SetCalls, key)
	m.SetTTLs = append(m.SetTTLs, ttl)
	if m.FailSets {
		return false
	}
	m.store[key] = value
	return true
}

// Delete removes a value from cache.
func (m *MockRegister) Delete(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.store[key]
	delete(m.store, key)
	return ok
}

// Clear removes all values.
func (m *MockRegister) Clear(_ context.Context) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = make(map[string]store.ClassificationResult)
	return true
}

// Exists reports whether key is stored.
func (m *MockRegister) Exists(_ context.Context, key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.store[key]
	return ok
}

// Close is a no-op.
func (m *MockRegister) Close() error {
	return nil
}

// Value returns the stored value for key (for testing).
func (m *MockRegister) Value(key string) (store.ClassificationResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.store[key]
	return v, ok
}

// Ensure MockRegister implements Register
var _ Register = (*MockRegister)(nil)
