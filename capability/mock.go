package capability

import (
	"context"
	"sync"

	"github.com/stratgov/researchgraph/core"
)

// MockSearchProvider is an in-memory SearchProvider for tests and examples.
// Results are registered per query; unregistered queries return the default
// result set, which may be empty.
type MockSearchProvider struct {
	mu      sync.Mutex
	results map[string][]core.SearchResult
	defaults []core.SearchResult
	err     error
	calls   int
}

// NewMockSearchProvider constructs an empty mock provider.
func NewMockSearchProvider() *MockSearchProvider {
	return &MockSearchProvider{results: make(map[string][]core.SearchResult)}
}

var _ SearchProvider = (*MockSearchProvider)(nil)

// AddResults registers canned results for an exact query string.
func (m *MockSearchProvider) AddResults(query string, results ...core.SearchResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[query] = results
}

// SetDefaults registers results returned for any unregistered query.
func (m *MockSearchProvider) SetDefaults(results ...core.SearchResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaults = results
}

// SetError makes every subsequent Search call fail with err.
func (m *MockSearchProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls reports how many Search calls were made.
func (m *MockSearchProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Search implements SearchProvider.
func (m *MockSearchProvider) Search(_ context.Context, query string, limit int) ([]core.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	results, ok := m.results[query]
	if !ok {
		results = m.defaults
	}
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	out := make([]core.SearchResult, len(results))
	copy(out, results)
	return out, nil
}
