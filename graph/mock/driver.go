// Package mock provides a recording test double for the graph package.
package mock

import (
	"context"
	"sync"

	"github.com/poiesic/mailgraph/graph"
)

// Call records one ExecuteQuery invocation.
type Call struct {
	Query  string
	Params map[string]any
}

// MockDriver is a test double for graph.Driver.
// It records every query and allows custom behavior injection via function
// fields.
type MockDriver struct {
	// ExecuteQueryFunc is called by ExecuteQuery if set.
	// If nil, ExecuteQuery records the call and returns no rows.
	ExecuteQueryFunc func(ctx context.Context, query string, params map[string]any) ([]graph.Row, error)

	mu      sync.Mutex
	calls   []Call
	indexes []string
	closed  bool
}

// NewMockDriver creates a mock driver.
// Returns the concrete type to allow test assertions on recorded calls.
func NewMockDriver() *MockDriver {
	return &MockDriver{}
}

// ExecuteQuery records the call and delegates to ExecuteQueryFunc if set.
func (m *MockDriver) ExecuteQuery(ctx context.Context, query string, params map[string]any) ([]graph.Row, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Call{Query: query, Params: params})
	m.mu.Unlock()

	if m.ExecuteQueryFunc != nil {
		return m.ExecuteQueryFunc(ctx, query, params)
	}
	return nil, nil
}

// EnsureIndex records the requested index.
func (m *MockDriver) EnsureIndex(ctx context.Context, label, property string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexes = append(m.indexes, label+"."+property)
	return nil
}

// Close marks the driver closed.
func (m *MockDriver) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Calls returns a copy of the recorded ExecuteQuery calls.
func (m *MockDriver) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Indexes returns the recorded index requests as "Label.property" strings.
func (m *MockDriver) Indexes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.indexes))
	copy(out, m.indexes)
	return out
}

// Closed reports whether Close was called.
func (m *MockDriver) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
