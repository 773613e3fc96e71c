// Package mock provides test doubles for the extract package.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/extract"
)

// MockEngine is a test double for extract.Engine.
// It allows custom behavior injection via function fields. The default
// Submit fabricates one Company, one Contact and one edge per episode so
// downstream normalization has something to chew on.
type MockEngine struct {
	// SubmitFunc is called by Submit if set.
	SubmitFunc func(ctx context.Context, episode *core.Episode) (*extract.Result, error)

	// SearchFactsFunc is called by SearchFacts if set.
	SearchFactsFunc func(ctx context.Context, query, tenantKey string, limit int) ([]extract.Fact, error)

	mu       sync.Mutex
	episodes []*core.Episode
	closed   bool
}

// NewMockEngine creates a mock engine.
// Returns the concrete type to allow test assertions on submissions.
func NewMockEngine() *MockEngine {
	return &MockEngine{}
}

// Submit records the episode and delegates to SubmitFunc if set.
func (m *MockEngine) Submit(ctx context.Context, episode *core.Episode) (*extract.Result, error) {
	m.mu.Lock()
	m.episodes = append(m.episodes, episode)
	n := len(m.episodes)
	m.mu.Unlock()

	if m.SubmitFunc != nil {
		return m.SubmitFunc(ctx, episode)
	}

	companyUUID := fmt.Sprintf("company-%d", n)
	contactUUID := fmt.Sprintf("contact-%d", n)
	return &extract.Result{
		EpisodeId: fmt.Sprintf("episode-%d", n),
		Nodes: []core.ExtractedEntity{
			{
				UUID:   companyUUID,
				Name:   "Acme Corporation",
				Labels: []string{"Entity", "Company"},
			},
			{
				UUID:       contactUUID,
				Name:       "Sarah Johnson",
				Labels:     []string{"Entity", "Contact"},
				Attributes: map[string]any{"email": "sarah@acme.com"},
			},
		},
		Edges: []core.ExtractedEdge{
			{
				UUID:       fmt.Sprintf("edge-%d", n),
				SourceUUID: contactUUID,
				TargetUUID: companyUUID,
				Type:       "WORKS_AT",
				Fact:       "Sarah Johnson works at Acme Corporation.",
			},
		},
	}, nil
}

// SearchFacts delegates to SearchFactsFunc if set, else returns no facts.
func (m *MockEngine) SearchFacts(ctx context.Context, query, tenantKey string, limit int) ([]extract.Fact, error) {
	if m.SearchFactsFunc != nil {
		return m.SearchFactsFunc(ctx, query, tenantKey, limit)
	}
	return nil, nil
}

// Close marks the engine closed.
func (m *MockEngine) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Episodes returns a copy of the submitted episodes in order.
func (m *MockEngine) Episodes() []*core.Episode {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*core.Episode, len(m.episodes))
	copy(out, m.episodes)
	return out
}

// SubmitCount returns how many episodes were submitted.
func (m *MockEngine) SubmitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.episodes)
}

// Closed reports whether Close was called.
func (m *MockEngine) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
