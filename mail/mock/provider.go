// Package mock provides test doubles for the mail package.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/poiesic/mailgraph/core"
	"github.com/poiesic/mailgraph/mail"
)

// MockProvider is a test double for mail.Provider.
// It allows custom behavior injection via function fields; by default it
// serves the messages loaded with AddMessages, paging by PageSize.
type MockProvider struct {
	// ListFunc is called by List if set.
	ListFunc func(ctx context.Context, cred mail.Credential, q mail.Query) (*mail.Page, error)

	// GetFunc is called by Get if set.
	GetFunc func(ctx context.Context, cred mail.Credential, id string) (*core.Message, error)

	// PageSize bounds the default List paging. Defaults to 100.
	PageSize int

	mu        sync.Mutex
	messages  []*core.Message
	byId      map[string]*core.Message
	listCalls int
	getCalls  int
}

// NewMockProvider creates a mock provider with no messages.
// Returns the concrete type to allow test assertions on call counts.
func NewMockProvider() *MockProvider {
	return &MockProvider{byId: make(map[string]*core.Message)}
}

// AddMessages loads messages into the mock's mailbox.
func (m *MockProvider) AddMessages(messages ...*core.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, msg := range messages {
		m.messages = append(m.messages, msg)
		m.byId[msg.Id] = msg
	}
}

// List serves pages of loaded message ids, filtered by the query's After
// bound.
func (m *MockProvider) List(ctx context.Context, cred mail.Credential, q mail.Query) (*mail.Page, error) {
	m.mu.Lock()
	m.listCalls++
	m.mu.Unlock()

	if m.ListFunc != nil {
		return m.ListFunc(ctx, cred, q)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	pageSize := m.PageSize
	if pageSize < 1 {
		pageSize = 100
	}
	if q.MaxResults > 0 && q.MaxResults < pageSize {
		pageSize = q.MaxResults
	}

	var matching []string
	for _, msg := range m.messages {
		if !q.After.IsZero() && msg.Timestamp().Before(q.After) {
			continue
		}
		matching = append(matching, msg.Id)
	}

	start := 0
	if q.PageToken != "" {
		if _, err := fmt.Sscanf(q.PageToken, "page-%d", &start); err != nil {
			return nil, fmt.Errorf("bad page token %q", q.PageToken)
		}
	}
	if start >= len(matching) {
		return &mail.Page{SizeEstimate: len(matching)}, nil
	}

	end := start + pageSize
	if end > len(matching) {
		end = len(matching)
	}

	page := &mail.Page{
		Ids:          matching[start:end],
		SizeEstimate: len(matching),
	}
	if end < len(matching) {
		page.NextPageToken = fmt.Sprintf("page-%d", end)
	}
	return page, nil
}

// Get returns a loaded message by id.
func (m *MockProvider) Get(ctx context.Context, cred mail.Credential, id string) (*core.Message, error) {
	m.mu.Lock()
	m.getCalls++
	m.mu.Unlock()

	if m.GetFunc != nil {
		return m.GetFunc(ctx, cred, id)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.byId[id]
	if !ok {
		return nil, fmt.Errorf("%w: no message %q", core.ErrMalformedPayload, id)
	}
	return msg, nil
}

// ListCalls returns how many times List was called.
func (m *MockProvider) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

// GetCalls returns how many times Get was called.
func (m *MockProvider) GetCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getCalls
}
