package ai

import (
	"context"
	"sync"
)

// MockProvider is a test double for AI providers. Each call consumes the next
// entry of Responses and Errs; once a script runs out its last entry repeats.
type MockProvider struct {
	Responses []string
	Errs      []error

	mu       sync.Mutex
	requests []CompletionRequest
}

// NewMockProvider creates a MockProvider that returns the given responses in
// order.
func NewMockProvider(responses ...string) *MockProvider {
	return &MockProvider{Responses: responses}
}

func (m *MockProvider) Complete(_ context.Context, req CompletionRequest) (CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.requests)
	m.requests = append(m.requests, req)
	if err := pick(m.Errs, n); err != nil {
		return CompletionResponse{}, err
	}
	content := pick(m.Responses, n)
	return CompletionResponse{
		Content:      content,
		Model:        "mock",
		InputTokens:  10,
		OutputTokens: len(content),
	}, nil
}

func (m *MockProvider) Models() []ModelInfo {
	return []ModelInfo{
		{ID: "mock", Name: "Mock Model", MaxTokens: 4096, Description: "Test mock"},
	}
}

func (m *MockProvider) HealthCheck(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Errs) > 0 {
		return m.Errs[len(m.Errs)-1]
	}
	return nil
}

// Calls returns how many completions were requested.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// LastRequest returns the most recent request, or nil.
func (m *MockProvider) LastRequest() *CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	req := m.requests[len(m.requests)-1]
	return &req
}

func pick[T any](script []T, i int) T {
	var zero T
	if len(script) == 0 {
		return zero
	}
	return script[min(i, len(script)-1)]
}
