package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/pffise-create/PinhighAI-sub003/internal/ai"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
)

// MockProvider satisfies models.VisionProvider for testing. Every request is
// recorded so tests can assert on call order and batch contents.
type MockProvider struct {
	Name_        string
	CompleteFunc func(ctx context.Context, req models.CompletionRequest) (models.Completion, error)

	mu    sync.Mutex
	calls []models.CompletionRequest
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Complete(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return models.Completion{}, nil
}

// Calls returns a copy of the recorded requests in call order.
func (m *MockProvider) Calls() []models.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.CompletionRequest(nil), m.calls...)
}

// NewMockProvider returns a MockProvider that answers every call with a short
// narrative naming the call number and image count, using 100 tokens.
func NewMockProvider() *MockProvider {
	m := &MockProvider{Name_: "mock"}
	m.CompleteFunc = func(_ context.Context, req models.CompletionRequest) (models.Completion, error) {
		m.mu.Lock()
		n := len(m.calls)
		m.mu.Unlock()
		return models.Completion{
			Text:       fmt.Sprintf("Mock narrative %d covering %d frames.", n, len(req.Images)),
			TokensUsed: 100,
			Provider:   "mock",
			Model:      "mock-v1",
		}, nil
	}
	return m
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		CompleteFunc: func(_ context.Context, _ models.CompletionRequest) (models.Completion, error) {
			return models.Completion{}, err
		},
	}
}

// NewFailingOnCallProvider succeeds like NewMockProvider except on the n-th call (1-based).
func NewFailingOnCallProvider(n int, err error) *MockProvider {
	m := NewMockProvider()
	ok := m.CompleteFunc
	m.Name_ = "mock-failing-on-call"
	m.CompleteFunc = func(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
		m.mu.Lock()
		count := len(m.calls)
		m.mu.Unlock()
		if count == n {
			return models.Completion{}, err
		}
		return ok(ctx, req)
	}
	return m
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		CompleteFunc: func(ctx context.Context, _ models.CompletionRequest) (models.Completion, error) {
			<-ctx.Done()
			return models.Completion{}, ai.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements VisionProvider.
var _ models.VisionProvider = (*MockProvider)(nil)
