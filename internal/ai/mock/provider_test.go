package mock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pffise-create/PinhighAI-sub003/internal/ai"
	"github.com/pffise-create/PinhighAI-sub003/internal/ai/mock"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest() models.CompletionRequest {
	return models.CompletionRequest{
		Text:   "describe the swing",
		Images: []models.Image{{Data: []byte{1}}, {Data: []byte{2}}},
	}
}

// --- NewMockProvider ---

func TestNewMockProvider_Name(t *testing.T) {
	p := mock.NewMockProvider()
	assert.Equal(t, "mock", p.Name())
}

func TestNewMockProvider_Complete(t *testing.T) {
	p := mock.NewMockProvider()
	out, err := p.Complete(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Mock narrative 1 covering 2 frames.", out.Text)
	assert.Equal(t, 100, out.TokensUsed)
	assert.Equal(t, "mock", out.Provider)
}

func TestNewMockProvider_RecordsCalls(t *testing.T) {
	p := mock.NewMockProvider()
	for i := 0; i < 3; i++ {
		_, err := p.Complete(context.Background(), sampleRequest())
		require.NoError(t, err)
	}
	calls := p.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "describe the swing", calls[0].Text)
}

// --- NewFailingProvider ---

func TestNewFailingProvider(t *testing.T) {
	sentinel := errors.New("boom")
	p := mock.NewFailingProvider(sentinel)
	_, err := p.Complete(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, "mock-failing", p.Name())
}

func TestNewFailingOnCallProvider(t *testing.T) {
	sentinel := errors.New("second call fails")
	p := mock.NewFailingOnCallProvider(2, sentinel)

	_, err := p.Complete(context.Background(), sampleRequest())
	require.NoError(t, err)
	_, err = p.Complete(context.Background(), sampleRequest())
	assert.ErrorIs(t, err, sentinel)
	_, err = p.Complete(context.Background(), sampleRequest())
	assert.NoError(t, err)
}

// --- NewTimeoutProvider ---

func TestNewTimeoutProvider(t *testing.T) {
	p := mock.NewTimeoutProvider()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Complete(ctx, sampleRequest())
	assert.ErrorIs(t, err, ai.ErrInferenceTimeout)
}

// --- Zero value ---

func TestMockProvider_ZeroValue(t *testing.T) {
	p := &mock.MockProvider{Name_: "bare"}
	out, err := p.Complete(context.Background(), sampleRequest())
	require.NoError(t, err)
	assert.Empty(t, out.Text)
}
