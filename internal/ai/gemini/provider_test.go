package gemini

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/pffise-create/PinhighAI-sub003/internal/ai/transport"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

func newTestProvider(t *testing.T, h http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	p, err := newProvider(context.Background(), &genai.ClientConfig{
		APIKey:      "gm-test",
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  srv.Client(),
		HTTPOptions: genai.HTTPOptions{BaseURL: srv.URL},
	}, "gemini-test")
	require.NoError(t, err)
	return p
}

func TestComplete_Success(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "gemini-test:generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"Hips lead the downswing."}]}}],
			"usageMetadata":{"promptTokenCount":90,"candidatesTokenCount":10,"totalTokenCount":100}}`))
	})

	out, err := p.Complete(context.Background(), models.CompletionRequest{
		System:    "coach",
		Text:      "describe",
		MaxTokens: 200,
		Images:    []models.Image{{Data: []byte{0xff, 0xd8}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hips lead the downswing.", out.Text)
	assert.Equal(t, 100, out.TokensUsed)
	assert.Equal(t, "gemini", out.Provider)
}

func TestComplete_NoCandidates(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[]}`))
	})

	_, err := p.Complete(context.Background(), models.CompletionRequest{Text: "x"})
	assert.ErrorIs(t, err, transport.ErrInvalidResponse)
}

func TestComplete_EmptyTextReturnedAsIs(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":""}]}}]}`))
	})

	out, err := p.Complete(context.Background(), models.CompletionRequest{Text: "x"})
	require.NoError(t, err)
	assert.Empty(t, out.Text)
}

func TestComplete_ServerError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":{"code":503,"message":"overloaded","status":"UNAVAILABLE"}}`))
	})

	_, err := p.Complete(context.Background(), models.CompletionRequest{Text: "x"})
	assert.ErrorIs(t, err, transport.ErrProviderUnavailable)
}
