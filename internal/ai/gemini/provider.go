package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pffise-create/PinhighAI-sub003/internal/ai/transport"
	"github.com/pffise-create/PinhighAI-sub003/internal/config"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
	"google.golang.org/genai"
)

// Provider implements models.VisionProvider using the Gemini API.
type Provider struct {
	client *genai.Client
	model  string
}

func NewProvider(ctx context.Context, cfg config.GeminiConfig, timeout time.Duration) (*Provider, error) {
	return newProvider(ctx, &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout},
	}, cfg.Model)
}

func newProvider(ctx context.Context, cc *genai.ClientConfig, model string) (*Provider, error) {
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Provider{client: client, model: model}, nil
}

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Text)}
	for _, img := range req.Images {
		mime := img.MimeType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, genai.NewPartFromBytes(img.Data, mime))
	}

	cfg := &genai.GenerateContentConfig{}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, []*genai.Content{
		{Role: genai.RoleUser, Parts: parts},
	}, cfg)
	if err != nil {
		return models.Completion{}, fmt.Errorf("gemini: %w", classify(err))
	}

	if len(resp.Candidates) == 0 {
		return models.Completion{}, fmt.Errorf("gemini: %w: no candidates", transport.ErrInvalidResponse)
	}
	text := strings.TrimSpace(resp.Text())

	out := models.Completion{
		Text:     text,
		Provider: p.Name(),
		Model:    p.model,
	}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	return out, nil
}

func classify(err error) error {
	var apiErr genai.APIError
	if asAPIError(err, &apiErr) {
		return transport.ClassifyStatus(apiErr.Code, apiErr.Message)
	}
	return transport.Classify(err)
}

var _ models.VisionProvider = (*Provider)(nil)

// asAPIError matches both value and pointer forms of genai.APIError.
func asAPIError(err error, target *genai.APIError) bool {
	if errors.As(err, target) {
		return true
	}
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		*target = *ptr
		return true
	}
	return false
}
