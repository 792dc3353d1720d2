package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pffise-create/PinhighAI-sub003/internal/ai/transport"
	"github.com/pffise-create/PinhighAI-sub003/internal/config"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
)

const chatCompletionsPath = "/v1/chat/completions"

// Provider implements models.VisionProvider against any server that speaks the
// OpenAI chat completions API. Ollama and vLLM reuse it with their own base URLs.
type Provider struct {
	name    string
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewProvider(cfg config.OpenAIConfig, timeout time.Duration) *Provider {
	return NewCompatible("openai", cfg.BaseURL, cfg.APIKey, cfg.Model, timeout)
}

// NewCompatible creates a provider for an OpenAI-compatible endpoint.
// apiKey may be empty for local servers.
func NewCompatible(name, baseURL, apiKey, model string, timeout time.Duration) *Provider {
	return &Provider{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
	body := chatRequest{
		Model:     p.model,
		MaxTokens: req.MaxTokens,
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{
			Role:    "system",
			Content: []contentPart{{Type: "text", Text: req.System}},
		})
	}

	user := chatMessage{Role: "user", Content: []contentPart{{Type: "text", Text: req.Text}}}
	for _, img := range req.Images {
		user.Content = append(user.Content, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: dataURI(img)},
		})
	}
	body.Messages = append(body.Messages, user)

	var resp chatResponse
	if err := transport.PostJSON(ctx, p.client, p.baseURL+chatCompletionsPath, p.headers(), body, &resp); err != nil {
		return models.Completion{}, fmt.Errorf("%s: %w", p.name, err)
	}

	if len(resp.Choices) == 0 {
		return models.Completion{}, fmt.Errorf("%s: %w: no choices", p.name, transport.ErrInvalidResponse)
	}
	// Empty content is returned as-is; callers decide whether it is fatal.
	text := strings.TrimSpace(resp.Choices[0].Message.Content)

	model := resp.Model
	if model == "" {
		model = p.model
	}
	return models.Completion{
		Text:       text,
		TokensUsed: resp.Usage.TotalTokens,
		Provider:   p.name,
		Model:      model,
	}, nil
}

func (p *Provider) headers() map[string]string {
	if p.apiKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + p.apiKey}
}

func dataURI(img models.Image) string {
	mime := img.MimeType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// --- wire types ---

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

var _ models.VisionProvider = (*Provider)(nil)
