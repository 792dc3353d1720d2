package anthropic

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/pffise-create/PinhighAI-sub003/internal/ai/transport"
	"github.com/pffise-create/PinhighAI-sub003/internal/config"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
)

// Provider implements models.VisionProvider using the Anthropic Messages API.
type Provider struct {
	client anthropic.Client
	model  string
}

// NewProvider builds a client from cfg. Extra options are appended after the
// defaults, which lets tests point the client at a local server.
func NewProvider(cfg config.AnthropicConfig, timeout time.Duration, opts ...option.RequestOption) *Provider {
	base := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithRequestTimeout(timeout),
	}
	return &Provider{
		client: anthropic.NewClient(append(base, opts...)...),
		model:  cfg.Model,
	}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Complete(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
	blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(req.Text)}
	for _, img := range req.Images {
		mime := img.MimeType
		if mime == "" {
			mime = "image/jpeg"
		}
		blocks = append(blocks, anthropic.NewImageBlockBase64(mime, base64.StdEncoding.EncodeToString(img.Data)))
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(req.MaxTokens),
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(blocks...)},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return models.Completion{}, fmt.Errorf("anthropic: %w", classify(err))
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return models.Completion{
		Text:       strings.TrimSpace(text.String()),
		TokensUsed: int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		Provider:   p.Name(),
		Model:      string(resp.Model),
	}, nil
}

func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return transport.ClassifyStatus(apiErr.StatusCode, apiErr.Error())
	}
	return transport.Classify(err)
}

var _ models.VisionProvider = (*Provider)(nil)
