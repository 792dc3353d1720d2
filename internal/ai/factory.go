package ai

import (
	"context"
	"fmt"

	"github.com/pffise-create/PinhighAI-sub003/internal/ai/anthropic"
	"github.com/pffise-create/PinhighAI-sub003/internal/ai/gemini"
	"github.com/pffise-create/PinhighAI-sub003/internal/ai/ollama"
	"github.com/pffise-create/PinhighAI-sub003/internal/ai/openai"
	"github.com/pffise-create/PinhighAI-sub003/internal/ai/vllm"
	"github.com/pffise-create/PinhighAI-sub003/internal/config"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
)

// NewProvider constructs the named provider from config.
func NewProvider(ctx context.Context, name string, cfg config.AIConfig) (models.VisionProvider, error) {
	switch name {
	case "ollama":
		return ollama.NewProvider(cfg.Ollama, cfg.InferenceTimeout), nil
	case "vllm":
		return vllm.NewProvider(cfg.VLLM, cfg.InferenceTimeout), nil
	case "openai":
		return openai.NewProvider(cfg.OpenAI, cfg.InferenceTimeout), nil
	case "anthropic":
		return anthropic.NewProvider(cfg.Anthropic, cfg.InferenceTimeout), nil
	case "gemini":
		return gemini.NewProvider(ctx, cfg.Gemini, cfg.InferenceTimeout)
	default:
		return nil, fmt.Errorf("unknown AI provider %q: must be one of ollama, vllm, openai, anthropic, gemini", name)
	}
}

// NewFromConfig builds the provider chain used by the analyzer: the primary
// provider, an optional fallback, and a shared request rate limit.
// Called once at server startup.
func NewFromConfig(ctx context.Context, cfg config.AIConfig) (models.VisionProvider, error) {
	primary, err := NewProvider(ctx, cfg.Provider, cfg)
	if err != nil {
		return nil, err
	}

	var p models.VisionProvider = primary
	if cfg.FallbackProvider != "" {
		secondary, err := NewProvider(ctx, cfg.FallbackProvider, cfg)
		if err != nil {
			return nil, fmt.Errorf("fallback provider: %w", err)
		}
		p = WithFallback(primary, secondary)
	}

	return RateLimited(p, cfg.RequestsPerSecond, cfg.Burst), nil
}
