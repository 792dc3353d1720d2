package ollama

import (
	"time"

	"github.com/pffise-create/PinhighAI-sub003/internal/ai/openai"
	"github.com/pffise-create/PinhighAI-sub003/internal/config"
)

// NewProvider talks to Ollama through its OpenAI-compatible endpoint.
func NewProvider(cfg config.OllamaConfig, timeout time.Duration) *openai.Provider {
	return openai.NewCompatible("ollama", cfg.BaseURL, "", cfg.Model, timeout)
}
