package vllm

import (
	"time"

	"github.com/pffise-create/PinhighAI-sub003/internal/ai/openai"
	"github.com/pffise-create/PinhighAI-sub003/internal/config"
)

// NewProvider talks to a vLLM server through its OpenAI-compatible endpoint.
func NewProvider(cfg config.VLLMConfig, timeout time.Duration) *openai.Provider {
	return openai.NewCompatible("vllm", cfg.BaseURL, "", cfg.Model, timeout)
}
