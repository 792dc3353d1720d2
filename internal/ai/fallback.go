package ai

import (
	"context"
	"log/slog"

	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
)

// FallbackProvider retries a failed call once on a secondary provider.
type FallbackProvider struct {
	primary   models.VisionProvider
	secondary models.VisionProvider
}

func WithFallback(primary, secondary models.VisionProvider) *FallbackProvider {
	return &FallbackProvider{primary: primary, secondary: secondary}
}

func (f *FallbackProvider) Name() string { return f.primary.Name() }

func (f *FallbackProvider) Complete(ctx context.Context, req models.CompletionRequest) (models.Completion, error) {
	out, err := f.primary.Complete(ctx, req)
	if err == nil {
		return out, nil
	}
	if ctx.Err() != nil {
		return models.Completion{}, err
	}

	slog.Warn("primary provider failed, using fallback",
		"primary", f.primary.Name(), "fallback", f.secondary.Name(), "error", err)

	out, ferr := f.secondary.Complete(ctx, req)
	if ferr != nil {
		slog.Error("fallback provider failed", "fallback", f.secondary.Name(), "error", ferr)
		return models.Completion{}, ferr
	}
	out.Fallback = true
	return out, nil
}

var _ models.VisionProvider = (*FallbackProvider)(nil)
