package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pffise-create/PinhighAI-sub003/internal/metrics"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Consolidation is the final narrative and the token total of the whole analysis.
type Consolidation struct {
	Narrative  string
	TokensUsed int
	// Fallback is set if any batch or the synthesis call was served by a fallback provider.
	Fallback bool
}

// Consolidator merges ordered batch narratives into one report.
type Consolidator struct {
	provider models.VisionProvider
	prompts  *Prompts
	cfg      Config
}

func NewConsolidator(provider models.VisionProvider, prompts *Prompts, cfg Config) *Consolidator {
	return &Consolidator{provider: provider, prompts: prompts, cfg: cfg}
}

// Consolidate makes one synthesis call over all segments. The returned token
// count is the sum over the segments plus the synthesis call.
func (c *Consolidator) Consolidate(ctx context.Context, segments []models.BatchSegment) (Consolidation, error) {
	if len(segments) == 0 {
		return Consolidation{}, fmt.Errorf("%w: no segments", ErrConsolidationFailed)
	}

	ctx, span := tracer.Start(ctx, "analysis.consolidate")
	defer span.End()
	span.SetAttributes(attribute.Int("segments", len(segments)))

	var result Consolidation
	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Narrative
		result.TokensUsed += s.TokensUsed
		result.Fallback = result.Fallback || s.Fallback
	}

	start := time.Now()
	out, err := c.provider.Complete(ctx, models.CompletionRequest{
		System:    c.prompts.SystemText(),
		Text:      c.prompts.ConsolidationText(texts),
		MaxTokens: c.cfg.MaxTokens,
	})
	if err == nil && strings.TrimSpace(out.Text) == "" {
		err = errors.New("synthesis returned no content")
	}
	c.cfg.Metrics.VisionCall(metrics.KindConsolidation, time.Since(start), out.TokensUsed, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Consolidation{}, fmt.Errorf("%w: %w", ErrConsolidationFailed, err)
	}

	result.Narrative = strings.TrimSpace(out.Text)
	result.TokensUsed += out.TokensUsed
	result.Fallback = result.Fallback || out.Fallback
	return result, nil
}
