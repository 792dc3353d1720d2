// Package analysis turns resolved swing frames into a coaching narrative:
// frames are sent to the vision model in fixed-size batches and the
// per-batch narratives are then merged by a consolidation call.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pffise-create/PinhighAI-sub003/internal/ai/transport"
	"github.com/pffise-create/PinhighAI-sub003/internal/frames"
	"github.com/pffise-create/PinhighAI-sub003/internal/metrics"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/pffise-create/PinhighAI-sub003/internal/analysis")

// DefaultMaxImagesPerCall is the per-call image ceiling used when none is configured.
const DefaultMaxImagesPerCall = 10

// Config holds settings shared by the analyzer and the consolidator.
type Config struct {
	MaxImagesPerCall int
	MaxTokens        int
	Metrics          *metrics.Metrics
}

// ProgressFunc is told which batch is about to be sent (1-based).
type ProgressFunc func(batch, batches int)

// BatchAnalyzer sends frames to the vision model one batch at a time.
type BatchAnalyzer struct {
	provider models.VisionProvider
	prompts  *Prompts
	cfg      Config
}

func NewBatchAnalyzer(provider models.VisionProvider, prompts *Prompts, cfg Config) *BatchAnalyzer {
	if cfg.MaxImagesPerCall < 1 {
		cfg.MaxImagesPerCall = DefaultMaxImagesPerCall
	}
	return &BatchAnalyzer{provider: provider, prompts: prompts, cfg: cfg}
}

// Analyze partitions frames and calls the model once per batch, strictly in
// order. The first failing batch aborts the whole analysis.
func (a *BatchAnalyzer) Analyze(ctx context.Context, resolved []frames.Resolved, progress ProgressFunc) ([]models.BatchSegment, error) {
	if len(resolved) == 0 {
		return nil, fmt.Errorf("%w: no frames to analyze", frames.ErrNoFramesAvailable)
	}

	batches := Partition(resolved, a.cfg.MaxImagesPerCall)
	segments := make([]models.BatchSegment, 0, len(batches))
	position := 0

	for i, batch := range batches {
		if progress != nil {
			progress(i+1, len(batches))
		}

		placement := batchPlacement{
			Index:   i,
			Batches: len(batches),
			First:   position + 1,
			Last:    position + len(batch),
			Total:   len(resolved),
		}
		req := models.CompletionRequest{
			System:    a.prompts.SystemText(),
			MaxTokens: a.cfg.MaxTokens,
			Images:    make([]models.Image, 0, len(batch)),
		}
		for _, f := range batch {
			placement.Phases = append(placement.Phases, f.Phase)
			req.Images = append(req.Images, f.Image)
		}
		req.Text = a.prompts.BatchText(placement)

		seg, err := a.analyzeBatch(ctx, i, len(batches), req)
		if err != nil {
			return nil, err
		}
		seg.FramesInBatch = len(batch)
		segments = append(segments, seg)
		position += len(batch)
	}

	return segments, nil
}

func (a *BatchAnalyzer) analyzeBatch(ctx context.Context, index, total int, req models.CompletionRequest) (models.BatchSegment, error) {
	ctx, span := tracer.Start(ctx, "analysis.batch")
	defer span.End()
	span.SetAttributes(
		attribute.Int("batch.index", index),
		attribute.Int("batch.images", len(req.Images)),
	)

	start := time.Now()
	out, err := a.provider.Complete(ctx, req)
	if err == nil && strings.TrimSpace(out.Text) == "" {
		err = ErrEmptyNarrative
	}
	a.cfg.Metrics.VisionCall(metrics.KindBatch, time.Since(start), out.TokensUsed, err)

	if err != nil {
		if errors.Is(err, transport.ErrInvalidResponse) {
			err = fmt.Errorf("%w: %w", ErrInvalidModelResponse, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("batch analysis failed", "batch", index+1, "batches", total, "error", err)
		return models.BatchSegment{}, fmt.Errorf("batch %d of %d: %w", index+1, total, err)
	}

	span.SetAttributes(attribute.Int("batch.tokens", out.TokensUsed))
	slog.Debug("batch analyzed", "batch", index+1, "batches", total, "tokens", out.TokensUsed, "fallback", out.Fallback)

	return models.BatchSegment{
		BatchIndex: index,
		Narrative:  strings.TrimSpace(out.Text),
		TokensUsed: out.TokensUsed,
		Fallback:   out.Fallback,
	}, nil
}
