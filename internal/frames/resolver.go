// Package frames turns a job's extracted-frame references into image bytes
// ready for submission to a vision model.
package frames

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
)

// Resolved is one frame whose bytes were fetched successfully.
type Resolved struct {
	Phase       string
	FrameNumber int
	Image       models.Image
}

// Resolution is the ordered set of fetched frames plus the count of frames
// that had to be dropped.
type Resolution struct {
	Frames  []Resolved
	Skipped int
}

// Resolver fetches every frame of a job in phase order.
type Resolver struct {
	fetcher Fetcher
}

func NewResolver(fetcher Fetcher) *Resolver {
	return &Resolver{fetcher: fetcher}
}

// SortByPhase returns a copy of frames ordered lexicographically by phase
// label. Frames sharing a label keep their relative order.
func SortByPhase(frames []models.Frame) []models.Frame {
	sorted := slices.Clone(frames)
	slices.SortStableFunc(sorted, func(a, b models.Frame) int {
		return strings.Compare(a.Phase, b.Phase)
	})
	return sorted
}

// Resolve fetches frames sequentially. Unreachable frames are logged and
// skipped; if none resolve the result is ErrNoFramesAvailable.
func (r *Resolver) Resolve(ctx context.Context, jobID string, frames []models.Frame) (Resolution, error) {
	if len(frames) == 0 {
		return Resolution{}, fmt.Errorf("%w: job %s has no frames", ErrNoFramesAvailable, jobID)
	}

	var res Resolution
	for _, f := range SortByPhase(frames) {
		img, err := r.fetcher.Fetch(ctx, f.URL)
		if err != nil {
			if ctx.Err() != nil {
				return Resolution{}, ctx.Err()
			}
			if !errors.Is(err, ErrFetch) {
				err = fmt.Errorf("%w: %v", ErrFetch, err)
			}
			slog.Warn("skipping unreachable frame",
				"job_id", jobID, "phase", f.Phase, "frame_number", f.FrameNumber, "error", err)
			res.Skipped++
			continue
		}
		res.Frames = append(res.Frames, Resolved{Phase: f.Phase, FrameNumber: f.FrameNumber, Image: img})
	}

	if len(res.Frames) == 0 {
		return Resolution{}, fmt.Errorf("%w: all %d frames of job %s failed to fetch", ErrNoFramesAvailable, len(frames), jobID)
	}
	return res, nil
}
