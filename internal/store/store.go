package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrDuplicateKey      = errors.New("duplicate key violation")
	ErrVersionConflict   = errors.New("job was modified concurrently")
	ErrInvalidTransition = errors.New("invalid job status transition")
	ErrInvariant         = errors.New("job record invariant violated")
)

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error

	CreateJob(ctx context.Context, job *models.AnalysisJob) error
	GetJob(ctx context.Context, id string) (*models.AnalysisJob, error)
	// UpdateJob applies opts to the job only if its current version equals
	// expectedVersion, returning the stored result. A mismatch yields ErrVersionConflict.
	UpdateJob(ctx context.Context, id string, expectedVersion int64, opts ...JobUpdateOption) (*models.AnalysisJob, error)
}

type jobUpdateParams struct {
	Status          *models.Status
	Reason          string
	ProgressMessage *string
	Frames          []models.Frame
	AIResult        *models.AIResult
}

type JobUpdateOption func(*jobUpdateParams)

// WithStatus moves the job to status and records reason in the transition history.
func WithStatus(status models.Status, reason string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Status = &status
		p.Reason = reason
	}
}

func WithProgressMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ProgressMessage = &msg
	}
}

// WithFrames attaches the extracted frame list. Frames can only be set once.
func WithFrames(frames []models.Frame) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Frames = frames
	}
}

// WithAIResult stores the final result and sets ai_completed. It must be combined
// with WithStatus(models.StatusAICompleted, ...).
func WithAIResult(result models.AIResult) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.AIResult = &result
	}
}

// applyUpdate mutates job according to opts and enforces the record invariants.
// It is shared by every Store implementation so the rules live in one place.
func applyUpdate(job *models.AnalysisJob, now time.Time, opts ...JobUpdateOption) error {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	if job.AICompleted {
		return fmt.Errorf("%w: job %s already has a completed analysis", ErrInvariant, job.ID)
	}

	if params.Frames != nil {
		if len(job.Frames) > 0 {
			return fmt.Errorf("%w: frames for job %s are already set", ErrInvariant, job.ID)
		}
		job.Frames = append([]models.Frame(nil), params.Frames...)
	}

	if params.Status != nil {
		to := *params.Status
		if !to.Valid() {
			return fmt.Errorf("%w: %q", models.ErrUnknownStatus, to)
		}
		if !models.CanTransition(job.Status, to) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, job.Status, to)
		}
		if to == models.StatusAIProcessing && len(job.Frames) == 0 {
			return fmt.Errorf("%w: job %s has no frames", ErrInvariant, job.ID)
		}
		if to == models.StatusCompleted && len(job.Frames) == 0 {
			return fmt.Errorf("%w: job %s cannot complete extraction without frames", ErrInvariant, job.ID)
		}
		if to == models.StatusAICompleted && params.AIResult == nil {
			return fmt.Errorf("%w: AI_COMPLETED requires a result", ErrInvariant)
		}
		if to != job.Status {
			job.Transitions = append(job.Transitions, models.StateTransition{
				From:   job.Status,
				To:     to,
				At:     now,
				Reason: params.Reason,
			})
		}
		job.Status = to
	}

	if params.AIResult != nil {
		if job.Status != models.StatusAICompleted {
			return fmt.Errorf("%w: result can only be written with AI_COMPLETED", ErrInvariant)
		}
		r := *params.AIResult
		job.AIResult = &r
		job.AICompleted = true
	}

	if params.ProgressMessage != nil {
		job.ProgressMessage = *params.ProgressMessage
	}

	job.UpdatedAt = now
	job.Version++
	return nil
}

// jobColumns are the serialized JSON blobs of a job row.
type jobColumns struct {
	Frames      []byte
	AIResult    []byte
	Transitions []byte
}

func encodeJob(job *models.AnalysisJob) (jobColumns, error) {
	var cols jobColumns
	var err error

	frames := job.Frames
	if frames == nil {
		frames = []models.Frame{}
	}
	if cols.Frames, err = json.Marshal(frames); err != nil {
		return cols, fmt.Errorf("encode frames: %w", err)
	}

	transitions := job.Transitions
	if transitions == nil {
		transitions = []models.StateTransition{}
	}
	if cols.Transitions, err = json.Marshal(transitions); err != nil {
		return cols, fmt.Errorf("encode transitions: %w", err)
	}

	if job.AIResult != nil {
		if cols.AIResult, err = json.Marshal(job.AIResult); err != nil {
			return cols, fmt.Errorf("encode ai_analysis: %w", err)
		}
	}
	return cols, nil
}

func decodeJob(job *models.AnalysisJob, status string, cols jobColumns) error {
	st, err := models.ParseStatus(status)
	if err != nil {
		return fmt.Errorf("job %s: %w", job.ID, err)
	}
	job.Status = st

	if len(cols.Frames) > 0 {
		if err := json.Unmarshal(cols.Frames, &job.Frames); err != nil {
			return fmt.Errorf("decode frames: %w", err)
		}
	}
	if len(cols.Transitions) > 0 {
		if err := json.Unmarshal(cols.Transitions, &job.Transitions); err != nil {
			return fmt.Errorf("decode transitions: %w", err)
		}
	}
	if len(cols.AIResult) > 0 {
		var r models.AIResult
		if err := json.Unmarshal(cols.AIResult, &r); err != nil {
			return fmt.Errorf("decode ai_analysis: %w", err)
		}
		job.AIResult = &r
	}
	return nil
}

func validateNewJob(job *models.AnalysisJob) error {
	if job.ID == "" {
		return fmt.Errorf("%w: job id is required", ErrInvariant)
	}
	if job.OwnerID == "" {
		return fmt.Errorf("%w: owner id is required", ErrInvariant)
	}
	if !job.Status.Valid() {
		return fmt.Errorf("%w: %q", models.ErrUnknownStatus, job.Status)
	}
	if job.AICompleted || job.AIResult != nil {
		return fmt.Errorf("%w: new jobs cannot carry a result", ErrInvariant)
	}
	return nil
}
