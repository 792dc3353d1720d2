// Package orchestrator drives one analysis job from "frames extracted" to a
// terminal AI_COMPLETED or FAILED record. Every trigger path (HTTP, queue and
// recovery) enters through Run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/pffise-create/PinhighAI-sub003/internal/analysis"
	"github.com/pffise-create/PinhighAI-sub003/internal/cache"
	"github.com/pffise-create/PinhighAI-sub003/internal/frames"
	"github.com/pffise-create/PinhighAI-sub003/internal/metrics"
	"github.com/pffise-create/PinhighAI-sub003/internal/store"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/pffise-create/PinhighAI-sub003/internal/orchestrator")

// Progress messages written to the job record.
const (
	MsgInProgress    = "AI analysis in progress"
	MsgRetrying      = "retrying"
	MsgFetching      = "Fetching frames"
	MsgConsolidating = "Consolidating analysis"
	MsgComplete      = "Analysis complete"
)

const maxProgressMessage = 500

// JobStore is the subset of store.Store the orchestrator needs.
type JobStore interface {
	GetJob(ctx context.Context, id string) (*models.AnalysisJob, error)
	UpdateJob(ctx context.Context, id string, expectedVersion int64, opts ...store.JobUpdateOption) (*models.AnalysisJob, error)
}

// StatusCache mirrors job status for cheap reads by other services.
type StatusCache interface {
	SetJobStatus(ctx context.Context, jobID string, status string, ttl time.Duration) error
}

type FrameResolver interface {
	Resolve(ctx context.Context, jobID string, frames []models.Frame) (frames.Resolution, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, resolved []frames.Resolved, progress analysis.ProgressFunc) ([]models.BatchSegment, error)
}

type Consolidator interface {
	Consolidate(ctx context.Context, segments []models.BatchSegment) (analysis.Consolidation, error)
}

// Deps are injected at construction time. Cache and Metrics are optional.
type Deps struct {
	Store        JobStore
	Cache        StatusCache
	Frames       FrameResolver
	Analyzer     Analyzer
	Consolidator Consolidator
	Metrics      *metrics.Metrics
	// ProviderName is recorded in the stored result.
	ProviderName string
	// RunTimeout bounds one pipeline execution. Zero means no limit.
	RunTimeout time.Duration
}

// Outcome describes what a Run did.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// Result is returned by Run. Job is the last known state of the record.
type Result struct {
	Outcome Outcome
	Job     *models.AnalysisJob
	Reason  string
}

type Orchestrator struct {
	deps     Deps
	validate *validator.Validate
	dispatch dispatcher
}

func New(deps Deps) *Orchestrator {
	return &Orchestrator{deps: deps, validate: validator.New()}
}

// ValidateTrigger checks an externally supplied trigger payload.
func (o *Orchestrator) ValidateTrigger(t models.Trigger) error {
	if err := o.validate.Struct(t); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
	}
	return nil
}

// Run executes the state machine for one trigger. Duplicate or concurrent
// triggers are no-ops reported as OutcomeSkipped, never as errors.
func (o *Orchestrator) Run(ctx context.Context, t models.Trigger) (Result, error) {
	if t.Source == "" {
		t.Source = models.TriggerDirect
	}
	if t.Source != models.TriggerRecovery {
		if err := o.ValidateTrigger(t); err != nil {
			return Result{}, err
		}
	}

	o.deps.Metrics.RunStarted()
	res, err := o.run(ctx, t)
	outcome := string(res.Outcome)
	if err != nil {
		outcome = "rejected"
		if t.Source == models.TriggerRecovery && t.ClaimedVersion != 0 {
			o.releaseClaim(ctx, t, err)
		}
	}
	o.deps.Metrics.RunFinished(outcome, string(t.Source))
	return res, err
}

func (o *Orchestrator) run(ctx context.Context, t models.Trigger) (Result, error) {
	job, err := o.deps.Store.GetJob(ctx, t.JobID)
	if err != nil {
		return Result{}, fmt.Errorf("loading job %s: %w", t.JobID, err)
	}

	if t.OwnerID != "" && t.OwnerID != job.OwnerID {
		return Result{}, fmt.Errorf("%w: job %s", ErrOwnerMismatch, job.ID)
	}
	if job.AICompleted {
		slog.Info("analysis already completed, ignoring trigger", "job_id", job.ID, "source", t.Source)
		return skipped(job, "analysis already completed"), nil
	}

	held, res, err := o.claim(ctx, job, t)
	if err != nil || held == nil {
		return res, err
	}

	return o.execute(ctx, held, t), nil
}

// claim moves the job into AI_PROCESSING, or confirms the caller already
// holds it. A nil job means there is nothing to run.
func (o *Orchestrator) claim(ctx context.Context, job *models.AnalysisJob, t models.Trigger) (*models.AnalysisJob, Result, error) {
	switch job.Status {
	case models.StatusCompleted, models.StatusReadyForAI:
		if len(job.Frames) == 0 {
			// Straight to FAILED: AI_PROCESSING cannot be entered without frames.
			failed := o.markFailed(ctx, job, "no frames available for analysis")
			return nil, Result{Outcome: OutcomeFailed, Job: failed, Reason: "no frames"}, nil
		}
		claimed, err := o.deps.Store.UpdateJob(ctx, job.ID, job.Version,
			store.WithStatus(models.StatusAIProcessing, "trigger:"+string(t.Source)),
			store.WithProgressMessage(MsgInProgress))
		if errors.Is(err, store.ErrVersionConflict) {
			slog.Info("job claimed by a concurrent trigger", "job_id", job.ID, "source", t.Source)
			return nil, skipped(job, "claimed by another run"), nil
		}
		if err != nil {
			return nil, Result{}, fmt.Errorf("claiming job %s: %w", job.ID, err)
		}
		o.mirror(ctx, claimed)
		return claimed, Result{}, nil

	case models.StatusAIProcessing:
		if t.Source == models.TriggerRecovery && t.ClaimedVersion != 0 && t.ClaimedVersion == job.Version {
			return job, Result{}, nil
		}
		return nil, skipped(job, "analysis already in progress"), nil

	case models.StatusFailed:
		return nil, skipped(job, "job failed; retry happens through recovery"), nil

	case models.StatusStarted, models.StatusProcessing:
		return nil, Result{}, fmt.Errorf("%w: job %s is %s", ErrNotReady, job.ID, job.Status)

	default:
		return nil, Result{}, fmt.Errorf("%w: %q", models.ErrUnknownStatus, job.Status)
	}
}

// execute runs the pipeline on a job held in AI_PROCESSING and writes the
// terminal state. Failures are recorded on the job, not returned.
func (o *Orchestrator) execute(ctx context.Context, job *models.AnalysisJob, t models.Trigger) (res Result) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "orchestrator.run")
	span.SetAttributes(attribute.String("job.id", job.ID), attribute.String("trigger.source", string(t.Source)))
	defer span.End()

	if o.deps.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.deps.RunTimeout)
		defer cancel()
	}

	run := &jobRun{o: o, job: job}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in orchestrator run", "job_id", job.ID, "error", r)
			failed := o.markFailed(context.WithoutCancel(ctx), run.job, fmt.Sprintf("internal error: %v", r))
			res = Result{Outcome: OutcomeFailed, Job: failed, Reason: "panic"}
		}
		span.SetAttributes(attribute.String("run.outcome", string(res.Outcome)))
		o.deps.Metrics.RunDuration(string(res.Outcome), time.Since(start))
	}()

	aiResult, err := run.pipeline(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("analysis failed", "job_id", job.ID, "stage", stageOf(err), "error", err)
		failed := o.markFailed(context.WithoutCancel(ctx), run.job, err.Error())
		return Result{Outcome: OutcomeFailed, Job: failed, Reason: stageOf(err)}
	}

	done := o.writeResult(context.WithoutCancel(ctx), run.job, aiResult)
	slog.Info("analysis completed",
		"job_id", job.ID,
		"frames_analyzed", aiResult.FramesAnalyzed,
		"frames_skipped", aiResult.FramesSkipped,
		"batches", aiResult.BatchesProcessed,
		"tokens", aiResult.TokensUsed,
		"fallback", aiResult.FallbackTriggered)
	return done
}

// jobRun tracks the version held by a single execution.
type jobRun struct {
	o   *Orchestrator
	job *models.AnalysisJob
}

func (r *jobRun) pipeline(ctx context.Context) (models.AIResult, error) {
	r.progress(ctx, MsgFetching)
	resolution, err := r.o.deps.Frames.Resolve(ctx, r.job.ID, r.job.Frames)
	if err != nil {
		return models.AIResult{}, &PipelineError{Stage: StageResolve, Err: err}
	}
	r.o.deps.Metrics.FramesSkipped(resolution.Skipped)

	segments, err := r.o.deps.Analyzer.Analyze(ctx, resolution.Frames, func(batch, batches int) {
		r.progress(ctx, fmt.Sprintf("Analyzing frames (batch %d of %d)", batch, batches))
	})
	if err != nil {
		return models.AIResult{}, &PipelineError{Stage: StageAnalyze, Err: err}
	}

	r.progress(ctx, MsgConsolidating)
	final, err := r.o.deps.Consolidator.Consolidate(ctx, segments)
	if err != nil {
		return models.AIResult{}, &PipelineError{Stage: StageConsolidate, Err: err}
	}

	return models.AIResult{
		Narrative:         final.Narrative,
		FramesAnalyzed:    len(resolution.Frames),
		FramesSkipped:     resolution.Skipped,
		BatchesProcessed:  len(segments),
		TokensUsed:        final.TokensUsed,
		FallbackTriggered: final.Fallback,
		Provider:          r.o.deps.ProviderName,
	}, nil
}

// progress writes a best-effort status message under the held version.
func (r *jobRun) progress(ctx context.Context, msg string) {
	updated, err := r.o.deps.Store.UpdateJob(ctx, r.job.ID, r.job.Version, store.WithProgressMessage(msg))
	if err != nil {
		slog.Warn("progress update failed", "job_id", r.job.ID, "message", msg, "error", err)
		return
	}
	r.job = updated
}

// writeResult stores the terminal AI_COMPLETED state. A version conflict is
// retried once against the fresh record; other failures are logged and the
// in-memory result is returned.
func (o *Orchestrator) writeResult(ctx context.Context, job *models.AnalysisJob, result models.AIResult) Result {
	write := func(version int64) (*models.AnalysisJob, error) {
		return o.deps.Store.UpdateJob(ctx, job.ID, version,
			store.WithStatus(models.StatusAICompleted, "analysis complete"),
			store.WithAIResult(result),
			store.WithProgressMessage(MsgComplete))
	}

	updated, err := write(job.Version)
	if errors.Is(err, store.ErrVersionConflict) {
		fresh, gerr := o.deps.Store.GetJob(ctx, job.ID)
		switch {
		case gerr != nil:
			err = gerr
		case fresh.AICompleted:
			slog.Info("result already written by another run", "job_id", job.ID)
			return Result{Outcome: OutcomeSkipped, Job: fresh, Reason: "completed by another run"}
		case fresh.Status == models.StatusAIProcessing:
			updated, err = write(fresh.Version)
		}
	}

	if err != nil {
		slog.Error("storing analysis result failed",
			"job_id", job.ID, "error", fmt.Errorf("%w: %v", ErrStoreWrite, err))
		local := job.Clone()
		local.Status = models.StatusAICompleted
		local.AICompleted = true
		local.AIResult = &result
		local.ProgressMessage = MsgComplete
		return Result{Outcome: OutcomeCompleted, Job: local, Reason: "result not persisted"}
	}

	o.mirror(ctx, updated)
	return Result{Outcome: OutcomeCompleted, Job: updated}
}

// markFailed moves the job to FAILED with a readable reason. On a version
// conflict the write is retried once if the job is still in AI_PROCESSING.
func (o *Orchestrator) markFailed(ctx context.Context, job *models.AnalysisJob, reason string) *models.AnalysisJob {
	msg := truncate("AI analysis failed: "+reason, maxProgressMessage)
	write := func(version int64) (*models.AnalysisJob, error) {
		return o.deps.Store.UpdateJob(ctx, job.ID, version,
			store.WithStatus(models.StatusFailed, truncate(reason, maxProgressMessage)),
			store.WithProgressMessage(msg))
	}

	updated, err := write(job.Version)
	if errors.Is(err, store.ErrVersionConflict) {
		fresh, gerr := o.deps.Store.GetJob(ctx, job.ID)
		if gerr == nil && !fresh.AICompleted && fresh.Status == models.StatusAIProcessing {
			updated, err = write(fresh.Version)
		} else if gerr == nil {
			return fresh
		}
	}
	if err != nil {
		slog.Error("marking job failed", "job_id", job.ID, "error", fmt.Errorf("%w: %v", ErrStoreWrite, err))
		local := job.Clone()
		local.Status = models.StatusFailed
		local.ProgressMessage = msg
		return local
	}

	o.mirror(ctx, updated)
	return updated
}

// releaseClaim fails a job that recovery moved to AI_PROCESSING when the run
// could not start. A version conflict means someone else owns it now.
func (o *Orchestrator) releaseClaim(ctx context.Context, t models.Trigger, cause error) {
	failed, err := o.deps.Store.UpdateJob(ctx, t.JobID, t.ClaimedVersion,
		store.WithStatus(models.StatusFailed, "recovery run rejected"),
		store.WithProgressMessage(truncate("AI analysis failed: "+cause.Error(), maxProgressMessage)))
	if err != nil {
		slog.Warn("releasing recovery claim", "job_id", t.JobID, "error", err)
		return
	}
	o.mirror(ctx, failed)
}

func (o *Orchestrator) mirror(ctx context.Context, job *models.AnalysisJob) {
	if o.deps.Cache == nil || job == nil {
		return
	}
	if err := o.deps.Cache.SetJobStatus(ctx, job.ID, string(job.Status), cache.JobStatusTTL); err != nil {
		slog.Warn("status cache write failed", "job_id", job.ID, "error", err)
	}
}

func skipped(job *models.AnalysisJob, reason string) Result {
	return Result{Outcome: OutcomeSkipped, Job: job, Reason: reason}
}

func stageOf(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Stage
	}
	return "unknown"
}

func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen])
}
