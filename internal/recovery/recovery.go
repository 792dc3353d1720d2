// Package recovery re-triggers stalled analysis jobs when a poller reads them.
package recovery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/pffise-create/PinhighAI-sub003/internal/metrics"
	"github.com/pffise-create/PinhighAI-sub003/internal/store"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
)

// DefaultMinRetryInterval is the floor between two recovery attempts on a job.
const DefaultMinRetryInterval = 45 * time.Second

// MsgRetrying is the progress message written by a recovery claim.
const MsgRetrying = "retrying"

// ShouldRetry reports whether job is eligible for a recovery re-trigger at now.
func ShouldRetry(job *models.AnalysisJob, now time.Time, interval time.Duration) bool {
	switch {
	case job == nil, job.AICompleted:
		return false
	case len(job.Frames) == 0, job.OwnerID == "":
		return false
	case job.Status != models.StatusCompleted && job.Status != models.StatusFailed:
		return false
	case now.Sub(job.UpdatedAt) < interval:
		return false
	}
	return true
}

// JobStore is the subset of store.Store the monitor writes through.
type JobStore interface {
	GetJob(ctx context.Context, id string) (*models.AnalysisJob, error)
	UpdateJob(ctx context.Context, id string, expectedVersion int64, opts ...store.JobUpdateOption) (*models.AnalysisJob, error)
}

// Dispatcher starts an orchestrator run without waiting for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, t models.Trigger) error
}

type Config struct {
	MinRetryInterval time.Duration
	Metrics          *metrics.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

type Monitor struct {
	store      JobStore
	dispatcher Dispatcher
	interval   time.Duration
	metrics    *metrics.Metrics
	now        func() time.Time
}

func NewMonitor(s JobStore, d Dispatcher, cfg Config) *Monitor {
	m := &Monitor{
		store:      s,
		dispatcher: d,
		interval:   cfg.MinRetryInterval,
		metrics:    cfg.Metrics,
		now:        cfg.Now,
	}
	if m.interval <= 0 {
		m.interval = DefaultMinRetryInterval
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Check runs the recovery decision for a job that was just read. It returns
// the record the poller should see and whether a retry was started. The
// input job is never mutated.
//
// The claim is a conditional write, so of several concurrent pollers only
// one moves the job to AI_PROCESSING and dispatches a run; the others get the
// fresh record back.
func (m *Monitor) Check(ctx context.Context, job *models.AnalysisJob) (*models.AnalysisJob, bool) {
	if !ShouldRetry(job, m.now(), m.interval) {
		return job, false
	}

	claimed, err := m.store.UpdateJob(ctx, job.ID, job.Version,
		store.WithStatus(models.StatusAIProcessing, "recovery"),
		store.WithProgressMessage(MsgRetrying))
	if errors.Is(err, store.ErrVersionConflict) {
		m.metrics.Recovery("conflict")
		fresh, gerr := m.store.GetJob(ctx, job.ID)
		if gerr != nil {
			slog.Warn("reloading job after recovery conflict", "job_id", job.ID, "error", gerr)
			return job, false
		}
		return fresh, false
	}
	if err != nil {
		m.metrics.Recovery("error")
		slog.Error("recovery claim failed", "job_id", job.ID, "status", job.Status, "error", err)
		return job, false
	}

	slog.Info("recovering stalled job",
		"job_id", job.ID, "previous_status", job.Status, "idle", m.now().Sub(job.UpdatedAt).Round(time.Second))

	t := models.Trigger{
		JobID:          claimed.ID,
		OwnerID:        claimed.OwnerID,
		Status:         string(job.Status),
		Source:         models.TriggerRecovery,
		ClaimedVersion: claimed.Version,
	}
	if err := m.dispatcher.Dispatch(ctx, t); err != nil {
		m.metrics.Recovery("dispatch_error")
		slog.Error("recovery dispatch failed", "job_id", job.ID, "error", err)
		return m.release(ctx, claimed, err), false
	}

	m.metrics.Recovery("claimed")
	return claimed.Clone(), true
}

// release puts a claimed job back into FAILED when no run could be started,
// so a later poll can try again.
func (m *Monitor) release(ctx context.Context, claimed *models.AnalysisJob, cause error) *models.AnalysisJob {
	failed, err := m.store.UpdateJob(ctx, claimed.ID, claimed.Version,
		store.WithStatus(models.StatusFailed, "recovery dispatch failed"),
		store.WithProgressMessage("AI analysis failed: "+cause.Error()))
	if err != nil {
		slog.Warn("releasing recovery claim", "job_id", claimed.ID, "error", err)
		return claimed.Clone()
	}
	return failed
}
