package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pffise-create/PinhighAI-sub003/internal/store"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
)

// dispatcher tracks background runs so shutdown can drain them.
type dispatcher struct {
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Dispatch validates t and starts Run in a background goroutine. The run is
// detached from ctx; it ends on its own success or failure. A recovery run
// that is rejected releases its claim inside Run.
func (o *Orchestrator) Dispatch(ctx context.Context, t models.Trigger) error {
	if t.Source == "" {
		t.Source = models.TriggerDirect
	}
	if t.Source != models.TriggerRecovery {
		if err := o.ValidateTrigger(t); err != nil {
			return err
		}
		done, err := o.admit(ctx, t)
		if err != nil {
			return err
		}
		if done {
			slog.Info("analysis already completed, trigger dropped", "job_id", t.JobID, "source", t.Source)
			return nil
		}
	}

	o.dispatch.mu.Lock()
	if o.dispatch.closed {
		o.dispatch.mu.Unlock()
		return ErrShuttingDown
	}
	o.dispatch.wg.Add(1)
	o.dispatch.mu.Unlock()

	go func() {
		defer o.dispatch.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in dispatched run", "job_id", t.JobID, "error", r)
			}
		}()

		res, err := o.Run(context.Background(), t)
		if err != nil {
			slog.Error("orchestrator run rejected", "job_id", t.JobID, "source", t.Source, "error", err)
			return
		}
		slog.Info("orchestrator run finished",
			"job_id", t.JobID, "source", t.Source, "outcome", res.Outcome, "reason", res.Reason)
	}()
	return nil
}

// Wait stops accepting new dispatches and blocks until in-flight runs finish
// or ctx expires.
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.dispatch.mu.Lock()
	o.dispatch.closed = true
	o.dispatch.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.dispatch.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight runs: %w", ctx.Err())
	}
}

// admit checks an external trigger against the stored job before a run is
// started, so unknown jobs and foreign owners are refused synchronously.
// done reports a job whose analysis is already written. Other read errors
// are left for Run to retry.
func (o *Orchestrator) admit(ctx context.Context, t models.Trigger) (done bool, err error) {
	job, err := o.deps.Store.GetJob(ctx, t.JobID)
	if errors.Is(err, store.ErrNotFound) {
		return false, err
	}
	if err != nil {
		slog.Warn("trigger admission read failed", "job_id", t.JobID, "error", err)
		return false, nil
	}
	if job.OwnerID != t.OwnerID {
		return false, fmt.Errorf("%w: job %s", ErrOwnerMismatch, t.JobID)
	}
	return job.AICompleted, nil
}
