package orchestrator

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned when a trigger arrives before frame extraction finished.
	ErrNotReady = errors.New("job is not ready for analysis")
	// ErrInvalidTrigger is returned for malformed trigger payloads.
	ErrInvalidTrigger = errors.New("invalid trigger")
	// ErrOwnerMismatch is returned when the trigger names a different owner than the job.
	ErrOwnerMismatch = errors.New("trigger owner does not match job")
	// ErrStoreWrite marks a failed write of the final result. The analysis itself succeeded.
	ErrStoreWrite = errors.New("job store write failed")
	// ErrShuttingDown is returned by Dispatch once the orchestrator stopped accepting work.
	ErrShuttingDown = errors.New("orchestrator is shutting down")
)

// Pipeline stages.
const (
	StageResolve     = "resolve_frames"
	StageAnalyze     = "analyze_batches"
	StageConsolidate = "consolidate"
)

// PipelineError tags a fatal failure with the stage that produced it.
type PipelineError struct {
	Stage string
	Err   error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }
