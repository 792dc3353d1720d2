// Package projection maps job records to the status vocabulary polling
// clients see.
package projection

import (
	"fmt"
	"strings"
	"time"

	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
)

// External status values.
const (
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusAnalyzing  = "analyzing"
	StatusProcessing = "processing"
)

// View is the poll response body.
type View struct {
	JobID      string           `json:"job_id"`
	Status     string           `json:"status"`
	Message    string           `json:"message"`
	AIAnalysis *models.AIResult `json:"ai_analysis,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Status maps an internal (status, ai_completed) pair to its external form.
// Unknown statuses are rejected rather than passed through.
func Status(status models.Status, aiCompleted bool) (string, error) {
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", models.ErrUnknownStatus, status)
	}
	if aiCompleted {
		return StatusCompleted, nil
	}
	switch status {
	case models.StatusFailed:
		return StatusFailed, nil
	case models.StatusCompleted, models.StatusReadyForAI, models.StatusAIProcessing:
		return StatusAnalyzing, nil
	case models.StatusProcessing:
		return StatusProcessing, nil
	default:
		return strings.ToLower(string(status)), nil
	}
}

// Project builds the poll view of job. It does not modify job.
func Project(job *models.AnalysisJob) (View, error) {
	if job == nil {
		return View{}, fmt.Errorf("project: nil job")
	}
	status, err := Status(job.Status, job.AICompleted)
	if err != nil {
		return View{}, fmt.Errorf("project job %s: %w", job.ID, err)
	}

	v := View{
		JobID:     job.ID,
		Status:    status,
		Message:   job.ProgressMessage,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
	if job.AICompleted && job.AIResult != nil {
		r := *job.AIResult
		v.AIAnalysis = &r
	}
	return v, nil
}
