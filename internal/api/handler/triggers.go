package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/pffise-create/PinhighAI-sub003/internal/api/response"
	"github.com/pffise-create/PinhighAI-sub003/internal/orchestrator"
	"github.com/pffise-create/PinhighAI-sub003/internal/projection"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
)

// Triggers serves the orchestrator entry point over HTTP.
type Triggers struct {
	orch Orchestrator
}

func NewTriggers(o Orchestrator) *Triggers {
	return &Triggers{orch: o}
}

type triggerResponse struct {
	JobID   string           `json:"job_id"`
	Outcome string           `json:"outcome,omitempty"`
	Reason  string           `json:"reason,omitempty"`
	View    *projection.View `json:"analysis,omitempty"`
}

// Create handles POST /api/v1/triggers. By default the run is dispatched in
// the background and the call returns 202. With ?wait=true the run executes
// inline and the final state is returned.
func (h *Triggers) Create(w http.ResponseWriter, r *http.Request) {
	var t models.Trigger
	if !decode(w, r, &t) {
		return
	}
	t.Source = models.TriggerDirect
	t.ClaimedVersion = 0

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		if err := h.orch.Dispatch(r.Context(), t); err != nil {
			writeTriggerError(w, t, err)
			return
		}
		response.Accepted(w, triggerResponse{JobID: t.JobID})
		return
	}

	res, err := h.orch.Run(r.Context(), t)
	if err != nil {
		writeTriggerError(w, t, err)
		return
	}
	out := triggerResponse{JobID: t.JobID, Outcome: string(res.Outcome), Reason: res.Reason}
	if res.Job != nil {
		if view, err := projection.Project(res.Job); err == nil {
			out.View = &view
		}
	}
	response.JSON(w, out)
}

func writeTriggerError(w http.ResponseWriter, t models.Trigger, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidTrigger):
		response.Error(w, http.StatusBadRequest, "INVALID_TRIGGER", err.Error(), nil)
	case errors.Is(err, orchestrator.ErrNotReady):
		response.Error(w, http.StatusConflict, "NOT_READY", "Frames are not extracted yet", nil)
	case errors.Is(err, orchestrator.ErrOwnerMismatch):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Analysis job not found", nil)
	case errors.Is(err, orchestrator.ErrShuttingDown):
		response.RetryLater(w, http.StatusServiceUnavailable, "SHUTTING_DOWN", "Server is shutting down", 30*time.Second)
	default:
		slog.Error("trigger failed", "job_id", t.JobID, "error", err)
		writeStoreError(w, err)
	}
}
