package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pffise-create/PinhighAI-sub003/internal/api/response"
	"github.com/pffise-create/PinhighAI-sub003/internal/projection"
	"github.com/pffise-create/PinhighAI-sub003/internal/store"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
)

// Jobs serves the job record endpoints used by the intake service, the
// frame extractor and polling clients.
type Jobs struct {
	store    JobStore
	recovery Recoverer
}

func NewJobs(s JobStore, rec Recoverer) *Jobs {
	return &Jobs{store: s, recovery: rec}
}

type createJobRequest struct {
	JobID    string `json:"job_id"    validate:"omitempty,max=128"`
	OwnerID  string `json:"user_id"   validate:"required,max=128"`
	VideoKey string `json:"video_key" validate:"max=1024"`
}

// Create handles POST /api/v1/analyses. New jobs start in STARTED.
func (h *Jobs) Create(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if !decode(w, r, &req) {
		return
	}
	if req.JobID == "" {
		req.JobID = uuid.NewString()
	}

	job := &models.AnalysisJob{
		ID:              req.JobID,
		OwnerID:         req.OwnerID,
		Status:          models.StatusStarted,
		ProgressMessage: "Upload received",
		VideoKey:        req.VideoKey,
	}
	if err := h.store.CreateJob(r.Context(), job); err != nil {
		slog.Error("creating job", "job_id", job.ID, "error", err)
		writeStoreError(w, err)
		return
	}

	slog.Info("analysis job created", "job_id", job.ID, "owner_id", job.OwnerID)
	response.Created(w, job)
}

// Get handles GET /api/v1/analyses/{jobID}. The read may start a recovery
// retry, in which case the response already shows the retrying state.
func (h *Jobs) Get(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.Error("loading job", "job_id", jobID, "error", err)
		}
		writeStoreError(w, err)
		return
	}
	if owner := r.URL.Query().Get("user_id"); owner != "" && owner != job.OwnerID {
		writeStoreError(w, store.ErrNotFound)
		return
	}

	if h.recovery != nil {
		job, _ = h.recovery.Check(r.Context(), job)
	}

	view, err := projection.Project(job)
	if err != nil {
		slog.Error("projecting job", "job_id", jobID, "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Job record is in an unknown state", nil)
		return
	}
	response.JSON(w, view)
}

// GetRecord handles GET /api/v1/analyses/{jobID}/record and returns the raw
// job record without projection or recovery.
func (h *Jobs) GetRecord(w http.ResponseWriter, r *http.Request) {
	job, err := h.store.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	response.JSON(w, job)
}

type progressRequest struct {
	Status          string         `json:"status"           validate:"required,oneof=PROCESSING COMPLETED READY_FOR_AI FAILED"`
	ProgressMessage string         `json:"progress_message" validate:"max=500"`
	Frames          []models.Frame `json:"frames"           validate:"omitempty,dive"`
	// ExpectedVersion guards the write when set. Zero means "current".
	ExpectedVersion int64 `json:"expected_version" validate:"min=0"`
}

// Progress handles POST /api/v1/analyses/{jobID}/progress, used by the frame
// extractor to advance the record up to COMPLETED and attach frames.
func (h *Jobs) Progress(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	var req progressRequest
	if !decode(w, r, &req) {
		return
	}
	status, err := models.ParseStatus(req.Status)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	version := req.ExpectedVersion
	if version == 0 {
		current, err := h.store.GetJob(r.Context(), jobID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		version = current.Version
	}

	opts := []store.JobUpdateOption{store.WithStatus(status, "extractor")}
	if len(req.Frames) > 0 {
		opts = append(opts, store.WithFrames(req.Frames))
	}
	if req.ProgressMessage != "" {
		opts = append(opts, store.WithProgressMessage(req.ProgressMessage))
	}

	updated, err := h.store.UpdateJob(r.Context(), jobID, version, opts...)
	if err != nil {
		slog.Warn("progress update rejected", "job_id", jobID, "status", status, "error", err)
		writeStoreError(w, err)
		return
	}

	slog.Info("job progress recorded", "job_id", jobID, "status", updated.Status, "frames", len(updated.Frames))
	response.JSON(w, updated)
}
