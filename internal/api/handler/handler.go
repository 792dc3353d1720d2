// Package handler implements the HTTP endpoints of the analysis service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pffise-create/PinhighAI-sub003/internal/api/response"
	"github.com/pffise-create/PinhighAI-sub003/internal/orchestrator"
	"github.com/pffise-create/PinhighAI-sub003/internal/store"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
)

const maxBodyBytes = 1 << 20

// JobStore is the subset of store.Store the job endpoints use.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.AnalysisJob) error
	GetJob(ctx context.Context, id string) (*models.AnalysisJob, error)
	UpdateJob(ctx context.Context, id string, expectedVersion int64, opts ...store.JobUpdateOption) (*models.AnalysisJob, error)
}

// KeyStore is the subset of store.Store the admin endpoints use.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// Orchestrator accepts analysis triggers.
type Orchestrator interface {
	Dispatch(ctx context.Context, t models.Trigger) error
	Run(ctx context.Context, t models.Trigger) (orchestrator.Result, error)
}

// Recoverer decides whether a polled job needs a retry.
type Recoverer interface {
	Check(ctx context.Context, job *models.AnalysisJob) (*models.AnalysisJob, bool)
}

var validate = validator.New()

// decode reads a JSON body into v and validates it. On failure the error
// response has already been written.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		msg := "Invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "Request body is empty"
		}
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", msg, nil)
		return false
	}
	if err := validate.Struct(v); err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "Request validation failed", fieldErrors(err))
		return false
	}
	return true
}

func fieldErrors(err error) map[string]string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": err.Error()}
	}
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		out[fe.Namespace()] = fe.Tag()
	}
	return out
}

// writeStoreError maps store and state-machine errors to HTTP responses.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Resource not found", nil)
	case errors.Is(err, store.ErrDuplicateKey):
		response.Error(w, http.StatusConflict, "ALREADY_EXISTS", "Resource already exists", nil)
	case errors.Is(err, store.ErrVersionConflict):
		response.Error(w, http.StatusConflict, "VERSION_CONFLICT", "Job was modified concurrently, retry the request", nil)
	case errors.Is(err, store.ErrInvalidTransition), errors.Is(err, store.ErrInvariant):
		response.Error(w, http.StatusUnprocessableEntity, "INVALID_STATE", err.Error(), nil)
	case errors.Is(err, models.ErrUnknownStatus):
		response.Error(w, http.StatusBadRequest, "UNKNOWN_STATUS", err.Error(), nil)
	default:
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred", nil)
	}
}
