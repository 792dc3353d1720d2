package handler

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pffise-create/PinhighAI-sub003/internal/api/middleware"
	"github.com/pffise-create/PinhighAI-sub003/internal/api/response"
	"github.com/pffise-create/PinhighAI-sub003/pkg/models"
	"golang.org/x/crypto/bcrypt"
)

// KeyPrefix starts every generated API key.
const KeyPrefix = "sw_"

// Keys serves the admin API key endpoints.
type Keys struct {
	store KeyStore
}

func NewKeys(s KeyStore) *Keys {
	return &Keys{store: s}
}

type createKeyRequest struct {
	Name   string   `json:"name"   validate:"required,max=100"`
	Scopes []string `json:"scopes" validate:"required,min=1,dive,oneof=intake trigger read admin"`
}

type createKeyResponse struct {
	*models.APIKey
	Key string `json:"key"`
}

// GenerateKey returns a new raw API key and the stored record for it. The raw
// key is only available here.
func GenerateKey(name string, scopes []string) (string, *models.APIKey, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate key: %w", err)
	}
	raw := KeyPrefix + hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash key: %w", err)
	}

	now := time.Now().UTC()
	return raw, &models.APIKey{
		ID:        uuid.New(),
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: raw[:middleware.KeyPrefixLen],
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Create handles POST /api/v1/admin/keys.
func (h *Keys) Create(w http.ResponseWriter, r *http.Request) {
	var req createKeyRequest
	if !decode(w, r, &req) {
		return
	}

	raw, key, err := GenerateKey(req.Name, req.Scopes)
	if err != nil {
		slog.Error("generating api key", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create key", nil)
		return
	}
	if err := h.store.CreateAPIKey(r.Context(), key); err != nil {
		writeStoreError(w, err)
		return
	}

	slog.Info("api key created", "key_id", key.ID, "name", key.Name, "scopes", key.Scopes)
	response.Created(w, createKeyResponse{APIKey: key, Key: raw})
}

// List handles GET /api/v1/admin/keys.
func (h *Keys) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.store.ListAPIKeys(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if keys == nil {
		keys = []*models.APIKey{}
	}
	response.List(w, keys, len(keys))
}

// Revoke handles DELETE /api/v1/admin/keys/{keyID}.
func (h *Keys) Revoke(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "keyID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "keyID must be a UUID", nil)
		return
	}
	if err := h.store.RevokeAPIKey(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	slog.Info("api key revoked", "key_id", id)
	response.JSON(w, map[string]string{"id": id.String(), "status": "revoked"})
}
