package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/lifesync/internal/application"
	"github.com/ericfisherdev/lifesync/internal/domain/model"
	"github.com/ericfisherdev/lifesync/internal/domain/port/driven"
	"github.com/ericfisherdev/lifesync/internal/vault"
)

// defaultJobsLimit caps the job history endpoint when no limit is given.
const defaultJobsLimit = 50

// Pinger is the minimal database liveness check the health endpoint needs.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	creds     driven.CredentialStore
	jobs      driven.JobLogStore
	orch      *application.SyncOrchestrator
	validator *application.Validator
	status    *application.StatusAggregator
	vault     *vault.Vault
	db        Pinger
	logger    *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	creds driven.CredentialStore,
	jobs driven.JobLogStore,
	orch *application.SyncOrchestrator,
	validator *application.Validator,
	status *application.StatusAggregator,
	v *vault.Vault,
	db Pinger,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		creds:     creds,
		jobs:      jobs,
		orch:      orch,
		validator: validator,
		status:    status,
		vault:     v,
		db:        db,
		logger:    logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/credentials", h.CreateCredential)
	mux.HandleFunc("GET /api/v1/credentials", h.ListCredentials)
	mux.HandleFunc("PUT /api/v1/credentials/{id}", h.UpdateCredential)
	mux.HandleFunc("DELETE /api/v1/credentials/{id}", h.DeleteCredential)
	mux.HandleFunc("POST /api/v1/credentials/{id}/validate", h.ValidateCredential)
	mux.HandleFunc("POST /api/v1/sync", h.TriggerSync)
	mux.HandleFunc("GET /api/v1/sync-status", h.SyncStatus)
	mux.HandleFunc("GET /api/v1/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// CreateCredential stores a new platform credential, encrypting the secret
// when an encryption key is configured.
func (h *Handler) CreateCredential(w http.ResponseWriter, r *http.Request) {
	var req CredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cred, errMsg := h.credentialFromRequest(req)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Value == "" {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	now := time.Now().UTC()
	cred.ID = uuid.NewString()
	cred.IsValid = true
	cred.CreatedAt = now
	cred.UpdatedAt = now

	if err := h.creds.Create(r.Context(), *cred); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			writeError(w, http.StatusConflict, "a credential already exists for this platform")
			return
		}
		h.logger.Error("failed to create credential", "platform", cred.Platform, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, toCredentialResponse(*cred))
}

// ListCredentials returns all stored credentials with secret values redacted.
func (h *Handler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := h.creds.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list credentials", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]CredentialResponse, 0, len(creds))
	for _, c := range creds {
		resp = append(resp, toCredentialResponse(c))
	}

	writeJSON(w, http.StatusOK, resp)
}

// UpdateCredential replaces a credential's configuration. An empty value in
// the request keeps the stored secret.
func (h *Handler) UpdateCredential(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	existing, err := h.creds.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to load credential", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "credential not found")
		return
	}

	var req CredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Platform != "" && model.Platform(req.Platform) != existing.Platform {
		writeError(w, http.StatusBadRequest, "platform cannot be changed")
		return
	}
	req.Platform = string(existing.Platform)

	cred, errMsg := h.credentialFromRequest(req)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	cred.ID = existing.ID
	cred.IsValid = existing.IsValid
	cred.CreatedAt = existing.CreatedAt
	cred.UpdatedAt = time.Now().UTC()
	if req.Value == "" {
		cred.Value = existing.Value
	}

	if err := h.creds.Update(r.Context(), *cred); err != nil {
		h.logger.Error("failed to update credential", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toCredentialResponse(*cred))
}

// DeleteCredential removes a credential.
func (h *Handler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	existing, err := h.creds.GetByID(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to load credential", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "credential not found")
		return
	}

	if err := h.creds.Delete(r.Context(), id); err != nil {
		h.logger.Error("failed to delete credential", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ValidateCredential runs static checks plus one adapter probe and returns
// the verdict.
func (h *Handler) ValidateCredential(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	res, err := h.validator.Validate(r.Context(), id)
	if err != nil {
		var credErr *model.CredentialError
		if errors.As(err, &credErr) && credErr.Reason == "not found" {
			writeError(w, http.StatusNotFound, "credential not found")
			return
		}
		h.logger.Error("validation failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// TriggerSync starts a sync for the credential. A newly started job returns
// 202; when a job already holds the credential's lock the response is 200
// with that job's id.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.CredentialID == "" {
		writeError(w, http.StatusBadRequest, "credential_id is required")
		return
	}

	res, err := h.orch.Trigger(r.Context(), req.CredentialID, model.TriggerManual)
	if err != nil {
		var credErr *model.CredentialError
		if errors.As(err, &credErr) && credErr.Reason == "not found" {
			writeError(w, http.StatusNotFound, "credential not found")
			return
		}
		h.logger.Error("failed to trigger sync", "credential", req.CredentialID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	status := http.StatusAccepted
	if res.Existing {
		status = http.StatusOK
	}
	writeJSON(w, status, SyncResponse{JobID: res.JobID, Status: string(res.Status)})
}

// SyncStatus reports the latest sync per platform. The report degrades to an
// empty list rather than an error.
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	statuses := h.status.PlatformStatuses(r.Context())
	writeJSON(w, http.StatusOK, SyncStatusResponse{Platforms: statuses})
}

// ListJobs returns recent sync job logs, optionally filtered by platform.
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	platform := r.URL.Query().Get("platform")
	if platform != "" && !model.Platform(platform).Valid() {
		writeError(w, http.StatusBadRequest, "unknown platform")
		return
	}

	limit := defaultJobsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	jobs, err := h.jobs.ListRecent(r.Context(), platform, limit)
	if err != nil {
		h.logger.Error("failed to list jobs", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		resp = append(resp, toJobResponse(j))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health reports process liveness and database reachability.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		h.logger.Error("health check db ping failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status: "degraded",
			Time:   time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// credentialFromRequest builds a credential from a request body, encrypting
// the secret when the vault has a key. It returns a rejection message for
// invalid fields.
func (h *Handler) credentialFromRequest(req CredentialRequest) (*model.Credential, string) {
	platform := model.Platform(req.Platform)
	if !platform.Valid() {
		return nil, "unknown platform"
	}

	credType := model.CredentialType(req.Type)
	if !credType.Valid() {
		return nil, "unknown credential type"
	}

	freq := model.SyncFrequency(req.SyncFrequency)
	if req.SyncFrequency == "" {
		freq = model.FrequencyDaily
	}
	if !freq.Valid() {
		return nil, "unknown sync frequency"
	}

	value := req.Value
	if value != "" {
		sealed, err := h.vault.Encrypt(value)
		switch {
		case err == nil:
			value = sealed
		case errors.Is(err, vault.ErrEncryptionKeyNotSet):
			// No key configured: stored as-is, same as legacy rows.
		default:
			return nil, "failed to encrypt credential value"
		}
	}

	return &model.Credential{
		Platform: platform,
		Type:     credType,
		Value:    value,
		Metadata: req.Metadata,
		AutoSync: req.AutoSync,
		SyncFreq: freq,
	}, ""
}
