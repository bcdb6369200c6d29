package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/lifesync/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// CredentialRequest is the create/update request body. Value is the
// plaintext secret; it is sealed before storage and never echoed back.
type CredentialRequest struct {
	Platform      string            `json:"platform"`
	Type          string            `json:"type"`
	Value         string            `json:"value"`
	Metadata      map[string]string `json:"metadata"`
	AutoSync      bool              `json:"auto_sync"`
	SyncFrequency string            `json:"sync_frequency"`
}

// CredentialResponse is the JSON representation of a credential. The secret
// itself is redacted; HasValue tells a client whether one is stored.
type CredentialResponse struct {
	ID            string            `json:"id"`
	Platform      string            `json:"platform"`
	Type          string            `json:"type"`
	HasValue      bool              `json:"has_value"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	IsValid       bool              `json:"is_valid"`
	LastUsedAt    string            `json:"last_used_at,omitempty"`
	UsageCount    int               `json:"usage_count"`
	FailureCount  int               `json:"failure_count"`
	LastError     string            `json:"last_error,omitempty"`
	AutoSync      bool              `json:"auto_sync"`
	SyncFrequency string            `json:"sync_frequency"`
	CreatedAt     string            `json:"created_at"`
	UpdatedAt     string            `json:"updated_at"`
}

// toCredentialResponse converts a domain credential to its redacted JSON form.
func toCredentialResponse(c model.Credential) CredentialResponse {
	resp := CredentialResponse{
		ID:            c.ID,
		Platform:      string(c.Platform),
		Type:          string(c.Type),
		HasValue:      c.Value != "",
		Metadata:      c.Metadata,
		IsValid:       c.IsValid,
		UsageCount:    c.UsageCount,
		FailureCount:  c.FailureCount,
		LastError:     c.LastError,
		AutoSync:      c.AutoSync,
		SyncFrequency: string(c.SyncFreq),
		CreatedAt:     c.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     c.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if c.LastUsedAt != nil {
		resp.LastUsedAt = c.LastUsedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// SyncRequest is the manual sync trigger body.
type SyncRequest struct {
	CredentialID string `json:"credential_id"`
}

// SyncResponse reports the job covering a sync trigger.
type SyncResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// SyncStatusResponse is the cross-platform status report.
type SyncStatusResponse struct {
	Platforms []model.PlatformStatus `json:"platforms"`
}

// JobResponse is the JSON representation of a sync job log.
type JobResponse struct {
	ID            string            `json:"id"`
	Platform      string            `json:"platform"`
	CredentialID  string            `json:"credential_id,omitempty"`
	TriggeredBy   string            `json:"triggered_by"`
	JobType       string            `json:"job_type"`
	Status        string            `json:"status"`
	StartedAt     string            `json:"started_at"`
	CompletedAt   string            `json:"completed_at,omitempty"`
	DurationMS    int64             `json:"duration_ms"`
	ItemsTotal    int               `json:"items_total"`
	ItemsSuccess  int               `json:"items_success"`
	ItemsFailed   int               `json:"items_failed"`
	ItemsNew      int               `json:"items_new"`
	ItemsExisting int               `json:"items_existing"`
	Message       string            `json:"message,omitempty"`
	ErrorDetails  map[string]string `json:"error_details,omitempty"`
	Metrics       map[string]string `json:"metrics,omitempty"`
}

// toJobResponse converts a job log to its JSON form. The error stack stays
// server-side; it is for operators reading the database, not API clients.
func toJobResponse(j model.SyncJobLog) JobResponse {
	resp := JobResponse{
		ID:            j.ID,
		Platform:      string(j.Platform),
		CredentialID:  j.CredentialID,
		TriggeredBy:   string(j.TriggeredBy),
		JobType:       j.JobType,
		Status:        string(j.Status),
		StartedAt:     j.StartedAt.UTC().Format(time.RFC3339),
		DurationMS:    j.DurationMS,
		ItemsTotal:    j.ItemsTotal,
		ItemsSuccess:  j.ItemsSuccess,
		ItemsFailed:   j.ItemsFailed,
		ItemsNew:      j.ItemsNew,
		ItemsExisting: j.ItemsExisting,
		Message:       j.Message,
		ErrorDetails:  j.ErrorDetails,
		Metrics:       j.Metrics,
	}
	if j.CompletedAt != nil {
		resp.CompletedAt = j.CompletedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// HealthResponse is the health check response body.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}
