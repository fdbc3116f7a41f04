package api

import (
	"reelscope/internal/analyzer"
	"reelscope/internal/deps"
	"reelscope/internal/logging"
	"reelscope/internal/preflight"
	"reelscope/internal/services"
	"reelscope/internal/workflow"
)

// SubmitRequest is the body of POST /api/submissions.
type SubmitRequest struct {
	Input   string            `json:"input"`
	Context *analyzer.Options `json:"context,omitempty"`
}

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	ID        string `json:"id"`
	StatusURL string `json:"status_url"`
	EventsURL string `json:"events_url"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string             `json:"error"`
	Code  services.ErrorCode `json:"code,omitempty"`
}

// LogStreamResponse wraps a batch of log events.
type LogStreamResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool                   `json:"running"`
	PID          int                    `json:"pid"`
	APIAddress   string                 `json:"api_address,omitempty"`
	LockFilePath string                 `json:"lock_path"`
	LogPath      string                 `json:"log_path,omitempty"`
	StoreBackend string                 `json:"store_backend"`
	Analyzer     string                 `json:"analyzer"`
	Workflow     workflow.StatusSummary `json:"workflow"`
	Dependencies []deps.Status          `json:"dependencies"`
	Checks       []preflight.Result     `json:"checks,omitempty"`
}

// NotificationTestResponse reports the outcome of POST /api/notifications/test.
type NotificationTestResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// SubmissionPath returns the polling path for id.
func SubmissionPath(id string) string {
	return "/api/submissions/" + id
}

// EventsPath returns the event stream path for id.
func EventsPath(id string) string {
	return SubmissionPath(id) + "/events"
}
