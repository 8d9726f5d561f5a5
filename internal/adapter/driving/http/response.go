package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/chainupdate/internal/domain/model"
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

// WebhookResponse is returned for every handled webhook delivery.
type WebhookResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	RunID  int64  `json:"run_id,omitempty"`
}

// RunResponse is the JSON representation of a ledger run.
type RunResponse struct {
	ID            string              `json:"id"`
	UpstreamRunID int64               `json:"upstream_run_id"`
	Workflow      string              `json:"workflow"`
	Repository    string              `json:"repository"`
	Conclusion    string              `json:"conclusion"`
	PRNumber      int                 `json:"pr_number,omitempty"`
	State         string              `json:"state"`
	Outcome       string              `json:"outcome"`
	Error         string              `json:"error,omitempty"`
	StartedAt     string              `json:"started_at"`
	FinishedAt    string              `json:"finished_at,omitempty"`
	Jobs          []JobResultResponse `json:"jobs"`
}

// JobResultResponse is the JSON representation of one job result.
type JobResultResponse struct {
	Job      string   `json:"job"`
	Outcome  string   `json:"outcome"`
	PRURL    string   `json:"pr_url,omitempty"`
	PRNumber int      `json:"pr_number,omitempty"`
	HeadSHA  string   `json:"head_sha,omitempty"`
	Title    string   `json:"title,omitempty"`
	Warnings []string `json:"warnings"`
	Consumed bool     `json:"consumed"`
}

// PreviewResponse carries the rendered pull request bodies of a run.
type PreviewResponse struct {
	RunID string               `json:"run_id"`
	Jobs  []JobPreviewResponse `json:"jobs"`
}

// JobPreviewResponse is one job's pull request text, with the body as sanitized HTML.
type JobPreviewResponse struct {
	Job      string `json:"job"`
	Title    string `json:"title"`
	PRURL    string `json:"pr_url,omitempty"`
	BodyHTML string `json:"body_html"`
}

func toRunResponse(run model.RunRecord) RunResponse {
	resp := RunResponse{
		ID:            run.ID,
		UpstreamRunID: run.UpstreamRunID,
		Workflow:      run.Workflow,
		Repository:    run.Repository,
		Conclusion:    string(run.Conclusion),
		PRNumber:      run.PRNumber,
		State:         string(run.State),
		Outcome:       string(run.Outcome),
		Error:         run.Error,
		StartedAt:     formatTime(run.StartedAt),
		FinishedAt:    formatTime(run.FinishedAt),
		Jobs:          make([]JobResultResponse, 0, len(run.Jobs)),
	}
	for _, job := range run.Jobs {
		resp.Jobs = append(resp.Jobs, toJobResultResponse(job))
	}
	return resp
}

func toJobResultResponse(job model.JobResult) JobResultResponse {
	warnings := job.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return JobResultResponse{
		Job:      job.Job,
		Outcome:  string(job.Outcome),
		PRURL:    job.PRURL,
		PRNumber: job.PRNumber,
		HeadSHA:  job.HeadSHA,
		Title:    job.Title,
		Warnings: warnings,
		Consumed: job.Consumed,
	}
}

// formatTime renders t as RFC 3339 in UTC, or "" for the zero time.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
