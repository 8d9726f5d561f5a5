// Package httphandler serves the webhook receiver and the run ledger API.
package httphandler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/chainupdate/internal/application"
	"github.com/ericfisherdev/chainupdate/internal/domain/model"
	"github.com/ericfisherdev/chainupdate/internal/domain/port/driven"
)

// maxPayloadBytes is the largest webhook body GitHub delivers.
const maxPayloadBytes = 25 << 20

const (
	defaultRunLimit = 50
	maxRunLimit     = 500
)

// EventParser decodes a webhook payload of the given event type.
type EventParser func(eventType string, payload []byte) (*model.WorkflowRunEvent, error)

// EventFilter decides whether an event starts a pipeline run.
type EventFilter interface {
	Accept(ev model.WorkflowRunEvent) error
}

// RunQueue accepts events for asynchronous execution.
type RunQueue interface {
	Submit(ev model.WorkflowRunEvent) error
}

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	runs   driven.RunStore
	filter EventFilter
	queue  RunQueue
	parse  EventParser
	health *application.HealthService
	secret []byte
	logger *slog.Logger
}

// Deps groups the collaborators of a Handler.
type Deps struct {
	Runs   driven.RunStore
	Filter EventFilter
	Queue  RunQueue
	Parse  EventParser
	Health *application.HealthService
	// WebhookSecret validates the X-Hub-Signature-256 header. When empty,
	// unsigned deliveries are accepted.
	WebhookSecret string
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(deps Deps, logger *slog.Logger) *Handler {
	return &Handler{
		runs:   deps.Runs,
		filter: deps.Filter,
		queue:  deps.Queue,
		parse:  deps.Parse,
		health: deps.Health,
		secret: []byte(deps.WebhookSecret),
		logger: logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/webhooks/github", h.ReceiveWebhook)
	mux.HandleFunc("GET /api/v1/runs", h.ListRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", h.GetRun)
	mux.HandleFunc("GET /api/v1/runs/{id}/preview", h.PreviewRun)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// ReceiveWebhook validates a GitHub delivery and queues workflow_run events
// that the pipeline follows.
func (h *Handler) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPayloadBytes)

	payload, err := gh.ValidatePayload(r, h.secret)
	if err != nil {
		h.logger.Warn("rejected webhook delivery", "delivery", gh.DeliveryID(r), "error", err)
		writeError(w, http.StatusUnauthorized, "invalid webhook payload")
		return
	}

	eventType := gh.WebHookType(r)
	switch eventType {
	case "ping":
		writeJSON(w, http.StatusOK, WebhookResponse{Status: "pong"})
		return
	case "workflow_run":
	default:
		w.WriteHeader(http.StatusNoContent)
		return
	}

	ev, err := h.parse(eventType, payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid workflow_run payload")
		return
	}
	ev.DeliveryID = gh.DeliveryID(r)

	if err := h.filter.Accept(*ev); err != nil {
		h.logger.Info("webhook ignored", "delivery", ev.DeliveryID, "run_id", ev.RunID, "reason", err)
		writeJSON(w, http.StatusAccepted, WebhookResponse{Status: "ignored", Reason: err.Error(), RunID: ev.RunID})
		return
	}

	if err := h.queue.Submit(*ev); err != nil {
		if errors.Is(err, application.ErrQueueFull) {
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusServiceUnavailable, "run queue is full")
			return
		}
		h.logger.Error("failed to queue run", "delivery", ev.DeliveryID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.logger.Info("run queued", "delivery", ev.DeliveryID, "run_id", ev.RunID, "pr", ev.PRNumber)
	writeJSON(w, http.StatusAccepted, WebhookResponse{Status: "queued", RunID: ev.RunID})
}

// ListRuns returns the most recent pipeline runs. The limit query parameter
// caps the result, up to 500.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultRunLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxRunLimit)
	}

	runs, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list runs", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]RunResponse, 0, len(runs))
	for _, run := range runs {
		resp = append(resp, toRunResponse(run))
	}

	writeJSON(w, http.StatusOK, resp)
}

// GetRun returns a single run with its job results.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toRunResponse(*run))
}

// PreviewRun returns the pull request bodies of a run rendered to sanitized HTML.
func (h *Handler) PreviewRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}

	resp := PreviewResponse{RunID: run.ID, Jobs: make([]JobPreviewResponse, 0, len(run.Jobs))}
	for _, job := range run.Jobs {
		resp.Jobs = append(resp.Jobs, JobPreviewResponse{
			Job:      job.Job,
			Title:    job.Title,
			PRURL:    job.PRURL,
			BodyHTML: RenderMarkdown(job.Body),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) lookupRun(w http.ResponseWriter, r *http.Request) (*model.RunRecord, bool) {
	id := r.PathValue("id")

	run, err := h.runs.GetRun(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to get run", "run", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return nil, false
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return nil, false
	}
	return run, true
}

// Health reports ledger reachability and queue depth. A degraded service
// answers 503 so container probes fail.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.health.Check(r.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
