// Package server exposes the offline queue to the mobile web shell over a
// localhost REST and WebSocket API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	apperrors "github.com/Maheshkumarjena/tourist-safety-prod-org/internal/errors"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/logging"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/models"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/queue"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/sync/scheduler"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/uuid"
	"github.com/Maheshkumarjena/tourist-safety-prod-org/internal/validation"
)

const maxBodyBytes = 1 << 20

// Queue is the store surface the handlers use; *queue.Store implements it.
type Queue interface {
	Enqueue(req queue.EnqueueRequest) string
	List() []models.QueuedRequest
	Get(id string) (models.QueuedRequest, error)
	Stats() models.QueueStats
	Len() int
	Retry(id string) error
	RetryFailed() int
	Remove(id string) error
	Clear()
}

// Runner drives replay passes and connectivity; *scheduler.Scheduler
// implements it.
type Runner interface {
	SyncNow(ctx context.Context) models.SyncResult
	TriggerSync(ctx context.Context) bool
	SetOnlineStatus(online bool)
	IsOnline() bool
	Status() scheduler.Status
}

// Hydrator seeds the queue from the backend; *api.Hydrator implements it.
type Hydrator interface {
	Hydrate(ctx context.Context) (int, error)
}

// QueueHandler handles the /api/queue and /api/connectivity endpoints.
type QueueHandler struct {
	queue    Queue
	runner   Runner
	hydrator Hydrator
	validate *validatorv10.Validate
	// background outlives requests; passes started by enqueue use it.
	background context.Context
}

// NewQueueHandler creates a QueueHandler. hydrator may be nil.
func NewQueueHandler(background context.Context, q Queue, runner Runner, hydrator Hydrator) *QueueHandler {
	return &QueueHandler{
		queue:      q,
		runner:     runner,
		hydrator:   hydrator,
		validate:   validation.New(),
		background: background,
	}
}

// Health handles GET /api/health.
func (h *QueueHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": "offlineq",
		"online":  h.runner.IsOnline(),
	})
}

// List handles GET /api/queue.
func (h *QueueHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"requests":  h.queue.List(),
		"stats":     h.queue.Stats(),
		"online":    h.runner.IsOnline(),
		"scheduler": h.runner.Status(),
	})
}

// Get handles GET /api/queue/{id}.
func (h *QueueHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.queue.Get(requestID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"request": req})
}

// Enqueue handles POST /api/queue. When the backend is reachable a pass is
// started right away.
func (h *QueueHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var body validation.EnqueueRequest
	if !h.bind(w, r, &body) {
		return
	}
	method, _ := models.ParseMethod(body.Method)

	id := h.queue.Enqueue(queue.EnqueueRequest{
		Endpoint: body.Endpoint,
		Method:   method,
		Payload:  body.Data,
	})
	req, err := h.queue.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	if h.runner.IsOnline() {
		h.runner.TriggerSync(h.background)
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"request": req})
}

// Sync handles POST /api/queue/sync and waits for the pass.
func (h *QueueHandler) Sync(w http.ResponseWriter, r *http.Request) {
	result := h.runner.SyncNow(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"processed": result.Processed,
		"failed":    result.Failed,
		"online":    h.runner.IsOnline(),
		"stats":     h.queue.Stats(),
	})
}

// Retry handles POST /api/queue/{id}/retry.
func (h *QueueHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := requestID(r)
	if err := h.queue.Retry(id); err != nil {
		writeError(w, err)
		return
	}
	req, err := h.queue.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"request": req})
}

// RetryFailed handles POST /api/queue/retry.
func (h *QueueHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"reset": h.queue.RetryFailed()})
}

// Remove handles DELETE /api/queue/{id}.
func (h *QueueHandler) Remove(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.Remove(requestID(r)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Clear handles DELETE /api/queue.
func (h *QueueHandler) Clear(w http.ResponseWriter, r *http.Request) {
	count := h.queue.Len()
	h.queue.Clear()
	writeJSON(w, http.StatusOK, map[string]interface{}{"cleared": count})
}

// Hydrate handles POST /api/queue/hydrate.
func (h *QueueHandler) Hydrate(w http.ResponseWriter, r *http.Request) {
	if h.hydrator == nil {
		writeError(w, apperrors.New(apperrors.ErrInvalid, "hydration is not configured"))
		return
	}
	added, err := h.hydrator.Hydrate(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"added": added,
		"stats": h.queue.Stats(),
	})
}

// SetConnectivity handles PUT /api/connectivity, the bridge for platform
// online/offline signals.
func (h *QueueHandler) SetConnectivity(w http.ResponseWriter, r *http.Request) {
	var body validation.ConnectivityRequest
	if !h.bind(w, r, &body) {
		return
	}
	h.runner.SetOnlineStatus(*body.Online)
	writeJSON(w, http.StatusOK, map[string]interface{}{"online": h.runner.IsOnline()})
}

// bind decodes and validates a JSON body, writing a 400 on failure.
func (h *QueueHandler) bind(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(out); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   string(apperrors.ErrInvalid),
			"message": "invalid request body: " + err.Error(),
		})
		return false
	}
	if err := h.validate.Struct(out); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   string(apperrors.ErrValidation),
			"message": "validation failed",
			"fields":  validation.FieldErrors(err),
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Debug("Failed to write response", map[string]interface{}{"error": err.Error()})
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if code == "" {
		code = apperrors.ErrInternal
	}
	status := apperrors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithCode("Agent API request failed", string(code), err)
	}
	writeJSON(w, status, map[string]interface{}{
		"error":   string(code),
		"message": message,
	})
}

// requestID reads the {id} path variable; UUIDs match regardless of case.
func requestID(r *http.Request) string {
	return uuid.Normalize(mux.Vars(r)["id"])
}
