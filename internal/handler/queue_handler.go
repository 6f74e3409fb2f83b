// internal/handler/queue_handler.go
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/salon-messaging/internal/controller"
	appErrors "github.com/unclebandit/salon-messaging/internal/errors"
	"github.com/unclebandit/salon-messaging/internal/model"
	"github.com/unclebandit/salon-messaging/internal/service"
)

// QueueReader is the read side of the delivery queue.
type QueueReader interface {
	Snapshot(ctx context.Context) (model.Queue, error)
	Get(ctx context.Context, id string) (model.QueueEntry, error)
}

// QueueHandler serves the status boundary: what is queued and what happened
// to it.
type QueueHandler struct {
	Queue QueueReader
}

func NewQueueHandler(q QueueReader) *QueueHandler {
	return &QueueHandler{Queue: q}
}

// ListQueueHandler returns the queue snapshot, optionally filtered by
// ?status=, ?channel= and ?campaign=, and capped by ?limit=.
func (h *QueueHandler) ListQueueHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	status := model.Status(query.Get("status"))
	channel := model.Channel(query.Get("channel"))
	campaign := query.Get("campaign")

	limit := 0
	if s := query.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			controller.WriteError(w, appErrors.NewValidationError("limit", "must be a positive integer"))
			return
		}
		limit = n
	}

	snap, err := h.Queue.Snapshot(r.Context())
	if err != nil {
		controller.WriteError(w, err)
		return
	}

	out := []model.QueueEntry{}
	for _, e := range snap.Messages {
		if status != "" && e.Status != status {
			continue
		}
		if channel != "" && e.Channel != channel {
			continue
		}
		if campaign != "" && e.Campaign != campaign {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}

	controller.WriteJSON(w, http.StatusOK, model.Queue{Messages: out})
}

// GetEntryHandler returns one entry by id.
func (h *QueueHandler) GetEntryHandler(w http.ResponseWriter, r *http.Request) {
	entry, err := h.Queue.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		controller.WriteError(w, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, entry)
}

func (h *QueueHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Queue.Snapshot(r.Context())
	if err != nil {
		controller.WriteError(w, err)
		return
	}
	controller.WriteJSON(w, http.StatusOK, service.SummarizeQueue(snap))
}

// HealthHandler reports liveness plus which backends this process uses.
type HealthHandler struct {
	StoreDriver string
	WakeDriver  string
	CacheDriver string
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	controller.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
		"store":  h.StoreDriver,
		"wake":   h.WakeDriver,
		"cache":  h.CacheDriver,
	})
}

// Routes mounts the read-only status endpoints. /api/queue/stats is
// registered before /api/queue/{id}.
func Routes(r chi.Router, queue *QueueHandler, health *HealthHandler) {
	r.Get("/health", health.ServeHTTP)
	r.Get("/api/queue", queue.ListQueueHandler)
	r.Get("/api/queue/stats", queue.StatsHandler)
	r.Get("/api/queue/{id}", queue.GetEntryHandler)
}
