// internal/controller/message_controller.go
package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/salon-messaging/internal/model"
	"github.com/unclebandit/salon-messaging/internal/service"
)

// Canceller is the queue operation behind DELETE /api/queue/{id}.
type Canceller interface {
	Cancel(ctx context.Context, id string) (model.QueueEntry, error)
}

type MessageController struct {
	Service *service.CampaignService
	Queue   Canceller
}

// EntrySummary is what a send endpoint reports about the queued entry.
type EntrySummary struct {
	ID           string       `json:"id"`
	SendAt       time.Time    `json:"sendAt"`
	Status       model.Status `json:"status"`
	Campaign     string       `json:"campaign,omitempty"`
	DedupeKey    string       `json:"dedupeKey,omitempty"`
	Deduplicated bool         `json:"deduplicated"`
}

func summarize(res *service.EnqueueResult) EntrySummary {
	return EntrySummary{
		ID:           res.Entry.ID,
		SendAt:       res.Entry.SendAt,
		Status:       res.Entry.Status,
		Campaign:     res.Entry.Campaign,
		DedupeKey:    res.Entry.DedupeKey,
		Deduplicated: res.Deduplicated,
	}
}

// SendMessage handles POST /api/messages.
func (c *MessageController) SendMessage(w http.ResponseWriter, r *http.Request) {
	var body service.ManualSendRequest
	if err := decode(w, r, &body); err != nil {
		WriteError(w, err)
		return
	}

	res, err := c.Service.SendManual(r.Context(), body)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, summarize(res))
}

// Preview handles POST /api/messages/preview. Nothing is enqueued.
func (c *MessageController) Preview(w http.ResponseWriter, r *http.Request) {
	var body service.PreviewRequest
	if err := decode(w, r, &body); err != nil {
		WriteError(w, err)
		return
	}

	opts, err := c.Service.Preview(r.Context(), body)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, opts)
}

// CancelEntry handles DELETE /api/queue/{id}.
func (c *MessageController) CancelEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := c.Queue.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, entry)
}
