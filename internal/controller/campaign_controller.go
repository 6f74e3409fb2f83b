// internal/controller/campaign_controller.go
package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unclebandit/salon-messaging/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
}

// SendCampaign handles POST /api/campaigns/{name}/send.
func (c *CampaignController) SendCampaign(w http.ResponseWriter, r *http.Request) {
	var body service.CampaignRequest
	if err := decode(w, r, &body); err != nil {
		WriteError(w, err)
		return
	}

	result, err := c.CampaignService.SendCampaign(r.Context(), chi.URLParam(r, "name"), body)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, result)
}

// TriggerAutomation handles POST /api/automations/{type}.
func (c *CampaignController) TriggerAutomation(w http.ResponseWriter, r *http.Request) {
	var body service.AutomationRequest
	if err := decode(w, r, &body); err != nil {
		WriteError(w, err)
		return
	}

	res, err := c.CampaignService.TriggerAutomation(r.Context(), chi.URLParam(r, "type"), body)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, summarize(res))
}

// Routes mounts the send, campaign, automation and cancel endpoints.
func Routes(r chi.Router, campaigns *CampaignController, messages *MessageController) {
	r.Post("/api/messages", messages.SendMessage)
	r.Post("/api/messages/preview", messages.Preview)
	r.Delete("/api/queue/{id}", messages.CancelEntry)
	r.Post("/api/campaigns/{name}/send", campaigns.SendCampaign)
	r.Post("/api/automations/{type}", campaigns.TriggerAutomation)
}
