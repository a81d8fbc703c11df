package handler

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"github.com/srgjo27/channel_manager/internal/core/domain"
	"github.com/srgjo27/channel_manager/internal/core/services"
)

type WebhookHandler struct {
	svc *services.WebhookService
}

func NewWebhookHandler(svc *services.WebhookService) *WebhookHandler {
	return &WebhookHandler{svc: svc}
}

type webhookBody struct {
	Event     string                `json:"event"`
	Channel   string                `json:"channel"`
	Timestamp string                `json:"timestamp"`
	Data      domain.WebhookPayload `json:"data"`
}

// Receive handles POST /webhooks/:channel. A 200 covers both real processing
// and idempotent skips; the channel retries on anything else.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")

	channel := ps.ByName("channel")

	var body webhookBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "invalid json body"})
		return
	}

	if body.Channel != "" && body.Channel != channel {
		log.Printf("[Webhook] body channel %q differs from endpoint %q, trusting endpoint", body.Channel, channel)
	}

	ts, err := time.Parse(time.RFC3339, body.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}

	event := domain.WebhookEvent{
		Channel:   channel,
		Event:     body.Event,
		Timestamp: ts,
		Data:      body.Data,
	}
	event.Data.ReceivedAt = time.Now().UTC()

	if err := h.svc.Process(r.Context(), event); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{"success": false, "error": err.Error()})
		return
	}

	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

// Status handles GET /webhooks/status.
func (h *WebhookHandler) Status(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.svc.Status())
}
