package handler

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/srgjo27/channel_manager/internal/adapter/notifier"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Dashboards connect from their own origin.
		return true
	},
}

type WSHandler struct {
	hub *notifier.Hub
}

func NewWSHandler(hub *notifier.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// Subscribe handles GET /ws/property/:propertyId and streams that property's
// booking and inventory events until the client disconnects.
func (h *WSHandler) Subscribe(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	propertyID := ps.ByName("propertyId")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote its own error response.
		log.Printf("[WS] upgrade failed for property %s: %v", propertyID, err)
		return
	}

	h.hub.Subscribe(propertyID, conn)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.hub.Unsubscribe(propertyID, conn)
}
