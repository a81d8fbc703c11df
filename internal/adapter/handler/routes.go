package handler

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// NewRouter wires every endpoint.
func NewRouter(webhooks *WebhookHandler, bookings *BookingHandler, inventory *InventoryHandler, ws *WSHandler) http.Handler {
	router := httprouter.New()

	router.POST("/webhooks/:channel", webhooks.Receive)
	router.GET("/webhooks/status", webhooks.Status)

	router.POST("/bookings", bookings.Create)
	router.GET("/bookings/:id", bookings.Get)
	router.POST("/bookings/:id/confirm", bookings.Confirm)
	router.POST("/bookings/:id/checkin", bookings.CheckIn)
	router.POST("/bookings/:id/checkout", bookings.CheckOut)
	router.POST("/bookings/:id/cancel", bookings.Cancel)
	router.PATCH("/bookings/:id/dates", bookings.ChangeDates)

	router.GET("/availability", inventory.Availability)
	router.POST("/blocks", inventory.Block)
	router.DELETE("/blocks", inventory.Unblock)

	router.GET("/ws/property/:propertyId", ws.Subscribe)

	return router
}
