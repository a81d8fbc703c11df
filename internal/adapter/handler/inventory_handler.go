package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/redis/go-redis/v9"

	"github.com/srgjo27/channel_manager/internal/core/services"
)

const availabilityCacheTTL = 30 * time.Second

type InventoryHandler struct {
	ledger *services.LedgerService
	rdb    *redis.Client
}

func NewInventoryHandler(ledger *services.LedgerService, rdb *redis.Client) *InventoryHandler {
	return &InventoryHandler{ledger: ledger, rdb: rdb}
}

type availabilityResponse struct {
	PropertyID string               `json:"property_id"`
	RoomID     string               `json:"room_id"`
	From       string               `json:"from"`
	To         string               `json:"to"`
	Nights     []services.NightView `json:"nights"`
}

type rangeRequest struct {
	PropertyID string `json:"property_id"`
	RoomID     string `json:"room_id"`
	From       string `json:"from"`
	To         string `json:"to"`
	Units      int    `json:"units"`
	Reason     string `json:"reason"`
}

func (req rangeRequest) parse() (uuid.UUID, uuid.UUID, string, string, error) {
	propertyID, err := uuid.Parse(req.PropertyID)
	if err != nil {
		return uuid.Nil, uuid.Nil, "", "", errors.New("invalid property_id")
	}

	roomID, err := uuid.Parse(req.RoomID)
	if err != nil {
		return uuid.Nil, uuid.Nil, "", "", errors.New("invalid room_id")
	}

	if req.From == "" || req.To == "" {
		return uuid.Nil, uuid.Nil, "", "", errors.New("from and to are required")
	}

	return propertyID, roomID, req.From, req.To, nil
}

// Availability handles GET /availability?propertyId&roomId&from&to, with a
// short-lived cache invalidated by booking mutations.
func (h *InventoryHandler) Availability(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()

	req := rangeRequest{
		PropertyID: q.Get("propertyId"),
		RoomID:     q.Get("roomId"),
		From:       q.Get("from"),
		To:         q.Get("to"),
	}

	propertyID, roomID, from, to, err := req.parse()
	if err != nil {
		writeError(w, err)
		return
	}

	stay, err := services.ParseStay(from, to)
	if err != nil {
		writeError(w, err)
		return
	}

	cacheKey := "availability:" + propertyID.String() + ":" + roomID.String()

	if h.rdb != nil {
		if cached, err := h.rdb.Get(r.Context(), cacheKey).Result(); err == nil {
			var resp availabilityResponse
			if json.Unmarshal([]byte(cached), &resp) == nil && resp.From == from && resp.To == to {
				writeJSON(w, http.StatusOK, resp)
				return
			}
		}
	}

	nights, err := h.ledger.Availability(r.Context(), propertyID, roomID, stay)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := availabilityResponse{
		PropertyID: propertyID.String(),
		RoomID:     roomID.String(),
		From:       from,
		To:         to,
		Nights:     nights,
	}

	if h.rdb != nil {
		if data, err := json.Marshal(resp); err == nil {
			if err := h.rdb.Set(r.Context(), cacheKey, data, availabilityCacheTTL).Err(); err != nil {
				log.Printf("[Inventory] cache write failed: %v", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Block handles POST /blocks: maintenance and owner holds.
func (h *InventoryHandler) Block(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req rangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}

	propertyID, roomID, from, to, err := req.parse()
	if err != nil {
		writeError(w, err)
		return
	}

	stay, err := services.ParseStay(from, to)
	if err != nil {
		writeError(w, err)
		return
	}

	units := req.Units
	if units == 0 {
		units = 1
	}

	if err := h.ledger.Block(r.Context(), propertyID, roomID, stay, units, req.Reason); err != nil {
		writeError(w, err)
		return
	}

	h.invalidate(r, propertyID.String(), roomID.String())
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// Unblock handles DELETE /blocks.
func (h *InventoryHandler) Unblock(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req rangeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json body"})
		return
	}

	propertyID, roomID, from, to, err := req.parse()
	if err != nil {
		writeError(w, err)
		return
	}

	stay, err := services.ParseStay(from, to)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.ledger.Unblock(r.Context(), propertyID, roomID, stay, req.Units); err != nil {
		writeError(w, err)
		return
	}

	h.invalidate(r, propertyID.String(), roomID.String())
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *InventoryHandler) invalidate(r *http.Request, propertyID, roomID string) {
	if h.rdb == nil {
		return
	}

	if err := h.rdb.Del(r.Context(), "availability:"+propertyID+":"+roomID).Err(); err != nil {
		log.Printf("[Inventory] cache invalidation failed: %v", err)
	}
}
