package notifier

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

// Hub relays property-scoped events from redis pub/sub to websocket
// subscribers. Connections that fail a write are dropped on the spot.
type Hub struct {
	rdb *redis.Client

	mu          sync.Mutex
	subscribers map[string][]*websocket.Conn
}

func NewHub(rdb *redis.Client) *Hub {
	return &Hub{
		rdb:         rdb,
		subscribers: make(map[string][]*websocket.Conn),
	}
}

func (h *Hub) Subscribe(propertyID string, conn *websocket.Conn) {
	h.mu.Lock()
	h.subscribers[propertyID] = append(h.subscribers[propertyID], conn)
	h.mu.Unlock()
}

func (h *Hub) Unsubscribe(propertyID string, conn *websocket.Conn) {
	h.mu.Lock()
	conns := h.subscribers[propertyID]
	next := make([]*websocket.Conn, 0, len(conns))
	for _, c := range conns {
		if c != conn {
			next = append(next, c)
		}
	}
	h.subscribers[propertyID] = next
	h.mu.Unlock()

	conn.Close()
}

func (h *Hub) broadcast(propertyID string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.subscribers[propertyID]
	alive := conns[:0]

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.TextMessage, payload); err == nil {
			alive = append(alive, conn)
		} else {
			conn.Close()
		}
	}

	h.subscribers[propertyID] = alive
}

// Run consumes the property-events channels until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	sub := h.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	log.Println("[Hub] listening for property events")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Println("[Hub] stopped")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			propertyID := strings.TrimPrefix(msg.Channel, channelPrefix)
			h.broadcast(propertyID, []byte(msg.Payload))
		}
	}
}
