// Package notifier fans booking and inventory changes out to dashboards.
// Delivery is best-effort, at-most-once: a failed emit is logged and never
// rolls back or blocks the transaction that produced it.
package notifier

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/srgjo27/channel_manager/internal/core/ports"
)

const channelPrefix = "property-events:"

type RedisEmitter struct {
	rdb *redis.Client
}

func NewRedisEmitter(rdb *redis.Client) *RedisEmitter {
	return &RedisEmitter{rdb: rdb}
}

func (e *RedisEmitter) Emit(ctx context.Context, n ports.Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		log.Printf("[Notifier] failed to marshal %s event: %v", n.Event, err)
		return
	}

	topic := channelPrefix + n.PropertyID.String()
	if err := e.rdb.Publish(ctx, topic, data).Err(); err != nil {
		log.Printf("[Notifier] failed to publish %s to %s: %v", n.Event, topic, err)
	}
}
