package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"chatproxy/internal/models"
)

// SessionChannel is the pub/sub channel carrying one session's updates.
func SessionChannel(session uuid.UUID) string {
	return "chat_updates:" + session.String()
}

// RedisPublisher sends pipeline updates to Redis pub/sub, where the
// websocket hub of any instance can pick them up.
type RedisPublisher struct {
	redis *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{redis: client}
}

// Publish sends a status update. Failures are logged and otherwise ignored;
// live updates are best effort and never fail a chat request.
func (p *RedisPublisher) Publish(ctx context.Context, update models.StatusUpdate) {
	data, err := json.Marshal(models.WSMessage{Type: "status_update", Payload: update})
	if err != nil {
		return
	}
	if err := p.redis.Publish(ctx, SessionChannel(update.SessionID), string(data)).Err(); err != nil {
		log.Printf("events: publish %s for %s failed: %v", update.Stage, update.RequestID, err)
	}
}
