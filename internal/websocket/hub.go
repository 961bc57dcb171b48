package websocket

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Subscriber yields the payloads published for a channel until ctx ends.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan string, func())
}

// RedisSubscriber adapts a go-redis client to Subscriber.
type RedisSubscriber struct {
	Client *redis.Client
}

func (s RedisSubscriber) Subscribe(ctx context.Context, channel string) (<-chan string, func()) {
	pubsub := s.Client.Subscribe(ctx, channel)
	out := make(chan string)
	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, func() { pubsub.Close() }
}

// Hub fans chat status updates out to browsers, keyed by session id.
// A session only ever sees its own updates.
type Hub struct {
	mu          sync.RWMutex
	connections map[uuid.UUID][]*websocket.Conn
	subscriber  Subscriber
	channelFor  func(uuid.UUID) string
	cancelFuncs map[uuid.UUID]context.CancelFunc
}

func NewHub(subscriber Subscriber, channelFor func(uuid.UUID) string) *Hub {
	return &Hub{
		connections: make(map[uuid.UUID][]*websocket.Conn),
		subscriber:  subscriber,
		channelFor:  channelFor,
		cancelFuncs: make(map[uuid.UUID]context.CancelFunc),
	}
}

func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID, err := uuid.Parse(r.URL.Query().Get("session"))
	if err != nil || sessionID == uuid.Nil {
		http.Error(w, "Invalid session", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	h.registerConnection(sessionID, conn)

	// Keep connection alive and handle disconnect
	go func() {
		defer h.unregisterConnection(sessionID, conn)
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				break
			}
		}
	}()
}

func (h *Hub) registerConnection(sessionID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.connections[sessionID] = append(h.connections[sessionID], conn)

	// Start pub/sub subscription if this is the first connection for this session
	if len(h.connections[sessionID]) == 1 {
		ctx, cancel := context.WithCancel(context.Background())
		h.cancelFuncs[sessionID] = cancel
		go h.subscribe(ctx, sessionID)
	}

	log.Printf("WebSocket connected: session %s (total: %d)", sessionID, len(h.connections[sessionID]))
}

func (h *Hub) unregisterConnection(sessionID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conn.Close()

	conns := h.connections[sessionID]
	for i, c := range conns {
		if c == conn {
			h.connections[sessionID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}

	// If no more connections, cancel pub/sub
	if len(h.connections[sessionID]) == 0 {
		delete(h.connections, sessionID)
		if cancel, ok := h.cancelFuncs[sessionID]; ok {
			cancel()
			delete(h.cancelFuncs, sessionID)
		}
	}

	log.Printf("WebSocket disconnected: session %s", sessionID)
}

func (h *Hub) subscribe(ctx context.Context, sessionID uuid.UUID) {
	payloads, closeFn := h.subscriber.Subscribe(ctx, h.channelFor(sessionID))
	defer closeFn()

	for payload := range payloads {
		h.broadcast(sessionID, []byte(payload))
	}
}

func (h *Hub) broadcast(sessionID uuid.UUID, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.connections[sessionID] {
		conn.WriteMessage(websocket.TextMessage, data)
	}
}

// Sessions reports how many sessions currently have a live connection.
func (h *Hub) Sessions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}
