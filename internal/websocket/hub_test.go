package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// memorySubscriber is an in-process stand-in for Redis pub/sub.
type memorySubscriber struct {
	mu       sync.Mutex
	channels map[string]chan string
	ready    chan string
}

func newMemorySubscriber() *memorySubscriber {
	return &memorySubscriber{channels: make(map[string]chan string), ready: make(chan string, 8)}
}

func (m *memorySubscriber) Subscribe(ctx context.Context, channel string) (<-chan string, func()) {
	ch := make(chan string, 8)
	m.mu.Lock()
	m.channels[channel] = ch
	m.mu.Unlock()
	m.ready <- channel

	out := make(chan string)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case p := <-ch:
				out <- p
			}
		}
	}()
	return out, func() {}
}

func (m *memorySubscriber) publish(channel, payload string) {
	m.mu.Lock()
	ch := m.channels[channel]
	m.mu.Unlock()
	ch <- payload
}

func channelFor(id uuid.UUID) string { return "chat_updates:" + id.String() }

func dial(t *testing.T, server *httptest.Server, session string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?session=" + session
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestHub_RejectsMissingSession(t *testing.T) {
	hub := NewHub(newMemorySubscriber(), channelFor)

	rr := httptest.NewRecorder()
	hub.HandleWebSocket(rr, httptest.NewRequest(http.MethodGet, "/?session=not-a-uuid", nil))

	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rr.Code)
	}
}

func TestHub_DeliversOnlyToOwnSession(t *testing.T) {
	sub := newMemorySubscriber()
	hub := NewHub(sub, channelFor)
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	alice, bob := uuid.New(), uuid.New()
	aliceConn := dial(t, server, alice.String())
	defer aliceConn.Close()
	bobConn := dial(t, server, bob.String())
	defer bobConn.Close()

	for i := 0; i < 2; i++ {
		select {
		case <-sub.ready:
		case <-time.After(2 * time.Second):
			t.Fatal("subscription not started")
		}
	}

	sub.publish(channelFor(alice), `{"type":"status_update","payload":{"stage":"completed"}}`)

	aliceConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := aliceConn.ReadMessage()
	if err != nil {
		t.Fatalf("alice read: %v", err)
	}
	if !strings.Contains(string(msg), "completed") {
		t.Errorf("Unexpected message %s", msg)
	}

	bobConn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, msg, err := bobConn.ReadMessage(); err == nil {
		t.Errorf("Bob received another session's update: %s", msg)
	}
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	sub := newMemorySubscriber()
	hub := NewHub(sub, channelFor)
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	conn := dial(t, server, uuid.New().String())
	<-sub.ready
	if hub.Sessions() != 1 {
		t.Fatalf("Expected 1 session, got %d", hub.Sessions())
	}

	conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Sessions() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.Sessions() != 0 {
		t.Errorf("Expected session to be removed after disconnect")
	}
}
