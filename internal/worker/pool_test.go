package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"chatproxy/internal/models"
)

type memoryStore struct {
	mu      sync.Mutex
	saved   []models.Exchange
	err     error
	release chan struct{}
}

func (m *memoryStore) Create(ctx context.Context, e *models.Exchange) error {
	if m.release != nil {
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, *e)
	return nil
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.saved)
}

func exchange(status int) models.Exchange {
	return models.Exchange{ID: uuid.New(), Variant: "relay", Provider: "openai", Status: status}
}

func TestPool_StopDrainsQueue(t *testing.T) {
	store := &memoryStore{}
	pool := NewPool(store, 2, 16)
	pool.Start()

	for i := 0; i < 10; i++ {
		pool.Submit(exchange(200))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if got := store.count(); got != 10 {
		t.Errorf("Expected 10 stored exchanges, got %d", got)
	}
	if pool.Dropped() != 0 {
		t.Errorf("Expected no drops, got %d", pool.Dropped())
	}
}

func TestPool_DropsWhenFull(t *testing.T) {
	store := &memoryStore{release: make(chan struct{})}
	pool := NewPool(store, 1, 1)
	pool.Start()

	// One record blocks in the worker, one fills the queue, the rest drop.
	pool.Submit(exchange(200))
	deadline := time.Now().Add(time.Second)
	for len(pool.queue) != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	pool.Submit(exchange(200))
	pool.Submit(exchange(200))
	pool.Submit(exchange(200))

	if got := pool.Dropped(); got != 2 {
		t.Errorf("Expected 2 dropped records, got %d", got)
	}

	close(store.release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := store.count(); got != 2 {
		t.Errorf("Expected 2 stored exchanges, got %d", got)
	}
}

func TestPool_CountsStoreFailures(t *testing.T) {
	store := &memoryStore{err: errors.New("db down")}
	pool := NewPool(store, 1, 4)
	pool.Start()

	pool.Submit(exchange(502))
	pool.Submit(exchange(200))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pool.Stop(ctx)

	if got := pool.Failed(); got != 2 {
		t.Errorf("Expected 2 failed writes, got %d", got)
	}
}

func TestPool_SubmitAfterStopIsDropped(t *testing.T) {
	store := &memoryStore{}
	pool := NewPool(store, 1, 4)
	pool.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	pool.Stop(ctx)

	pool.Submit(exchange(200))
	if pool.Dropped() != 1 {
		t.Errorf("Expected submit after stop to be dropped, got %d drops", pool.Dropped())
	}
	if store.count() != 0 {
		t.Errorf("Expected nothing stored after stop")
	}
}
