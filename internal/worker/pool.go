package worker

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"chatproxy/internal/models"
)

// ExchangeStore persists audited exchanges.
type ExchangeStore interface {
	Create(ctx context.Context, e *models.Exchange) error
}

// Pool writes audit records off the request path. Submit never blocks:
// when the queue is full the record is dropped and counted.
type Pool struct {
	store        ExchangeStore
	queue        chan models.Exchange
	workerCount  int
	writeTimeout time.Duration
	stopChan     chan struct{}
	wg           sync.WaitGroup
	startOnce    sync.Once
	stopOnce     sync.Once
	dropped      atomic.Int64
	failed       atomic.Int64
}

func NewPool(store ExchangeStore, workerCount, queueSize int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueSize < 1 {
		queueSize = 64
	}
	return &Pool{
		store:        store,
		queue:        make(chan models.Exchange, queueSize),
		workerCount:  workerCount,
		writeTimeout: 5 * time.Second,
		stopChan:     make(chan struct{}),
	}
}

func (p *Pool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workerCount; i++ {
			p.wg.Add(1)
			go p.worker(i)
		}
		log.Printf("Started %d audit workers", p.workerCount)
	})
}

// Stop stops accepting records, drains the queue and waits for the
// workers to finish or ctx to expire.
func (p *Pool) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() { close(p.stopChan) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) Submit(ex models.Exchange) {
	select {
	case <-p.stopChan:
		p.dropped.Add(1)
		return
	default:
	}

	select {
	case p.queue <- ex:
	default:
		n := p.dropped.Add(1)
		log.Printf("Audit queue full, dropped exchange %s (%d dropped so far)", ex.ID, n)
	}
}

// Dropped reports how many records were discarded because the queue was full
// or the pool was stopping.
func (p *Pool) Dropped() int64 { return p.dropped.Load() }

// Failed reports how many records the store rejected.
func (p *Pool) Failed() int64 { return p.failed.Load() }

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case ex := <-p.queue:
			p.write(id, ex)
		case <-p.stopChan:
			// Drain whatever is already queued
			for {
				select {
				case ex := <-p.queue:
					p.write(id, ex)
				default:
					log.Printf("Audit worker %d shutting down", id)
					return
				}
			}
		}
	}
}

func (p *Pool) write(id int, ex models.Exchange) {
	ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
	defer cancel()

	if err := p.store.Create(ctx, &ex); err != nil {
		p.failed.Add(1)
		log.Printf("Audit worker %d: failed to store exchange %s: %v", id, ex.ID, err)
	}
}
