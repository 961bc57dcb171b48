package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// ExchangePruner deletes audit records older than a cutoff.
type ExchangePruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Retention prunes the audit log on a cron schedule, keeping the last
// Days worth of exchanges.
type Retention struct {
	pruner   ExchangePruner
	days     int
	schedule string
	cron     *cron.Cron
	now      func() time.Time

	mu      sync.Mutex
	running bool
}

func NewRetention(pruner ExchangePruner, days int, schedule string) *Retention {
	return &Retention{
		pruner:   pruner,
		days:     days,
		schedule: schedule,
		cron:     cron.New(),
		now:      time.Now,
	}
}

// Start validates the schedule and begins pruning. Zero days disables it.
func (r *Retention) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.days <= 0 {
		log.Println("Audit retention disabled")
		return nil
	}

	if _, err := cron.ParseStandard(r.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", r.schedule, err)
	}
	if _, err := r.cron.AddFunc(r.schedule, func() { r.RunOnce(context.Background()) }); err != nil {
		return fmt.Errorf("failed to schedule pruning: %w", err)
	}

	r.cron.Start()
	r.running = true
	return nil
}

// RunOnce prunes immediately.
func (r *Retention) RunOnce(ctx context.Context) (int64, error) {
	cutoff := r.now().Add(-time.Duration(r.days) * 24 * time.Hour)

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	deleted, err := r.pruner.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		log.Printf("Audit retention: prune failed: %v", err)
		return 0, err
	}
	if deleted > 0 {
		log.Printf("Audit retention: deleted %d exchanges older than %s", deleted, cutoff.Format(time.RFC3339))
	}
	return deleted, nil
}

// Stop halts the schedule and waits for a running prune to finish.
func (r *Retention) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		<-r.cron.Stop().Done()
		r.running = false
	}
}

// NextRun reports when the next prune is due, or nil when not scheduled.
func (r *Retention) NextRun() *time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.cron.Entries()
	if !r.running || len(entries) == 0 {
		return nil
	}
	next := entries[0].Next
	return &next
}
