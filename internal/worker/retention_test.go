package worker

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubPruner struct {
	cutoff  time.Time
	deleted int64
	err     error
	calls   int
}

func (s *stubPruner) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	s.calls++
	s.cutoff = cutoff
	return s.deleted, s.err
}

func TestRetention_RunOnceUsesCutoff(t *testing.T) {
	pruner := &stubPruner{deleted: 7}
	r := NewRetention(pruner, 30, "0 3 * * *")
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	deleted, err := r.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != 7 {
		t.Errorf("Expected 7 deleted, got %d", deleted)
	}
	if want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC); !pruner.cutoff.Equal(want) {
		t.Errorf("Expected cutoff %s, got %s", want, pruner.cutoff)
	}
}

func TestRetention_RunOncePropagatesError(t *testing.T) {
	pruner := &stubPruner{err: errors.New("db down")}
	r := NewRetention(pruner, 1, "0 3 * * *")

	if _, err := r.RunOnce(context.Background()); err == nil {
		t.Error("Expected error from pruner")
	}
}

func TestRetention_Start(t *testing.T) {
	tests := []struct {
		name        string
		days        int
		schedule    string
		wantErr     bool
		wantRunning bool
	}{
		{"valid schedule", 30, "0 3 * * *", false, true},
		{"disabled", 0, "0 3 * * *", false, false},
		{"invalid schedule", 30, "every day", true, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRetention(&stubPruner{}, tc.days, tc.schedule)
			err := r.Start()
			defer r.Stop()

			if (err != nil) != tc.wantErr {
				t.Fatalf("Expected error=%v, got %v", tc.wantErr, err)
			}
			if got := r.NextRun() != nil; got != tc.wantRunning {
				t.Errorf("Expected scheduled=%v, got %v", tc.wantRunning, got)
			}
		})
	}
}
