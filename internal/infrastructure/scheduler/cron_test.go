package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestCronSchedulerRunsJobs(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler(time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))
	fired := make(chan struct{}, 1)
	if err := s.Add("@every 1s", func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-fired:
	case <-time.After(3 * time.Second):
		t.Fatal("job never fired")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestCronSchedulerRejectsBadSpec(t *testing.T) {
	t.Parallel()

	s := NewCronScheduler(nil, nil)
	if err := s.Add("every day at noon", func() {}); err == nil {
		t.Fatal("expected parse error")
	}
	if err := s.Add("0 6 * * *", func() {}); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}
}
