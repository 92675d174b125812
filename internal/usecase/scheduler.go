package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
)

// Stage is one recurring pipeline step.
type Stage struct {
	Name string
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler wires the cron-like driver with the pipeline stages. Stage runs
// never overlap; the store assumes a single writer.
type Scheduler struct {
	driver ports.Scheduler
	stages []Stage
	logger *slog.Logger

	mu sync.Mutex
}

// NewScheduler returns a helper to start/stop recurring stages.
func NewScheduler(driver ports.Scheduler, stages []Stage, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{driver: driver, stages: stages, logger: logger.With("component", "daemon")}
}

// Start registers every stage with a schedule and starts the driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	for _, st := range s.stages {
		if st.Spec == "" || st.Run == nil {
			s.logger.Info("stage disabled", "stage", st.Name)
			continue
		}
		if err := s.driver.Add(st.Spec, func() { _ = s.RunStage(ctx, st) }); err != nil {
			return fmt.Errorf("schedule %s: %w", st.Name, err)
		}
		s.logger.Info("stage scheduled", "stage", st.Name, "spec", st.Spec)
	}

	return s.driver.Start(ctx)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

// RunStage executes one stage while holding the pipeline lock.
func (s *Scheduler) RunStage(ctx context.Context, st Stage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.logger.Info("stage started", "stage", st.Name)
	err := st.Run(ctx)
	switch {
	case errors.Is(err, domain.ErrIntegrity):
		s.logger.Error("stage aborted on integrity violation", "stage", st.Name, "error", err)
	case err != nil:
		s.logger.Error("stage failed", "stage", st.Name, "error", err)
	default:
		s.logger.Info("stage done", "stage", st.Name)
	}
	return err
}
