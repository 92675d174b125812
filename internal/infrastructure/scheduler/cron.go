package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"ContentPipeline/internal/ports"
)

// CronScheduler runs registered jobs on standard five-field cron specs.
type CronScheduler struct {
	cron *cron.Cron
}

var _ ports.Scheduler = (*CronScheduler)(nil)

// NewCronScheduler builds a scheduler in the given location. A job still
// running when its next tick fires is skipped.
func NewCronScheduler(loc *time.Location, logger *slog.Logger) *CronScheduler {
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	cronLog := cronLogger{logger: logger.With("component", "cron")}
	return &CronScheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
	}
}

// Add registers job under spec.
func (c *CronScheduler) Add(spec string, job func()) error {
	if _, err := c.cron.AddFunc(spec, job); err != nil {
		return fmt.Errorf("parse cron spec %q: %w", spec, err)
	}
	return nil
}

// Start begins firing jobs in the background.
func (c *CronScheduler) Start(context.Context) error {
	c.cron.Start()
	return nil
}

// Stop halts scheduling and waits for running jobs or ctx.
func (c *CronScheduler) Stop(ctx context.Context) error {
	done := c.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
