package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
)

// OutlineSettings bounds the outline fan-out.
type OutlineSettings struct {
	Days           int
	PerDay         int
	Concurrency    int
	PerCallTimeout time.Duration
	OverallTimeout time.Duration
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffStep    time.Duration
}

// DefaultOutlineSettings mirrors the production limits.
func DefaultOutlineSettings() OutlineSettings {
	return OutlineSettings{
		Days:           1,
		PerDay:         5,
		Concurrency:    1,
		PerCallTimeout: 30 * time.Second,
		OverallTimeout: 600 * time.Second,
		MaxRetries:     5,
		BackoffBase:    10 * time.Second,
		BackoffStep:    5 * time.Second,
	}
}

// OutlineDeps wires the outline scheduler.
type OutlineDeps struct {
	Records  ports.RecordRepository
	Client   ports.OutlineClient
	Cache    ports.OutlineCache
	Settings OutlineSettings
	Logger   *slog.Logger
}

// OutlineScheduler fills missing outlines with bounded concurrency.
type OutlineScheduler struct {
	records  ports.RecordRepository
	client   ports.OutlineClient
	cache    ports.OutlineCache
	settings OutlineSettings
	logger   *slog.Logger
}

func NewOutlineScheduler(deps OutlineDeps) *OutlineScheduler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	st := deps.Settings
	def := DefaultOutlineSettings()
	if st.Days <= 0 {
		st.Days = def.Days
	}
	if st.PerDay <= 0 {
		st.PerDay = def.PerDay
	}
	if st.Concurrency <= 0 {
		st.Concurrency = def.Concurrency
	}
	if st.PerCallTimeout <= 0 {
		st.PerCallTimeout = def.PerCallTimeout
	}
	if st.OverallTimeout <= 0 {
		st.OverallTimeout = def.OverallTimeout
	}
	if st.MaxRetries <= 0 {
		st.MaxRetries = def.MaxRetries
	}
	return &OutlineScheduler{
		records:  deps.Records,
		client:   deps.Client,
		cache:    deps.Cache,
		settings: st,
		logger:   logger.With("component", "outlines"),
	}
}

type outlineItem struct {
	rec domain.ContentRecord
	day string
}

// Run generates outlines for the earliest days that still miss them.
// Completed outlines are persisted immediately; items still running when the
// overall deadline passes are cancelled and reported.
func (o *OutlineScheduler) Run(ctx context.Context) (Summary, error) {
	summary := Summary{Stage: "outlines"}

	records, err := o.records.Select(ctx, ports.RecordQuery{Status: domain.StatusPlanned, MissingOutline: true})
	if err != nil {
		return summary, fmt.Errorf("select missing outlines: %w", err)
	}
	items, days := o.plan(records)
	if len(items) == 0 {
		o.logger.Info("no records need outlines")
		return summary, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, o.settings.OverallTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		done    = make(map[string]bool, len(items))
		perDay  = make(map[string]int, len(days))
		written int
	)

	sem := semaphore.NewWeighted(int64(o.settings.Concurrency))
	g, gctx := errgroup.WithContext(runCtx)
	for _, item := range items {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			outline := o.outlineFor(gctx, item.rec)
			saved := false
			if outline != "" {
				// Persist even if the deadline has just passed.
				saveCtx := context.WithoutCancel(gctx)
				if err := o.records.SaveOutline(saveCtx, item.rec.ID, outline); err != nil {
					o.logger.Warn("save outline failed", "record_id", item.rec.ID, "error", err)
				} else {
					saved = true
				}
			}

			mu.Lock()
			defer mu.Unlock()
			if gctx.Err() != nil && outline == "" {
				return nil
			}
			done[item.rec.ID] = true
			if saved {
				written++
				perDay[item.day]++
			}
			return nil
		})
	}
	_ = g.Wait()

	if o.cache != nil {
		if err := o.cache.Flush(context.WithoutCancel(ctx)); err != nil {
			o.logger.Warn("flush outline cache failed", "error", err)
		}
	}

	var timedOut []string
	for _, item := range items {
		if !done[item.rec.ID] {
			timedOut = append(timedOut, item.rec.Title)
		}
	}
	if len(timedOut) > 0 {
		o.logger.Warn("outline fan-out deadline reached", "pending", len(timedOut), "titles", strings.Join(timedOut, "; "))
	}

	for _, day := range days {
		o.logger.Info("outlines per day", "day", day, "written", perDay[day])
	}

	summary.Processed = len(items)
	summary.Accepted = written
	summary.Skipped = len(timedOut)
	summary.Failed = len(items) - written - len(timedOut)
	summary.Log(o.logger)
	return summary, nil
}

// plan groups records by publish day and applies the day and per-day caps.
func (o *OutlineScheduler) plan(records []domain.ContentRecord) ([]outlineItem, []string) {
	var (
		items []outlineItem
		days  []string
		count = map[string]int{}
	)
	for _, rec := range records {
		if strings.TrimSpace(rec.CategorySlug) == "" || strings.TrimSpace(rec.Title) == "" {
			continue
		}
		day := rec.PublishDate.Format(domain.DateLayout)
		if _, seen := count[day]; !seen {
			if len(days) == o.settings.Days {
				continue
			}
			days = append(days, day)
		}
		if count[day] >= o.settings.PerDay {
			continue
		}
		count[day]++
		items = append(items, outlineItem{rec: rec, day: day})
	}
	return items, days
}

func (o *OutlineScheduler) outlineFor(ctx context.Context, rec domain.ContentRecord) string {
	if o.cache != nil {
		if cached, ok := o.cache.Get(ctx, rec.Title, rec.CategorySlug); ok && cached != "" {
			o.logger.Info("outline cache hit", "record_id", rec.ID)
			return cached
		}
	}

	req := ports.OutlineRequest{Title: rec.Title, Category: rec.CategorySlug, Author: domain.Unslugify(rec.AuthorSlug)}
	for attempt := 0; attempt < o.settings.MaxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, o.settings.PerCallTimeout)
		outline, err := o.client.Outline(callCtx, req)
		cancel()

		if err == nil {
			outline = strings.TrimSpace(outline)
			if outline != "" && o.cache != nil {
				if err := o.cache.Put(ctx, rec.Title, rec.CategorySlug, outline); err != nil {
					o.logger.Warn("cache outline failed", "record_id", rec.ID, "error", err)
				}
			}
			return outline
		}
		if !errors.Is(err, ports.ErrRateLimited) {
			o.logger.Warn("outline request failed", "record_id", rec.ID, "error", err)
			return ""
		}

		wait := o.settings.BackoffBase + time.Duration(attempt)*o.settings.BackoffStep
		o.logger.Info("rate limited, backing off", "record_id", rec.ID, "attempt", attempt+1, "wait", wait)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ""
		case <-timer.C:
		}
	}

	o.logger.Warn("outline retries exhausted", "record_id", rec.ID)
	return ""
}
