package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"ContentPipeline/internal/config"
	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/infrastructure/cms"
	"ContentPipeline/internal/infrastructure/filestore"
	"ContentPipeline/internal/infrastructure/imagegen"
	"ContentPipeline/internal/infrastructure/llm"
	"ContentPipeline/internal/infrastructure/outlinecache"
	"ContentPipeline/internal/infrastructure/scheduler"
	"ContentPipeline/internal/infrastructure/storage"
	"ContentPipeline/internal/infrastructure/telegram"
	"ContentPipeline/internal/logging"
	"ContentPipeline/internal/persona"
	"ContentPipeline/internal/ports"
	"ContentPipeline/internal/related"
	"ContentPipeline/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger
	store  *storage.Store
	cache  ports.OutlineCache
	closer func() error

	submitter *usecase.Submitter
	ingester  *usecase.Ingester
	outlines  *usecase.OutlineScheduler
	images    *usecase.ImageAcquirer
	publisher *usecase.Publisher
	footers   *usecase.FooterRepairer
}

// New opens the store and builds every use case.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	store, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	files, err := filestore.New(cfg.Paths)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	a := &Application{cfg: cfg, logger: baseLogger, store: store}

	cache, err := a.outlineCache(ctx)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.cache = cache

	var notifier ports.Notifier
	if tg := telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID); tg.Configured() {
		notifier = tg
	}

	personas := persona.New(persona.Deps{
		Authors:  store,
		Records:  store,
		Default:  cfg.Persona,
		Glossary: cfg.Flair,
		Logger:   baseLogger,
	})
	selector := related.NewSelector(store, nil, baseLogger)
	batchClient := llm.NewBatchClient(cfg.Anthropic)

	a.submitter = usecase.NewSubmitter(usecase.SubmitDeps{
		Records:  store,
		Batches:  store,
		Client:   batchClient,
		Files:    files,
		Notifier: notifier,
		Personas: personas,
		Related:  selector,
		Prompt:   usecase.PromptConfig{System: cfg.Prompts.System, Instructions: cfg.Prompts.Instructions},
		Limit:    cfg.Submit.Limit,
		Logger:   baseLogger,
	})
	a.ingester = usecase.NewIngester(usecase.IngestDeps{
		Records:      store,
		Batches:      store,
		Client:       batchClient,
		Files:        files,
		Notifier:     notifier,
		Personas:     personas,
		Related:      selector,
		PollInterval: cfg.Submit.PollInterval,
		Logger:       baseLogger,
	})
	a.outlines = usecase.NewOutlineScheduler(usecase.OutlineDeps{
		Records: store,
		Client:  llm.NewOutlineClient(cfg.OpenAI),
		Cache:   cache,
		Settings: usecase.OutlineSettings{
			Days:           cfg.Outlines.Days,
			PerDay:         cfg.Outlines.PerDay,
			Concurrency:    cfg.Outlines.Concurrency,
			PerCallTimeout: cfg.Outlines.PerCallTimeout,
			OverallTimeout: cfg.Outlines.OverallTimeout,
			MaxRetries:     cfg.Outlines.MaxRetries,
			BackoffBase:    cfg.Outlines.BackoffBase,
			BackoffStep:    cfg.Outlines.BackoffStep,
		},
		Logger: baseLogger,
	})
	a.images = usecase.NewImageAcquirer(usecase.ImageDeps{
		Records: store,
		Client:  imagegen.NewClient(cfg.Replicate),
		Files:   files,
		Settings: usecase.ImageSettings{
			Constraints:  cfg.Images.Constraints,
			Marker:       cfg.Images.Marker,
			PollInterval: cfg.Images.PollInterval,
			MaxWait:      cfg.Images.MaxWait,
			Limit:        cfg.Images.Limit,
		},
		Logger: baseLogger,
	})
	a.publisher = usecase.NewPublisher(usecase.PublishDeps{
		Records:    store,
		Ledger:     store,
		CMS:        cms.NewWordPress(cfg.WordPress),
		Files:      files,
		Notifier:   notifier,
		Personas:   personas,
		Categories: cfg.Categories,
		Limit:      cfg.Publish.Limit,
		Logger:     baseLogger,
	})
	a.footers = usecase.NewFooterRepairer(usecase.FooterDeps{
		Records:  store,
		Personas: personas,
		Related:  selector,
		Logger:   baseLogger,
	})

	return a, nil
}

func (a *Application) outlineCache(ctx context.Context) (ports.OutlineCache, error) {
	if a.cfg.Redis.Addr != "" {
		r, err := outlinecache.NewRedis(ctx, a.cfg.Redis, a.logger)
		if err != nil {
			return nil, err
		}
		a.closer = r.Close
		return r, nil
	}
	return outlinecache.OpenFile(a.cfg.Paths.OutlineCacheFile)
}

// Close releases the store and cache connections.
func (a *Application) Close() error {
	var errs []error
	if a.closer != nil {
		errs = append(errs, a.closer())
	}
	errs = append(errs, a.store.Close())
	return errors.Join(errs...)
}

// Migrate creates the schema.
func (a *Application) Migrate(ctx context.Context) error {
	return a.store.Migrate(ctx)
}

// SeedAuthors upserts the personas listed in a YAML file.
func (a *Application) SeedAuthors(ctx context.Context, path string) (int, error) {
	if path == "" {
		path = a.cfg.AuthorsFile
	}
	if path == "" {
		return 0, errors.New("no authors file configured")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read authors: %w", err)
	}
	var authors []domain.AuthorPersona
	if err := yaml.Unmarshal(raw, &authors); err != nil {
		return 0, fmt.Errorf("parse authors: %w", err)
	}
	for _, p := range authors {
		if err := a.store.UpsertAuthor(ctx, p); err != nil {
			return 0, fmt.Errorf("upsert author %s: %w", p.Name, err)
		}
	}
	a.logger.Info("authors seeded", "count", len(authors))
	return len(authors), nil
}

// Outlines fills missing outlines.
func (a *Application) Outlines(ctx context.Context) (usecase.Summary, error) {
	return a.outlines.Run(ctx)
}

// Submit sends planned records as one batch.
func (a *Application) Submit(ctx context.Context) (usecase.SubmitResult, error) {
	return a.submitter.Submit(ctx)
}

// Ingest polls and ingests one batch.
func (a *Application) Ingest(ctx context.Context, opts usecase.IngestOptions) (usecase.Summary, error) {
	return a.ingester.Ingest(ctx, opts)
}

// Images acquires images for image_needed records.
func (a *Application) Images(ctx context.Context) (usecase.Summary, error) {
	return a.images.Run(ctx)
}

// Publish pushes ready records to the CMS.
func (a *Application) Publish(ctx context.Context) (usecase.Summary, error) {
	return a.publisher.Run(ctx)
}

// Footers rebuilds footers of unpublished bodies missing an author byline.
func (a *Application) Footers(ctx context.Context) (usecase.Summary, error) {
	return a.footers.Run(ctx)
}

// Status counts records per status.
func (a *Application) Status(ctx context.Context) (map[domain.Status]int, error) {
	return a.store.CountByStatus(ctx)
}

// Stages returns the recurring daemon stages with their cron specs.
func (a *Application) Stages() []usecase.Stage {
	s := a.cfg.Scheduler
	return []usecase.Stage{
		{Name: "outlines", Spec: s.Outlines, Run: func(ctx context.Context) error {
			_, err := a.Outlines(ctx)
			return err
		}},
		{Name: "submit", Spec: s.Submit, Run: func(ctx context.Context) error {
			_, err := a.Submit(ctx)
			return err
		}},
		{Name: "ingest", Spec: s.Ingest, Run: func(ctx context.Context) error {
			_, err := a.Ingest(ctx, usecase.IngestOptions{Once: true})
			return err
		}},
		{Name: "images", Spec: s.Images, Run: func(ctx context.Context) error {
			_, err := a.Images(ctx)
			return err
		}},
		{Name: "publish", Spec: s.Publish, Run: func(ctx context.Context) error {
			_, err := a.Publish(ctx)
			return err
		}},
	}
}

// Run schedules every stage and blocks until ctx is done.
func (a *Application) Run(ctx context.Context) error {
	driver := scheduler.NewCronScheduler(a.cfg.Scheduler.Location(), a.logger)
	sched := usecase.NewScheduler(driver, a.Stages(), a.logger)
	if err := sched.Start(ctx); err != nil {
		return err
	}
	a.logger.Info("daemon started", "timezone", a.cfg.Scheduler.Location().String())

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		return fmt.Errorf("stop scheduler: %w", err)
	}
	return nil
}
