package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ContentPipeline/internal/config"
	"ContentPipeline/internal/domain"
)

const authorsYAML = `
- name: Tina Delgado
  city: Mesa
  specialty: Desert Gardening
  tone: Warm
  bio: Tina grows cacti in Mesa.
  flairs: [pro_tip_flags, anecdote]
- slug: marcus-wynn
  name: Marcus Wynn
  city: Austin
  specialty: Lawn Care
  tone: Direct
`

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Logging:  config.LoggingConfig{Level: "error"},
		Database: config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:"},
		Paths: config.PathsConfig{
			BatchIDFile:      filepath.Join(dir, "batch_id.txt"),
			DebugDir:         filepath.Join(dir, "debug"),
			ImageDir:         filepath.Join(dir, "images"),
			OutlineCacheFile: filepath.Join(dir, "outline_cache.json"),
		},
		Scheduler:   config.SchedulerConfig{Submit: "0 6 * * *"},
		AuthorsFile: filepath.Join(dir, "authors.yaml"),
	}
}

func TestApplicationLifecycle(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	if err := os.WriteFile(cfg.AuthorsFile, []byte(authorsYAML), 0o600); err != nil {
		t.Fatalf("write authors: %v", err)
	}

	ctx := context.Background()
	a, err := New(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if err := a.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	n, err := a.SeedAuthors(ctx, "")
	if err != nil || n != 2 {
		t.Fatalf("SeedAuthors = %d, %v", n, err)
	}
	p, err := a.store.FindAuthor(ctx, "tina-delgado")
	if err != nil || p.City != "Mesa" || len(p.Flairs) != 2 {
		t.Fatalf("seeded author = %+v, %v", p, err)
	}

	if err := a.store.Insert(ctx, domain.ContentRecord{ID: "r1", Title: "Lawn", PublishDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	counts, err := a.Status(ctx)
	if err != nil || counts[domain.StatusPlanned] != 1 {
		t.Fatalf("Status = %v, %v", counts, err)
	}

	summary, err := a.Publish(ctx)
	if err != nil || summary.Processed != 0 {
		t.Fatalf("Publish on empty queue = %+v, %v", summary, err)
	}

	if err := a.store.Insert(ctx, domain.ContentRecord{
		ID: "r2", Status: domain.StatusDraft, Title: "Palms", AuthorSlug: "tina-delgado",
		PublishDate: time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), BodyHTML: "<p>Palms</p>",
	}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	summary, err = a.Footers(ctx)
	if err != nil || summary.Accepted != 1 {
		t.Fatalf("Footers = %+v, %v", summary, err)
	}

	stages := a.Stages()
	if len(stages) != 5 || stages[1].Name != "submit" || stages[1].Spec != "0 6 * * *" || stages[0].Spec != "" {
		t.Fatalf("stages = %+v", stages)
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Database.Driver = "mysql"
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error")
	}
}
