package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"ContentPipeline/internal/domain"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store persists records, ledger entries, authors and batch jobs in a single
// SQL database. Queries are built with squirrel so the same code runs on
// SQLite and Postgres.
type Store struct {
	db     *sql.DB
	driver string
	sb     sq.StatementBuilderType
	now    func() time.Time
}

// Open connects to dsn with the named driver. SQLite is limited to a single
// connection so in-memory databases stay shared and writes stay serialized.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return New(db, driver), nil
}

// New wraps an existing connection pool.
func New(db *sql.DB, driver string) *Store {
	var ph sq.PlaceholderFormat = sq.Question
	if driver == DriverPostgres {
		ph = sq.Dollar
	}
	return &Store{
		db:     db,
		driver: driver,
		sb:     sq.StatementBuilder.PlaceholderFormat(ph),
		now:    time.Now,
	}
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS records (
		id              TEXT PRIMARY KEY,
		status          TEXT NOT NULL,
		tier            INTEGER NOT NULL DEFAULT 0,
		city            TEXT NOT NULL DEFAULT '',
		category_slug   TEXT NOT NULL DEFAULT '',
		author_slug     TEXT NOT NULL DEFAULT '',
		publish_date    TEXT NOT NULL DEFAULT '',
		title           TEXT NOT NULL DEFAULT '',
		slug            TEXT NOT NULL DEFAULT '',
		outline         TEXT NOT NULL DEFAULT '',
		body_html       TEXT NOT NULL DEFAULT '',
		focus_keyphrase TEXT NOT NULL DEFAULT '',
		seo_title       TEXT NOT NULL DEFAULT '',
		seo_description TEXT NOT NULL DEFAULT '',
		tags            TEXT NOT NULL DEFAULT '',
		image_filename  TEXT NOT NULL DEFAULT '',
		image_caption   TEXT NOT NULL DEFAULT '',
		image_alt_text  TEXT NOT NULL DEFAULT '',
		image_prompt    TEXT NOT NULL DEFAULT '',
		flair           TEXT,
		rewrite         INTEGER NOT NULL DEFAULT 0,
		notes           TEXT NOT NULL DEFAULT '',
		published_url   TEXT NOT NULL DEFAULT '',
		batch_id        TEXT NOT NULL DEFAULT '',
		updated_at      TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX IF NOT EXISTS records_status_date ON records (status, publish_date)`,
	`CREATE TABLE IF NOT EXISTS authors (
		slug      TEXT PRIMARY KEY,
		name      TEXT NOT NULL,
		city      TEXT NOT NULL DEFAULT '',
		specialty TEXT NOT NULL DEFAULT '',
		tone      TEXT NOT NULL DEFAULT '',
		bio       TEXT NOT NULL DEFAULT '',
		flairs    TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS batch_jobs (
		id           TEXT PRIMARY KEY,
		record_ids   TEXT NOT NULL DEFAULT '',
		submitted_at TEXT NOT NULL,
		status       TEXT NOT NULL,
		ingested_at  TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS ledger (
		record_id       TEXT PRIMARY KEY,
		title           TEXT NOT NULL,
		url             TEXT NOT NULL DEFAULT '',
		author          TEXT NOT NULL DEFAULT '',
		category        TEXT NOT NULL DEFAULT '',
		city            TEXT NOT NULL DEFAULT '',
		tier            INTEGER NOT NULL DEFAULT 0,
		publish_date    TEXT NOT NULL DEFAULT '',
		slug            TEXT NOT NULL DEFAULT '',
		seo_title       TEXT NOT NULL DEFAULT '',
		seo_description TEXT NOT NULL DEFAULT '',
		focus_keyphrase TEXT NOT NULL DEFAULT '',
		tags            TEXT NOT NULL DEFAULT '',
		created_at      TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ledger_category_date ON ledger (category, publish_date)`,
}

// Migrate creates the schema when it does not exist yet.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

func (s *Store) exec(ctx context.Context, runner sq.ExecerContext, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return runner.ExecContext(ctx, query, args...)
}

func (s *Store) stamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

func joinList(items []string) string {
	return strings.Join(items, ",")
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(domain.DateLayout)
}

func parseDate(raw string) time.Time {
	t, err := time.Parse(domain.DateLayout, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseStamp(raw string) time.Time {
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
