package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
)

var _ ports.RecordRepository = (*Store)(nil)

var recordColumns = []string{
	"id", "status", "tier", "city", "category_slug", "author_slug", "publish_date",
	"title", "slug", "outline", "body_html", "focus_keyphrase", "seo_title",
	"seo_description", "tags", "image_filename", "image_caption", "image_alt_text",
	"image_prompt", "flair", "rewrite", "notes", "published_url", "batch_id",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (domain.ContentRecord, error) {
	var (
		rec                domain.ContentRecord
		status, date, tags string
		tier, rewrite      int
		flair              sql.NullString
	)
	err := row.Scan(
		&rec.ID, &status, &tier, &rec.City, &rec.CategorySlug, &rec.AuthorSlug, &date,
		&rec.Title, &rec.Slug, &rec.Outline, &rec.BodyHTML, &rec.FocusKeyphrase, &rec.SEOTitle,
		&rec.SEODescription, &tags, &rec.ImageFilename, &rec.ImageCaption, &rec.ImageAltText,
		&rec.ImagePrompt, &flair, &rewrite, &rec.Notes, &rec.PublishedURL, &rec.BatchID,
	)
	if err != nil {
		return domain.ContentRecord{}, err
	}

	parsed, err := domain.ParseStatus(status)
	if err != nil {
		return domain.ContentRecord{}, fmt.Errorf("record %s: %w", rec.ID, err)
	}
	rec.Status = parsed
	rec.Tier = domain.Tier(tier)
	rec.PublishDate = parseDate(date)
	rec.Tags = splitList(tags)
	rec.Rewrite = rewrite != 0
	if flair.Valid {
		rec.FlairAssigned = true
		rec.Flair = splitList(flair.String)
		if rec.Flair == nil {
			rec.Flair = []string{}
		}
	}
	return rec, nil
}

// Select returns records matching q ordered by publish date.
func (s *Store) Select(ctx context.Context, q ports.RecordQuery) ([]domain.ContentRecord, error) {
	b := s.sb.Select(recordColumns...).From("records").OrderBy("publish_date ASC", "id ASC")
	if q.Status != "" {
		b = b.Where(sq.Eq{"status": string(q.Status)})
	}
	if q.RequireNoBody {
		b = b.Where(sq.Eq{"body_html": ""})
	}
	if q.RequireBody {
		b = b.Where(sq.NotEq{"body_html": ""})
	}
	if q.RequireTitle {
		b = b.Where(sq.NotEq{"title": ""})
	}
	if q.MissingOutline {
		b = b.Where(sq.Eq{"outline": ""}).Where(sq.NotEq{"category_slug": ""})
	}
	if q.NeedsImage {
		b = b.Where(sq.NotEq{"image_prompt": ""}).Where(sq.NotEq{"image_filename": ""})
	}
	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}
	return s.queryRecords(ctx, b)
}

// Get loads one record by identifier.
func (s *Store) Get(ctx context.Context, id string) (domain.ContentRecord, error) {
	query, args, err := s.sb.Select(recordColumns...).From("records").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return domain.ContentRecord{}, fmt.Errorf("build query: %w", err)
	}
	rec, err := scanRecord(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ContentRecord{}, fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.ContentRecord{}, fmt.Errorf("get record: %w", err)
	}
	return rec, nil
}

// GetMany loads the records that exist among ids.
func (s *Store) GetMany(ctx context.Context, ids []string) (map[string]domain.ContentRecord, error) {
	out := make(map[string]domain.ContentRecord, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	records, err := s.queryRecords(ctx, s.sb.Select(recordColumns...).From("records").Where(sq.Eq{"id": ids}))
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		out[rec.ID] = rec
	}
	return out, nil
}

func (s *Store) queryRecords(ctx context.Context, b sq.SelectBuilder) ([]domain.ContentRecord, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}

	var result []domain.ContentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan record: %w", err)
		}
		result = append(result, rec)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

// Insert adds a new record.
func (s *Store) Insert(ctx context.Context, rec domain.ContentRecord) error {
	if rec.Status == "" {
		rec.Status = domain.StatusPlanned
	}
	var flair any
	if rec.FlairAssigned {
		flair = joinList(rec.Flair)
	}

	_, err := s.exec(ctx, s.db, s.sb.Insert("records").Columns(append(recordColumns, "updated_at")...).Values(
		rec.ID, string(rec.Status), int(rec.Tier), rec.City, rec.CategorySlug, rec.AuthorSlug, formatDate(rec.PublishDate),
		rec.Title, rec.Slug, rec.Outline, rec.BodyHTML, rec.FocusKeyphrase, rec.SEOTitle,
		rec.SEODescription, joinList(rec.Tags), rec.ImageFilename, rec.ImageCaption, rec.ImageAltText,
		rec.ImagePrompt, flair, boolInt(rec.Rewrite), rec.Notes, rec.PublishedURL, rec.BatchID, s.stamp(),
	))
	if err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// SaveFlair persists a flair assignment. An empty slice is stored as an
// empty string so the record reads back as assigned with no flair.
func (s *Store) SaveFlair(ctx context.Context, id string, flair []string) error {
	return s.update(ctx, s.db, id, sq.Eq{}, map[string]any{"flair": joinList(flair)})
}

// SaveOutline stores a generated outline.
func (s *Store) SaveOutline(ctx context.Context, id, outline string) error {
	return s.update(ctx, s.db, id, sq.Eq{}, map[string]any{"outline": outline})
}

// SaveBody replaces the body markup without touching status.
func (s *Store) SaveBody(ctx context.Context, id, body string) error {
	return s.update(ctx, s.db, id, sq.Eq{}, map[string]any{"body_html": body})
}

// MarkInBatch moves all ids from planned to in_batch in one transaction.
// A record that is no longer planned rolls the whole change back.
func (s *Store) MarkInBatch(ctx context.Context, ids []string, batchID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	for _, id := range ids {
		err := s.update(ctx, tx, id, sq.Eq{"status": string(domain.StatusPlanned)}, map[string]any{
			"status":   string(domain.StatusInBatch),
			"batch_id": batchID,
		})
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("mark in batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ReleaseBatch returns bodiless in_batch records of a batch to planned.
func (s *Store) ReleaseBatch(ctx context.Context, batchID string) (int, error) {
	res, err := s.exec(ctx, s.db, s.sb.Update("records").
		Set("status", string(domain.StatusPlanned)).
		Set("batch_id", "").
		Set("updated_at", s.stamp()).
		Where(sq.Eq{"batch_id": batchID, "status": string(domain.StatusInBatch), "body_html": ""}))
	if err != nil {
		return 0, fmt.Errorf("release batch: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// ApplyGeneration writes generated content back. An empty Status leaves the
// status column untouched.
func (s *Store) ApplyGeneration(ctx context.Context, id string, upd ports.RecordUpdate) error {
	fields := map[string]any{
		"body_html":       upd.BodyHTML,
		"focus_keyphrase": upd.FocusKeyphrase,
		"seo_title":       upd.SEOTitle,
		"seo_description": upd.SEODescription,
		"tags":            joinList(upd.Tags),
		"image_filename":  upd.ImageFilename,
		"image_caption":   upd.ImageCaption,
		"image_alt_text":  upd.ImageAltText,
		"image_prompt":    upd.ImagePrompt,
		"rewrite":         boolInt(upd.Rewrite),
		"notes":           upd.Notes,
	}
	if upd.Status != "" {
		fields["status"] = string(upd.Status)
	}
	return s.update(ctx, s.db, id, sq.Eq{}, fields)
}

// SaveImage stores the final image filename and prompt and sets status.
func (s *Store) SaveImage(ctx context.Context, id, filename, prompt string, status domain.Status) error {
	return s.update(ctx, s.db, id, sq.Eq{}, map[string]any{
		"image_filename": filename,
		"image_prompt":   prompt,
		"status":         string(status),
	})
}

// SetStatus changes status and, when notes is non-empty, replaces notes.
func (s *Store) SetStatus(ctx context.Context, id string, status domain.Status, notes string) error {
	fields := map[string]any{"status": string(status)}
	if notes != "" {
		fields["notes"] = notes
	}
	return s.update(ctx, s.db, id, sq.Eq{}, fields)
}

// MarkPublished records the live URL and moves the record to published.
func (s *Store) MarkPublished(ctx context.Context, id, url string) error {
	return s.update(ctx, s.db, id, sq.Eq{}, map[string]any{
		"status":        string(domain.StatusPublished),
		"published_url": url,
	})
}

// CountByStatus returns the number of records per status.
func (s *Store) CountByStatus(ctx context.Context) (map[domain.Status]int, error) {
	query, args, err := s.sb.Select("status", "COUNT(*)").From("records").GroupBy("status").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	defer rows.Close()

	out := make(map[domain.Status]int)
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		out[domain.Status(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}

// update sets fields on one record. The row must exist and match cond.
func (s *Store) update(ctx context.Context, runner sq.ExecerContext, id string, cond sq.Eq, fields map[string]any) error {
	fields["updated_at"] = s.stamp()
	where := sq.Eq{"id": id}
	for k, v := range cond {
		where[k] = v
	}

	res, err := s.exec(ctx, runner, s.sb.Update("records").SetMap(fields).Where(where))
	if err != nil {
		return fmt.Errorf("update record %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("record %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
