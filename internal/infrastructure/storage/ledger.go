package storage

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
)

var _ ports.LedgerRepository = (*Store)(nil)

// Append adds a ledger entry. A second append for the same record is a
// no-op and reports false.
func (s *Store) Append(ctx context.Context, e domain.LedgerEntry) (bool, error) {
	res, err := s.exec(ctx, s.db, s.sb.Insert("ledger").
		Columns("record_id", "title", "url", "author", "category", "city", "tier", "publish_date",
			"slug", "seo_title", "seo_description", "focus_keyphrase", "tags", "created_at").
		Values(e.RecordID, e.Title, e.URL, e.Author, e.Category, e.City, int(e.Tier), formatDate(e.PublishDate),
			e.Slug, e.SEOTitle, e.SEODescription, e.FocusKeyphrase, joinList(e.Tags), s.stamp()).
		Suffix("ON CONFLICT (record_id) DO NOTHING"))
	if err != nil {
		return false, fmt.Errorf("insert ledger: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// InCategory lists entries of a category (case-insensitive) published
// between from and to inclusive.
func (s *Store) InCategory(ctx context.Context, category string, from, to time.Time) ([]domain.LedgerEntry, error) {
	query, args, err := s.sb.
		Select("record_id", "title", "url", "author", "category", "city", "tier", "publish_date",
			"slug", "seo_title", "seo_description", "focus_keyphrase", "tags").
		From("ledger").
		Where(sq.Expr("LOWER(category) = LOWER(?)", category)).
		Where(sq.GtOrEq{"publish_date": formatDate(from)}).
		Where(sq.LtOrEq{"publish_date": formatDate(to)}).
		OrderBy("publish_date ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerEntry
	for rows.Next() {
		var (
			e          domain.LedgerEntry
			tier       int
			date, tags string
		)
		if err := rows.Scan(&e.RecordID, &e.Title, &e.URL, &e.Author, &e.Category, &e.City, &tier, &date,
			&e.Slug, &e.SEOTitle, &e.SEODescription, &e.FocusKeyphrase, &tags); err != nil {
			return nil, fmt.Errorf("scan ledger: %w", err)
		}
		e.Tier = domain.Tier(tier)
		e.PublishDate = parseDate(date)
		e.Tags = splitList(tags)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}
