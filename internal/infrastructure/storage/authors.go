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

var _ ports.AuthorRepository = (*Store)(nil)

// FindAuthor matches a persona by slug or display name, ignoring case.
func (s *Store) FindAuthor(ctx context.Context, nameOrSlug string) (domain.AuthorPersona, error) {
	query, args, err := s.sb.
		Select("slug", "name", "city", "specialty", "tone", "bio", "flairs").
		From("authors").
		Where(sq.Or{
			sq.Expr("LOWER(slug) = LOWER(?)", nameOrSlug),
			sq.Expr("LOWER(name) = LOWER(?)", nameOrSlug),
		}).
		OrderBy("slug").
		Limit(1).
		ToSql()
	if err != nil {
		return domain.AuthorPersona{}, fmt.Errorf("build query: %w", err)
	}

	var (
		p      domain.AuthorPersona
		flairs string
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&p.Slug, &p.Name, &p.City, &p.Specialty, &p.Tone, &p.Bio, &flairs)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AuthorPersona{}, fmt.Errorf("author %q: %w", nameOrSlug, domain.ErrNotFound)
	}
	if err != nil {
		return domain.AuthorPersona{}, fmt.Errorf("find author: %w", err)
	}
	p.Flairs = splitList(flairs)
	return p, nil
}

// UpsertAuthor inserts or replaces a persona keyed by slug.
func (s *Store) UpsertAuthor(ctx context.Context, p domain.AuthorPersona) error {
	if p.Slug == "" {
		p.Slug = domain.Slugify(p.Name)
	}
	_, err := s.exec(ctx, s.db, s.sb.Insert("authors").
		Columns("slug", "name", "city", "specialty", "tone", "bio", "flairs").
		Values(p.Slug, p.Name, p.City, p.Specialty, p.Tone, p.Bio, joinList(p.Flairs)).
		Suffix(`ON CONFLICT (slug) DO UPDATE SET
			name = excluded.name,
			city = excluded.city,
			specialty = excluded.specialty,
			tone = excluded.tone,
			bio = excluded.bio,
			flairs = excluded.flairs`))
	if err != nil {
		return fmt.Errorf("upsert author: %w", err)
	}
	return nil
}
