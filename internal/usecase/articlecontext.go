package usecase

import (
	"context"
	"fmt"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/persona"
	"ContentPipeline/internal/related"
)

// articleContext is what both submission and ingestion need about a record
// besides its own fields.
type articleContext struct {
	persona domain.AuthorPersona
	flair   []string
	related []domain.RelatedArticle
}

func loadArticleContext(ctx context.Context, personas *persona.Resolver, selector *related.Selector, rec *domain.ContentRecord) (articleContext, error) {
	var ac articleContext

	if personas != nil {
		ac.persona = personas.Persona(ctx, rec.AuthorSlug)
		flair, err := personas.Flair(ctx, rec, ac.persona)
		if err != nil {
			return articleContext{}, fmt.Errorf("flair: %w", err)
		}
		ac.flair = flair
	}

	if selector != nil {
		ac.related = selector.Select(ctx, related.Target{
			Category:    rec.CategorySlug,
			PublishDate: rec.PublishDate,
			Title:       rec.Title,
		})
	}
	return ac, nil
}
