package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"ContentPipeline/internal/content"
	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/persona"
	"ContentPipeline/internal/ports"
	"ContentPipeline/internal/related"
)

// FooterDeps wires the footer repair use case.
type FooterDeps struct {
	Records  ports.RecordRepository
	Personas *persona.Resolver
	Related  *related.Selector
	Limit    int
	Logger   *slog.Logger
}

// FooterRepairer rebuilds the related-links and author-bio footer of bodies
// that lost their byline.
type FooterRepairer struct {
	records  ports.RecordRepository
	personas *persona.Resolver
	related  *related.Selector
	limit    int
	logger   *slog.Logger
}

func NewFooterRepairer(deps FooterDeps) *FooterRepairer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &FooterRepairer{
		records:  deps.Records,
		personas: deps.Personas,
		related:  deps.Related,
		limit:    deps.Limit,
		logger:   logger.With("component", "footers"),
	}
}

// Run strips and re-appends the footer of every unpublished body without an
// author byline. Published bodies live on the CMS and are left alone.
func (f *FooterRepairer) Run(ctx context.Context) (Summary, error) {
	summary := Summary{Stage: "footers"}

	records, err := f.records.Select(ctx, ports.RecordQuery{RequireBody: true})
	if err != nil {
		return summary, fmt.Errorf("select bodies: %w", err)
	}

	for _, rec := range records {
		if rec.Status == domain.StatusPublished || content.HasByline(rec.BodyHTML) {
			continue
		}
		if f.limit > 0 && summary.Processed >= f.limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Processed++

		var bio string
		if f.personas != nil {
			bio = f.personas.Persona(ctx, rec.AuthorSlug).Bio
		}
		if bio == "" {
			summary.Skipped++
			f.logger.Info("no author bio", "record_id", rec.ID, "author", rec.AuthorSlug)
			continue
		}

		var links []domain.RelatedArticle
		if f.related != nil {
			links = f.related.Select(ctx, related.Target{
				Category:    rec.CategorySlug,
				PublishDate: rec.PublishDate,
				Title:       rec.Title,
			})
		}

		body := content.AppendFooter(content.StripFooter(rec.BodyHTML), links, bio)
		if err := f.records.SaveBody(ctx, rec.ID, body); err != nil {
			summary.Failed++
			f.logger.Warn("save body failed", "record_id", rec.ID, "error", err)
			continue
		}
		summary.Accepted++
		f.logger.Info("footer rebuilt", "record_id", rec.ID, "related", len(links))
	}

	summary.Log(f.logger)
	return summary, nil
}
