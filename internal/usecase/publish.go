package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"ContentPipeline/internal/content"
	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/persona"
	"ContentPipeline/internal/ports"
)

// PublishDeps wires the publish use case.
type PublishDeps struct {
	Records    ports.RecordRepository
	Ledger     ports.LedgerRepository
	CMS        ports.CMSClient
	Files      ports.FileStore
	Notifier   ports.Notifier
	Personas   *persona.Resolver
	Categories map[string]int64
	Limit      int
	Logger     *slog.Logger
}

// Publisher pushes ready records to the CMS and records them in the ledger.
type Publisher struct {
	records    ports.RecordRepository
	ledger     ports.LedgerRepository
	cms        ports.CMSClient
	files      ports.FileStore
	notifier   ports.Notifier
	personas   *persona.Resolver
	categories map[string]int64
	limit      int
	logger     *slog.Logger
}

func NewPublisher(deps PublishDeps) *Publisher {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	categories := make(map[string]int64, len(deps.Categories))
	for slug, id := range deps.Categories {
		categories[strings.ToLower(strings.TrimSpace(slug))] = id
	}
	return &Publisher{
		records:    deps.Records,
		ledger:     deps.Ledger,
		cms:        deps.CMS,
		files:      deps.Files,
		notifier:   deps.Notifier,
		personas:   deps.Personas,
		categories: categories,
		limit:      deps.Limit,
		logger:     logger.With("component", "publish"),
	}
}

// Run publishes ready records with a body and a title.
func (p *Publisher) Run(ctx context.Context) (Summary, error) {
	summary := Summary{Stage: "publish"}

	records, err := p.records.Select(ctx, ports.RecordQuery{
		Status:       domain.StatusReady,
		RequireBody:  true,
		RequireTitle: true,
		Limit:        p.limit,
	})
	if err != nil {
		return summary, fmt.Errorf("select ready: %w", err)
	}
	if len(records) == 0 {
		p.logger.Info("no records ready to publish")
		return summary, nil
	}

	var published []string
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Processed++

		url, err := p.publishOne(ctx, rec)
		if err != nil {
			summary.Failed++
			p.logger.Warn("publish failed", "record_id", rec.ID, "error", err)
			continue
		}
		summary.Accepted++
		published = append(published, fmt.Sprintf("%s: %s", rec.Title, url))
	}

	summary.Log(p.logger)
	if p.notifier != nil && len(published) > 0 {
		if err := p.notifier.Notify(ctx, "Posts published", strings.Join(published, "\n")); err != nil {
			p.logger.Warn("notify failed", "error", err)
		}
	}
	return summary, nil
}

func (p *Publisher) publishOne(ctx context.Context, rec domain.ContentRecord) (string, error) {
	if err := domain.CheckTransition(rec.Status, domain.StatusPublished, rec.HasBody()); err != nil {
		return "", err
	}

	categorySlug := strings.ToLower(strings.TrimSpace(rec.CategorySlug))
	categoryID, ok := p.categories[categorySlug]
	if !ok {
		note := fmt.Sprintf("unknown category %q", rec.CategorySlug)
		if err := p.records.SetStatus(ctx, rec.ID, domain.StatusError, note); err != nil {
			return "", fmt.Errorf("mark error: %w", err)
		}
		return "", fmt.Errorf("%s: %w", note, domain.ErrUnknownCategory)
	}

	body := content.Normalize(rec.BodyHTML)

	var tagIDs []int64
	for _, tag := range rec.Tags {
		id, err := p.cms.GetOrCreateTag(ctx, tag)
		if err != nil {
			p.logger.Warn("tag skipped", "record_id", rec.ID, "tag", tag, "error", err)
			continue
		}
		tagIDs = append(tagIDs, id)
	}

	var featured int64
	if media, ok := p.resolveMedia(ctx, rec); ok {
		featured = media.ID
		if rewritten, changed := content.RewriteFirstImage(body, rec.ImageFilename, media.URL); changed {
			body = rewritten
		}
	}

	slug := rec.Slug
	if slug == "" {
		slug = domain.Slugify(rec.Title)
	}

	post, found, err := p.cms.FindPost(ctx, slug)
	if err != nil {
		return "", fmt.Errorf("find post: %w", err)
	}
	if found {
		p.logger.Info("post already exists", "record_id", rec.ID, "post_id", post.ID)
	} else {
		post, err = p.cms.CreatePost(ctx, ports.Post{
			Title:          rec.Title,
			Slug:           slug,
			Content:        body,
			Status:         "publish",
			CategoryIDs:    []int64{categoryID},
			TagIDs:         tagIDs,
			FeaturedMedia:  featured,
			Author:         p.authorName(ctx, rec.AuthorSlug),
			Tier:           rec.Tier.String(),
			SEOTitle:       rec.SEOTitle,
			SEODescription: rec.SEODescription,
			FocusKeyphrase: rec.FocusKeyphrase,
		})
		if err != nil {
			return "", fmt.Errorf("create post: %w", err)
		}
	}

	if err := p.cms.UpdateSEOMeta(ctx, post.ID, rec.SEOTitle, rec.SEODescription, rec.FocusKeyphrase); err != nil {
		p.logger.Warn("seo meta update failed", "record_id", rec.ID, "post_id", post.ID, "error", err)
	}

	if err := p.records.MarkPublished(ctx, rec.ID, post.URL); err != nil {
		return "", fmt.Errorf("mark published: %w", err)
	}

	rec.PublishedURL = post.URL
	rec.Slug = slug
	if p.ledger != nil {
		inserted, err := p.ledger.Append(ctx, domain.LedgerEntryFor(rec))
		if err != nil {
			p.logger.Warn("ledger append failed", "record_id", rec.ID, "error", err)
		} else if !inserted {
			p.logger.Info("ledger entry already present", "record_id", rec.ID)
		}
	}

	p.logger.Info("published", "record_id", rec.ID, "url", post.URL)
	return post.URL, nil
}

// resolveMedia reuses media uploaded under the same slug or uploads the
// local image file.
func (p *Publisher) resolveMedia(ctx context.Context, rec domain.ContentRecord) (ports.Media, bool) {
	name := strings.TrimSpace(rec.ImageFilename)
	if name == "" || p.files == nil || !p.files.ImageExists(name) {
		return ports.Media{}, false
	}

	slug := strings.ToLower(strings.TrimSuffix(name, filepath.Ext(name)))
	media, found, err := p.cms.FindMedia(ctx, slug)
	if err != nil {
		p.logger.Warn("media lookup failed", "record_id", rec.ID, "error", err)
	}
	if found {
		return media, true
	}

	data, err := p.files.ReadImage(name)
	if err != nil {
		p.logger.Warn("read image failed", "record_id", rec.ID, "error", err)
		return ports.Media{}, false
	}
	media, err = p.cms.UploadMedia(ctx, data, name, rec.ImageAltText)
	if err != nil {
		p.logger.Warn("media upload failed", "record_id", rec.ID, "error", err)
		return ports.Media{}, false
	}
	return media, true
}

func (p *Publisher) authorName(ctx context.Context, slug string) string {
	if p.personas == nil {
		return domain.Unslugify(slug)
	}
	return p.personas.Persona(ctx, slug).Name
}
