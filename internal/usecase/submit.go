package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/persona"
	"ContentPipeline/internal/ports"
	"ContentPipeline/internal/related"
)

// BatchTier is the tier every batch request is written for.
const BatchTier = domain.Tier1

// PromptConfig holds the prompt text supplied as reference data.
type PromptConfig struct {
	System       string
	Instructions string
}

// SubmitDeps wires the batch submission use case.
type SubmitDeps struct {
	Records  ports.RecordRepository
	Batches  ports.BatchRepository
	Client   ports.BatchClient
	Files    ports.FileStore
	Notifier ports.Notifier
	Personas *persona.Resolver
	Related  *related.Selector
	Prompt   PromptConfig
	Limit    int
	Nonce    func() string
	Now      func() time.Time
	Logger   *slog.Logger
}

// Submitter builds generation requests for planned records and submits them
// as one batch.
type Submitter struct {
	records  ports.RecordRepository
	batches  ports.BatchRepository
	client   ports.BatchClient
	files    ports.FileStore
	notifier ports.Notifier
	personas *persona.Resolver
	related  *related.Selector
	prompt   PromptConfig
	limit    int
	nonce    func() string
	now      func() time.Time
	logger   *slog.Logger
}

// SubmitResult reports what a submission produced.
type SubmitResult struct {
	BatchID   string
	RecordIDs []string
	Summary   Summary
}

// UserPayload is the JSON document sent as the user message.
type UserPayload struct {
	Title          string                  `json:"title"`
	City           string                  `json:"city"`
	Category       string                  `json:"category"`
	Tier           string                  `json:"tier"`
	MinWordCount   int                     `json:"min_word_count"`
	InternalLinks  []domain.RelatedArticle `json:"internal_links"`
	FlairStyles    []string                `json:"flair_styles"`
	AuthorPersona  string                  `json:"author_persona"`
	Outline        string                  `json:"outline,omitempty"`
	FocusKeyphrase string                  `json:"focus_keyphrase"`
	SEOTitle       string                  `json:"seo_title"`
	SEODescription string                  `json:"seo_description"`
	Tags           string                  `json:"tags"`
	Instructions   string                  `json:"instructions"`
	Nonce          string                  `json:"nonce"`
}

type debugPayload struct {
	RecordID     string      `json:"uuid"`
	Title        string      `json:"title"`
	SystemLength int         `json:"system_prompt_length"`
	UserLength   int         `json:"user_prompt_length"`
	System       string      `json:"system"`
	User         UserPayload `json:"user_prompt"`
}

func NewSubmitter(deps SubmitDeps) *Submitter {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	nonce := deps.Nonce
	if nonce == nil {
		nonce = uuid.NewString
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Submitter{
		records:  deps.Records,
		batches:  deps.Batches,
		client:   deps.Client,
		files:    deps.Files,
		notifier: deps.Notifier,
		personas: deps.Personas,
		related:  deps.Related,
		prompt:   deps.Prompt,
		limit:    deps.Limit,
		nonce:    nonce,
		now:      now,
		logger:   logger.With("component", "submit"),
	}
}

// Submit selects planned records without a body, submits one batch and only
// then marks the records in_batch. A provider failure leaves every record
// untouched.
func (s *Submitter) Submit(ctx context.Context) (SubmitResult, error) {
	summary := Summary{Stage: "submit"}

	records, err := s.records.Select(ctx, ports.RecordQuery{
		Status:        domain.StatusPlanned,
		RequireNoBody: true,
		Limit:         s.limit,
	})
	if err != nil {
		return SubmitResult{Summary: summary}, fmt.Errorf("select planned: %w", err)
	}
	if len(records) == 0 {
		s.logger.Info("no planned records to submit")
		return SubmitResult{Summary: summary}, nil
	}

	var (
		requests []ports.BatchRequest
		ids      []string
		titles   []string
	)
	for i := range records {
		rec := records[i]
		summary.Processed++

		req, err := s.buildRequest(ctx, &rec)
		if err != nil {
			summary.Failed++
			s.logger.Warn("skipping record", "record_id", rec.ID, "error", err)
			continue
		}
		requests = append(requests, req)
		ids = append(ids, rec.ID)
		titles = append(titles, fmt.Sprintf("%s - %s", rec.ID, rec.Title))
	}

	if len(requests) == 0 {
		s.logger.Warn("no requests prepared")
		summary.Log(s.logger)
		return SubmitResult{Summary: summary}, nil
	}

	batchID, err := s.client.Submit(ctx, requests)
	if err != nil {
		return SubmitResult{Summary: summary}, fmt.Errorf("submit batch: %w", err)
	}

	if err := s.records.MarkInBatch(ctx, ids, batchID); err != nil {
		return SubmitResult{BatchID: batchID, Summary: summary}, fmt.Errorf("mark in batch %s: %w", batchID, err)
	}
	submittedAt := s.now()
	if s.batches != nil {
		if err := s.batches.SaveBatch(ctx, domain.BatchJob{
			ID:          batchID,
			RecordIDs:   ids,
			SubmittedAt: submittedAt,
			Status:      domain.BatchPending,
		}); err != nil {
			return SubmitResult{BatchID: batchID, Summary: summary}, fmt.Errorf("save batch %s: %w", batchID, err)
		}
	}
	if s.files != nil {
		if err := s.files.WriteBatchID(batchID); err != nil {
			s.logger.Warn("write batch id marker failed", "batch_id", batchID, "error", err)
		}
	}

	summary.Accepted = len(ids)
	s.logger.Info("batch submitted", "batch_id", batchID, "records", len(ids))
	summary.Log(s.logger)

	if s.notifier != nil {
		body := fmt.Sprintf("Batch ID: %s\nSubmitted at: %s\n\nRecords:\n%s",
			batchID, submittedAt.Format(time.RFC3339), strings.Join(titles, "\n"))
		if err := s.notifier.Notify(ctx, "Batch submitted", body); err != nil {
			s.logger.Warn("notify failed", "error", err)
		}
	}

	return SubmitResult{BatchID: batchID, RecordIDs: ids, Summary: summary}, nil
}

func (s *Submitter) buildRequest(ctx context.Context, rec *domain.ContentRecord) (ports.BatchRequest, error) {
	if err := domain.CheckTransition(rec.Status, domain.StatusInBatch, rec.HasBody()); err != nil {
		return ports.BatchRequest{}, err
	}

	ac, err := loadArticleContext(ctx, s.personas, s.related, rec)
	if err != nil {
		return ports.BatchRequest{}, err
	}

	author := rec.AuthorSlug
	if author == "" {
		author = "default"
	}
	links := ac.related
	if links == nil {
		links = []domain.RelatedArticle{}
	}
	flair := ac.flair
	if flair == nil {
		flair = []string{}
	}

	payload := UserPayload{
		Title:         rec.Title,
		City:          rec.City,
		Category:      rec.CategorySlug,
		Tier:          BatchTier.String(),
		MinWordCount:  BatchTier.MinWords(),
		InternalLinks: links,
		FlairStyles:   flair,
		AuthorPersona: author,
		Outline:       rec.Outline,
		Instructions:  s.prompt.Instructions,
		Nonce:         s.nonce(),
	}
	user, err := json.Marshal(payload)
	if err != nil {
		return ports.BatchRequest{}, fmt.Errorf("encode user payload: %w", err)
	}

	system := s.prompt.System
	if s.personas != nil {
		system = s.personas.SystemPrompt(system, ac.persona, ac.flair)
	}

	if s.files != nil {
		if err := s.files.WriteDebugPayload(rec.ID, debugPayload{
			RecordID:     rec.ID,
			Title:        rec.Title,
			SystemLength: len(system),
			UserLength:   len(user),
			System:       system,
			User:         payload,
		}); err != nil {
			s.logger.Warn("write debug payload failed", "record_id", rec.ID, "error", err)
		}
	}

	return ports.BatchRequest{CorrelationID: rec.ID, System: system, User: user}, nil
}
