package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"ContentPipeline/internal/content"
	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/persona"
	"ContentPipeline/internal/ports"
	"ContentPipeline/internal/related"
)

// DefaultPollInterval is the wait between batch status checks.
const DefaultPollInterval = 120 * time.Second

// IngestDeps wires the batch result ingestion use case.
type IngestDeps struct {
	Records      ports.RecordRepository
	Batches      ports.BatchRepository
	Client       ports.BatchClient
	Files        ports.FileStore
	Notifier     ports.Notifier
	Personas     *persona.Resolver
	Related      *related.Selector
	Rand         *rand.Rand
	PollInterval time.Duration
	Now          func() time.Time
	Logger       *slog.Logger
}

// IngestOptions selects the batch and the polling mode.
type IngestOptions struct {
	// BatchID overrides marker-file and pending-job resolution.
	BatchID string
	// Once checks the batch status a single time instead of waiting.
	Once bool
}

// Ingester polls a submitted batch and writes its results back.
type Ingester struct {
	records      ports.RecordRepository
	batches      ports.BatchRepository
	client       ports.BatchClient
	files        ports.FileStore
	notifier     ports.Notifier
	personas     *persona.Resolver
	related      *related.Selector
	rnd          *rand.Rand
	pollInterval time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

func NewIngester(deps IngestDeps) *Ingester {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rnd := deps.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	interval := deps.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Ingester{
		records:      deps.Records,
		batches:      deps.Batches,
		client:       deps.Client,
		files:        deps.Files,
		notifier:     deps.Notifier,
		personas:     deps.Personas,
		related:      deps.Related,
		rnd:          rnd,
		pollInterval: interval,
		now:          now,
		logger:       logger.With("component", "ingest"),
	}
}

// Ingest waits for the batch to finish and processes every result line.
// An unknown correlation identifier aborts before any record is touched.
// Expired or canceled batches release their bodiless records to planned.
func (in *Ingester) Ingest(ctx context.Context, opts IngestOptions) (Summary, error) {
	summary := Summary{Stage: "ingest"}

	batchID, err := in.resolveBatch(ctx, opts.BatchID)
	if err != nil {
		return summary, err
	}
	if batchID == "" {
		in.logger.Info("no batch to ingest")
		return summary, nil
	}
	logger := in.logger.With("batch_id", batchID)

	state, err := in.waitForBatch(ctx, batchID, opts.Once, logger)
	if err != nil {
		return summary, err
	}
	if !state.Status.Terminal() {
		logger.Info("batch still processing")
		return summary, nil
	}

	if state.Status != domain.BatchEnded {
		released, err := in.records.ReleaseBatch(ctx, batchID)
		if err != nil {
			return summary, fmt.Errorf("release batch %s: %w", batchID, err)
		}
		logger.Error("batch terminated", "status", state.Status, "released", released)
		in.notify(ctx, "Batch "+string(state.Status), fmt.Sprintf("Batch %s ended as %s; %d records returned to planned.", batchID, state.Status, released))
		return summary, fmt.Errorf("batch %s %s: %w", batchID, state.Status, domain.ErrBatchTerminated)
	}

	results, err := in.client.Results(ctx, state.ResultsURL)
	if err != nil {
		return summary, fmt.Errorf("fetch results %s: %w", batchID, err)
	}

	records, err := in.checkIntegrity(ctx, batchID, results)
	if err != nil {
		return summary, err
	}

	for _, res := range results {
		summary.Processed++
		rec := records[res.CorrelationID]

		accepted, err := in.ingestOne(ctx, &rec, res)
		switch {
		case errors.Is(err, errNotAwaitingResult):
			summary.Skipped++
			logger.Info("record not awaiting a result", "record_id", rec.ID, "status", rec.Status)
		case err != nil:
			summary.Failed++
			logger.Warn("result failed", "record_id", rec.ID, "error", err)
		case accepted:
			summary.Accepted++
		default:
			summary.Flagged++
		}
	}

	if in.batches != nil {
		if err := in.batches.MarkIngested(ctx, batchID, in.now()); err != nil && !errors.Is(err, domain.ErrNotFound) {
			logger.Warn("mark ingested failed", "error", err)
		}
	}

	summary.Log(logger)
	in.notify(ctx, "Batch ingested", fmt.Sprintf("Batch %s\n%s", batchID, summary))
	return summary, nil
}

// errNotAwaitingResult marks results for records that left the batch, either
// released back to planned or already past generation.
var errNotAwaitingResult = errors.New("record not awaiting a result")

func (in *Ingester) ingestOne(ctx context.Context, rec *domain.ContentRecord, res ports.BatchResult) (bool, error) {
	if res.Err != "" {
		return false, fmt.Errorf("provider error: %s", res.Err)
	}
	if strings.TrimSpace(res.RawText) == "" {
		return false, errors.New("empty response text")
	}

	switch rec.Status {
	case domain.StatusInBatch, domain.StatusDraft:
	default:
		return false, errNotAwaitingResult
	}

	ac, err := loadArticleContext(ctx, in.personas, in.related, rec)
	if err != nil {
		return false, err
	}

	out, err := content.Assemble(content.Input{
		Raw:        res.RawText,
		RecordTier: rec.Tier,
		Related:    ac.related,
		AuthorBio:  ac.persona.Bio,
		Flair:      ac.flair,
		Placement:  content.RandomPlacement(in.rnd),
	})
	if err != nil {
		return false, err
	}
	if len(out.Sections.Unknown) > 0 {
		in.logger.Warn("unknown sections skipped", "record_id", rec.ID, "sections", strings.Join(out.Sections.Unknown, ","))
	}

	target := domain.StatusImageNeeded
	if !out.Accepted {
		target = domain.StatusDraft
	}

	upd := ports.RecordUpdate{
		BodyHTML:       out.BodyHTML,
		FocusKeyphrase: out.Sections.FocusKeyphrase,
		SEOTitle:       out.Sections.SEOTitle,
		SEODescription: out.Sections.SEODescription,
		Tags:           out.Sections.Tags,
		ImageFilename:  out.Sections.ImageFilename,
		ImageCaption:   out.Sections.ImageCaption,
		ImageAltText:   out.Sections.ImageAltText,
		ImagePrompt:    out.Sections.ImagePrompt,
		Rewrite:        !out.Accepted,
		Notes:          out.Notes,
	}
	if err := domain.CheckTransition(rec.Status, target, true); err != nil {
		in.logger.Warn("keeping status", "record_id", rec.ID, "error", err)
	} else {
		upd.Status = target
	}

	if err := in.records.ApplyGeneration(ctx, rec.ID, upd); err != nil {
		return false, fmt.Errorf("apply generation: %w", err)
	}

	in.logger.Info("result ingested",
		"record_id", rec.ID,
		"status", upd.Status,
		"word_count", out.WordCount,
		"min_words", out.MinWords,
	)
	return out.Accepted, nil
}

// checkIntegrity resolves every correlation identifier before any write.
func (in *Ingester) checkIntegrity(ctx context.Context, batchID string, results []ports.BatchResult) (map[string]domain.ContentRecord, error) {
	ids := make([]string, 0, len(results))
	for _, res := range results {
		ids = append(ids, res.CorrelationID)
	}

	records, err := in.records.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load batch records: %w", err)
	}
	for _, id := range ids {
		if _, ok := records[id]; !ok {
			in.logger.Error("unknown correlation id", "batch_id", batchID, "custom_id", id)
			return nil, fmt.Errorf("batch %s references unknown record %q: %w", batchID, id, domain.ErrIntegrity)
		}
	}
	return records, nil
}

func (in *Ingester) resolveBatch(ctx context.Context, explicit string) (string, error) {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit, nil
	}

	if in.files != nil {
		id, err := in.files.ReadBatchID()
		if err != nil {
			in.logger.Warn("read batch id marker failed", "error", err)
		}
		if id != "" && !in.alreadyIngested(ctx, id) {
			return id, nil
		}
	}

	if in.batches == nil {
		return "", nil
	}
	pending, err := in.batches.PendingBatches(ctx)
	if err != nil {
		return "", fmt.Errorf("pending batches: %w", err)
	}
	if len(pending) == 0 {
		return "", nil
	}
	return pending[0].ID, nil
}

func (in *Ingester) alreadyIngested(ctx context.Context, id string) bool {
	if in.batches == nil {
		return false
	}
	job, err := in.batches.GetBatch(ctx, id)
	if err != nil {
		return false
	}
	return job.IngestedAt != nil || (job.Status.Terminal() && job.Status != domain.BatchEnded)
}

func (in *Ingester) waitForBatch(ctx context.Context, batchID string, once bool, logger *slog.Logger) (ports.BatchState, error) {
	for {
		state, err := in.client.Status(ctx, batchID)
		if err != nil {
			return ports.BatchState{}, fmt.Errorf("batch status %s: %w", batchID, err)
		}
		logger.Info("batch status", "status", state.Status)

		if state.Status.Terminal() {
			if in.batches != nil {
				if err := in.batches.SetBatchStatus(ctx, batchID, state.Status); err != nil && !errors.Is(err, domain.ErrNotFound) {
					logger.Warn("store batch status failed", "error", err)
				}
			}
			return state, nil
		}
		if once {
			return state, nil
		}

		timer := time.NewTimer(in.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ports.BatchState{}, ctx.Err()
		case <-timer.C:
		}
	}
}

func (in *Ingester) notify(ctx context.Context, subject, body string) {
	if in.notifier == nil {
		return
	}
	if err := in.notifier.Notify(ctx, subject, body); err != nil {
		in.logger.Warn("notify failed", "error", err)
	}
}
