package usecase

import (
	"context"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/infrastructure/storage"
	"ContentPipeline/internal/ports"
)

func seedBatch(t *testing.T, s *storage.Store, batchID string, ids ...string) {
	t.Helper()
	for i, id := range ids {
		mustInsert(t, s, domain.ContentRecord{
			ID:           id,
			Status:       domain.StatusPlanned,
			Title:        "Article " + id,
			CategorySlug: "lawn-care",
			PublishDate:  day("2025-04-01").AddDate(0, 0, i),
		})
	}
	ctx := context.Background()
	if err := s.MarkInBatch(ctx, ids, batchID); err != nil {
		t.Fatalf("mark in batch: %v", err)
	}
	if err := s.SaveBatch(ctx, domain.BatchJob{ID: batchID, RecordIDs: ids, Status: domain.BatchPending}); err != nil {
		t.Fatalf("save batch: %v", err)
	}
}

func newIngester(s *storage.Store, client *fakeBatchClient, files *memFiles, notifier *recordingNotifier) *Ingester {
	deps := IngestDeps{
		Records:      s,
		Batches:      s,
		Client:       client,
		Rand:         rand.New(rand.NewPCG(7, 8)),
		PollInterval: time.Millisecond,
		Logger:       discardLogger(),
	}
	if files != nil {
		deps.Files = files
	}
	if notifier != nil {
		deps.Notifier = notifier
	}
	return NewIngester(deps)
}

func TestIngestEndedBatch(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	seedBatch(t, s, "b1", "a", "b", "c")
	client := &fakeBatchClient{
		states: []ports.BatchState{{Status: domain.BatchEnded, ResultsURL: "https://results"}},
		results: []ports.BatchResult{
			{CorrelationID: "a", RawText: article(1900, "Tier 1")},
			{CorrelationID: "b", RawText: article(500, "Tier 1")},
			{CorrelationID: "c", Err: "overloaded_error"},
		},
	}
	notifier := &recordingNotifier{}

	summary, err := newIngester(s, client, nil, notifier).Ingest(context.Background(), IngestOptions{BatchID: "b1"})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if summary.Processed != 3 || summary.Accepted != 1 || summary.Flagged != 1 || summary.Failed != 1 {
		t.Fatalf("summary = %+v", summary)
	}

	a := mustGet(t, s, "a")
	if a.Status != domain.StatusImageNeeded || a.Rewrite {
		t.Fatalf("a = %s rewrite=%v", a.Status, a.Rewrite)
	}
	if a.ImagePrompt != "A desert lawn at dusk" || a.ImageFilename != "desert-lawn.png" {
		t.Fatalf("image fields not stored: %+v", a)
	}
	if len(a.Tags) != 2 || a.SEOTitle != "Desert Lawn Guide" {
		t.Fatalf("seo fields not stored: %+v", a)
	}

	b := mustGet(t, s, "b")
	if b.Status != domain.StatusDraft || !b.Rewrite || !strings.Contains(b.Notes, "word_count:") {
		t.Fatalf("b = %s rewrite=%v notes=%q", b.Status, b.Rewrite, b.Notes)
	}

	if c := mustGet(t, s, "c"); c.Status != domain.StatusInBatch || c.HasBody() {
		t.Fatalf("failed result changed record: %+v", c)
	}

	job, err := s.GetBatch(context.Background(), "b1")
	if err != nil || job.IngestedAt == nil || job.Status != domain.BatchEnded {
		t.Fatalf("job = %+v, %v", job, err)
	}
	if len(notifier.subjects) != 1 || notifier.subjects[0] != "Batch ingested" {
		t.Fatalf("notifications = %v", notifier.subjects)
	}
}

func TestIngestAbortsOnUnknownCorrelationID(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	seedBatch(t, s, "b1", "a")
	client := &fakeBatchClient{
		states: []ports.BatchState{{Status: domain.BatchEnded}},
		results: []ports.BatchResult{
			{CorrelationID: "a", RawText: article(1900, "Tier 1")},
			{CorrelationID: "ghost", RawText: article(1900, "Tier 1")},
		},
	}

	_, err := newIngester(s, client, nil, nil).Ingest(context.Background(), IngestOptions{BatchID: "b1"})
	if !errors.Is(err, domain.ErrIntegrity) {
		t.Fatalf("expected integrity error, got %v", err)
	}
	if a := mustGet(t, s, "a"); a.HasBody() || a.Status != domain.StatusInBatch {
		t.Fatalf("record written before integrity check: %+v", a)
	}
}

func TestIngestExpiredBatchReleasesRecords(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	seedBatch(t, s, "b1", "a", "b")
	notifier := &recordingNotifier{}
	client := &fakeBatchClient{states: []ports.BatchState{{Status: domain.BatchExpired}}}

	_, err := newIngester(s, client, nil, notifier).Ingest(context.Background(), IngestOptions{BatchID: "b1"})
	if !errors.Is(err, domain.ErrBatchTerminated) {
		t.Fatalf("expected terminated error, got %v", err)
	}
	for _, id := range []string{"a", "b"} {
		if rec := mustGet(t, s, id); rec.Status != domain.StatusPlanned || rec.BatchID != "" {
			t.Fatalf("%s = %s/%s", id, rec.Status, rec.BatchID)
		}
	}
	if len(notifier.subjects) != 1 {
		t.Fatalf("notifications = %v", notifier.subjects)
	}
}

func TestIngestOnceLeavesPendingBatch(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	seedBatch(t, s, "b1", "a")
	client := &fakeBatchClient{states: []ports.BatchState{{Status: domain.BatchPending}}}

	summary, err := newIngester(s, client, nil, nil).Ingest(context.Background(), IngestOptions{BatchID: "b1", Once: true})
	if err != nil || summary.Processed != 0 {
		t.Fatalf("summary = %+v, %v", summary, err)
	}
	if client.statusN != 1 {
		t.Fatalf("status checked %d times", client.statusN)
	}
	if a := mustGet(t, s, "a"); a.Status != domain.StatusInBatch {
		t.Fatalf("a = %s", a.Status)
	}
}

func TestIngestPollsUntilEnded(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	seedBatch(t, s, "b1", "a")
	client := &fakeBatchClient{
		states: []ports.BatchState{
			{Status: domain.BatchPending},
			{Status: domain.BatchPending},
			{Status: domain.BatchEnded},
		},
		results: []ports.BatchResult{{CorrelationID: "a", RawText: article(1900, "Tier 1")}},
	}

	summary, err := newIngester(s, client, nil, nil).Ingest(context.Background(), IngestOptions{BatchID: "b1"})
	if err != nil || summary.Accepted != 1 {
		t.Fatalf("summary = %+v, %v", summary, err)
	}
	if client.statusN != 3 {
		t.Fatalf("status checked %d times", client.statusN)
	}
}

func TestIngestPollingHonorsCancel(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	seedBatch(t, s, "b1", "a")
	client := &fakeBatchClient{states: []ports.BatchState{{Status: domain.BatchPending}}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := newIngester(s, client, nil, nil).Ingest(ctx, IngestOptions{BatchID: "b1"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
}

func TestIngestResolvesBatch(t *testing.T) {
	t.Parallel()

	t.Run("marker file", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		seedBatch(t, s, "older", "x")
		seedBatch(t, s, "marked", "a")
		files := newMemFiles()
		_ = files.WriteBatchID("marked")
		client := &fakeBatchClient{
			states:  []ports.BatchState{{Status: domain.BatchEnded}},
			results: []ports.BatchResult{{CorrelationID: "a", RawText: article(1900, "Tier 1")}},
		}

		if _, err := newIngester(s, client, files, nil).Ingest(context.Background(), IngestOptions{}); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
		if a := mustGet(t, s, "a"); a.Status != domain.StatusImageNeeded {
			t.Fatalf("marked batch not ingested: %s", a.Status)
		}
	})

	t.Run("ingested marker falls back to pending job", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		seedBatch(t, s, "done", "x")
		seedBatch(t, s, "next", "a")
		if err := s.MarkIngested(context.Background(), "done", time.Now()); err != nil {
			t.Fatalf("mark ingested: %v", err)
		}
		files := newMemFiles()
		_ = files.WriteBatchID("done")
		client := &fakeBatchClient{
			states:  []ports.BatchState{{Status: domain.BatchEnded}},
			results: []ports.BatchResult{{CorrelationID: "a", RawText: article(1900, "Tier 1")}},
		}

		if _, err := newIngester(s, client, files, nil).Ingest(context.Background(), IngestOptions{}); err != nil {
			t.Fatalf("Ingest: %v", err)
		}
		if a := mustGet(t, s, "a"); a.Status != domain.StatusImageNeeded {
			t.Fatalf("pending batch not ingested: %s", a.Status)
		}
	})

	t.Run("nothing to do", func(t *testing.T) {
		t.Parallel()
		s := newStore(t)
		client := &fakeBatchClient{}
		summary, err := newIngester(s, client, newMemFiles(), nil).Ingest(context.Background(), IngestOptions{})
		if err != nil || summary.Processed != 0 || client.statusN != 0 {
			t.Fatalf("summary = %+v, %v", summary, err)
		}
	})
}

func TestIngestSkipsAdvancedRecords(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	seedBatch(t, s, "b1", "a")
	ctx := context.Background()
	if err := s.ApplyGeneration(ctx, "a", ports.RecordUpdate{BodyHTML: "<p>live</p>", Status: domain.StatusImageNeeded}); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := s.SaveImage(ctx, "a", "a.png", "p", domain.StatusReady); err != nil {
		t.Fatalf("save image: %v", err)
	}
	client := &fakeBatchClient{
		states:  []ports.BatchState{{Status: domain.BatchEnded}},
		results: []ports.BatchResult{{CorrelationID: "a", RawText: article(1900, "Tier 1")}},
	}

	summary, err := newIngester(s, client, nil, nil).Ingest(ctx, IngestOptions{BatchID: "b1"})
	if err != nil || summary.Skipped != 1 {
		t.Fatalf("summary = %+v, %v", summary, err)
	}
	if a := mustGet(t, s, "a"); a.BodyHTML != "<p>live</p>" || a.Status != domain.StatusReady {
		t.Fatalf("advanced record overwritten: %+v", a)
	}
}

func TestIngestSkipsReleasedRecords(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	seedBatch(t, s, "b1", "a")
	ctx := context.Background()
	if n, err := s.ReleaseBatch(ctx, "b1"); err != nil || n != 1 {
		t.Fatalf("release = %d, %v", n, err)
	}
	client := &fakeBatchClient{
		states:  []ports.BatchState{{Status: domain.BatchEnded}},
		results: []ports.BatchResult{{CorrelationID: "a", RawText: article(1900, "Tier 1")}},
	}

	summary, err := newIngester(s, client, nil, nil).Ingest(ctx, IngestOptions{BatchID: "b1"})
	if err != nil || summary.Skipped != 1 || summary.Accepted != 0 {
		t.Fatalf("summary = %+v, %v", summary, err)
	}
	a := mustGet(t, s, "a")
	if a.Status != domain.StatusPlanned || a.HasBody() {
		t.Fatalf("released record changed: status=%s body=%q", a.Status, a.BodyHTML)
	}

	planned, err := s.Select(ctx, ports.RecordQuery{Status: domain.StatusPlanned, RequireNoBody: true})
	if err != nil || len(planned) != 1 {
		t.Fatalf("record not resubmittable: %d, %v", len(planned), err)
	}
}
