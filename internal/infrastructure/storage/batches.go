package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"ContentPipeline/internal/domain"
	"ContentPipeline/internal/ports"
)

var _ ports.BatchRepository = (*Store)(nil)

var batchColumns = []string{"id", "record_ids", "submitted_at", "status", "ingested_at"}

// SaveBatch records a submitted batch job.
func (s *Store) SaveBatch(ctx context.Context, job domain.BatchJob) error {
	if job.Status == "" {
		job.Status = domain.BatchPending
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = s.now()
	}
	_, err := s.exec(ctx, s.db, s.sb.Insert("batch_jobs").
		Columns("id", "record_ids", "submitted_at", "status").
		Values(job.ID, joinList(job.RecordIDs), job.SubmittedAt.UTC().Format(time.RFC3339), string(job.Status)).
		Suffix("ON CONFLICT (id) DO UPDATE SET status = excluded.status"))
	if err != nil {
		return fmt.Errorf("save batch: %w", err)
	}
	return nil
}

// GetBatch loads a batch job by provider identifier.
func (s *Store) GetBatch(ctx context.Context, id string) (domain.BatchJob, error) {
	jobs, err := s.queryBatches(ctx, s.sb.Select(batchColumns...).From("batch_jobs").Where(sq.Eq{"id": id}))
	if err != nil {
		return domain.BatchJob{}, err
	}
	if len(jobs) == 0 {
		return domain.BatchJob{}, fmt.Errorf("batch %s: %w", id, domain.ErrNotFound)
	}
	return jobs[0], nil
}

// PendingBatches lists un-ingested pending jobs, oldest first.
func (s *Store) PendingBatches(ctx context.Context) ([]domain.BatchJob, error) {
	return s.queryBatches(ctx, s.sb.Select(batchColumns...).From("batch_jobs").
		Where(sq.Eq{"status": string(domain.BatchPending), "ingested_at": nil}).
		OrderBy("submitted_at ASC"))
}

// SetBatchStatus stores the latest provider status.
func (s *Store) SetBatchStatus(ctx context.Context, id string, status domain.BatchStatus) error {
	return s.updateBatch(ctx, id, map[string]any{"status": string(status)})
}

// MarkIngested stamps the job once its results have been processed.
func (s *Store) MarkIngested(ctx context.Context, id string, at time.Time) error {
	return s.updateBatch(ctx, id, map[string]any{"ingested_at": at.UTC().Format(time.RFC3339)})
}

func (s *Store) updateBatch(ctx context.Context, id string, fields map[string]any) error {
	res, err := s.exec(ctx, s.db, s.sb.Update("batch_jobs").SetMap(fields).Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("update batch %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("batch %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

func (s *Store) queryBatches(ctx context.Context, b sq.SelectBuilder) ([]domain.BatchJob, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query batches: %w", err)
	}
	defer rows.Close()

	var out []domain.BatchJob
	for rows.Next() {
		var (
			job                  domain.BatchJob
			ids, submitted, stat string
			ingested             sql.NullString
		)
		if err := rows.Scan(&job.ID, &ids, &submitted, &stat, &ingested); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		job.RecordIDs = splitList(ids)
		job.SubmittedAt = parseStamp(submitted)
		job.Status = domain.BatchStatus(stat)
		if ingested.Valid {
			at := parseStamp(ingested.String)
			job.IngestedAt = &at
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}
	return out, nil
}
