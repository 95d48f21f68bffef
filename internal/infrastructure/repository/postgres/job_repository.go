package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/finsight-io/finsight/internal/core/domain"
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, job *domain.ProcessingJob) error {
	attemptsJSON, err := json.Marshal(job.Attempts)
	if err != nil {
		return fmt.Errorf("marshal attempts: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
INSERT INTO jobs (id, document_id, stage, state, attempts, cancel_requested, error_message, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`,
		job.ID, job.DocumentID, string(job.Stage), string(job.State), attemptsJSON,
		job.CancelRequested, job.Error, job.CreatedAt, job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.ProcessingJob, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, document_id, stage, state, attempts, cancel_requested, error_message, created_at, updated_at
FROM jobs
WHERE id = $1
`, id)
	return scanJob(row, id)
}

func (r *JobRepository) GetByDocumentID(ctx context.Context, documentID string) (*domain.ProcessingJob, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, document_id, stage, state, attempts, cancel_requested, error_message, created_at, updated_at
FROM jobs
WHERE document_id = $1
ORDER BY created_at DESC
LIMIT 1
`, documentID)
	return scanJob(row, documentID)
}

func scanJob(row *sql.Row, key string) (*domain.ProcessingJob, error) {
	var job domain.ProcessingJob
	var stage, state string
	var attemptsRaw []byte
	err := row.Scan(&job.ID, &job.DocumentID, &stage, &state, &attemptsRaw,
		&job.CancelRequested, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrJobNotFound, "get job",
				fmt.Errorf("job %s", key))
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}
	if err := json.Unmarshal(attemptsRaw, &job.Attempts); err != nil {
		return nil, fmt.Errorf("unmarshal attempts: %w", err)
	}
	job.Stage = domain.PipelineStage(stage)
	job.State = domain.JobState(state)
	return &job, nil
}

func (r *JobRepository) UpdateProgress(ctx context.Context, id string, stage domain.PipelineStage, state domain.JobState, errMessage string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE jobs
SET stage = $2, state = $3, error_message = $4, updated_at = $5
WHERE id = $1
`, id, string(stage), string(state), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return requireJobRow(res, id)
}

func (r *JobRepository) AppendAttempt(ctx context.Context, id string, attempt domain.StageAttempt) error {
	attemptJSON, err := json.Marshal(attempt)
	if err != nil {
		return fmt.Errorf("marshal attempt: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE jobs
SET attempts = attempts || $2::jsonb, updated_at = $3
WHERE id = $1
`, id, attemptJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append job attempt: %w", err)
	}
	return requireJobRow(res, id)
}

// RequestCancel only flags the job; the worker honors the flag between
// stages. Terminal jobs cannot be cancelled.
func (r *JobRepository) RequestCancel(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE jobs
SET cancel_requested = TRUE, updated_at = $2
WHERE id = $1 AND state IN ($3, $4)
`, id, time.Now().UTC(), string(domain.JobPending), string(domain.JobRunning))
	if err != nil {
		return fmt.Errorf("request job cancel: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "request job cancel",
			fmt.Errorf("job %s is terminal or unknown", id))
	}
	return nil
}

func requireJobRow(res sql.Result, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrJobNotFound, "update job",
			fmt.Errorf("job %s", id))
	}
	return nil
}
