package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"charforge/internal/domain"
)

// ReferenceJobRepositoryPG implements domain.ReferenceJobRepository using PostgreSQL.
type ReferenceJobRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewReferenceJobRepository constructs a new job repository instance.
func NewReferenceJobRepository(pool *pgxpool.Pool) *ReferenceJobRepositoryPG {
	return &ReferenceJobRepositoryPG{pool: pool}
}

const uniqueViolation = "23505"

// Enqueue inserts a queued job. The partial unique index on active jobs
// turns a second run for the same character into ErrRunInProgress.
func (r *ReferenceJobRepositoryPG) Enqueue(ctx context.Context, job *domain.ReferenceJob) error {
	views := make([]string, len(job.Views))
	for i, v := range job.Views {
		views[i] = string(v)
	}
	_, err := r.pool.Exec(ctx, `
INSERT INTO reference_jobs (id, character_id, views, user_input, sample_keys, status)
VALUES ($1, $2, $3, $4, $5, 'queued');
`, job.ID, job.CharacterID, views, job.UserInput, job.SampleKeys)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return domain.ErrRunInProgress
		}
		return err
	}
	return nil
}

// Claim atomically takes the oldest queued job and marks it running.
// Returns ErrNotFound when the queue is empty.
func (r *ReferenceJobRepositoryPG) Claim(ctx context.Context) (*domain.ReferenceJob, error) {
	row := r.pool.QueryRow(ctx, `
UPDATE reference_jobs
SET status = 'running', updated_at = now()
WHERE id = (
	SELECT id FROM reference_jobs
	WHERE status = 'queued'
	ORDER BY created_at ASC
	LIMIT 1
	FOR UPDATE SKIP LOCKED
)
RETURNING id, character_id, views, user_input, sample_keys, status, progress_json, error_message, created_at, updated_at;
`)
	return scanJob(row)
}

// UpdateProgress stores the serialized per-stage progress on the job row.
func (r *ReferenceJobRepositoryPG) UpdateProgress(ctx context.Context, jobID string, progress []byte) error {
	_, err := r.pool.Exec(ctx, `
UPDATE reference_jobs
SET progress_json = $2, updated_at = now()
WHERE id = $1;
`, jobID, progress)
	return err
}

// Finish records the job's terminal status.
func (r *ReferenceJobRepositoryPG) Finish(ctx context.Context, jobID string, status domain.JobStatus, errMsg string) error {
	_, err := r.pool.Exec(ctx, `
UPDATE reference_jobs
SET status = $2, error_message = $3, updated_at = now()
WHERE id = $1;
`, jobID, string(status), errMsg)
	return err
}

// GetByID loads one job.
func (r *ReferenceJobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.ReferenceJob, error) {
	row := r.pool.QueryRow(ctx, `
SELECT id, character_id, views, user_input, sample_keys, status, progress_json, error_message, created_at, updated_at
FROM reference_jobs
WHERE id = $1;
`, jobID)
	return scanJob(row)
}

func scanJob(row pgx.Row) (*domain.ReferenceJob, error) {
	var job domain.ReferenceJob
	var views []string
	var status string
	if err := row.Scan(&job.ID, &job.CharacterID, &views, &job.UserInput, &job.SampleKeys,
		&status, &job.ProgressJSON, &job.ErrorMessage, &job.CreatedAt, &job.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	job.Views = make([]domain.ViewKind, len(views))
	for i, v := range views {
		job.Views[i] = domain.ViewKind(v)
	}
	return &job, nil
}

var _ domain.ReferenceJobRepository = (*ReferenceJobRepositoryPG)(nil)
