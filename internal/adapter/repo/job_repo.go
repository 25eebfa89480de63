package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"pixvid/internal/domain"
	"pixvid/internal/infra"
	"pixvid/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	db infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(db infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{db: db}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	_, err := r.db.Exec(ctx, sqlinline.QInsertJob,
		job.ID,
		job.UserID,
		job.SourceAssetKey,
		job.ReferenceKeys,
		job.Settings,
		string(job.Status),
		job.Progress,
		job.CurrentStage,
		job.RetryCount,
		job.ErrorMessage,
		job.ResultKey,
		job.CreatedAt,
		job.StartedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// UpdateSnapshot persists the mutable portion of a job record.
func (r *JobRepositoryPG) UpdateSnapshot(ctx context.Context, job *domain.Job) error {
	tag, err := r.db.Exec(ctx, sqlinline.QUpdateJobSnapshot,
		job.ID,
		string(job.Status),
		job.Progress,
		job.CurrentStage,
		job.RetryCount,
		job.ErrorMessage,
		job.ResultKey,
		job.StartedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	row := r.db.QueryRow(ctx, sqlinline.QSelectJobByID, jobID)
	return scanJob(row)
}

// ListByUser returns the user's jobs, newest first.
func (r *JobRepositoryPG) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Job, error) {
	rows, err := r.db.Query(ctx, sqlinline.QSelectJobsByUser, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// ListUnfinished returns all jobs still queued or processing, oldest first.
// The scheduler replays these on startup.
func (r *JobRepositoryPG) ListUnfinished(ctx context.Context) ([]*domain.Job, error) {
	rows, err := r.db.Query(ctx, sqlinline.QSelectUnfinishedJobs)
	if err != nil {
		return nil, fmt.Errorf("list unfinished jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func collectJobs(rows pgx.Rows) ([]*domain.Job, error) {
	var jobs []*domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		job    domain.Job
		status string
	)
	if err := row.Scan(
		&job.ID,
		&job.UserID,
		&job.SourceAssetKey,
		&job.ReferenceKeys,
		&job.Settings,
		&status,
		&job.Progress,
		&job.CurrentStage,
		&job.RetryCount,
		&job.ErrorMessage,
		&job.ResultKey,
		&job.CreatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
