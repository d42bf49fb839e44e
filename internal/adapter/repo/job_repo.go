package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"heirloom/internal/domain"
	"heirloom/internal/infra"
	"heirloom/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	if job == nil {
		return errors.New("job is required")
	}
	if err := job.CheckInvariant(); err != nil {
		return err
	}
	_, err := r.sql.Exec(ctx, sqlinline.QInsertRestorationJob,
		job.ID,
		job.OriginalFilename,
		job.RestoredFilename,
		string(job.Status),
		job.CreatedAt,
	)
	return err
}

// UpdateStatus moves a processing job to a terminal state.
func (r *JobRepositoryPG) UpdateStatus(ctx context.Context, jobID string, t domain.Transition) error {
	if !validID(jobID) {
		return domain.ErrNotFound
	}
	if _, err := t.Apply(domain.Job{ID: jobID, Status: domain.JobStatusProcessing}); err != nil {
		return err
	}

	var nanos *int64
	if t.ProcessingTime != nil {
		n := t.ProcessingTime.Nanoseconds()
		nanos = &n
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QFinishRestorationJob, jobID, string(t.Status), nanos, t.ErrorMessage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var status string
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectRestorationJobStatus, jobID).Scan(&status); err != nil {
		if infra.IsNoRows(err) {
			return domain.ErrNotFound
		}
		return err
	}
	return domain.ErrTerminalState
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	if !validID(jobID) {
		return nil, domain.ErrNotFound
	}
	job, err := scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectRestorationJob, jobID))
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// ListRecent returns up to limit jobs, newest first.
func (r *JobRepositoryPG) ListRecent(ctx context.Context, limit int) ([]domain.Job, error) {
	return r.list(ctx, sqlinline.QListRecentRestorationJobs, limit)
}

// ListProcessingBefore returns processing jobs created before the cutoff,
// oldest first.
func (r *JobRepositoryPG) ListProcessingBefore(ctx context.Context, before time.Time, limit int) ([]domain.Job, error) {
	return r.list(ctx, sqlinline.QListStaleRestorationJobs, before, limit)
}

func (r *JobRepositoryPG) list(ctx context.Context, query string, args ...any) ([]domain.Job, error) {
	rows, err := r.sql.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := make([]domain.Job, 0)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (domain.Job, error) {
	var (
		job    domain.Job
		status string
		nanos  *int64
	)
	if err := row.Scan(
		&job.ID,
		&job.OriginalFilename,
		&job.RestoredFilename,
		&status,
		&job.CreatedAt,
		&nanos,
		&job.ErrorMessage,
	); err != nil {
		return domain.Job{}, err
	}
	job.Status = domain.JobStatus(status)
	if !job.Status.Valid() {
		return domain.Job{}, fmt.Errorf("job %s: unknown status %q", job.ID, status)
	}
	if nanos != nil {
		d := time.Duration(*nanos)
		job.ProcessingTime = &d
	}
	job.CreatedAt = job.CreatedAt.UTC()
	return job, nil
}

// validID reports whether id can be a job id. Anything else cannot exist.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
