package repo

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"heirloom/internal/domain"
)

// JobRepositoryMemory keeps jobs in process memory. It is used when no
// DATABASE_URL is configured and in tests.
type JobRepositoryMemory struct {
	mu   sync.RWMutex
	jobs map[string]domain.Job
}

// NewMemoryJobRepository returns an empty in-memory repository.
func NewMemoryJobRepository() *JobRepositoryMemory {
	return &JobRepositoryMemory{jobs: make(map[string]domain.Job)}
}

func (r *JobRepositoryMemory) Create(_ context.Context, job *domain.Job) error {
	if job == nil {
		return errors.New("job is required")
	}
	if err := job.CheckInvariant(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; exists {
		return errors.New("job " + job.ID + " already exists")
	}
	r.jobs[job.ID] = job.Clone()
	return nil
}

func (r *JobRepositoryMemory) UpdateStatus(_ context.Context, jobID string, t domain.Transition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.jobs[jobID]
	if !ok {
		return domain.ErrNotFound
	}
	next, err := t.Apply(current)
	if err != nil {
		return err
	}
	r.jobs[jobID] = next
	return nil
}

func (r *JobRepositoryMemory) GetByID(_ context.Context, jobID string) (*domain.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	out := job.Clone()
	return &out, nil
}

func (r *JobRepositoryMemory) ListRecent(_ context.Context, limit int) ([]domain.Job, error) {
	jobs := r.snapshot(func(domain.Job) bool { return true })
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return truncate(jobs, limit), nil
}

func (r *JobRepositoryMemory) ListProcessingBefore(_ context.Context, before time.Time, limit int) ([]domain.Job, error) {
	jobs := r.snapshot(func(j domain.Job) bool {
		return j.Status == domain.JobStatusProcessing && j.CreatedAt.Before(before)
	})
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	return truncate(jobs, limit), nil
}

func (r *JobRepositoryMemory) snapshot(keep func(domain.Job) bool) []domain.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		if keep(job) {
			out = append(out, job.Clone())
		}
	}
	return out
}

func truncate(jobs []domain.Job, limit int) []domain.Job {
	if limit > 0 && len(jobs) > limit {
		return jobs[:limit]
	}
	return jobs
}

var _ domain.JobRepository = (*JobRepositoryMemory)(nil)
