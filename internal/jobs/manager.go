// Package jobs owns the restoration job lifecycle: creation in processing and
// exactly one terminal transition per job.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"heirloom/internal/domain"
	"heirloom/internal/infra"
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 100

	// InterruptedMessage is recorded on jobs failed by FailStale.
	InterruptedMessage = "restoration interrupted"

	staleBatchSize = 100
)

// Options wires the manager's collaborators. Blobs and Events are optional.
type Options struct {
	Repo   domain.JobRepository
	Blobs  domain.BlobStore
	Events domain.EventPublisher
	Logger *infra.Logger
	Now    func() time.Time
}

// Manager creates jobs and moves them to a terminal state.
type Manager struct {
	repo   domain.JobRepository
	blobs  domain.BlobStore
	events domain.EventPublisher
	logger *infra.Logger
	now    func() time.Time
}

// NewManager constructs a Manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Repo == nil {
		return nil, errors.New("jobs: repository is required")
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		repo:   opts.Repo,
		blobs:  opts.Blobs,
		events: opts.Events,
		logger: logger,
		now:    now,
	}, nil
}

// Create persists a new processing job for the uploaded filename.
func (m *Manager) Create(ctx context.Context, originalFilename string) (*domain.Job, error) {
	name := strings.TrimSpace(originalFilename)
	if name == "" {
		name = domain.UnknownFilename
	}
	id := uuid.NewString()
	job := &domain.Job{
		ID:               id,
		OriginalFilename: name,
		RestoredFilename: domain.RestoredFilenameFor(id),
		Status:           domain.JobStatusProcessing,
		CreatedAt:        m.now().UTC(),
	}
	if err := m.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	m.logger.Info().Str("job_id", id).Str("filename", name).Msg("jobs: created")
	out := job.Clone()
	return &out, nil
}

// Complete marks the job completed. Durations below 1ns are clamped so a
// completed job always carries a positive processing time.
func (m *Manager) Complete(ctx context.Context, id string, processingTime time.Duration) error {
	if processingTime <= 0 {
		processingTime = time.Nanosecond
	}
	return m.transition(ctx, id, domain.CompletedTransition(processingTime))
}

// Fail marks the job failed with message.
func (m *Manager) Fail(ctx context.Context, id, message string) error {
	if strings.TrimSpace(message) == "" {
		message = "Photo restoration failed"
	}
	return m.transition(ctx, id, domain.FailedTransition(message))
}

func (m *Manager) transition(ctx context.Context, id string, t domain.Transition) error {
	err := m.repo.UpdateStatus(ctx, id, t)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTerminalState):
		m.logger.Error().Str("job_id", id).Str("status", string(t.Status)).Msg("jobs: transition out of terminal state refused")
		return err
	case errors.Is(err, domain.ErrNotFound):
		return err
	default:
		return fmt.Errorf("update job %s: %w", id, err)
	}

	ev := m.logger.Info().Str("job_id", id).Str("status", string(t.Status))
	if t.ProcessingTime != nil {
		ev = ev.Dur("processing_time", *t.ProcessingTime)
	}
	if t.ErrorMessage != nil {
		ev = ev.Str("error", *t.ErrorMessage)
	}
	ev.Msg("jobs: terminal transition")

	m.publish(ctx, id, t)
	return nil
}

func (m *Manager) publish(ctx context.Context, id string, t domain.Transition) {
	if m.events == nil {
		return
	}
	event := domain.JobEvent{
		JobID:        id,
		Status:       t.Status,
		ErrorMessage: t.ErrorMessage,
		At:           m.now().UTC(),
	}
	if t.ProcessingTime != nil {
		secs := t.ProcessingTime.Seconds()
		event.ProcessingTime = &secs
	}
	if err := m.events.Publish(ctx, event); err != nil {
		m.logger.Warn().Err(err).Str("job_id", id).Msg("jobs: publish event failed")
	}
}

// Get returns the job or domain.ErrNotFound.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrNotFound
	}
	job, err := m.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// List returns jobs newest first. limit is clamped to [1, MaxListLimit].
func (m *Manager) List(ctx context.Context, limit int) ([]domain.Job, error) {
	switch {
	case limit < 1:
		limit = 1
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	jobs, err := m.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// FailStale fails jobs that have been processing for longer than olderThan,
// which only happens when the process died mid-restoration. Any blob written
// before the crash is deleted. It returns the number of jobs failed.
func (m *Manager) FailStale(ctx context.Context, olderThan time.Duration) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := m.now().Add(-olderThan)
	failed := 0
	for {
		stale, err := m.repo.ListProcessingBefore(ctx, cutoff, staleBatchSize)
		if err != nil {
			return failed, fmt.Errorf("list stale jobs: %w", err)
		}
		progressed := false
		for _, job := range stale {
			if err := m.Fail(ctx, job.ID, InterruptedMessage); err != nil {
				if errors.Is(err, domain.ErrTerminalState) || errors.Is(err, domain.ErrNotFound) {
					continue
				}
				return failed, err
			}
			failed++
			progressed = true
			m.deleteOrphan(ctx, job)
		}
		if len(stale) < staleBatchSize || !progressed {
			break
		}
	}
	if failed > 0 {
		m.logger.Warn().Int("count", failed).Dur("older_than", olderThan).Msg("jobs: failed stale jobs")
	}
	return failed, nil
}

func (m *Manager) deleteOrphan(ctx context.Context, job domain.Job) {
	if m.blobs == nil {
		return
	}
	if err := m.blobs.Delete(ctx, job.RestoredFilename); err != nil && !errors.Is(err, domain.ErrBlobNotFound) {
		m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("jobs: delete orphan blob failed")
	}
}
