package restoration

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"heirloom/internal/domain"
	"heirloom/internal/infra"
	"heirloom/internal/providers/restore"
)

const (
	MinUploadBytes = 100
	MaxUploadBytes = 10 << 20
)

// Upload is one photo submitted for restoration.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
	// Credential is an optional caller-supplied provider key.
	Credential string
}

// Validate checks the content type and size bounds.
func (u Upload) Validate() error {
	if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(u.ContentType)), "image/") {
		return domain.NewError(domain.KindInvalidInput, "File must be an image", nil)
	}
	if len(u.Data) < MinUploadBytes {
		return domain.NewError(domain.KindInvalidInput, "Image file is too small or corrupted", nil)
	}
	if len(u.Data) > MaxUploadBytes {
		return domain.NewError(domain.KindInvalidInput, "Image file is too large (max 10MB)", nil)
	}
	return nil
}

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	Jobs         JobLifecycle
	Orchestrator *Orchestrator
	Prompt       string
	// Async returns the processing record immediately and restores in the
	// background.
	Async  bool
	Logger *infra.Logger
}

// Pipeline is the upload body of work: validate, pre-select a provider,
// create the job and orchestrate.
type Pipeline struct {
	jobs   JobLifecycle
	orch   *Orchestrator
	prompt string
	async  bool
	logger *infra.Logger
	wg     sync.WaitGroup
}

// NewPipeline constructs a Pipeline.
func NewPipeline(opts PipelineOptions) (*Pipeline, error) {
	if opts.Jobs == nil || opts.Orchestrator == nil {
		return nil, fmt.Errorf("restoration: jobs and orchestrator are required")
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Pipeline{
		jobs:   opts.Jobs,
		orch:   opts.Orchestrator,
		prompt: opts.Prompt,
		async:  opts.Async,
		logger: logger,
	}, nil
}

// Async reports whether Submit returns before the restoration finishes.
func (p *Pipeline) Async() bool {
	return p.async
}

// Submit runs an upload. Invalid input and a missing credential are returned
// as errors before any job exists. After creation every failure is recorded
// on the job and the job record is returned with a nil error.
func (p *Pipeline) Submit(ctx context.Context, u Upload) (*domain.Job, error) {
	if err := u.Validate(); err != nil {
		return nil, err
	}
	if _, err := p.orch.Policy().Select(u.Credential); err != nil {
		return nil, err
	}

	job, err := p.jobs.Create(ctx, u.Filename)
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, "Upload failed: could not create restoration job", err)
	}

	req := restore.Request{
		Image:      u.Data,
		Filename:   job.OriginalFilename,
		Prompt:     p.prompt,
		Credential: u.Credential,
	}
	detached := context.WithoutCancel(ctx)
	p.logger.Info().
		Str("job_id", job.ID).
		Str("filename", job.OriginalFilename).
		Int("bytes", len(u.Data)).
		Bool("async", p.async).
		Msg("restoration: job submitted")

	if p.async {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			_ = p.orch.Orchestrate(detached, job.ID, job.RestoredFilename, req)
		}()
		return job, nil
	}

	_ = p.orch.Orchestrate(detached, job.ID, job.RestoredFilename, req)

	final, err := p.jobs.Get(detached, job.ID)
	if err != nil {
		return nil, domain.NewError(domain.KindInternal, "Upload failed: could not load restoration job", err)
	}
	return final, nil
}

// Wait blocks until background restorations started by Submit finish.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}
