package restoration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"heirloom/internal/domain"
	"heirloom/internal/infra"
	"heirloom/internal/providers/restore"
)

// JobLifecycle is the part of jobs.Manager the pipeline drives.
type JobLifecycle interface {
	Create(ctx context.Context, originalFilename string) (*domain.Job, error)
	Complete(ctx context.Context, id string, processingTime time.Duration) error
	Fail(ctx context.Context, id, message string) error
	Get(ctx context.Context, id string) (*domain.Job, error)
}

// Orchestrator invokes the selected provider once and records the outcome on
// the job. Every call ends in a terminal transition.
type Orchestrator struct {
	policy Policy
	jobs   JobLifecycle
	blobs  domain.BlobStore
	logger *infra.Logger
}

// NewOrchestrator wires an orchestrator. logger may be nil.
func NewOrchestrator(policy Policy, jobs JobLifecycle, blobs domain.BlobStore, logger *infra.Logger) *Orchestrator {
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Orchestrator{policy: policy, jobs: jobs, blobs: blobs, logger: logger}
}

// Policy returns the provider selection policy.
func (o *Orchestrator) Policy() Policy {
	return o.policy
}

// Orchestrate restores req for the job and stores the result under
// restoredFilename. Cancellation of ctx is ignored: an in-flight provider call
// runs to completion or its own timeout. The returned error is the failure
// recorded on the job, or nil when the job completed.
func (o *Orchestrator) Orchestrate(ctx context.Context, jobID, restoredFilename string, req restore.Request) error {
	ctx = context.WithoutCancel(ctx)
	log := o.logger.With().Str("job_id", jobID).Logger()

	sel, err := o.policy.Select(req.Credential)
	if err != nil {
		return o.fail(ctx, &log, jobID, err)
	}
	req.Credential = sel.Credential

	start := time.Now()
	img, err := invoke(ctx, sel.Candidate, req)
	elapsed := time.Since(start)
	if err != nil {
		log.Warn().Err(err).Str("provider", sel.Candidate.Name).Dur("took", elapsed).Msg("restoration: provider call failed")
		return o.fail(ctx, &log, jobID, err)
	}
	if len(img.Data) == 0 {
		return o.fail(ctx, &log, jobID, restore.NoImage(sel.Candidate.Name, "empty image"))
	}

	contentType := img.MIMEType
	if contentType == "" {
		contentType = restore.DefaultMIMEType
	}
	if err := o.blobs.Write(ctx, restoredFilename, img.Data, contentType); err != nil {
		log.Error().Err(err).Msg("restoration: store restored image failed")
		return o.fail(ctx, &log, jobID, domain.NewError(domain.KindInternal, "Failed to store restored image", err))
	}

	if err := o.jobs.Complete(ctx, jobID, elapsed); err != nil {
		// The blob must not outlive a job that is not completed.
		if delErr := o.blobs.Delete(ctx, restoredFilename); delErr != nil {
			log.Error().Err(delErr).Msg("restoration: delete blob after failed completion")
		}
		if errors.Is(err, domain.ErrTerminalState) {
			return err
		}
		return o.fail(ctx, &log, jobID, domain.NewError(domain.KindInternal, "Failed to record restoration result", err))
	}

	log.Info().
		Str("provider", sel.Candidate.Name).
		Dur("took", elapsed).
		Int("bytes", len(img.Data)).
		Msg("restoration: completed")
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, log *zerolog.Logger, jobID string, cause error) error {
	msg := domain.JobMessage(cause)
	if err := o.jobs.Fail(ctx, jobID, msg); err != nil {
		log.Error().Err(err).Str("message", msg).Msg("restoration: record failure")
	}
	return cause
}

// invoke calls the adapter and turns a panic into a ProviderError.
func invoke(ctx context.Context, c Candidate, req restore.Request) (img restore.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img = restore.Image{}
			err = domain.NewError(domain.KindProviderError, fmt.Sprintf("%s adapter panicked: %v", c.Name, r), nil)
		}
	}()
	img, err = c.Adapter.Restore(ctx, req)
	if err != nil {
		return restore.Image{}, restore.Classify(c.Name, err)
	}
	return img, nil
}
