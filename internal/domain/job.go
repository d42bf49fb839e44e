package domain

import (
	"fmt"
	"time"
)

// JobStatus enumerates restoration job lifecycle states.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition is defined out of s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Valid reports whether s is one of the known statuses.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// UnknownFilename is recorded when an upload carries no filename.
const UnknownFilename = "unknown.jpg"

// Job is one upload's restoration lifecycle record.
type Job struct {
	ID               string
	OriginalFilename string
	RestoredFilename string
	Status           JobStatus
	CreatedAt        time.Time
	ProcessingTime   *time.Duration
	ErrorMessage     *string
}

// RestoredFilenameFor derives the blob key for a job id.
func RestoredFilenameFor(id string) string {
	return fmt.Sprintf("restored_%s.jpg", id)
}

// Clone returns a deep copy so callers cannot mutate stored records.
func (j Job) Clone() Job {
	out := j
	if j.ProcessingTime != nil {
		d := *j.ProcessingTime
		out.ProcessingTime = &d
	}
	if j.ErrorMessage != nil {
		msg := *j.ErrorMessage
		out.ErrorMessage = &msg
	}
	return out
}

// CheckInvariant verifies that the optional fields agree with the status.
func (j Job) CheckInvariant() error {
	switch j.Status {
	case JobStatusProcessing:
		if j.ProcessingTime != nil || j.ErrorMessage != nil {
			return fmt.Errorf("job %s: processing job carries a result", j.ID)
		}
	case JobStatusCompleted:
		if j.ProcessingTime == nil || j.ErrorMessage != nil {
			return fmt.Errorf("job %s: completed job must carry only a processing time", j.ID)
		}
	case JobStatusFailed:
		if j.ErrorMessage == nil || j.ProcessingTime != nil {
			return fmt.Errorf("job %s: failed job must carry only an error message", j.ID)
		}
	default:
		return fmt.Errorf("job %s: unknown status %q", j.ID, j.Status)
	}
	return nil
}

// Transition describes a single move out of the processing state.
type Transition struct {
	Status         JobStatus
	ProcessingTime *time.Duration
	ErrorMessage   *string
}

// Apply returns a copy of job with the transition applied. It refuses to
// leave a terminal state.
func (t Transition) Apply(job Job) (Job, error) {
	if job.Status.IsTerminal() {
		return job, ErrTerminalState
	}
	out := job.Clone()
	out.Status = t.Status
	out.ProcessingTime = t.ProcessingTime
	out.ErrorMessage = t.ErrorMessage
	if err := out.CheckInvariant(); err != nil {
		return job, err
	}
	return out, nil
}

// CompletedTransition builds the processing -> completed transition.
func CompletedTransition(d time.Duration) Transition {
	return Transition{Status: JobStatusCompleted, ProcessingTime: &d}
}

// FailedTransition builds the processing -> failed transition.
func FailedTransition(msg string) Transition {
	return Transition{Status: JobStatusFailed, ErrorMessage: &msg}
}
