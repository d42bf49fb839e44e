package domain

import (
	"context"
	"time"
)

// JobRepository defines persistence for restoration jobs.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	// UpdateStatus applies t only when the job is still processing. It returns
	// ErrNotFound for unknown ids and ErrTerminalState otherwise.
	UpdateStatus(ctx context.Context, jobID string, t Transition) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	ListRecent(ctx context.Context, limit int) ([]Job, error)
	ListProcessingBefore(ctx context.Context, before time.Time, limit int) ([]Job, error)
}

// BlobStore holds restored image bytes addressed by filename.
type BlobStore interface {
	Write(ctx context.Context, key string, data []byte, contentType string) error
	// Read returns ErrBlobNotFound when the key does not exist.
	Read(ctx context.Context, key string) ([]byte, string, error)
	Delete(ctx context.Context, key string) error
}

// JobEvent is emitted once per terminal transition.
type JobEvent struct {
	JobID          string    `json:"job_id"`
	Status         JobStatus `json:"status"`
	ProcessingTime *float64  `json:"processing_time,omitempty"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	At             time.Time `json:"at"`
}

// EventPublisher delivers job events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, event JobEvent) error
}
