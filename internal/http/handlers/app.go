package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog"

	"heirloom/internal/domain"
	"heirloom/internal/infra"
	"heirloom/internal/middleware"
	"heirloom/internal/restoration"
)

// Submitter runs uploads through the restoration pipeline.
type Submitter interface {
	Submit(ctx context.Context, u restoration.Upload) (*domain.Job, error)
	Async() bool
}

// JobReader loads job records.
type JobReader interface {
	Get(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, limit int) ([]domain.Job, error)
}

type App struct {
	Pipeline Submitter
	Jobs     JobReader
	Blobs    domain.BlobStore
	Logger   *infra.Logger
}

func NewApp(pipeline Submitter, jobs JobReader, blobs domain.BlobStore, logger *infra.Logger) *App {
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &App{Pipeline: pipeline, Jobs: jobs, Blobs: blobs, Logger: logger}
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, kind, msg string) {
	a.json(w, code, map[string]string{"error": kind, "message": msg})
}

// writeError maps err onto the error body and status.
func (a *App) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := domain.StatusOf(err)

	msg := ""
	var ce *domain.ClassifiedError
	if errors.As(err, &ce) {
		msg = ce.Error()
	}
	if msg == "" || msg == string(kind) {
		msg = defaultMessage(kind)
	}

	if status >= http.StatusInternalServerError {
		a.Logger.Error().
			Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
	}
	a.error(w, status, string(kind), msg)
}

func defaultMessage(kind domain.ErrorKind) string {
	switch kind {
	case domain.KindNotFound:
		return "Restoration not found"
	case domain.KindNotReady:
		return "Photo restoration not completed yet"
	case domain.KindInvalidInput:
		return "Invalid request"
	default:
		return "Internal server error"
	}
}
