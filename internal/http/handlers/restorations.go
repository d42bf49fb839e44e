package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"heirloom/internal/domain"
	"heirloom/internal/jobs"
	"heirloom/internal/restoration"
)

// multipartOverhead is the slack allowed on top of the image for form
// boundaries and the api_key field.
const multipartOverhead = 1 << 20

type jobResponse struct {
	ID               string    `json:"id"`
	OriginalFilename string    `json:"original_filename"`
	RestoredFilename string    `json:"restored_filename"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"created_at"`
	ProcessingTime   *float64  `json:"processing_time"`
	ErrorMessage     *string   `json:"error_message"`
}

func toJobResponse(j domain.Job) jobResponse {
	out := jobResponse{
		ID:               j.ID,
		OriginalFilename: j.OriginalFilename,
		RestoredFilename: j.RestoredFilename,
		Status:           string(j.Status),
		CreatedAt:        j.CreatedAt.UTC(),
		ErrorMessage:     j.ErrorMessage,
	}
	if j.ProcessingTime != nil {
		secs := j.ProcessingTime.Seconds()
		out.ProcessingTime = &secs
	}
	return out
}

// Upload accepts a multipart photo and runs it through the pipeline.
func (a *App) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, restoration.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(restoration.MaxUploadBytes + multipartOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusBadRequest, string(domain.KindInvalidInput), "Image file is too large (max 10MB)")
			return
		}
		a.error(w, http.StatusBadRequest, string(domain.KindInvalidInput), "Invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		a.error(w, http.StatusBadRequest, string(domain.KindInvalidInput), "No file uploaded")
		return
	}
	defer file.Close()

	// One byte past the limit is enough to reject the upload.
	data, err := io.ReadAll(io.LimitReader(file, restoration.MaxUploadBytes+1))
	if err != nil {
		a.error(w, http.StatusBadRequest, string(domain.KindInvalidInput), "Could not read uploaded file")
		return
	}

	job, err := a.Pipeline.Submit(r.Context(), restoration.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		Credential:  r.FormValue("api_key"),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	code := http.StatusOK
	if a.Pipeline.Async() && job.Status == domain.JobStatusProcessing {
		code = http.StatusAccepted
	}
	a.json(w, code, toJobResponse(*job))
}

// GetRestoration returns one job record.
func (a *App) GetRestoration(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toJobResponse(*job))
}

// ListRestorations returns the newest jobs first. ?limit= narrows the page.
func (a *App) ListRestorations(w http.ResponseWriter, r *http.Request) {
	limit := jobs.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			a.error(w, http.StatusBadRequest, string(domain.KindInvalidInput), "limit must be a positive integer")
			return
		}
		limit = n
	}
	list, err := a.Jobs.List(r.Context(), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	items := make([]jobResponse, 0, len(list))
	for _, j := range list {
		items = append(items, toJobResponse(j))
	}
	a.json(w, http.StatusOK, items)
}

// Download streams the restored image of a completed job as an attachment.
func (a *App) Download(w http.ResponseWriter, r *http.Request) {
	job, err := a.Jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if job.Status != domain.JobStatusCompleted {
		a.writeError(w, r, domain.ErrNotReady)
		return
	}

	data, contentType, err := a.Blobs.Read(r.Context(), job.RestoredFilename)
	if errors.Is(err, domain.ErrBlobNotFound) {
		a.error(w, http.StatusNotFound, string(domain.KindNotFound), "Restored image file not found")
		return
	}
	if err != nil {
		a.writeError(w, r, fmt.Errorf("read restored image: %w", err))
		return
	}

	w.Header().Set("Content-Type", downloadContentType(contentType, data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", job.RestoredFilename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// downloadContentType prefers the stored type, then a sniffed image type,
// then image/jpeg.
func downloadContentType(stored string, data []byte) string {
	if strings.HasPrefix(stored, "image/") {
		return stored
	}
	if sniffed := http.DetectContentType(data); strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	return "image/jpeg"
}
