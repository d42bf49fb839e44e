package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"heirloom/internal/domain"
)

type s3Object struct {
	data        []byte
	contentType string
}

// fakeS3 serves the handful of path-style S3 calls the MinIO store makes.
type fakeS3 struct {
	mu      sync.Mutex
	buckets map[string]bool
	objects map[string]s3Object
	calls   []string
}

func newFakeS3() *fakeS3 {
	return &fakeS3{buckets: map[string]bool{}, objects: map[string]s3Object{}}
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/")
	bucket, key, _ := strings.Cut(path, "/")
	f.calls = append(f.calls, r.Method+" "+path)

	if key == "" {
		switch r.Method {
		case http.MethodHead:
			if !f.buckets[bucket] {
				w.WriteHeader(http.StatusNotFound)
				return
			}
		case http.MethodPut:
			f.buckets[bucket] = true
		default:
			w.WriteHeader(http.StatusNotImplemented)
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[path] = s3Object{data: body, contentType: r.Header.Get("Content-Type")}
		w.Header().Set("ETag", `"etag-`+strconv.Itoa(len(body))+`"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		obj, ok := f.objects[path]
		if !ok {
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			if r.Method == http.MethodGet {
				_, _ = io.WriteString(w, `<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message><Key>`+key+`</Key><BucketName>`+bucket+`</BucketName></Error>`)
			}
			return
		}
		w.Header().Set("Content-Type", obj.contentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(obj.data)))
		w.Header().Set("ETag", `"etag-`+strconv.Itoa(len(obj.data))+`"`)
		w.Header().Set("Last-Modified", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Format(http.TimeFormat))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(obj.data)
		}
	case http.MethodDelete:
		delete(f.objects, path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusNotImplemented)
	}
}

func (f *fakeS3) object(path string) (s3Object, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[path]
	return obj, ok
}

func (f *fakeS3) hasBucket(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buckets[name]
}

// takeCalls returns the requests seen so far and resets the log.
func (f *fakeS3) takeCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	calls := f.calls
	f.calls = nil
	return calls
}

func newTestMinIOStore(t *testing.T, fake *fakeS3) *MinIOStore {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	store, err := NewMinIOStore(context.Background(), MinIOOptions{
		Endpoint: srv.Listener.Addr().String(),
		Bucket:   "photos",
		Region:   "us-east-1",
	})
	if err != nil {
		t.Fatalf("NewMinIOStore: %v", err)
	}
	return store
}

func TestNewMinIOStoreCreatesBucket(t *testing.T) {
	fake := newFakeS3()
	newTestMinIOStore(t, fake)

	if !fake.hasBucket("photos") {
		t.Fatalf("bucket was not created, calls: %v", fake.takeCalls())
	}
	fake.takeCalls()

	// An existing bucket is left alone.
	newTestMinIOStore(t, fake)
	calls := fake.takeCalls()
	for _, call := range calls {
		if call == "PUT photos" {
			t.Fatalf("existing bucket recreated, calls: %v", calls)
		}
	}
}

func TestMinIOStoreRoundTrip(t *testing.T) {
	fake := newFakeS3()
	store := newTestMinIOStore(t, fake)
	ctx := context.Background()
	data := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a}

	if err := store.Write(ctx, "restored_abc.jpg", data, "image/png"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	obj, ok := fake.object("photos/restored_abc.jpg")
	if !ok {
		t.Fatalf("object not stored, calls: %v", fake.takeCalls())
	}
	if obj.contentType != "image/png" {
		t.Fatalf("stored content type %q, want image/png", obj.contentType)
	}

	got, contentType, err := store.Read(ctx, "restored_abc.jpg")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("read %v, want %v", got, data)
	}
	if contentType != "image/png" {
		t.Fatalf("content type %q, want image/png", contentType)
	}

	if err := store.Delete(ctx, "restored_abc.jpg"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := fake.object("photos/restored_abc.jpg"); ok {
		t.Fatalf("object still present after Delete")
	}
	if _, _, err := store.Read(ctx, "restored_abc.jpg"); !errors.Is(err, domain.ErrBlobNotFound) {
		t.Fatalf("expected ErrBlobNotFound, got %v", err)
	}
}

func TestMinIOStoreDefaultsContentType(t *testing.T) {
	fake := newFakeS3()
	store := newTestMinIOStore(t, fake)

	if err := store.Write(context.Background(), "restored_x.jpg", []byte("x"), ""); err != nil {
		t.Fatalf("Write: %v", err)
	}
	obj, _ := fake.object("photos/restored_x.jpg")
	if obj.contentType != "application/octet-stream" {
		t.Fatalf("content type %q, want application/octet-stream", obj.contentType)
	}
}

func TestMinIOStoreRejectsUnsafeKeys(t *testing.T) {
	fake := newFakeS3()
	store := newTestMinIOStore(t, fake)
	ctx := context.Background()
	fake.takeCalls()

	if err := store.Write(ctx, "../escape.jpg", []byte("x"), ""); err == nil {
		t.Fatalf("expected error for traversal key")
	}
	if _, _, err := store.Read(ctx, "../escape.jpg"); err == nil {
		t.Fatalf("expected error for traversal key")
	}
	if calls := fake.takeCalls(); len(calls) != 0 {
		t.Fatalf("unsafe keys reached the server: %v", calls)
	}
}
