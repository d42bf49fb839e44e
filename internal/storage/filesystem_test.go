package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/minio/minio-go/v7"

	"heirloom/internal/domain"
)

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	ctx := context.Background()
	data := []byte{0x89, 'P', 'N', 'G'}

	if err := store.Write(ctx, "restored_abc.jpg", data, "image/png"); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, contentType, err := store.Read(ctx, "restored_abc.jpg")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("read %v, want %v", got, data)
	}
	if contentType != "" {
		t.Fatalf("filesystem store should not report a content type, got %q", contentType)
	}

	entries, _ := os.ReadDir(store.BasePath())
	if len(entries) != 1 {
		t.Fatalf("expected only the blob on disk, found %d entries", len(entries))
	}

	if err := store.Delete(ctx, "restored_abc.jpg"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := store.Read(ctx, "restored_abc.jpg"); !errors.Is(err, domain.ErrBlobNotFound) {
		t.Fatalf("expected ErrBlobNotFound, got %v", err)
	}
	if err := store.Delete(ctx, "restored_abc.jpg"); err != nil {
		t.Fatalf("second Delete should be a no-op: %v", err)
	}
}

func TestFileStoreOverwrite(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())
	ctx := context.Background()
	_ = store.Write(ctx, "k.jpg", []byte("first"), "")
	_ = store.Write(ctx, "k.jpg", []byte("second"), "")
	got, _, _ := store.Read(ctx, "k.jpg")
	if string(got) != "second" {
		t.Fatalf("got %q, want second", got)
	}
}

func TestSanitizeKey(t *testing.T) {
	valid := map[string]string{
		"restored_1.jpg":   "restored_1.jpg",
		"/restored_1.jpg":  "restored_1.jpg",
		"./a/../b.jpg":     "b.jpg",
		`dir\restored.jpg`: "dir/restored.jpg",
	}
	for in, want := range valid {
		got, err := sanitizeKey(in)
		if err != nil || got != want {
			t.Fatalf("sanitizeKey(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, in := range []string{"", "  ", "..", "../etc/passwd", "a/../../x"} {
		if _, err := sanitizeKey(in); err == nil {
			t.Fatalf("sanitizeKey(%q) should fail", in)
		}
	}
}

func TestFileStoreStaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	store, _ := NewFileStore(filepath.Join(root, "blobs"))
	if err := store.Write(context.Background(), "../escape.jpg", []byte("x"), ""); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
	if _, err := os.Stat(filepath.Join(root, "escape.jpg")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file escaped the storage root")
	}
}

func TestFileStoreHonoursCancelledContext(t *testing.T) {
	store, _ := NewFileStore(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.Write(ctx, "k.jpg", []byte("x"), ""); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMapMinIOError(t *testing.T) {
	missing := minio.ErrorResponse{Code: "NoSuchKey", StatusCode: 404}
	if err := mapMinIOError(missing); !errors.Is(err, domain.ErrBlobNotFound) {
		t.Fatalf("expected ErrBlobNotFound, got %v", err)
	}
	denied := minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403}
	if err := mapMinIOError(denied); errors.Is(err, domain.ErrBlobNotFound) {
		t.Fatalf("access denied must not look like a missing blob")
	}
}

func TestNewMinIOStoreRequiresEndpoint(t *testing.T) {
	if _, err := NewMinIOStore(context.Background(), MinIOOptions{}); err == nil {
		t.Fatalf("expected error without endpoint")
	}
}
