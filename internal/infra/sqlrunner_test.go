package infra

import (
	"errors"
	"testing"
)

func TestSplitMarker(t *testing.T) {
	marker, body, err := SplitMarker("\n--sql 1425f048-1f43-4f6c-911d-4a67ea3acb03\nselect 1;\n")
	if err != nil {
		t.Fatalf("SplitMarker returned error: %v", err)
	}
	if marker != "1425f048-1f43-4f6c-911d-4a67ea3acb03" {
		t.Fatalf("marker = %q", marker)
	}
	if body != "select 1;" {
		t.Fatalf("body = %q", body)
	}
}

func TestSplitMarkerRejects(t *testing.T) {
	cases := []string{
		"select 1;",
		"--sql not-a-uuid\nselect 1;",
		"--sql 1425F048-1F43-4F6C-911D-4A67EA3ACB03\nselect 1;",
		"--sql 1425f048-1f43-4f6c-911d-4a67ea3acb03",
	}
	for _, q := range cases {
		if _, _, err := SplitMarker(q); err == nil {
			t.Fatalf("expected error for %q", q)
		}
	}
	if _, _, err := SplitMarker("select 1;"); !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("expected ErrMissingMarker, got %v", err)
	}
}
