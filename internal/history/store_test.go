package history

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestStoreAppendAndRecent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "history.jsonl")
	s := &Store{Path: path}

	if got, err := s.Recent(0); err != nil || len(got) != 0 {
		t.Fatalf("Recent on missing file: got=%v err=%v", got, err)
	}
	for _, text := range []string{"   ", "balance", "balance", "transfer", "statements"} {
		if err := s.Append("s1", text); err != nil {
			t.Fatalf("Append(%q): %v", text, err)
		}
	}

	got, err := s.Recent(0)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if want := []string{"balance", "transfer", "statements"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Recent = %q, want %q", got, want)
	}

	got, err = s.Recent(2)
	if err != nil {
		t.Fatalf("Recent(2): %v", err)
	}
	if want := []string{"transfer", "statements"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Recent(2) = %q, want %q", got, want)
	}
}

func TestStoreRecentSkipsGarbage(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "history.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join([]string{
		`{"text":"one","ts":"2025-01-01T00:00:00Z"}`,
		`{not json}`,
		`{"text":"  ","ts":"2025-01-01T00:00:00Z"}`,
		`{"text":"two","ts":"2025-01-01T00:00:00Z"}`,
		"",
	}, "\n")), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := (&Store{Path: path}).Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if want := []string{"one", "two"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("Recent = %q", got)
	}
}

func TestStoreErrors(t *testing.T) {
	t.Parallel()

	var s *Store
	if err := s.Append("", "hi"); err == nil {
		t.Fatalf("expected error for nil store")
	}
	s = &Store{}
	if err := s.Append("", "hi"); err == nil {
		t.Fatalf("expected error for empty path")
	}
	if _, err := s.Recent(1); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
