package session

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"bankchat/internal/agent"
)

func TestStoreSaveLoadAndLast(t *testing.T) {
	t.Parallel()

	s := &Store{Dir: filepath.Join(t.TempDir(), "sessions")}
	if _, err := s.Last(); !errors.Is(err, ErrNoSessions) {
		t.Fatalf("Last on missing dir: %v", err)
	}

	first, err := s.Save("", "llama", []agent.Message{{Role: agent.RoleUser, Content: "show my balance"}})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if first == "" {
		t.Fatalf("expected generated id")
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := s.Save("second", "nova", []agent.Message{{Role: agent.RoleUser, Content: "transfer"}}); err != nil {
		t.Fatalf("Save second: %v", err)
	}

	rec, err := s.Load(first)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rec.Model != "llama" || len(rec.Messages) != 1 || rec.Title() != "show my balance" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	last, err := s.Last()
	if err != nil || last.ID != "second" {
		t.Fatalf("Last = %+v err=%v", last, err)
	}
}

func TestStoreListSkipsCorruptFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s := &Store{Dir: dir}
	if _, err := s.Save("good", "", nil); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	records, err := s.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(records) != 1 || records[0].ID != "good" {
		t.Fatalf("records = %+v", records)
	}
}

func TestStoreRejectsPathLikeIDs(t *testing.T) {
	t.Parallel()

	s := &Store{Dir: t.TempDir()}
	for _, id := range []string{"../escape", "a/b", "x.y"} {
		if _, err := s.Save(id, "", nil); err == nil {
			t.Fatalf("Save(%q) should fail", id)
		}
		if _, err := s.Load(id); err == nil {
			t.Fatalf("Load(%q) should fail", id)
		}
	}
}

func TestRecordTitle(t *testing.T) {
	t.Parallel()

	long := ""
	for i := 0; i < 20; i++ {
		long += "word "
	}
	rec := Record{Messages: []agent.Message{
		{Role: agent.RoleSystem, Content: "sys"},
		{Role: agent.RoleUser, Content: long},
	}}
	if got := rec.Title(); len([]rune(got)) != 60 {
		t.Fatalf("title = %q (%d runes)", got, len([]rune(got)))
	}
	if got := (Record{}).Title(); got != "(empty)" {
		t.Fatalf("empty title = %q", got)
	}
}
