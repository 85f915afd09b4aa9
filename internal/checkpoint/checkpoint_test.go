package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type memStore struct {
	offset   int64
	path     string
	savedAt  time.Time
	hasState bool
}

func (s *memStore) ResumeState() (int64, string, time.Time, bool) {
	return s.offset, s.path, s.savedAt, s.hasState
}

func (s *memStore) SetResumeState(offset int64, path string, savedAt time.Time) error {
	s.offset, s.path, s.savedAt, s.hasState = offset, path, savedAt, true
	return nil
}

func (s *memStore) ClearResumeState() error {
	*s = memStore{}
	return nil
}

func TestManager_SaveAndResume(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	if err := os.WriteFile(input, make([]byte, 2000), 0644); err != nil {
		t.Fatalf("writing input: %v", err)
	}

	store := &memStore{}
	m := New(store)

	if err := m.SaveCheckpoint(input, 1000); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	offset, ok := m.ResumePosition(input)
	if !ok || offset != 1000 {
		t.Fatalf("expected resume at 1000, got %d/%v", offset, ok)
	}
}

func TestManager_ResumeRejectsTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	os.WriteFile(input, make([]byte, 2000), 0644)

	store := &memStore{}
	m := New(store)
	m.SaveCheckpoint(input, 1000)

	if err := os.WriteFile(input, make([]byte, 800), 0644); err != nil {
		t.Fatalf("truncating input: %v", err)
	}

	if _, ok := m.ResumePosition(input); ok {
		t.Error("expected resume to be invalid after truncation below the saved offset")
	}
}

func TestManager_ResumeRejectsDifferentInputPath(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	other := filepath.Join(dir, "other.txt")
	os.WriteFile(input, make([]byte, 2000), 0644)

	store := &memStore{}
	m := New(store)
	m.SaveCheckpoint(input, 1000)

	if _, ok := m.ResumePosition(other); ok {
		t.Error("expected resume to be rejected for a different input path")
	}
}

func TestManager_ResumeRejectsZeroOrNegativeOffset(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	os.WriteFile(input, make([]byte, 2000), 0644)

	store := &memStore{}
	m := New(store)
	m.SaveCheckpoint(input, 0)

	if _, ok := m.ResumePosition(input); ok {
		t.Error("expected a zero offset to never be a valid resume point")
	}
}

func TestManager_Clear(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	os.WriteFile(input, make([]byte, 100), 0644)

	store := &memStore{}
	m := New(store)
	m.SaveCheckpoint(input, 50)
	if err := m.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := m.ResumePosition(input); ok {
		t.Error("expected no resume point after Clear")
	}
}

func TestExportRemaining_ByteExact(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	content := []byte("0123456789abcdefghij")
	os.WriteFile(input, content, 0644)

	out := filepath.Join(dir, "nested", "remaining.txt")
	if err := ExportRemaining(input, 10, out); err != nil {
		t.Fatalf("ExportRemaining: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("reading output: %v", err)
	}
	if string(got) != "abcdefghij" {
		t.Errorf("got %q, want %q", got, "abcdefghij")
	}
}

func TestCreateResumeTemp_ProducesDistinctFiles(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "input.txt")
	os.WriteFile(input, []byte("hello world"), 0644)

	p1, err := CreateResumeTemp(input, 6)
	if err != nil {
		t.Fatalf("CreateResumeTemp: %v", err)
	}
	defer os.Remove(p1)
	p2, err := CreateResumeTemp(input, 6)
	if err != nil {
		t.Fatalf("CreateResumeTemp: %v", err)
	}
	defer os.Remove(p2)

	if p1 == p2 {
		t.Error("expected distinct temp file names across calls")
	}
	for _, p := range []string{p1, p2} {
		got, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("reading %s: %v", p, err)
		}
		if string(got) != "world" {
			t.Errorf("got %q, want %q", got, "world")
		}
	}
}
