// Package checkpoint implements resume-by-byte-offset: saving a run's
// progress, validating it against a (possibly truncated or replaced)
// input file, and splitting off the unconsumed remainder into a
// temporary file so the engine can resume without re-scanning for a
// line boundary.
package checkpoint

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Store is the slice of AppSettings persistence the checkpoint manager
// needs: the three resume fields (offset, input path, timestamp).
// internal/settings implements this against the on-disk settings file.
type Store interface {
	ResumeState() (offset int64, inputPath string, savedAt time.Time, ok bool)
	SetResumeState(offset int64, inputPath string, savedAt time.Time) error
	ClearResumeState() error
}

// Manager saves and validates resume checkpoints against a Store.
type Manager struct {
	store Store
}

// New constructs a Manager backed by store.
func New(store Store) *Manager {
	return &Manager{store: store}
}

// SaveCheckpoint persists offset as the resume point for inputPath at
// the current UTC time.
func (m *Manager) SaveCheckpoint(inputPath string, offset int64) error {
	return m.store.SetResumeState(offset, inputPath, time.Now().UTC())
}

// Clear discards any saved checkpoint, e.g. after a completed run.
func (m *Manager) Clear() error {
	return m.store.ClearResumeState()
}

// ResumePosition returns the saved byte offset for inputPath iff a
// checkpoint exists for exactly that path, the offset is positive, and
// the file's current length is at least that offset — otherwise the
// file has been truncated or replaced and there is nothing valid to
// resume from.
func (m *Manager) ResumePosition(inputPath string) (int64, bool) {
	offset, savedPath, _, ok := m.store.ResumeState()
	if !ok || offset <= 0 || savedPath != inputPath {
		return 0, false
	}
	info, err := os.Stat(inputPath)
	if err != nil || info.Size() < offset {
		return 0, false
	}
	return offset, true
}

// ExportRemaining copies inputPath's bytes from fromByte to end-of-file,
// byte for byte, into outputPath.
func ExportRemaining(inputPath string, fromByte int64, outputPath string) error {
	src, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("opening input file: %w", err)
	}
	defer src.Close()

	if _, err := src.Seek(fromByte, io.SeekStart); err != nil {
		return fmt.Errorf("seeking to resume offset: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	dst, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copying remaining bytes: %w", err)
	}
	return dst.Sync()
}

// CreateResumeTemp exports the bytes of inputPath from fromByte onward
// into a freshly named file in the OS temp directory, returning its
// path. The caller owns removal.
func CreateResumeTemp(inputPath string, fromByte int64) (string, error) {
	name := fmt.Sprintf("checkerbase-resume-%s.txt", uuid.NewString())
	path := filepath.Join(os.TempDir(), name)
	if err := ExportRemaining(inputPath, fromByte, path); err != nil {
		return "", err
	}
	return path, nil
}
