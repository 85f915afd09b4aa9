package lineio

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func collect(t *testing.T, ctx context.Context, r *Reader, path string) ([]string, int64) {
	t.Helper()
	lines := make(chan string, DefaultQueueCapacity)
	var total int64
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Stream(ctx, path, lines, func(delta int64) { total += delta })
	}()

	var got []string
	for line := range lines {
		got = append(got, line)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("Stream: %v", err)
	}
	return got, total
}

func writeTemp(t *testing.T, content []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "input.txt")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestReader_BOM_CRLF_NoTrailingNewline(t *testing.T) {
	content := append([]byte{0xEF, 0xBB, 0xBF}, []byte("a:1\r\nb:2\r\nc:3")...)
	path := writeTemp(t, content)

	r := New()
	got, total := collect(t, context.Background(), r, path)

	want := []string{"a:1", "b:2", "c:3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d: got %q want %q", i, got[i], want[i])
		}
	}
	if total != int64(len(content)) {
		t.Errorf("expected processed bytes %d, got %d", len(content), total)
	}
}

func TestReader_EmptyFile(t *testing.T) {
	path := writeTemp(t, nil)
	r := New()
	got, total := collect(t, context.Background(), r, path)
	if len(got) != 0 {
		t.Errorf("expected zero lines, got %v", got)
	}
	if total != 0 {
		t.Errorf("expected zero processed bytes, got %d", total)
	}
}

func TestReader_SoleBOMNoContent(t *testing.T) {
	path := writeTemp(t, []byte{0xEF, 0xBB, 0xBF})
	r := New()
	got, _ := collect(t, context.Background(), r, path)
	if len(got) != 0 {
		t.Errorf("expected zero lines for sole BOM, got %v", got)
	}
}

func TestReader_NoTrailingNewlineStillEmitsLastLine(t *testing.T) {
	path := writeTemp(t, []byte("one\ntwo"))
	r := New()
	got, _ := collect(t, context.Background(), r, path)
	want := []string{"one", "two"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestReader_SmallSegmentSizeSpanningLines(t *testing.T) {
	// Force many small reads to exercise the accumulation buffer across
	// segment boundaries, including a line longer than the small-line
	// threshold.
	longLine := strings.Repeat("x", 1000)
	content := "short1\n" + longLine + "\nshort2\n"
	path := writeTemp(t, []byte(content))

	r := New(WithSegmentSize(7))
	got, total := collect(t, context.Background(), r, path)

	want := []string{"short1", longLine, "short2"}
	if len(got) != len(want) {
		t.Fatalf("got %d lines, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d mismatch (len got=%d want=%d)", i, len(got[i]), len(want[i]))
		}
	}
	if total != int64(len(content)) {
		t.Errorf("expected %d processed bytes, got %d", len(content), total)
	}
}

func TestReader_RespectsCancellation(t *testing.T) {
	// A 100-line file with an unbuffered channel that is barely drained
	// should block on backpressure until ctx is cancelled, then return
	// ctx.Err() instead of hanging forever.
	var b strings.Builder
	for i := 0; i < 100; i++ {
		b.WriteString("line\n")
	}
	path := writeTemp(t, []byte(b.String()))

	ctx, cancel := context.WithCancel(context.Background())
	lines := make(chan string) // unbuffered: first send blocks until read
	r := New()

	done := make(chan error, 1)
	go func() { done <- r.Stream(ctx, path, lines, nil) }()

	// Drain exactly one line, then cancel and stop draining.
	<-lines
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected context error after cancellation, got nil")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stream did not return after cancellation")
	}
}

func TestReader_MissingFile(t *testing.T) {
	r := New()
	lines := make(chan string, 1)
	err := r.Stream(context.Background(), "/nonexistent/path/input.txt", lines, nil)
	if err == nil {
		t.Fatal("expected error opening missing file")
	}
	if _, open := <-lines; open {
		t.Error("expected lines channel to be closed")
	}
}
