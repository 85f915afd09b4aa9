package writer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading %s: %v", path, err)
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func TestWriter_FanOutByKind(t *testing.T) {
	dir := t.TempDir()
	w := New(Config{
		SuccessPath: filepath.Join(dir, "success.txt"),
		FailedPath:  filepath.Join(dir, "failed.txt"),
	})

	entries := make(chan Entry, 10)
	entries <- Entry{Kind: Success, OriginalLine: "s1"}
	entries <- Entry{Kind: Failed, OriginalLine: "f1"}
	entries <- Entry{Kind: Ignored, OriginalLine: "i1"} // no sink configured: dropped
	close(entries)

	if err := w.Run(context.Background(), entries); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := readLines(t, filepath.Join(dir, "success.txt")); len(got) != 1 || got[0] != "s1" {
		t.Errorf("success.txt = %v", got)
	}
	if got := readLines(t, filepath.Join(dir, "failed.txt")); len(got) != 1 || got[0] != "f1" {
		t.Errorf("failed.txt = %v", got)
	}
	if w.DroppedEntryCount() != 1 {
		t.Errorf("expected 1 dropped entry, got %d", w.DroppedEntryCount())
	}
	if w.TotalEntriesWritten() != 2 {
		t.Errorf("expected 2 entries written, got %d", w.TotalEntriesWritten())
	}
}

func TestWriter_FormatterAppliesToBody(t *testing.T) {
	dir := t.TempDir()
	w := New(Config{
		SuccessPath: filepath.Join(dir, "success.txt"),
		Formatter: func(line string, captures []Capture) string {
			var parts []string
			for _, c := range captures {
				parts = append(parts, c.Key+"="+c.Value)
			}
			return line + "|" + strings.Join(parts, ",")
		},
	})

	entries := make(chan Entry, 1)
	entries <- Entry{Kind: Success, OriginalLine: "user:pass", Captures: []Capture{{Key: "plan", Value: "pro"}}}
	close(entries)

	if err := w.Run(context.Background(), entries); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := readLines(t, filepath.Join(dir, "success.txt"))
	if len(got) != 1 || got[0] != "user:pass|plan=pro" {
		t.Errorf("got %v", got)
	}
}

func TestWriter_BatchFlushThreshold(t *testing.T) {
	dir := t.TempDir()
	w := New(Config{
		SuccessPath:  filepath.Join(dir, "success.txt"),
		MaxBatchSize: 3,
		// long interval so only the batch threshold can trigger a flush
		FlushInterval: time.Hour,
	})

	entries := make(chan Entry, 10)
	for i := 0; i < 3; i++ {
		entries <- Entry{Kind: Success, OriginalLine: "x"}
	}

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background(), entries) }()

	// Give the writer a moment to process & flush the batch, then check
	// the file directly rather than waiting on channel close.
	time.Sleep(100 * time.Millisecond)
	if w.TotalFlushCount() < 1 {
		t.Errorf("expected at least one flush at batch threshold, got %d", w.TotalFlushCount())
	}
	close(entries)
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestWriter_IntervalFlushWhenIdle(t *testing.T) {
	dir := t.TempDir()
	w := New(Config{
		SuccessPath:   filepath.Join(dir, "success.txt"),
		MaxBatchSize:  1000,
		FlushInterval: 20 * time.Millisecond,
	})

	entries := make(chan Entry, 10)
	entries <- Entry{Kind: Success, OriginalLine: "lonely"}

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background(), entries) }()

	time.Sleep(100 * time.Millisecond)
	got := readLines(t, filepath.Join(dir, "success.txt"))
	if len(got) != 1 || got[0] != "lonely" {
		t.Errorf("expected the idle entry to be flushed within one interval, got %v", got)
	}
	close(entries)
	<-done
}

func TestWriter_ShutdownFlushesPending(t *testing.T) {
	dir := t.TempDir()
	w := New(Config{
		SuccessPath:   filepath.Join(dir, "success.txt"),
		FlushInterval: time.Hour,
		MaxBatchSize:  1000,
	})

	entries := make(chan Entry, 1)
	entries <- Entry{Kind: Success, OriginalLine: "last"}
	close(entries)

	if err := w.Run(context.Background(), entries); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got := readLines(t, filepath.Join(dir, "success.txt"))
	if len(got) != 1 || got[0] != "last" {
		t.Errorf("expected pending entry flushed on shutdown, got %v", got)
	}
}

func TestWriter_CancellationFlushesAndExits(t *testing.T) {
	dir := t.TempDir()
	w := New(Config{
		SuccessPath:   filepath.Join(dir, "success.txt"),
		FlushInterval: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	entries := make(chan Entry, 1)
	entries <- Entry{Kind: Success, OriginalLine: "before-cancel"}

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, entries) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer did not exit after cancellation")
	}
	got := readLines(t, filepath.Join(dir, "success.txt"))
	if len(got) != 1 || got[0] != "before-cancel" {
		t.Errorf("expected entry written before cancel to be flushed, got %v", got)
	}
}
