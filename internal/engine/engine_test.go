package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/corvidlabs/checkerbase/internal/rotator"
	"github.com/corvidlabs/checkerbase/internal/writer"
)

type fakeClient struct{ closes *atomic.Int32 }

func (c fakeClient) Close() error {
	if c.closes != nil {
		c.closes.Add(1)
	}
	return nil
}

type fakeChecker struct {
	validate     func(line string) bool
	parse        func(line string) (string, bool)
	process      func(ctx context.Context, record string) (Outcome, error)
	isTransient  func(error) bool
	createClient func(ctx context.Context, proxy *rotator.ProxyEntry) (Client, error)
	closes       atomic.Int32
}

func (f *fakeChecker) QuickValidate(line string) bool {
	if f.validate == nil {
		return true
	}
	return f.validate(line)
}

func (f *fakeChecker) Parse(line string) (string, bool) {
	if f.parse == nil {
		return line, true
	}
	return f.parse(line)
}

func (f *fakeChecker) CreateClient(ctx context.Context, proxy *rotator.ProxyEntry) (Client, error) {
	if f.createClient != nil {
		return f.createClient(ctx, proxy)
	}
	return fakeClient{closes: &f.closes}, nil
}

func (f *fakeChecker) Process(ctx context.Context, record string, client Client) (Outcome, error) {
	return f.process(ctx, record)
}

func (f *fakeChecker) IsTransient(err error) bool {
	if f.isTransient == nil {
		return false
	}
	return f.isTransient(err)
}

func writeInput(t *testing.T, lines []string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "input.txt")
	content := strings.Join(lines, "\n")
	if len(lines) > 0 {
		content += "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing input: %v", err)
	}
	return path
}

func readAll(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("reading %s: %v", path, err)
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

func TestEngine_RetryExhaustion(t *testing.T) {
	input := writeInput(t, []string{"x:y"})
	dir := t.TempDir()
	w := writer.New(writer.Config{
		SuccessPath: filepath.Join(dir, "success.txt"),
		FailedPath:  filepath.Join(dir, "failed.txt"),
	})

	checker := &fakeChecker{
		process: func(ctx context.Context, record string) (Outcome, error) {
			return RetryOutcome(nil), nil
		},
	}

	eng := New[string](checker, Config{
		InputPath:  input,
		MaxRetries: 2,
		Writer:     w,
	}, nil)

	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap := eng.Metrics().Snapshot()
	if snap.Retries != 2 {
		t.Errorf("expected 2 retries, got %d", snap.Retries)
	}
	if snap.Failed != 1 {
		t.Errorf("expected 1 failed, got %d", snap.Failed)
	}
	failedLines := readAll(t, filepath.Join(dir, "failed.txt"))
	if len(failedLines) != 1 || failedLines[0] != "x:y" {
		t.Errorf("expected failed.txt = [x:y], got %v", failedLines)
	}
}

func TestEngine_MixedOutcomes(t *testing.T) {
	var lines []string
	for i := 1; i <= 100; i++ {
		lines = append(lines, fmt.Sprintf("s%d", i))
	}
	input := writeInput(t, lines)
	dir := t.TempDir()
	w := writer.New(writer.Config{
		SuccessPath: filepath.Join(dir, "success.txt"),
		FailedPath:  filepath.Join(dir, "failed.txt"),
	})

	checker := &fakeChecker{
		process: func(ctx context.Context, record string) (Outcome, error) {
			n, _ := strconv.Atoi(strings.TrimPrefix(record, "s"))
			if n%3 == 0 {
				return SuccessOutcome(), nil
			}
			return FailedOutcome(), nil
		},
	}

	eng := New[string](checker, Config{
		InputPath:   input,
		MaxRetries:  0,
		Parallelism: 4,
		Writer:      w,
	}, nil)

	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap := eng.Metrics().Snapshot()
	if snap.Success != 33 || snap.Failed != 67 || snap.Ignored != 0 {
		t.Fatalf("unexpected counters: %+v", snap)
	}

	successLines := readAll(t, filepath.Join(dir, "success.txt"))
	if len(successLines) != 33 {
		t.Errorf("expected 33 success lines, got %d", len(successLines))
	}
	for _, l := range successLines {
		n, _ := strconv.Atoi(strings.TrimPrefix(l, "s"))
		if n%3 != 0 {
			t.Errorf("unexpected line in success.txt: %s", l)
		}
	}
	failedLines := readAll(t, filepath.Join(dir, "failed.txt"))
	if len(failedLines) != 67 {
		t.Errorf("expected 67 failed lines, got %d", len(failedLines))
	}
}

func TestEngine_UnparseableLineIgnoredOnlyEmittedWithSink(t *testing.T) {
	input := writeInput(t, []string{"bad", "good"})
	dir := t.TempDir()
	w := writer.New(writer.Config{
		SuccessPath: filepath.Join(dir, "success.txt"),
		IgnoredPath: filepath.Join(dir, "ignored.txt"),
	})

	checker := &fakeChecker{
		parse: func(line string) (string, bool) {
			return line, line != "bad"
		},
		process: func(ctx context.Context, record string) (Outcome, error) {
			return SuccessOutcome(), nil
		},
	}

	eng := New[string](checker, Config{InputPath: input, Writer: w}, nil)
	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap := eng.Metrics().Snapshot()
	if snap.Ignored != 1 || snap.Success != 1 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
	ignored := readAll(t, filepath.Join(dir, "ignored.txt"))
	if len(ignored) != 1 || ignored[0] != "bad" {
		t.Errorf("expected ignored.txt = [bad], got %v", ignored)
	}
}

func TestEngine_QuickValidateRejectionNeverWritten(t *testing.T) {
	input := writeInput(t, []string{"skip-me"})
	dir := t.TempDir()
	w := writer.New(writer.Config{
		IgnoredPath: filepath.Join(dir, "ignored.txt"),
	})

	checker := &fakeChecker{
		validate: func(line string) bool { return false },
		process: func(ctx context.Context, record string) (Outcome, error) {
			t.Fatal("process should never be called for a quick_validate rejection")
			return Outcome{}, nil
		},
	}

	eng := New[string](checker, Config{InputPath: input, Writer: w}, nil)
	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap := eng.Metrics().Snapshot()
	if snap.Ignored != 1 {
		t.Fatalf("expected 1 ignored, got %+v", snap)
	}
	if _, err := os.Stat(filepath.Join(dir, "ignored.txt")); !os.IsNotExist(err) {
		t.Error("expected ignored.txt to not be created: quick_validate rejections are never written")
	}
}

func TestEngine_ClientClosedOnEveryAttempt(t *testing.T) {
	input := writeInput(t, []string{"a"})
	dir := t.TempDir()
	w := writer.New(writer.Config{SuccessPath: filepath.Join(dir, "success.txt")})

	checker := &fakeChecker{
		process: func(ctx context.Context, record string) (Outcome, error) {
			return SuccessOutcome(), nil
		},
	}

	eng := New[string](checker, Config{InputPath: input, Writer: w}, nil)
	if err := eng.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if checker.closes.Load() != 1 {
		t.Errorf("expected exactly 1 client close, got %d", checker.closes.Load())
	}
}

func TestEngine_CancellationStopsProcessingCleanly(t *testing.T) {
	var lines []string
	for i := 0; i < 10_000; i++ {
		lines = append(lines, "line")
	}
	input := writeInput(t, lines)
	dir := t.TempDir()
	w := writer.New(writer.Config{SuccessPath: filepath.Join(dir, "success.txt")})

	started := make(chan struct{}, 1)
	checker := &fakeChecker{
		process: func(ctx context.Context, record string) (Outcome, error) {
			select {
			case started <- struct{}{}:
			default:
			}
			time.Sleep(5 * time.Millisecond)
			return SuccessOutcome(), nil
		},
	}

	eng := New[string](checker, Config{InputPath: input, Writer: w, Parallelism: 2}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	<-started
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected a clean nil return on cancellation, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestEngine_PauseBlocksUntilResume(t *testing.T) {
	input := writeInput(t, []string{"a", "b"})
	dir := t.TempDir()
	w := writer.New(writer.Config{SuccessPath: filepath.Join(dir, "success.txt")})

	checker := &fakeChecker{
		process: func(ctx context.Context, record string) (Outcome, error) {
			return SuccessOutcome(), nil
		},
	}

	eng := New[string](checker, Config{InputPath: input, Writer: w}, nil)
	eng.Pause()

	done := make(chan error, 1)
	go func() { done <- eng.Run(context.Background()) }()

	select {
	case <-done:
		t.Fatal("Run returned while paused before ever being resumed")
	case <-time.After(100 * time.Millisecond):
	}

	eng.Resume()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not complete after resume")
	}
}
