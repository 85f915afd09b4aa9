package metrics

import (
	"testing"
	"time"
)

func TestSnapshot_ZeroTotalBytes(t *testing.T) {
	m := New(0)
	m.Start()
	m.AddProcessedBytes(100)
	m.IncSuccess()
	s := m.Snapshot()

	if s.ProgressPercent != 0 {
		t.Errorf("expected progress 0 with unknown total, got %v", s.ProgressPercent)
	}
	if s.ETA != nil {
		t.Errorf("expected no ETA with unknown total, got %v", *s.ETA)
	}
	if s.ProcessedLines != 1 {
		t.Errorf("expected 1 processed line, got %d", s.ProcessedLines)
	}
}

func TestSnapshot_ProgressAndETA(t *testing.T) {
	m := New(1000)
	m.Start()
	time.Sleep(10 * time.Millisecond)
	m.AddProcessedBytes(500)
	s := m.Snapshot()

	if s.ProgressPercent != 50 {
		t.Errorf("expected 50%% progress, got %v", s.ProgressPercent)
	}
	if s.BytesPerSec <= 0 {
		t.Errorf("expected positive throughput, got %v", s.BytesPerSec)
	}
	if s.ETA == nil {
		t.Fatal("expected an ETA with forward progress")
	}
}

func TestSnapshot_NoETAWhenComplete(t *testing.T) {
	m := New(1000)
	m.Start()
	m.AddProcessedBytes(1000)
	s := m.Snapshot()
	if s.ETA != nil {
		t.Errorf("expected no ETA once fully processed, got %v", *s.ETA)
	}
}

func TestProcessedLinesExcludesRetries(t *testing.T) {
	m := New(0)
	m.Start()
	m.IncSuccess()
	m.IncFailed()
	m.IncIgnored()
	m.IncRetries()
	m.IncRetries()
	s := m.Snapshot()

	if s.ProcessedLines != 3 {
		t.Errorf("expected 3 processed lines, got %d", s.ProcessedLines)
	}
	if s.Retries != 2 {
		t.Errorf("expected 2 retries, got %d", s.Retries)
	}
}

func TestPauseExcludesElapsed(t *testing.T) {
	m := New(0)
	m.Start()
	time.Sleep(20 * time.Millisecond)
	m.Pause()
	paused := m.elapsedNow()
	time.Sleep(50 * time.Millisecond) // time passes while paused
	stillPaused := m.elapsedNow()

	if stillPaused != paused {
		t.Errorf("expected elapsed to freeze while paused: %v != %v", stillPaused, paused)
	}

	m.Resume()
	time.Sleep(10 * time.Millisecond)
	after := m.elapsedNow()
	if after <= paused {
		t.Errorf("expected elapsed to advance again after resume: %v <= %v", after, paused)
	}
}

func TestCountersMonotonic(t *testing.T) {
	m := New(100)
	m.Start()
	for i := 0; i < 10; i++ {
		m.AddProcessedBytes(1)
		s := m.Snapshot()
		if s.ProcessedBytes != int64(i+1) {
			t.Fatalf("expected monotonic processed bytes, got %d at step %d", s.ProcessedBytes, i)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	cases := map[int64]string{
		500:                 "500 B",
		2048:                "2.0 KB",
		5 * 1024 * 1024:     "5.0 MB",
		3 * 1024 * 1024 * 1024: "3.0 GB",
	}
	for in, want := range cases {
		if got := FormatBytes(in); got != want {
			t.Errorf("FormatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	cases := map[int64]string{
		5:       "5",
		999:     "999",
		1000:    "1,000",
		1234567: "1,234,567",
	}
	for in, want := range cases {
		if got := FormatNumber(in); got != want {
			t.Errorf("FormatNumber(%d) = %q, want %q", in, got, want)
		}
	}
}
