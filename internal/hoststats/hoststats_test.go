package hoststats

import (
	"testing"
	"time"
)

func TestNew_DefaultsInterval(t *testing.T) {
	s := New(0, nil)
	if s.interval != DefaultInterval {
		t.Errorf("expected default interval, got %v", s.interval)
	}
}

func TestSampler_StartStopPublishesSnapshot(t *testing.T) {
	s := New(10*time.Millisecond, nil)
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		snap := s.Snapshot()
		if snap.Goroutines > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected a snapshot with a positive goroutine count within the deadline")
}

func TestSampler_SnapshotBeforeStartHasTimestamp(t *testing.T) {
	s := New(time.Second, nil)
	snap := s.Snapshot()
	if snap.SampledAt.IsZero() {
		t.Error("expected an initial snapshot with a timestamp even before Start")
	}
}

func TestSampler_StopIsIdempotent(t *testing.T) {
	s := New(time.Second, nil)
	s.Start()
	s.Stop()
	s.Stop()
}
