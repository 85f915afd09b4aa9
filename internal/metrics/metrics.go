// Package metrics tracks the atomic counters that drive a run's live
// progress banner and post-run summary: bytes consumed, lines classified,
// retries spent, and the wall-clock elapsed (excluding paused time).
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Metrics is a single process-wide, lock-free set of counters for one
// engine run. Counter fields are updated with atomic add/increment;
// Snapshot reads them with an acquiring load and derives progress, speed
// and ETA. A skew of a few counts across fields within one Snapshot call is
// acceptable — each individual field is still a consistent read.
type Metrics struct {
	totalBytes atomic.Int64

	processedBytes atomic.Int64
	success        atomic.Int64
	failed         atomic.Int64
	ignored        atomic.Int64
	retries        atomic.Int64

	clockMu   sync.Mutex
	running   bool
	startedAt time.Time
	elapsed   time.Duration // accumulated elapsed time across pause/resume cycles
}

// New creates a Metrics instance with the given known total input size in
// bytes. totalBytes may be 0 when the size is not known up front; Snapshot
// then reports Progress 0 and no ETA.
func New(totalBytes int64) *Metrics {
	m := &Metrics{}
	m.totalBytes.Store(totalBytes)
	return m
}

// Start begins the stopwatch. Must be called exactly once before any
// Snapshot that expects a meaningful elapsed/ETA.
func (m *Metrics) Start() {
	m.clockMu.Lock()
	defer m.clockMu.Unlock()
	m.startedAt = time.Now()
	m.running = true
}

// Stop halts the stopwatch permanently, folding the final running segment
// into the accumulated elapsed time.
func (m *Metrics) Stop() {
	m.clockMu.Lock()
	defer m.clockMu.Unlock()
	if m.running {
		m.elapsed += time.Since(m.startedAt)
		m.running = false
	}
}

// Pause stops the stopwatch without discarding accumulated elapsed time;
// the paused interval is excluded from elapsed once Resume is called.
func (m *Metrics) Pause() {
	m.clockMu.Lock()
	defer m.clockMu.Unlock()
	if m.running {
		m.elapsed += time.Since(m.startedAt)
		m.running = false
	}
}

// Resume restarts the stopwatch after a Pause.
func (m *Metrics) Resume() {
	m.clockMu.Lock()
	defer m.clockMu.Unlock()
	if !m.running {
		m.startedAt = time.Now()
		m.running = true
	}
}

func (m *Metrics) elapsedNow() time.Duration {
	m.clockMu.Lock()
	defer m.clockMu.Unlock()
	if m.running {
		return m.elapsed + time.Since(m.startedAt)
	}
	return m.elapsed
}

// AddProcessedBytes records delta bytes consumed from the input stream.
func (m *Metrics) AddProcessedBytes(delta int64) {
	if delta > 0 {
		m.processedBytes.Add(delta)
	}
}

// IncSuccess counts one successfully processed line.
func (m *Metrics) IncSuccess() { m.success.Add(1) }

// IncFailed counts one terminally failed line.
func (m *Metrics) IncFailed() { m.failed.Add(1) }

// IncIgnored counts one inapplicable/unparseable line.
func (m *Metrics) IncIgnored() { m.ignored.Add(1) }

// IncRetries counts one retry attempt (not a line).
func (m *Metrics) IncRetries() { m.retries.Add(1) }

// Snapshot is an immutable point-in-time read of all counters plus derived
// fields. See package metrics's Snapshot type for field semantics.
type Snapshot struct {
	TotalBytes      int64
	ProcessedBytes  int64
	ProcessedLines  int64
	Success         int64
	Failed          int64
	Ignored         int64
	Retries         int64
	Elapsed         time.Duration
	ProgressPercent float64
	CPM             float64
	BytesPerSec     float64
	ETA             *time.Duration
}

// Snapshot reads the current counters and computes progress/CPM/ETA.
func (m *Metrics) Snapshot() Snapshot {
	total := m.totalBytes.Load()
	processed := m.processedBytes.Load()
	success := m.success.Load()
	failed := m.failed.Load()
	ignored := m.ignored.Load()
	retries := m.retries.Load()
	elapsed := m.elapsedNow()

	lines := success + failed + ignored

	var progress float64
	if total > 0 {
		progress = float64(processed) / float64(total) * 100
	}

	var bytesPerSec float64
	elapsedSec := elapsed.Seconds()
	if elapsedSec > 0 {
		bytesPerSec = float64(processed) / elapsedSec
	}

	var cpm float64
	elapsedMin := elapsed.Minutes()
	if elapsedMin > 0 {
		cpm = float64(lines) / elapsedMin
	}

	var eta *time.Duration
	if total > 0 && bytesPerSec > 0 && processed < total {
		remaining := float64(total - processed)
		d := time.Duration(remaining / bytesPerSec * float64(time.Second))
		eta = &d
	}

	return Snapshot{
		TotalBytes:      total,
		ProcessedBytes:  processed,
		ProcessedLines:  lines,
		Success:         success,
		Failed:          failed,
		Ignored:         ignored,
		Retries:         retries,
		Elapsed:         elapsed,
		ProgressPercent: progress,
		CPM:             cpm,
		BytesPerSec:     bytesPerSec,
		ETA:             eta,
	}
}
