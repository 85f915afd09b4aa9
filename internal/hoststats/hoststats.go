// Package hoststats periodically samples this process's CPU and memory
// usage for display on the TUI status bar. It never affects engine control flow: sampling runs on its
// own ticker and publishes a lock-free snapshot nobody blocks on.
package hoststats

import (
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// DefaultInterval is the sampling period used when Config.Interval is unset.
const DefaultInterval = 2 * time.Second

// Snapshot is an immutable point-in-time reading.
type Snapshot struct {
	CPUPercent float64
	RSSBytes   uint64
	Goroutines int
	SampledAt  time.Time
}

// Sampler periodically refreshes a Snapshot on a ticker, grounded on the
// teacher's periodic-sampling loop shape (tick, collect, publish).
type Sampler struct {
	logger   *slog.Logger
	interval time.Duration
	proc     *process.Process

	snapshot atomic.Value // Snapshot

	closeOnce sync.Once
	close     chan struct{}
	wg        sync.WaitGroup
}

// New constructs a Sampler for the current process. interval <= 0 uses
// DefaultInterval.
func New(interval time.Duration, logger *slog.Logger) *Sampler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	s := &Sampler{
		logger:   logger.With("component", "hoststats"),
		interval: interval,
		close:    make(chan struct{}),
	}
	s.snapshot.Store(Snapshot{SampledAt: time.Now()})

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		s.proc = proc
	} else {
		s.logger.Debug("failed to resolve self process handle", "error", err)
	}
	return s
}

// Start begins periodic sampling in a background goroutine.
func (s *Sampler) Start() {
	s.wg.Add(1)
	go s.run()
}

// Stop halts sampling and waits for the background goroutine to exit.
func (s *Sampler) Stop() {
	s.closeOnce.Do(func() { close(s.close) })
	s.wg.Wait()
}

// Snapshot returns the most recently collected reading.
func (s *Sampler) Snapshot() Snapshot {
	return s.snapshot.Load().(Snapshot)
}

func (s *Sampler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.collect()
	for {
		select {
		case <-s.close:
			return
		case <-ticker.C:
			s.collect()
		}
	}
}

func (s *Sampler) collect() {
	snap := Snapshot{
		Goroutines: runtime.NumGoroutine(),
		SampledAt:  time.Now(),
	}

	if s.proc != nil {
		if pct, err := s.proc.Percent(0); err == nil {
			snap.CPUPercent = pct
		} else {
			s.logger.Debug("failed to sample process cpu percent", "error", err)
		}
		if mem, err := s.proc.MemoryInfo(); err == nil && mem != nil {
			snap.RSSBytes = mem.RSS
		} else {
			s.logger.Debug("failed to sample process memory info", "error", err)
		}
	} else if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		snap.CPUPercent = pct[0]
	}

	s.snapshot.Store(snap)
}
