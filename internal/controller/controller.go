// Package controller implements EngineController: the state machine that
// wraps one CheckerEngine run, validating settings, provisioning the
// result writer and proxy rotator, and handling the resume-temp-file
// substitution described in spec.md §4.7.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/corvidlabs/checkerbase/internal/checkpoint"
	"github.com/corvidlabs/checkerbase/internal/engine"
	"github.com/corvidlabs/checkerbase/internal/metrics"
	"github.com/corvidlabs/checkerbase/internal/rotator"
	"github.com/corvidlabs/checkerbase/internal/settings"
	"github.com/corvidlabs/checkerbase/internal/writer"
)

// State is one of the EngineController's lifecycle states.
type State int

const (
	Idle State = iota
	Running
	Paused
	Completed
	Cancelled
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Event is raised on every state transition.
type Event struct {
	State State
	Err   error
}

// EventHandler receives state-transition events. It is called
// synchronously but never while the controller's internal lock is held.
type EventHandler func(Event)

// ValidationError carries every settings-validation failure at once,
// per spec.md §7's ValidationFailed policy: surface the whole list, do
// not start.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "invalid settings: " + strings.Join(e.Messages, "; ")
}

// Controller drives one CheckerEngine[R] run through the state machine.
// It is not single-use: Reset returns it to Idle so a new Start can
// follow a Completed/Cancelled/Error run.
type Controller[R any] struct {
	mu sync.Mutex

	checker  engine.Checker[R]
	settings *settings.AppSettings
	logger   *slog.Logger
	onEvent  EventHandler

	state    State
	proxies  *rotator.ProxyRotator
	outWriter *writer.Writer
	eng      *engine.Engine[R]
	cancelFn context.CancelFunc
	tempPath string
}

// New constructs a Controller. onEvent may be nil.
func New[R any](checker engine.Checker[R], s *settings.AppSettings, logger *slog.Logger, onEvent EventHandler) *Controller[R] {
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	return &Controller[R]{
		checker:  checker,
		settings: s,
		logger:   logger,
		onEvent:  onEvent,
		state:    Idle,
	}
}

// State returns the current lifecycle state.
func (c *Controller[R]) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller[R]) transition(s State, err error) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.onEvent(Event{State: s, Err: err})
}

// Initialize validates settings, write-tests the output directory,
// loads the proxy file (if configured), and constructs the result
// writer. It must succeed before Start is called.
func (c *Controller[R]) Initialize() error {
	if msgs := c.settings.Validate(); len(msgs) > 0 {
		err := &ValidationError{Messages: msgs}
		c.transition(Error, err)
		return err
	}

	if err := writableDir(c.settings.OutputDir); err != nil {
		verr := &ValidationError{Messages: []string{fmt.Sprintf("outputDir %q is not writable: %v", c.settings.OutputDir, err)}}
		c.transition(Error, verr)
		return verr
	}

	var proxies *rotator.ProxyRotator
	if c.settings.ProxyPath != "" {
		f, err := os.Open(c.settings.ProxyPath)
		if err != nil {
			verr := &ValidationError{Messages: []string{fmt.Sprintf("opening proxy file: %v", err)}}
			c.transition(Error, verr)
			return verr
		}
		entries, failed := rotator.ParseProxyFile(f, defaultScheme(c.settings.ProxyType))
		f.Close()
		for _, bad := range failed {
			c.logger.Warn("skipping unparseable proxy line", "line_no", bad.LineNo, "text", bad.Text, "reason", bad.Reason)
		}
		proxies = rotator.NewProxyRotator(entries)
	}

	c.mu.Lock()
	c.proxies = proxies
	c.outWriter = writer.New(writer.Config{
		SuccessPath: filepath.Join(c.settings.OutputDir, "success.txt"),
		FailedPath:  filepath.Join(c.settings.OutputDir, "failed.txt"),
		IgnoredPath: filepath.Join(c.settings.OutputDir, "ignored.txt"),
	})
	c.mu.Unlock()

	c.transition(Idle, nil)
	return nil
}

func defaultScheme(proxyType string) rotator.ProxyScheme {
	switch proxyType {
	case settings.ProxyTypeHTTPS:
		return rotator.SchemeHTTPS
	case settings.ProxyTypeSocks4:
		return rotator.SchemeSocks4
	case settings.ProxyTypeSocks5:
		return rotator.SchemeSocks5
	default:
		return rotator.SchemeHTTP
	}
}

func writableDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".checkerbase-write-test")
	if err := os.WriteFile(probe, []byte{}, 0644); err != nil {
		return err
	}
	return os.Remove(probe)
}

// Start begins a run. If resumeFromByte > 0, the engine processes a temp
// file containing settings.InputPath's bytes from that offset onward;
// the temp file is removed once the run ends. Start returns once the
// run has been launched, not once it completes — follow state
// transitions via the EventHandler.
func (c *Controller[R]) Start(ctx context.Context, resumeFromByte int64) error {
	c.mu.Lock()
	if c.state != Idle {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("controller: cannot start from state %s", state)
	}
	c.mu.Unlock()

	inputPath := c.settings.InputPath
	var tempPath string
	if resumeFromByte > 0 {
		p, err := checkpoint.CreateResumeTemp(c.settings.InputPath, resumeFromByte)
		if err != nil {
			c.transition(Error, err)
			return err
		}
		tempPath = p
		inputPath = p
	}

	eng := engine.New[R](c.checker, engine.Config{
		InputPath:   inputPath,
		Parallelism: c.settings.Parallelism,
		MaxRetries:  c.settings.MaxRetries,
		Proxies:     c.proxies,
		Writer:      c.outWriter,
	}, c.logger)

	runCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.eng = eng
	c.cancelFn = cancel
	c.tempPath = tempPath
	c.mu.Unlock()

	c.transition(Running, nil)

	go func() {
		runErr := eng.Run(runCtx)
		cancel()

		c.mu.Lock()
		if c.tempPath != "" {
			os.Remove(c.tempPath)
			c.tempPath = ""
		}
		c.mu.Unlock()

		switch {
		case runErr != nil && errors.Is(runErr, context.Canceled):
			c.transition(Cancelled, nil)
		case runErr != nil:
			c.transition(Error, runErr)
		default:
			c.transition(Completed, nil)
		}
	}()

	return nil
}

// Pause halts the running engine between records.
func (c *Controller[R]) Pause() error {
	c.mu.Lock()
	if c.state != Running {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("controller: cannot pause from state %s", state)
	}
	eng := c.eng
	c.mu.Unlock()

	eng.Pause()
	c.transition(Paused, nil)
	return nil
}

// Resume releases a paused engine.
func (c *Controller[R]) Resume() error {
	c.mu.Lock()
	if c.state != Paused {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("controller: cannot resume from state %s", state)
	}
	eng := c.eng
	c.mu.Unlock()

	eng.Resume()
	c.transition(Running, nil)
	return nil
}

// Cancel requests the running (or paused) engine stop. The resulting
// Cancelled transition fires asynchronously once the engine's shutdown
// sequence completes.
func (c *Controller[R]) Cancel() error {
	c.mu.Lock()
	state := c.state
	cancel := c.cancelFn
	c.mu.Unlock()

	if state != Running && state != Paused {
		return fmt.Errorf("controller: cannot cancel from state %s", state)
	}
	cancel()
	return nil
}

// Reset returns a Completed/Cancelled/Error controller to Idle so a new
// Start can follow.
func (c *Controller[R]) Reset() {
	c.mu.Lock()
	c.eng = nil
	c.cancelFn = nil
	c.mu.Unlock()
	c.transition(Idle, nil)
}

// Metrics returns the current run's metrics, or nil if no run has
// started yet.
func (c *Controller[R]) Metrics() *metrics.Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eng == nil {
		return nil
	}
	return c.eng.Metrics()
}
