// Package tui is a Bubble Tea front end over internal/controller: a menu
// bar, a configuration dialog editing AppSettings, a live metrics panel,
// and a host-stats corner, all driving the same EngineController the
// headless runner (cmd/checkerbase) uses.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/corvidlabs/checkerbase/internal/checkpoint"
	"github.com/corvidlabs/checkerbase/internal/controller"
	"github.com/corvidlabs/checkerbase/internal/discovery"
	"github.com/corvidlabs/checkerbase/internal/hoststats"
	"github.com/corvidlabs/checkerbase/internal/mailchecker"
	"github.com/corvidlabs/checkerbase/internal/registry"
	"github.com/corvidlabs/checkerbase/internal/settings"
)

type viewMode int

const (
	viewMenu viewMode = iota
	viewConfig
	viewRunning
)

// fieldKind distinguishes free-text fields from the small enum/numeric
// fields that cycle or increment instead of accepting arbitrary text.
type fieldKind int

const (
	fieldText fieldKind = iota
	fieldProxyType
	fieldInt
)

type configField struct {
	label string
	kind  fieldKind
	get   func(*settings.AppSettings) string
	set   func(*settings.AppSettings, string)
}

var configFields = []configField{
	{label: "Input path", kind: fieldText,
		get: func(s *settings.AppSettings) string { return s.InputPath },
		set: func(s *settings.AppSettings, v string) { s.InputPath = v }},
	{label: "Proxy list path", kind: fieldText,
		get: func(s *settings.AppSettings) string { return s.ProxyPath },
		set: func(s *settings.AppSettings, v string) { s.ProxyPath = v }},
	{label: "Proxy type", kind: fieldProxyType,
		get: func(s *settings.AppSettings) string { return s.ProxyType },
		set: func(s *settings.AppSettings, v string) { s.ProxyType = v }},
	{label: "Output directory", kind: fieldText,
		get: func(s *settings.AppSettings) string { return s.OutputDir },
		set: func(s *settings.AppSettings, v string) { s.OutputDir = v }},
	{label: "Parallelism", kind: fieldInt,
		get: func(s *settings.AppSettings) string { return strconv.Itoa(s.Parallelism) },
		set: func(s *settings.AppSettings, v string) {
			if n, err := strconv.Atoi(v); err == nil {
				s.Parallelism = n
			}
		}},
	{label: "Max retries", kind: fieldInt,
		get: func(s *settings.AppSettings) string { return strconv.Itoa(s.MaxRetries) },
		set: func(s *settings.AppSettings, v string) {
			if n, err := strconv.Atoi(v); err == nil {
				s.MaxRetries = n
			}
		}},
}

var proxyTypeCycle = []string{
	settings.ProxyTypeHTTP, settings.ProxyTypeHTTPS,
	settings.ProxyTypeSocks4, settings.ProxyTypeSocks5,
}

// Model is the Bubble Tea model driving one checkerbase run.
type Model struct {
	settings     *settings.AppSettings
	settingsPath string
	checkpoint   *checkpoint.Manager

	registry *registry.Registry

	ctrl        *controller.Controller[mailchecker.Credential]
	events      chan controller.Event
	hostSampler *hoststats.Sampler

	view viewMode

	cursor         int
	editing        bool
	editBuf        string
	validation     []string
	resumeFromByte int64

	state       controller.State
	runErr      error
	width       int
	height      int
	quitConfirm bool
}

// New constructs the top-level TUI model. regPath is the server registry
// database path; settingsPath is where AppSettings persists.
func New(s *settings.AppSettings, settingsPath, regPath string, logger *slog.Logger) (*Model, error) {
	reg, err := registry.Open(regPath)
	if err != nil {
		return nil, fmt.Errorf("opening server registry: %w", err)
	}

	store := settings.NewStore(settingsPath, s)
	cp := checkpoint.New(store)

	disc := discovery.New(reg, discovery.DefaultStrategies(), logger)
	checker := mailchecker.New(disc, logger)

	events := make(chan controller.Event, 16)
	ctrl := controller.New[mailchecker.Credential](checker, s, logger, func(ev controller.Event) {
		select {
		case events <- ev:
		default:
		}
	})

	m := &Model{
		settings:     s,
		settingsPath: settingsPath,
		checkpoint:   cp,
		registry:     reg,
		ctrl:         ctrl,
		events:       events,
		hostSampler:  hoststats.New(hoststats.DefaultInterval, logger),
		view:         viewMenu,
		state:        controller.Idle,
	}
	return m, nil
}

// Close releases resources the model owns (registry, host sampler).
// Update calls it on the quit keys, before returning tea.Quit.
func (m *Model) Close() {
	m.hostSampler.Stop()
	m.registry.Close()
}

func (m *Model) Init() tea.Cmd {
	m.hostSampler.Start()
	return tea.Batch(tickCmd(), waitForEvent(m.events))
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type controllerEventMsg controller.Event

func waitForEvent(ch chan controller.Event) tea.Cmd {
	return func() tea.Msg {
		ev := <-ch
		return controllerEventMsg(ev)
	}
}

func (m *Model) startRun() tea.Cmd {
	return func() tea.Msg {
		if msgs := m.settings.Validate(); len(msgs) > 0 {
			m.validation = msgs
			return nil
		}
		resumeFromByte := int64(0)
		if offset, ok := m.checkpoint.ResumePosition(m.settings.InputPath); ok {
			resumeFromByte = offset
		}
		m.resumeFromByte = resumeFromByte

		if err := m.ctrl.Initialize(); err != nil {
			return controllerEventMsg(controller.Event{State: controller.Error, Err: err})
		}
		if err := m.ctrl.Start(context.Background(), resumeFromByte); err != nil {
			return controllerEventMsg(controller.Event{State: controller.Error, Err: err})
		}
		return nil
	}
}
