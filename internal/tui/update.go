package tui

import (
	"strconv"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/corvidlabs/checkerbase/internal/controller"
	"github.com/corvidlabs/checkerbase/internal/settings"
)

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tickMsg:
		if m.state == controller.Running || m.state == controller.Paused {
			if metrics := m.ctrl.Metrics(); metrics != nil {
				snap := metrics.Snapshot()
				if snap.ProcessedBytes > 0 {
					m.checkpoint.SaveCheckpoint(m.settings.InputPath, m.resumeFromByte+snap.ProcessedBytes)
				}
			}
		}
		return m, tickCmd()

	case controllerEventMsg:
		ev := controller.Event(msg)
		m.state = ev.State
		m.runErr = ev.Err
		if ev.State == controller.Completed || ev.State == controller.Cancelled {
			m.checkpoint.Clear()
		}
		return m, waitForEvent(m.events)

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.quitConfirm {
		switch msg.String() {
		case "y", "Y":
			m.Close()
			return m, tea.Quit
		default:
			m.quitConfirm = false
			return m, nil
		}
	}

	if m.editing {
		return m.handleEditKey(msg)
	}

	switch msg.String() {
	case "ctrl+q":
		if m.state == controller.Running || m.state == controller.Paused {
			m.quitConfirm = true
			return m, nil
		}
		m.Close()
		return m, tea.Quit

	case "f1":
		if m.view == viewConfig {
			m.view = viewMenu
		} else {
			m.view = viewConfig
			m.cursor = 0
		}
		return m, nil

	case "f5":
		switch m.state {
		case controller.Idle, controller.Completed, controller.Cancelled, controller.Error:
			if m.state != controller.Idle {
				m.ctrl.Reset()
			}
			m.view = viewRunning
			return m, m.startRun()
		}
		return m, nil

	case "f6":
		switch m.state {
		case controller.Running:
			m.ctrl.Pause()
		case controller.Paused:
			m.ctrl.Resume()
		}
		return m, nil

	case "f7":
		if m.state == controller.Running || m.state == controller.Paused {
			m.ctrl.Cancel()
		}
		return m, nil

	case "esc":
		if m.view == viewConfig {
			m.view = viewMenu
		}
		return m, nil
	}

	if m.view == viewConfig {
		return m.handleConfigKey(msg)
	}
	return m, nil
}

func (m *Model) handleConfigKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	f := configFields[m.cursor]

	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(configFields)-1 {
			m.cursor++
		}
	case "enter":
		if f.kind == fieldProxyType {
			f.set(m.settings, nextProxyType(f.get(m.settings)))
			m.settings.Save(m.settingsPath)
		} else {
			m.editing = true
			m.editBuf = f.get(m.settings)
		}
	case "left":
		switch f.kind {
		case fieldInt:
			adjustInt(f, m.settings, -1)
			m.settings.Save(m.settingsPath)
		case fieldProxyType:
			f.set(m.settings, prevProxyType(f.get(m.settings)))
			m.settings.Save(m.settingsPath)
		}
	case "right":
		switch f.kind {
		case fieldInt:
			adjustInt(f, m.settings, 1)
			m.settings.Save(m.settingsPath)
		case fieldProxyType:
			f.set(m.settings, nextProxyType(f.get(m.settings)))
			m.settings.Save(m.settingsPath)
		}
	}
	return m, nil
}

func (m *Model) handleEditKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		f := configFields[m.cursor]
		f.set(m.settings, m.editBuf)
		m.editing = false
		m.settings.Save(m.settingsPath)
	case tea.KeyEsc:
		m.editing = false
	case tea.KeyBackspace:
		if len(m.editBuf) > 0 {
			m.editBuf = m.editBuf[:len(m.editBuf)-1]
		}
	case tea.KeySpace:
		m.editBuf += " "
	case tea.KeyRunes:
		m.editBuf += string(msg.Runes)
	}
	return m, nil
}

// adjustInt nudges an int-backed field by delta, floored at zero.
func adjustInt(f configField, s *settings.AppSettings, delta int) {
	n, err := strconv.Atoi(f.get(s))
	if err != nil {
		return
	}
	n += delta
	if n < 0 {
		n = 0
	}
	f.set(s, strconv.Itoa(n))
}

func nextProxyType(current string) string {
	for i, t := range proxyTypeCycle {
		if t == current {
			return proxyTypeCycle[(i+1)%len(proxyTypeCycle)]
		}
	}
	return proxyTypeCycle[0]
}

func prevProxyType(current string) string {
	for i, t := range proxyTypeCycle {
		if t == current {
			return proxyTypeCycle[(i-1+len(proxyTypeCycle))%len(proxyTypeCycle)]
		}
	}
	return proxyTypeCycle[0]
}
