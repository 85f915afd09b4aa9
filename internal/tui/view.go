package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/corvidlabs/checkerbase/internal/controller"
)

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(menuBarStyle.Render(" File   Help ") + "\n")
	b.WriteString(titleStyle.Render("checkerbase") + "  " + labelStyle.Render(stateLabel(m.state)) + "\n\n")

	switch m.view {
	case viewConfig:
		b.WriteString(m.renderConfig())
	default:
		b.WriteString(m.renderRunning())
	}

	b.WriteString("\n")
	b.WriteString(m.renderHostStats())
	b.WriteString("\n")

	if len(m.validation) > 0 {
		b.WriteString(errorBarStyle.Render("invalid settings: "+strings.Join(m.validation, "; ")) + "\n")
	}
	if m.runErr != nil {
		b.WriteString(errorBarStyle.Render("error: "+m.runErr.Error()) + "\n")
	}
	if m.quitConfirm {
		b.WriteString(dialogStyle.Render("A run is active. Quit anyway? (y/N)") + "\n")
	}

	b.WriteString(m.renderStatusBar())
	return b.String()
}

func stateLabel(s controller.State) string {
	return "[" + s.String() + "]"
}

func (m *Model) renderConfig() string {
	var rows []string
	for i, f := range configFields {
		val := f.get(m.settings)
		if m.editing && i == m.cursor {
			val = m.editBuf + "_"
		}
		line := fmt.Sprintf("%-18s %s", f.label+":", val)
		if i == m.cursor {
			line = focusedValueStyle.Render(line)
		} else {
			line = labelStyle.Render(f.label+": ") + valueStyle.Render(val)
		}
		rows = append(rows, line)
	}
	rows = append(rows, "", labelStyle.Render("↑/↓ select   enter/←/→ edit   esc back"))
	return dialogStyle.Render(strings.Join(rows, "\n"))
}

func (m *Model) renderRunning() string {
	if m.ctrl.Metrics() == nil {
		return labelStyle.Render("idle — press F5 to start")
	}
	snap := m.ctrl.Metrics().Snapshot()

	barWidth := 40
	filled := int(snap.ProgressPercent / 100 * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	bar := "[" + strings.Repeat("=", filled) + strings.Repeat(" ", barWidth-filled) + "]"

	eta := "n/a"
	if snap.ETA != nil {
		eta = snap.ETA.Round(time.Second).String()
	}

	lines := []string{
		fmt.Sprintf("%s %5.1f%%", bar, snap.ProgressPercent),
		successStyle.Render(fmt.Sprintf("success %d", snap.Success)) + "  " +
			failedStyle.Render(fmt.Sprintf("failed %d", snap.Failed)) + "  " +
			warnStyle.Render(fmt.Sprintf("ignored %d", snap.Ignored)) + "  " +
			labelStyle.Render(fmt.Sprintf("retries %d", snap.Retries)),
		labelStyle.Render(fmt.Sprintf("%.0f checks/min   eta %s   elapsed %s", snap.CPM, eta, snap.Elapsed.Round(time.Second))),
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderHostStats() string {
	snap := m.hostSampler.Snapshot()
	return statusBarStyle.Render(fmt.Sprintf(
		"cpu %.1f%%   rss %s   goroutines %d",
		snap.CPUPercent, formatBytes(snap.RSSBytes), snap.Goroutines,
	))
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for n/div >= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func (m *Model) renderStatusBar() string {
	hints := []string{"F1 Config", "F5 Start", "F6 Pause/Resume", "F7 Stop", "Ctrl-Q Quit"}
	return keyHintStyle.Render(strings.Join(hints, "   "))
}
