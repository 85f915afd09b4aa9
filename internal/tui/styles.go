package tui

import "github.com/charmbracelet/lipgloss"

// VSCode-ish palette, kept sober to match a terminal operator tool.
const (
	bgSelected = "#264f78"
	bgBorder   = "#3c3c3c"

	fgDefault = "#cccccc"
	fgBright  = "#ffffff"
	fgDim     = "#808080"

	colorAccent  = "#4fc1ff"
	colorSuccess = "#89d185"
	colorFailed  = "#f48771"
	colorWarning = "#dcdcaa"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color(colorAccent))

	menuBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(fgBright)).
			Background(lipgloss.Color(bgBorder))

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(fgDim))

	keyHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(fgBright)).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(fgDim))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(fgDefault))

	focusedValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color(fgBright)).
				Background(lipgloss.Color(bgSelected))

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color(colorSuccess))
	failedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color(colorFailed))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color(colorWarning))

	dialogStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color(colorAccent)).
			Padding(1, 2)

	errorBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color(colorFailed)).
			Bold(true)
)
