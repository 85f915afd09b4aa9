// Command checkerbase-tui is the interactive front end: a Bubble Tea
// program wrapping the same EngineController the headless runner
// (cmd/checkerbase) drives.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/corvidlabs/checkerbase/internal/logging"
	"github.com/corvidlabs/checkerbase/internal/settings"
	"github.com/corvidlabs/checkerbase/internal/tui"
)

func main() {
	logger, closer := logging.New("info", "json", defaultLogPath())
	defer closer.Close()

	settingsPath, err := settings.DefaultPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	s, err := settings.Load(settingsPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	regPath, err := defaultRegistryPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	model, err := tui.New(s, settingsPath, regPath, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultRegistryPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".checkerbase", "server_registry.db"), nil
}

func defaultLogPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".checkerbase", "tui.log")
}
