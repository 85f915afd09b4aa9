// Command checkerbase is the headless runner: reads a credential list,
// checks each line through the mail-discovery reference checker, and
// writes classified outcomes to output/{success,failed,ignored}.txt.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/corvidlabs/checkerbase/internal/checkpoint"
	"github.com/corvidlabs/checkerbase/internal/controller"
	"github.com/corvidlabs/checkerbase/internal/discovery"
	"github.com/corvidlabs/checkerbase/internal/logging"
	"github.com/corvidlabs/checkerbase/internal/mailchecker"
	"github.com/corvidlabs/checkerbase/internal/metrics"
	"github.com/corvidlabs/checkerbase/internal/promexport"
	"github.com/corvidlabs/checkerbase/internal/registry"
	"github.com/corvidlabs/checkerbase/internal/settings"
)

// exitCode is set by runHeadless; cobra's RunE only carries an error, but
// spec.md §6 requires the process to distinguish exit 0 from exit 1.
var exitCode int

func main() {
	os.Exit(run())
}

func run() int {
	var (
		inputPath   string
		proxyPath   string
		proxyType   string
		outputDir   string
		parallelism int
		maxRetries  int
		resume      bool
		metricsAddr string
		verbose     bool
	)

	root := &cobra.Command{
		Use:   "checkerbase",
		Short: "High-throughput batch credential checker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHeadless(headlessOptions{
				inputPath:   inputPath,
				proxyPath:   proxyPath,
				proxyType:   proxyType,
				outputDir:   outputDir,
				parallelism: parallelism,
				maxRetries:  maxRetries,
				resume:      resume,
				metricsAddr: metricsAddr,
				verbose:     verbose,
			})
		},
	}

	flags := root.Flags()
	flags.StringVar(&inputPath, "input", "input.txt", "path to the input credential list")
	flags.StringVar(&proxyPath, "proxies", "", "path to a proxy list (optional)")
	flags.StringVar(&proxyType, "proxy-type", settings.ProxyTypeHTTP, "default proxy type: http, https, socks4, socks5")
	flags.StringVar(&outputDir, "output-dir", "output", "directory for success/failed/ignored files")
	flags.IntVar(&parallelism, "parallelism", settings.DefaultParallelism, "number of concurrent workers")
	flags.IntVar(&maxRetries, "max-retries", settings.DefaultMaxRetries, "max retries per record on a transient error")
	flags.BoolVar(&resume, "resume", false, "resume from the last saved checkpoint, if valid")
	flags.StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address")
	flags.BoolVar(&verbose, "verbose", false, "enable debug logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return exitCode
}

type headlessOptions struct {
	inputPath   string
	proxyPath   string
	proxyType   string
	outputDir   string
	parallelism int
	maxRetries  int
	resume      bool
	metricsAddr string
	verbose     bool
}

func runHeadless(opts headlessOptions) error {
	level := "info"
	if opts.verbose {
		level = "debug"
	}
	logger, closer := logging.New(level, "text", "")
	defer closer.Close()

	if _, err := os.Stat(opts.inputPath); err != nil {
		fmt.Fprintf(os.Stderr, "input file not found: %s\n", opts.inputPath)
		exitCode = 1
		return nil
	}

	runID := time.Now().UTC().Format("20060102T150405Z")
	runLogger, runCloser, runLogPath, err := logging.NewRunLogger(logger, filepath.Join(opts.outputDir, "logs"), runID)
	if err != nil {
		logger.Error("opening run log", "error", err)
		exitCode = 1
		return nil
	}
	logger = runLogger
	defer runCloser.Close()
	if runLogPath != "" {
		logger.Info("run log opened", "path", runLogPath)
	}

	s := settings.Default()
	s.InputPath = opts.inputPath
	s.ProxyPath = opts.proxyPath
	s.ProxyType = opts.proxyType
	s.OutputDir = opts.outputDir
	s.Parallelism = opts.parallelism
	s.MaxRetries = opts.maxRetries

	settingsPath, err := settings.DefaultPath()
	if err != nil {
		logger.Error("resolving settings path", "error", err)
		exitCode = 1
		return nil
	}
	store := settings.NewStore(settingsPath, s)
	cp := checkpoint.New(store)

	resumeFromByte := int64(0)
	if opts.resume {
		if offset, ok := cp.ResumePosition(opts.inputPath); ok {
			resumeFromByte = offset
			logger.Info("resuming from checkpoint", "offset", offset)
		}
	}

	regPath, err := defaultRegistryPath()
	if err != nil {
		logger.Error("resolving registry path", "error", err)
		exitCode = 1
		return nil
	}
	reg, err := registry.Open(regPath)
	if err != nil {
		logger.Error("opening server registry", "error", err)
		exitCode = 1
		return nil
	}
	defer reg.Close()

	disc := discovery.New(reg, discovery.DefaultStrategies(), logger)
	checker := mailchecker.New(disc, logger)

	var lastState controller.State
	ctrl := controller.New[mailchecker.Credential](checker, s, logger, func(ev controller.Event) {
		lastState = ev.State
		if ev.Err != nil {
			logger.Error("run transition", "state", ev.State.String(), "error", ev.Err)
		} else {
			logger.Debug("run transition", "state", ev.State.String())
		}
	})

	if err := ctrl.Initialize(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitCode = 1
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received interrupt, cancelling run")
		ctrl.Cancel()
	}()

	if opts.metricsAddr != "" {
		go func() {
			var m *metrics.Metrics
			for m == nil {
				m = ctrl.Metrics()
				if m == nil {
					time.Sleep(10 * time.Millisecond)
				}
			}
			exp := promexport.New(m, opts.metricsAddr)
			if err := exp.Serve(ctx, time.Second); err != nil {
				logger.Warn("metrics server stopped", "error", err)
			}
		}()
	}

	if err := ctrl.Start(ctx, resumeFromByte); err != nil {
		fmt.Fprintln(os.Stderr, err)
		exitCode = 1
		return nil
	}

	// Periodically persist the resume checkpoint while the run is active,
	// so an interrupted run can be continued with --resume. The engine's
	// ProcessedBytes is relative to the (possibly resumed) input it was
	// actually fed, so the absolute offset into the original file is
	// resumeFromByte + ProcessedBytes.
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			state := ctrl.State()
			if state != controller.Running && state != controller.Paused {
				return
			}
			if m := ctrl.Metrics(); m != nil {
				snap := m.Snapshot()
				if snap.ProcessedBytes > 0 {
					cp.SaveCheckpoint(opts.inputPath, resumeFromByte+snap.ProcessedBytes)
				}
			}
		}
	}()

	printBanner(ctrl)

	switch lastState {
	case controller.Completed:
		cp.Clear()
		runCloser.Close()
		logging.RemoveRunLog(filepath.Join(opts.outputDir, "logs"), runID)
		exitCode = 0
	case controller.Cancelled:
		exitCode = 0
	case controller.Error:
		exitCode = 1
	default:
		exitCode = 0
	}
	return nil
}

// printBanner renders a single-line live metrics banner once per second
// until the run leaves Running/Paused, then prints a final summary.
func printBanner(ctrl *controller.Controller[mailchecker.Credential]) {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetDescription("checking"),
		progressbar.OptionSetWriter(os.Stdout),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionShowCount(),
	)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		state := ctrl.State()
		if m := ctrl.Metrics(); m != nil {
			snap := m.Snapshot()
			bar.Set(int(snap.ProgressPercent))
			fmt.Printf("\r%s", formatSnapshot(snap))
		}
		if state != controller.Running && state != controller.Paused && state != controller.Idle {
			break
		}
		<-ticker.C
	}

	if m := ctrl.Metrics(); m != nil {
		fmt.Println()
		fmt.Println(formatSnapshot(m.Snapshot()))
	}
}

// bannerColorEnabled is resolved once: colored counters are only worth the
// escape codes when stdout is an actual terminal, not a log file or pipe.
var bannerColorEnabled = isatty.IsTerminal(os.Stdout.Fd())

var (
	successColor = color.New(color.FgGreen)
	failedColor  = color.New(color.FgRed)
	ignoredColor = color.New(color.FgYellow)
)

func formatSnapshot(s metrics.Snapshot) string {
	eta := "n/a"
	if s.ETA != nil {
		eta = s.ETA.Round(time.Second).String()
	}
	success, failed, ignored := fmt.Sprint(s.Success), fmt.Sprint(s.Failed), fmt.Sprint(s.Ignored)
	if bannerColorEnabled {
		success = successColor.Sprint(success)
		failed = failedColor.Sprint(failed)
		ignored = ignoredColor.Sprint(ignored)
	}
	return fmt.Sprintf("%6.2f%%  success=%s failed=%s ignored=%s retries=%d  %.0f cpm  eta=%s",
		s.ProgressPercent, success, failed, ignored, s.Retries, s.CPM, eta)
}

func defaultRegistryPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".checkerbase", "server_registry.db"), nil
}
