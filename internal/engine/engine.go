package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/corvidlabs/checkerbase/internal/lineio"
	"github.com/corvidlabs/checkerbase/internal/metrics"
	"github.com/corvidlabs/checkerbase/internal/rotator"
	"github.com/corvidlabs/checkerbase/internal/writer"
)

// Config configures an Engine run. Everything except InputPath and Writer
// has a usable zero value.
type Config struct {
	InputPath            string
	InputChannelCapacity int // default lineio.DefaultQueueCapacity
	Parallelism          int // default 1
	MaxRetries           int

	// Proxies is consulted once per attempt if non-nil.
	Proxies *rotator.ProxyRotator

	Reader *lineio.Reader // default lineio.New()
	Writer *writer.Writer
}

func (c Config) withDefaults() Config {
	if c.InputChannelCapacity <= 0 {
		c.InputChannelCapacity = lineio.DefaultQueueCapacity
	}
	if c.Parallelism <= 0 {
		c.Parallelism = 1
	}
	if c.Reader == nil {
		c.Reader = lineio.New()
	}
	return c
}

// Engine orchestrates one run of the pipeline: LineReader -> parallelism
// worker goroutines -> ResultWriter, enforcing the shutdown ordering in
// the per-record retry/classification state machine. An Engine is
// single-use: construct, Run, discard.
type Engine[R any] struct {
	checker Checker[R]
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	gate    *pauseGate
}

// New constructs an Engine. logger may be nil, in which case a stderr
// text logger at error level is used.
func New[R any](checker Checker[R], cfg Config, logger *slog.Logger) *Engine[R] {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	return &Engine[R]{
		checker: checker,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		gate:    newPauseGate(),
	}
}

// Metrics returns the engine's metrics object. Populated only once Run
// has started; callers that want metrics before Run must construct and
// own their own metrics.Metrics instead.
func (e *Engine[R]) Metrics() *metrics.Metrics { return e.metrics }

// Pause halts workers between records; a record already in flight runs
// to completion.
func (e *Engine[R]) Pause() {
	e.gate.pause()
	if e.metrics != nil {
		e.metrics.Pause()
	}
}

// Resume releases paused workers.
func (e *Engine[R]) Resume() {
	e.gate.resume()
	if e.metrics != nil {
		e.metrics.Resume()
	}
}

// Run executes one full pipeline pass over cfg.InputPath. It enforces
// the shutdown ordering: await the reader (cancelling the run on its
// failure), close the line queue, await the workers (cancelling on any
// worker failure), close the output queue, await the writer (swallowing
// a cancellation-only completion), stop the metrics clock.
func (e *Engine[R]) Run(ctx context.Context) error {
	info, err := os.Stat(e.cfg.InputPath)
	if err != nil {
		return fmt.Errorf("stat input file: %w", err)
	}

	e.metrics = metrics.New(info.Size())
	e.metrics.Start()
	defer e.metrics.Stop()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	lineCh := make(chan string, e.cfg.InputChannelCapacity)
	outQueue := newEntryQueue()
	outCh := make(chan writer.Entry)

	readerDone := make(chan error, 1)
	go func() {
		readerDone <- e.cfg.Reader.Stream(runCtx, e.cfg.InputPath, lineCh, e.metrics.AddProcessedBytes)
	}()

	writerDone := make(chan error, 1)
	go outQueue.pump(outCh)
	go func() {
		writerDone <- e.cfg.Writer.Run(runCtx, outCh)
	}()

	workersDone := make(chan error, 1)
	go func() {
		workersDone <- e.runWorkers(runCtx, lineCh, outQueue)
	}()

	// 1. Await the reader. Its failure cancels the run before workers
	// and the writer observe end-of-input.
	readErr := <-readerDone
	if readErr != nil && !errors.Is(readErr, context.Canceled) {
		e.logger.Error("line reader failed", "error", readErr)
		cancel()
	}

	// 2. The line queue is already closed: Reader.Stream always closes
	// it, success or failure, signalling end-of-input to workers.

	// 3. Await the workers.
	workErr := <-workersDone
	if workErr != nil && !errors.Is(workErr, context.Canceled) {
		e.logger.Error("worker failed", "error", workErr)
		cancel()
	}

	// 4. Close the output queue now that no more workers can push.
	outQueue.close()

	// 5. Await the writer; a cancellation-only completion is not an
	// error worth surfacing — partial output up to cancellation is the
	// documented behavior.
	writeErr := <-writerDone
	if errors.Is(writeErr, context.Canceled) {
		writeErr = nil
	}

	return firstNonCancelled(readErr, workErr, writeErr)
}

func firstNonCancelled(errs ...error) error {
	for _, err := range errs {
		if err == nil || errors.Is(err, context.Canceled) {
			continue
		}
		return err
	}
	return nil
}

// runWorkers spawns e.cfg.Parallelism worker goroutines over an
// errgroup, returning the first worker error (if any).
func (e *Engine[R]) runWorkers(ctx context.Context, lineCh <-chan string, outQueue *entryQueue) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < e.cfg.Parallelism; i++ {
		g.Go(func() error {
			return e.workerLoop(gctx, lineCh, outQueue)
		})
	}
	return g.Wait()
}

// workerLoop implements the per-record retry/classification state
// machine against one shared line channel and output queue.
func (e *Engine[R]) workerLoop(ctx context.Context, lineCh <-chan string, outQueue *entryQueue) error {
	for line := range lineCh {
		if err := e.gate.wait(ctx); err != nil {
			return nil // cancellation while paused: exit silently
		}

		if !e.checker.QuickValidate(line) {
			e.metrics.IncIgnored()
			continue
		}

		record, ok := e.checker.Parse(line)
		if !ok {
			e.metrics.IncIgnored()
			outQueue.push(writer.Entry{Kind: writer.Ignored, OriginalLine: line})
			continue
		}

		if err := e.attempt(ctx, line, record, outQueue); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
	return nil
}

// attempt runs the retry loop for a single parsed record, emitting
// exactly one terminal OutputEntry (subject to sink configuration).
func (e *Engine[R]) attempt(ctx context.Context, line string, record R, outQueue *entryQueue) error {
	retryCount := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		var proxy *rotator.ProxyEntry
		if e.cfg.Proxies != nil {
			proxy = e.cfg.Proxies.Next()
		}

		client, err := e.checker.CreateClient(ctx, proxy)
		if err != nil {
			if _, done := e.classify(err, &retryCount); !done {
				continue
			}
			e.metrics.IncFailed()
			outQueue.push(writer.Entry{Kind: writer.Failed, OriginalLine: line})
			return nil
		}

		outcome, procErr := e.checker.Process(ctx, record, client)
		closeErr := client.Close()
		if closeErr != nil {
			e.logger.Warn("client close failed", "error", closeErr)
		}

		if procErr != nil {
			if errors.Is(procErr, context.Canceled) {
				return procErr
			}
			if _, done := e.classify(procErr, &retryCount); !done {
				continue
			}
			e.metrics.IncFailed()
			outQueue.push(writer.Entry{Kind: writer.Failed, OriginalLine: line})
			return nil
		}

		switch outcome.Kind {
		case Success:
			e.metrics.IncSuccess()
			outQueue.push(writer.Entry{Kind: writer.Success, OriginalLine: line, Captures: outcome.Captures})
			return nil

		case Failed:
			e.metrics.IncFailed()
			outQueue.push(writer.Entry{Kind: writer.Failed, OriginalLine: line, Captures: outcome.Captures})
			return nil

		case Ignored:
			e.metrics.IncIgnored()
			outQueue.push(writer.Entry{Kind: writer.Ignored, OriginalLine: line, Captures: outcome.Captures})
			return nil

		case Retry:
			if retryCount < e.cfg.MaxRetries {
				e.metrics.IncRetries()
				retryCount++
				continue
			}
			e.metrics.IncFailed()
			outQueue.push(writer.Entry{Kind: writer.Failed, OriginalLine: line})
			return nil

		default:
			e.metrics.IncFailed()
			outQueue.push(writer.Entry{Kind: writer.Failed, OriginalLine: line})
			return nil
		}
	}
}

// classify consults IsTransient for a CreateClient/Process error. It
// returns done=true when the attempt should terminate as Failed
// (exhausted retries or the error is not transient), done=false when the
// caller should loop for another attempt (retryCount already advanced).
func (e *Engine[R]) classify(err error, retryCount *int) (retried bool, done bool) {
	if e.checker.IsTransient(err) && *retryCount < e.cfg.MaxRetries {
		e.metrics.IncRetries()
		*retryCount++
		return true, false
	}
	return false, true
}
