// Package promexport optionally exposes a running engine's metrics as
// Prometheus gauges on /metrics. It is entirely additive: the engine has
// zero dependency on this package, and a run with no --metrics-addr never
// constructs an Exporter.
package promexport

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/corvidlabs/checkerbase/internal/metrics"
)

// Exporter refreshes a fixed set of gauges from a metrics.Metrics snapshot
// on a tick and serves them at /metrics.
type Exporter struct {
	metrics *metrics.Metrics
	server  *http.Server

	processedBytes prometheus.Gauge
	successTotal   prometheus.Gauge
	failedTotal    prometheus.Gauge
	ignoredTotal   prometheus.Gauge
	retriesTotal   prometheus.Gauge
}

// New constructs an Exporter bound to m, serving on addr.
func New(m *metrics.Metrics, addr string) *Exporter {
	reg := prometheus.NewRegistry()

	e := &Exporter{
		metrics: m,
		processedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "checkerbase_processed_bytes", Help: "Bytes of input consumed so far.",
		}),
		successTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "checkerbase_success_total", Help: "Records classified as Success.",
		}),
		failedTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "checkerbase_failed_total", Help: "Records classified as Failed.",
		}),
		ignoredTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "checkerbase_ignored_total", Help: "Records classified as Ignored.",
		}),
		retriesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "checkerbase_retries_total", Help: "Retry attempts issued so far.",
		}),
	}
	reg.MustRegister(e.processedBytes, e.successTotal, e.failedTotal, e.ignoredTotal, e.retriesTotal)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	e.server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	return e
}

// Serve starts the HTTP listener in the background and refreshes gauges
// every interval until ctx is cancelled, then shuts the server down.
func (e *Exporter) Serve(ctx context.Context, interval time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		if err := e.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			e.server.Shutdown(shutdownCtx)
			return nil
		case err := <-errCh:
			return err
		case <-ticker.C:
			e.refresh()
		}
	}
}

func (e *Exporter) refresh() {
	snap := e.metrics.Snapshot()
	e.processedBytes.Set(float64(snap.ProcessedBytes))
	e.successTotal.Set(float64(snap.Success))
	e.failedTotal.Set(float64(snap.Failed))
	e.ignoredTotal.Set(float64(snap.Ignored))
	e.retriesTotal.Set(float64(snap.Retries))
}
