package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	runStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vpnr",
			Subsystem: "engine",
			Name:      "starts_total",
			Help:      "Number of successful engine launches.",
		}, []string{"name"},
	)
	launchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vpnr",
			Subsystem: "engine",
			Name:      "launch_failures_total",
			Help:      "Number of engine launches that failed before the process ran.",
		}, []string{"name"},
	)
	runExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vpnr",
			Subsystem: "engine",
			Name:      "exits_total",
			Help:      "Number of engine runs that drained, by outcome.",
		}, []string{"name", "outcome"},
	)
	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "vpnr",
			Subsystem: "engine",
			Name:      "run_duration_seconds",
			Help:      "Time from engine launch to the end of the drain phase.",
			Buckets:   []float64{1, 10, 60, 300, 1800, 3600, 4 * 3600, 24 * 3600},
		}, []string{"name"},
	)
	running = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "vpnr",
			Subsystem: "engine",
			Name:      "running",
			Help:      "1 while an engine run is between launch and drain, else 0.",
		}, []string{"name"},
	)
	lines = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vpnr",
			Subsystem: "output",
			Name:      "lines_total",
			Help:      "Engine output lines by kind (structured or plain) and severity.",
		}, []string{"kind", "severity"},
	)
	dumps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vpnr",
			Subsystem: "output",
			Name:      "crash_dumps_total",
			Help:      "Crash dump log renderings by result.",
		}, []string{"result"},
	)
	stateUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "vpnr",
			Subsystem: "status",
			Name:      "state_updates_total",
			Help:      "Number of named state updates by state code and connection level.",
		}, []string{"code", "level"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{runStarts, launchFailures, runExits, runDuration, running, lines, dumps, stateUpdates}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics from g, for servers using a private registry.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(name string) {
	if regOK.Load() {
		runStarts.WithLabelValues(name).Inc()
	}
}

func IncLaunchFailure(name string) {
	if regOK.Load() {
		launchFailures.WithLabelValues(name).Inc()
	}
}

func IncExit(name, outcome string) {
	if regOK.Load() {
		runExits.WithLabelValues(name, outcome).Inc()
	}
}

func ObserveRunDuration(name string, seconds float64) {
	if regOK.Load() {
		runDuration.WithLabelValues(name).Observe(seconds)
	}
}

func SetRunning(name string, up bool) {
	if regOK.Load() {
		v := 0.0
		if up {
			v = 1
		}
		running.WithLabelValues(name).Set(v)
	}
}

func IncLine(kind, severity string) {
	if regOK.Load() {
		lines.WithLabelValues(kind, severity).Inc()
	}
}

func IncDump(result string) {
	if regOK.Load() {
		dumps.WithLabelValues(result).Inc()
	}
}

func IncStateUpdate(code, level string) {
	if regOK.Load() {
		stateUpdates.WithLabelValues(code, level).Inc()
	}
}
