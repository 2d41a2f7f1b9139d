// Package vpnr supervises a VPN engine child process: it launches the engine
// with the right native library environment, classifies its log output into
// a status log, and reports how and why the engine ended.
package vpnr

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	cfg "github.com/loykin/vpnr/internal/config"
	"github.com/loykin/vpnr/internal/env"
	"github.com/loykin/vpnr/internal/history"
	"github.com/loykin/vpnr/internal/history/factory"
	"github.com/loykin/vpnr/internal/logline"
	"github.com/loykin/vpnr/internal/manager"
	"github.com/loykin/vpnr/internal/metrics"
	"github.com/loykin/vpnr/internal/process"
	iapi "github.com/loykin/vpnr/internal/server"
	"github.com/loykin/vpnr/internal/status"
	vtls "github.com/loykin/vpnr/internal/tls"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type LaunchSpec = process.LaunchSpec

type Status = process.Status

type ExitOutcome = process.ExitOutcome

type Config = cfg.Config

type ServerConfig = cfg.ServerConfig

type TLSConfig = cfg.TLSConfig

type StatusLog = status.Log

type State = status.State

type LogItem = status.Item

type LogEntry = logline.Entry

type HistorySink = history.Sink

type HistoryEvent = history.Event

type EngineSampler = metrics.EngineSampler

type SamplerConfig = metrics.SamplerConfig

const (
	OutcomeUnknown = process.OutcomeUnknown
	OutcomeSuccess = process.OutcomeSuccess
	OutcomeFailure = process.OutcomeFailure
)

var (
	ErrNoSession    = manager.ErrNoSession
	ErrShuttingDown = manager.ErrShuttingDown
	ErrStdinClosed  = manager.ErrStdinClosed
)

// Manager is a thin facade over internal/manager.Manager.
// It provides a stable public API for embedding.
type Manager struct{ inner *manager.Manager }

type ManagerOption = manager.Option

var (
	WithStatusLog    = manager.WithStatusLog
	WithHistory      = manager.WithHistory
	WithSampler      = manager.WithSampler
	OnSessionStopped = manager.OnSessionStopped
)

func New(opts ...ManagerOption) *Manager { return &Manager{inner: manager.New(opts...)} }

func (m *Manager) Start(ctx context.Context, s LaunchSpec) (*process.Process, error) {
	return m.inner.Start(ctx, s)
}
func (m *Manager) Stop() error                        { return m.inner.Stop() }
func (m *Manager) Cancel() error                      { return m.inner.Cancel() }
func (m *Manager) Status() (Status, error)            { return m.inner.Status() }
func (m *Manager) Log() *StatusLog                    { return m.inner.Log() }
func (m *Manager) SessionsStopped() int               { return m.inner.SessionsStopped() }
func (m *Manager) Shutdown(ctx context.Context) error { return m.inner.Shutdown(ctx) }
func (m *Manager) Wait(ctx context.Context) (ExitOutcome, error) {
	return m.inner.Wait(ctx)
}
func (m *Manager) SendManagement(ctx context.Context, line string) error {
	return m.inner.SendManagement(ctx, line)
}

func NewStatusLog(capacity int) *StatusLog { return status.NewLog(status.WithCapacity(capacity)) }

func LoadConfig(path string) (*Config, error) { return cfg.Load(path) }

// LibraryPath computes the engine's library search path.
func LibraryPath(exe, nativeDir, existing string) string {
	return env.LibraryPath(exe, nativeDir, existing)
}

// ParseLine classifies one line of engine output.
func ParseLine(line string) LogEntry { return logline.Parse(line) }

// RecentHistory opens dsns and returns up to limit newest events, oldest
// first, from the first store that can be read back (sqlite or postgres).
func RecentHistory(ctx context.Context, dsns []string, limit int) ([]HistoryEvent, error) {
	m, err := factory.NewMultiFromDSNs(dsns)
	if err != nil {
		return nil, err
	}
	defer func() { _ = m.Close() }()
	r, ok := m.Reader()
	if !ok {
		return nil, errors.New("no readable history store among the configured DSNs")
	}
	return r.Recent(ctx, limit)
}

// NewHistoryFromDSNs opens one history sink per DSN.
func NewHistoryFromDSNs(dsns []string) (*history.Multi, error) {
	return factory.NewMultiFromDSNs(dsns)
}

func NewEngineSampler(c SamplerConfig) *EngineSampler { return metrics.NewEngineSampler(c) }

// NewHTTPServer starts the read-only HTTP surface for m. When withMetrics is
// set, /metrics serves the default Prometheus registry.
func NewHTTPServer(addr, basePath string, m *Manager, withMetrics bool) (*http.Server, error) {
	var opts []iapi.Option
	if withMetrics {
		opts = append(opts, iapi.WithMetrics(metrics.Handler()))
	}
	return iapi.NewServer(addr, basePath, m.inner, opts...)
}

// NewHTTPServerFromConfig is NewHTTPServer driven by the server section,
// serving HTTPS when server.tls is enabled.
func NewHTTPServerFromConfig(sc ServerConfig, m *Manager, withMetrics bool) (*http.Server, error) {
	tc, err := vtls.Setup(sc.TLS)
	if err != nil {
		return nil, err
	}
	opts := []iapi.Option{iapi.WithTLS(tc)}
	if withMetrics {
		opts = append(opts, iapi.WithMetrics(metrics.Handler()))
	}
	return iapi.NewServer(sc.Listen, sc.BasePath, m.inner, opts...)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics serves /metrics from the default registry on addr in the
// caller goroutine.
func ServeMetrics(addr string) error {
	return newMetricsServer(addr).ListenAndServe()
}

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
