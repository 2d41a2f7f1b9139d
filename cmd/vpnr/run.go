package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/vpnr"
)

// Run supervises the configured engine until it exits or ctx/a signal ends
// the run.
func (c command) Run(ctx context.Context, f RunFlags) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := vpnr.LoadConfig(f.ConfigPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	slog.SetDefault(cfg.Log.NewSlogger())

	spec, err := cfg.LaunchSpec()
	if err != nil {
		return err
	}

	opts := []vpnr.ManagerOption{vpnr.WithStatusLog(vpnr.NewStatusLog(cfg.Status.BufferSize))}

	if len(cfg.History.DSNs) > 0 {
		hist, err := vpnr.NewHistoryFromDSNs(cfg.History.DSNs)
		if err != nil {
			return fmt.Errorf("history: %w", err)
		}
		defer func() { _ = hist.Close() }()
		opts = append(opts, vpnr.WithHistory(hist))
	}

	if cfg.Metrics.Enabled {
		if err := vpnr.RegisterMetricsDefault(); err != nil {
			slog.Warn("Failed to register metrics", "error", err)
		}
		sampler := vpnr.NewEngineSampler(vpnr.SamplerConfig{Enabled: true, Interval: cfg.Metrics.SampleInterval})
		if err := sampler.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
			slog.Warn("Failed to register engine metrics", "error", err)
		}
		opts = append(opts, vpnr.WithSampler(sampler))

		if !cfg.Server.Enabled && cfg.Metrics.Listen != "" {
			go func() {
				if err := vpnr.ServeMetrics(cfg.Metrics.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("Metrics server error", "error", err)
				}
			}()
		}
	}

	mgr := vpnr.New(opts...)

	if cfg.Server.Enabled {
		srv, err := vpnr.NewHTTPServerFromConfig(cfg.Server, mgr, cfg.Metrics.Enabled)
		if err != nil {
			return fmt.Errorf("failed to create HTTP server: %w", err)
		}
		defer func() { _ = srv.Close() }()
		slog.Info("Serving status", "addr", srv.Addr, "base", cfg.Server.BasePath, "tls", cfg.Server.TLS.Enabled)
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if _, err := mgr.Start(sigCtx, spec); err != nil {
		return err
	}

	out, waitErr := mgr.Wait(sigCtx)
	stopTimeout := f.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = 10 * time.Second
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if waitErr != nil {
		slog.Info("Stopping engine", "reason", waitErr)
		if err := mgr.Shutdown(shutCtx); err != nil {
			return fmt.Errorf("engine did not stop: %w", err)
		}
		return nil
	}
	if err := mgr.Shutdown(shutCtx); err != nil {
		slog.Warn("Shutdown incomplete", "error", err)
	}

	if out.Kind != vpnr.OutcomeSuccess {
		return fmt.Errorf("engine exited: %s", out)
	}
	return nil
}
