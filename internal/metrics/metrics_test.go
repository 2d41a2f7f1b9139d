package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	// idempotent: calling again should be no-op
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncStart("office")
	IncLaunchFailure("office")
	IncExit("office", "failure")
	ObserveRunDuration("office", 12.5)
	SetRunning("office", true)
	IncLine("structured", "ERROR")
	IncLine("plain", "INFO")
	IncDump("written")
	IncStateUpdate("NOPROCESS", "LEVEL_NOTCONNECTED")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"vpnr_engine_starts_total":          false,
		"vpnr_engine_launch_failures_total": false,
		"vpnr_engine_exits_total":           false,
		"vpnr_engine_run_duration_seconds":  false,
		"vpnr_engine_running":               false,
		"vpnr_output_lines_total":           false,
		"vpnr_output_crash_dumps_total":     false,
		"vpnr_status_state_updates_total":   false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestHandlerForServesRegistry(t *testing.T) {
	// Register is one-shot per process; attach the collector to a private
	// registry directly so this test does not depend on ordering.
	reg := prometheus.NewRegistry()
	reg.MustRegister(lines)
	if err := Register(prometheus.NewRegistry()); err != nil {
		t.Fatalf("register: %v", err)
	}
	IncLine("structured", "WARNING")

	srv := httptest.NewServer(HandlerFor(reg))
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), `vpnr_output_lines_total{kind="structured",severity="WARNING"}`) {
		t.Fatalf("metrics output missing line counter:\n%s", b)
	}
}
