package vpnr

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/vpnr/internal/logline"
)

func requireUnix(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires Unix-like environment")
	}
}

func TestManagerFacadeRunWait(t *testing.T) {
	requireUnix(t)
	m := New(WithStatusLog(NewStatusLog(10)))
	_, err := m.Start(context.Background(), LaunchSpec{Name: "f1", Argv: []string{"/bin/sh", "-c", `echo "1.0 40 careful"; exit 3`}})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	out, err := m.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if out.Code != 3 {
		t.Fatalf("exit code: %+v", out)
	}
	st, err := m.Status()
	if err != nil || st.Name != "f1" {
		t.Fatalf("status: %+v %v", st, err)
	}
	found := false
	for _, it := range m.Log().Snapshot() {
		if it.Text == "careful" && it.Severity == logline.SeverityWarning {
			found = true
		}
	}
	if !found {
		t.Fatalf("warning not logged: %+v", m.Log().Snapshot())
	}
	if err := m.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if m.SessionsStopped() != 1 {
		t.Fatalf("sessions stopped: %d", m.SessionsStopped())
	}
}

func TestFacadeNoSession(t *testing.T) {
	m := New()
	if err := m.Stop(); err != ErrNoSession {
		t.Fatalf("want ErrNoSession, got %v", err)
	}
}

func TestLibraryPathFacade(t *testing.T) {
	if got := LibraryPath("/data/app/cache/pie_openvpn.arm64", "/data/app/lib", ""); got != "/data/app/lib" {
		t.Fatalf("got %q", got)
	}
	if got := LibraryPath("/data/app/cache/pie_openvpn.arm64", "/data/app/native", "/usr/lib"); got != "/data/app/native:/data/app/lib:/usr/lib" {
		t.Fatalf("got %q", got)
	}
}

func TestParseLineFacade(t *testing.T) {
	e := ParseLine("1380308330.240114 18000002 Some message")
	if e.Severity != logline.SeverityInfo || e.Verbosity != 2 || e.Message != "Some message" {
		t.Fatalf("unexpected entry: %+v", e)
	}
}

func TestRegisterMetricsPrivateRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := RegisterMetrics(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := RegisterMetrics(reg); err != nil {
		t.Fatalf("second register should be a no-op: %v", err)
	}
}

func TestMetricsServerMux(t *testing.T) {
	srv := newMetricsServer("127.0.0.1:0")
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("other: %d", rec.Code)
	}
}

func TestNewHTTPServerFacade(t *testing.T) {
	m := New()
	srv, err := NewHTTPServer("127.0.0.1:0", "/api", m, true)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	defer func() { _ = srv.Close() }()

	for _, path := range []string{"/api/status", "/api/logs?limit=1", "/metrics"} {
		resp, err := http.Get("http://" + srv.Addr + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		b, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("%s: %d %s", path, resp.StatusCode, b)
		}
		if path == "/api/status" && !strings.Contains(string(b), "NOPROCESS") {
			t.Fatalf("status body: %s", b)
		}
	}
}

func TestNewHTTPServerFromConfigTLS(t *testing.T) {
	sc := ServerConfig{
		Enabled:  true,
		Listen:   "127.0.0.1:0",
		BasePath: "/api",
		TLS:      TLSConfig{Enabled: true, Dir: t.TempDir(), AutoGenerate: true},
	}
	srv, err := NewHTTPServerFromConfig(sc, New(), false)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	defer func() { _ = srv.Close() }()

	// #nosec G402 self-signed test certificate
	hc := &http.Client{Transport: &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}}
	resp, err := hc.Get("https://" + srv.Addr + "/api/status")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}

	sc.TLS = TLSConfig{Enabled: true}
	if _, err := NewHTTPServerFromConfig(sc, New(), false); err == nil {
		t.Fatalf("expected tls setup error")
	}
}
