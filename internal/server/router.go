package server

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	mng "github.com/loykin/vpnr/internal/manager"
	"github.com/loykin/vpnr/internal/process"
	"github.com/loykin/vpnr/internal/status"
)

// Source is what the router reads from; *manager.Manager satisfies it.
type Source interface {
	Status() (process.Status, error)
	Log() *status.Log
}

// Router provides read-only HTTP handlers for the engine session.
// Endpoints:
//
//	GET {basePath}/status          current run and last connection state
//	GET {basePath}/logs?limit=N    newest N status log items, oldest first
//	GET /metrics                   Prometheus exposition (when configured)
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	src      Source
	basePath string
	metrics  http.Handler
	tls      *tls.Config
}

// Option configures a Router.
type Option func(*Router)

// WithMetrics mounts h at /metrics.
func WithMetrics(h http.Handler) Option {
	return func(r *Router) { r.metrics = h }
}

// WithTLS makes NewServer serve HTTPS with c. A nil c leaves plain HTTP.
func WithTLS(c *tls.Config) Option {
	return func(r *Router) { r.tls = c }
}

// NewRouter constructs a Router. Example basePath: "/api" serves /api/status.
func NewRouter(src Source, basePath string, opts ...Option) *Router {
	r := &Router{src: src, basePath: sanitizeBase(basePath)}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/logs", r.handleLogs)
	if r.metrics != nil {
		g.GET("/metrics", gin.WrapH(r.metrics))
	}
	return g
}

// NewServer listens on addr and serves the router in the background. Address
// errors are returned rather than lost in the serving goroutine.
func NewServer(addr, basePath string, src Source, opts ...Option) (*http.Server, error) {
	r := NewRouter(src, basePath, opts...)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           r.Handler(),
		TLSConfig:         r.tls,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if r.tls != nil {
		ln = tls.NewListener(ln, r.tls)
	}
	go func() { _ = server.Serve(ln) }()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

// StatusResponse is the body of GET {base}/status.
type StatusResponse struct {
	Running bool            `json:"running"`
	Session *process.Status `json:"session,omitempty"`
	State   status.State    `json:"state"`
}

// LogsResponse is the body of GET {base}/logs.
type LogsResponse struct {
	Items []status.Item `json:"items"`
	Total int           `json:"total"`
}

func (r *Router) handleStatus(c *gin.Context) {
	resp := StatusResponse{State: r.src.Log().LastState()}
	st, err := r.src.Status()
	switch {
	case err == nil:
		resp.Session = &st
		resp.Running = st.State != process.StateTerminated
	case !errors.Is(err, mng.ErrNoSession):
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handleLogs(c *gin.Context) {
	limit := 0
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	l := r.src.Log()
	items := l.Tail(limit)
	if items == nil {
		items = []status.Item{}
	}
	writeJSON(c, http.StatusOK, LogsResponse{Items: items, Total: l.Len()})
}
