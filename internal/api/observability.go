package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"vector-void/internal/game"
	"vector-void/internal/metrics"
)

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string // keep on loopback in production
	AllowExternal bool
	BasicAuthUser string // optional basic auth
	BasicAuthPass string
	// Events, when set, is mirrored into the event log gauges.
	Events *game.EventLog
}

// DefaultObservabilityConfig returns safe defaults
func DefaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// DebugServer serves pprof and Prometheus metrics.
type DebugServer struct {
	srv    *http.Server
	events *game.EventLog
	stop   chan struct{}
}

// NewDebugHandler builds the debug mux.
func NewDebugHandler(cfg ObservabilityConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	var handler http.Handler = mux
	if cfg.BasicAuthUser != "" {
		handler = basicAuthMiddleware(cfg.BasicAuthUser, cfg.BasicAuthPass, mux)
	}
	return handler
}

// StartDebugServer starts the internal observability server. Non-loopback
// addresses are forced back to 127.0.0.1 unless AllowExternal is set.
// It returns nil when the server is disabled.
func StartDebugServer(cfg ObservabilityConfig) (*DebugServer, error) {
	if !cfg.Enabled {
		log.Info("debug server disabled")
		return nil, nil
	}

	if !cfg.AllowExternal && !isLoopback(cfg.ListenAddr) {
		log.WithField("addr", cfg.ListenAddr).Warn("debug server forced to localhost")
		cfg.ListenAddr = DefaultObservabilityConfig().ListenAddr
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return nil, err
	}

	d := &DebugServer{
		srv:    &http.Server{Handler: NewDebugHandler(cfg), ReadHeaderTimeout: 5 * time.Second},
		events: cfg.Events,
		stop:   make(chan struct{}),
	}
	go func() {
		log.WithField("addr", ln.Addr().String()).Info("debug server listening (pprof, /metrics)")
		if err := d.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Warn("debug server error")
		}
	}()
	if d.events != nil {
		go d.pollEventLog()
	}
	return d, nil
}

func (d *DebugServer) pollEventLog() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-d.stop:
			return
		case <-ticker.C:
			metrics.UpdateEventLogStats(d.events.TotalCount(), d.events.DroppedCount())
		}
	}
}

func (d *DebugServer) Shutdown(ctx context.Context) error {
	if d == nil {
		return nil
	}
	close(d.stop)
	return d.srv.Shutdown(ctx)
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func basicAuthMiddleware(user, pass string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != user || p != pass {
			w.Header().Set("WWW-Authenticate", `Basic realm="debug"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
