package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"vector-void/internal/relay"
)

// ServerConfig wires the public HTTP server.
type ServerConfig struct {
	Manager   *relay.Manager
	Archive   MatchArchive
	RateLimit RateLimitConfig
	Hub       HubConfig
	// CORSOrigins also feeds the WebSocket origin check when Hub.Origins is nil.
	CORSOrigins []string
}

// Server is the HTTP API server with WebSocket support.
type Server struct {
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	httpServer  *http.Server
}

// NewServer builds the router and hub. Nothing listens until Start.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Hub.Origins == nil {
		cfg.Hub.Origins = NewOriginChecker(cfg.CORSOrigins)
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 || cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit = DefaultRateLimitConfig
	}
	s := &Server{
		wsHub:       NewWebSocketHub(cfg.Manager, cfg.Hub),
		rateLimiter: NewIPRateLimiter(cfg.RateLimit),
	}
	s.router = NewRouter(RouterConfig{
		Rooms:       cfg.Manager,
		Archive:     cfg.Archive,
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.CORSOrigins,
	})
	s.setupWebSocketRoutes()
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// setupWebSocketRoutes adds routes that need the hub instance.
func (s *Server) setupWebSocketRoutes() {
	s.router.Get("/ws", s.wsHub.HandleWebSocket)
}

// Start listens on addr and serves until Shutdown. It returns nil after a
// clean shutdown.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	log.WithField("addr", ln.Addr().String()).Info("api server listening")
	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Shutdown stops accepting requests, closes every WebSocket and releases
// background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.wsHub.Close()
	s.rateLimiter.Stop()
	return err
}
