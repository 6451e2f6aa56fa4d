package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	log "github.com/sirupsen/logrus"

	"vector-void/internal/archive"
	"vector-void/internal/metrics"
	"vector-void/internal/relay"
)

// RoomDirectory is the part of the relay the HTTP API needs.
// *relay.Manager implements it.
type RoomDirectory interface {
	ListRooms() []relay.Info
	CreateRoom() string
}

// MatchArchive reads finished matches. *archive.Store implements it.
type MatchArchive interface {
	GetMatch(ctx context.Context, id string) (archive.Match, error)
	ListMatches(ctx context.Context, limit int) ([]archive.Match, error)
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	router := api.NewRouter(api.RouterConfig{
//	    Rooms: relay.NewManager(relay.DefaultOptions()),
//	    RateLimitConfig: &api.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
//	})
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Rooms lists and creates relay rooms (required)
	Rooms RoomDirectory

	// Archive serves /api/matches. Nil answers those routes with 503.
	Archive MatchArchive

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one is created from RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is only used if RateLimiter is nil.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins is an optional list of allowed CORS origins.
	CORSOrigins []string

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

type routerHandlers struct {
	rooms   RoomDirectory
	archive MatchArchive
}

// NewRouter constructs the HTTP router with all middleware and routes.
// It opens no listeners, so it is safe to use with httptest.NewServer.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{Logger: log.StandardLogger(), NoColor: true}))
	}
	r.Use(middleware.Recoverer)
	r.Use(requestMetrics)

	// Rate limiting before CORS to reject early
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	corsOrigins := cfg.CORSOrigins
	if len(corsOrigins) == 0 {
		corsOrigins = []string{
			"http://localhost:*",
			"http://127.0.0.1:*",
		}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAge:         300,
	}))

	h := &routerHandlers{
		rooms:   cfg.Rooms,
		archive: cfg.Archive,
	}

	r.Get("/healthz", h.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/rooms", h.handleListRooms)
		r.Post("/rooms", h.handleCreateRoom)

		r.Get("/stages", h.handleGetStages)
		r.Get("/characters", h.handleGetCharacters)

		r.Route("/matches", func(r chi.Router) {
			r.Get("/", h.handleListMatches)
			r.Get("/{id}", h.handleGetMatch)
			r.Get("/{id}/replay", h.handleReplayMatch)
		})
	})

	return r
}

// requestMetrics records latency per route pattern, never per raw path.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			pattern = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.RecordRequest(r.Method, pattern, status, time.Since(start))
	})
}
