package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"vector-void/internal/metrics"
)

// RateLimitConfig configures the IP-based rate limiter
type RateLimitConfig struct {
	RequestsPerSecond float64       // Requests allowed per second per IP
	Burst             int           // Maximum burst size
	CleanupInterval   time.Duration // How often to clean up stale limiters
}

// DefaultRateLimitConfig returns production-safe defaults
var DefaultRateLimitConfig = RateLimitConfig{
	RequestsPerSecond: 10,
	Burst:             20,
	CleanupInterval:   5 * time.Minute,
}

// ipLimiterEntry pairs a limiter with the unix nano time it was last used
type ipLimiterEntry struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// IPRateLimiter provides IP-based rate limiting for HTTP requests
type IPRateLimiter struct {
	limiters sync.Map // map[string]*ipLimiterEntry
	config   RateLimitConfig
	stopChan chan struct{}
	stopOnce sync.Once

	rejectedCount atomic.Uint64
	allowedCount  atomic.Uint64
}

// NewIPRateLimiter creates a new IP-based rate limiter and starts its
// cleanup goroutine. Call Stop to release it.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultRateLimitConfig.CleanupInterval
	}
	rl := &IPRateLimiter{
		config:   cfg,
		stopChan: make(chan struct{}),
	}
	go rl.cleanupLoop()
	return rl
}

// Stop ends the cleanup goroutine. It is safe to call more than once.
func (rl *IPRateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stopChan)
	})
}

// getLimiter returns the limiter for ip, creating it on first use
func (rl *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	now := time.Now().UnixNano()

	if v, ok := rl.limiters.Load(ip); ok {
		e := v.(*ipLimiterEntry)
		e.lastSeen.Store(now)
		return e.limiter
	}

	entry := &ipLimiterEntry{
		limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst),
	}
	entry.lastSeen.Store(now)

	actual, _ := rl.limiters.LoadOrStore(ip, entry)
	return actual.(*ipLimiterEntry).limiter
}

// cleanupLoop drops idle limiters every CleanupInterval until Stop
func (rl *IPRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopChan:
			return
		case <-ticker.C:
			rl.cleanup(time.Now())
		}
	}
}

// cleanup removes limiters not used for two intervals
func (rl *IPRateLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-rl.config.CleanupInterval * 2).UnixNano()

	rl.limiters.Range(func(key, value any) bool {
		if value.(*ipLimiterEntry).lastSeen.Load() < cutoff {
			rl.limiters.Delete(key)
		}
		return true
	})
}

// Allow checks if a request from the given IP should be allowed
func (rl *IPRateLimiter) Allow(ip string) bool {
	if rl.getLimiter(ip).Allow() {
		rl.allowedCount.Add(1)
		return true
	}
	rl.rejectedCount.Add(1)
	return false
}

// Middleware returns an HTTP middleware for rate limiting
func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(GetClientIP(r)) {
			metrics.RecordConnectionRejected("rate_limit")
			w.Header().Set("Retry-After", "1")
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetStats returns allowed and rejected request totals
func (rl *IPRateLimiter) GetStats() map[string]uint64 {
	return map[string]uint64{
		"allowed":  rl.allowedCount.Load(),
		"rejected": rl.rejectedCount.Load(),
	}
}

// GetClientIP extracts the client IP from an HTTP request.
// X-Forwarded-For can be spoofed when not behind a trusted proxy.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx >= 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// WebSocketRateLimiter limits concurrent WebSocket connections per IP
type WebSocketRateLimiter struct {
	connections sync.Map // map[string]*atomic.Int32
	maxPerIP    int

	rejectedCount atomic.Uint64
}

// NewWebSocketRateLimiter creates a limiter allowing maxPerIP open sockets per address
func NewWebSocketRateLimiter(maxPerIP int) *WebSocketRateLimiter {
	return &WebSocketRateLimiter{maxPerIP: maxPerIP}
}

// Allow reserves a connection slot for ip. Pair every true result with Release.
func (wrl *WebSocketRateLimiter) Allow(ip string) bool {
	actual, _ := wrl.connections.LoadOrStore(ip, new(atomic.Int32))
	counter := actual.(*atomic.Int32)

	for {
		current := counter.Load()
		if int(current) >= wrl.maxPerIP {
			wrl.rejectedCount.Add(1)
			return false
		}
		if counter.CompareAndSwap(current, current+1) {
			return true
		}
	}
}

// Release frees a slot taken by Allow
func (wrl *WebSocketRateLimiter) Release(ip string) {
	if val, ok := wrl.connections.Load(ip); ok {
		val.(*atomic.Int32).Add(-1)
	}
}

// GetConnectionCount returns the open sockets currently held by ip
func (wrl *WebSocketRateLimiter) GetConnectionCount(ip string) int {
	if val, ok := wrl.connections.Load(ip); ok {
		return int(val.(*atomic.Int32).Load())
	}
	return 0
}

// DefaultOrigins are allowed when no origin list is configured.
var DefaultOrigins = []string{
	"http://localhost",
	"http://127.0.0.1",
}

// OriginChecker matches browser origins against an allow list. Entries may
// start with "*." to allow subdomains. Loopback origins on any port are
// always allowed.
type OriginChecker struct {
	allowed []string
}

// NewOriginChecker builds a checker for origins. An empty list uses DefaultOrigins.
func NewOriginChecker(origins []string) *OriginChecker {
	if len(origins) == 0 {
		origins = DefaultOrigins
	}
	return &OriginChecker{allowed: origins}
}

// Allowed reports whether a browser origin may open a socket or call the API
func (oc *OriginChecker) Allowed(origin string) bool {
	if origin == "" {
		return false
	}
	if strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "http://127.0.0.1") {
		return true
	}
	for _, allowed := range oc.allowed {
		if allowed == "*" || origin == allowed {
			return true
		}
		if rest, ok := strings.CutPrefix(allowed, "*."); ok {
			if i := strings.Index(origin, "://"); i >= 0 && strings.HasSuffix(origin[i+3:], "."+rest) {
				return true
			}
		}
	}
	return false
}
