// Package metrics holds the Prometheus instruments shared by the relay and
// the HTTP surface. Labels are bounded; never label by room or player.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Relay metrics
	roomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "relay_rooms_active",
		Help: "Rooms currently open",
	})

	matchesStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_matches_started_total",
		Help: "Matches started, by mode",
	}, []string{"mode"}) // "relay", "authoritative"

	matchesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_matches_finished_total",
		Help: "Authoritative matches finished, by how they ended",
	}, []string{"reason"}) // "kill", "stuck", "timeout", "abandoned"

	actionsRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "relay_actions_total",
		Help: "Gameplay actions forwarded or applied",
	})

	actionsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_actions_rejected_total",
		Help: "Gameplay actions refused",
	}, []string{"reason"}) // "out_of_turn", "illegal", "malformed", "throttled", "no_match"

	matchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "relay_match_duration_seconds",
		Help:    "Wall time of authoritative matches",
		Buckets: []float64{10, 30, 60, 120, 300, 600, 1200},
	})

	// Event log metrics
	eventLogTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "event_log_events",
		Help: "Events accepted by the event log since start",
	})

	eventLogDropped = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "event_log_dropped_events",
		Help: "Events dropped due to rate limiting or buffer full",
	})

	// DoS detection metrics - use ONLY bounded label values
	connectionRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_rejected_total",
		Help: "Connections rejected by rate limiter or origin check",
	}, []string{"reason"}) // "rate_limit", "origin", "invalid", "ws_limit", "codec"

	// HTTP metrics with bounded labels
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"}) // endpoint is the route pattern, not the URL

	requestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	// WebSocket metrics
	wsConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "websocket_connections_active",
		Help: "Currently active WebSocket connections",
	})

	wsMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "websocket_messages_total",
		Help: "WebSocket frames, by direction",
	}, []string{"direction"}) // "in", "out"
)

func RoomOpened() { roomsActive.Inc() }
func RoomClosed() { roomsActive.Dec() }

// MatchStarted counts a game_start. mode is "relay" or "authoritative".
func MatchStarted(mode string) {
	matchesStarted.WithLabelValues(mode).Inc()
}

// MatchFinished records how an authoritative match ended and how long it ran.
func MatchFinished(reason string, d time.Duration) {
	matchesFinished.WithLabelValues(reason).Inc()
	if d > 0 {
		matchDuration.Observe(d.Seconds())
	}
}

func ActionRelayed() { actionsRelayed.Inc() }

// ActionRejected increments the rejection counter.
// reason must be one of: "out_of_turn", "illegal", "malformed", "throttled", "no_match"
func ActionRejected(reason string) {
	actionsRejected.WithLabelValues(reason).Inc()
}

// UpdateEventLogStats mirrors the event log counters.
func UpdateEventLogStats(total, dropped uint64) {
	eventLogTotal.Set(float64(total))
	eventLogDropped.Set(float64(dropped))
}

// RecordConnectionRejected increments the rejection counter
// reason must be one of: "rate_limit", "origin", "invalid", "ws_limit", "codec"
func RecordConnectionRejected(reason string) {
	connectionRejected.WithLabelValues(reason).Inc()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, endpoint string, status int, duration time.Duration) {
	requestLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	requestTotal.WithLabelValues(method, endpoint, http.StatusText(status)).Inc()
}

func WSConnected()    { wsConnectionsActive.Inc() }
func WSDisconnected() { wsConnectionsActive.Dec() }

func WSMessageIn()  { wsMessagesTotal.WithLabelValues("in").Inc() }
func WSMessageOut() { wsMessagesTotal.WithLabelValues("out").Inc() }
