package api

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"vector-void/internal/metrics"
	"vector-void/internal/protocol"
	"vector-void/internal/relay"
)

const (
	// MaxWSConnectionsTotal is the default cap on concurrent WebSocket connections
	MaxWSConnectionsTotal = 500
	// MaxWSConnectionsPerIP is the default per-IP cap
	MaxWSConnectionsPerIP = 10

	sendQueueSize = 64
	maxFrameSize  = 4096
	writeWait     = 5 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = pongWait * 9 / 10
)

var (
	errConnClosed   = errors.New("connection closed")
	errSlowConsumer = errors.New("send queue full")
)

// wsConn adapts a WebSocket to relay.Conn. Frames are queued and written by
// writePump; a full queue closes the connection rather than blocking a room.
type wsConn struct {
	conn      *websocket.Conn
	codec     protocol.Codec
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(conn *websocket.Conn, codec protocol.Codec) *wsConn {
	return &wsConn{
		conn:  conn,
		codec: codec,
		send:  make(chan []byte, sendQueueSize),
		done:  make(chan struct{}),
	}
}

func (c *wsConn) Send(t string, payload any) error {
	b, err := c.codec.Encode(t, payload)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- b:
		metrics.WSMessageOut()
		return nil
	default:
		c.Close()
		return errSlowConsumer
	}
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *wsConn) messageType() int {
	if c.codec.Binary() {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case b := <-c.send:
			if err := c.write(b); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.done:
			// Flush what the room already queued (e.g. opponent_disconnected).
			for {
				select {
				case b := <-c.send:
					if err := c.write(b); err != nil {
						return
					}
				default:
					msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
					_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
					return
				}
			}
		}
	}
}

func (c *wsConn) write(b []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(c.messageType(), b)
}

// WebSocketHub accepts WebSocket connections into the relay with DoS protection
type WebSocketHub struct {
	manager  *relay.Manager
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	clients  map[*wsConn]string // conn -> ip
	maxTotal int

	wsLimiter *WebSocketRateLimiter
}

// HubConfig configures connection limits and origin checks.
type HubConfig struct {
	MaxConnections      int
	MaxConnectionsPerIP int
	Origins             *OriginChecker
}

func NewWebSocketHub(manager *relay.Manager, cfg HubConfig) *WebSocketHub {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = MaxWSConnectionsTotal
	}
	if cfg.MaxConnectionsPerIP <= 0 {
		cfg.MaxConnectionsPerIP = MaxWSConnectionsPerIP
	}
	origins := cfg.Origins
	if origins == nil {
		origins = NewOriginChecker(nil)
	}
	h := &WebSocketHub{
		manager:   manager,
		clients:   make(map[*wsConn]string),
		maxTotal:  cfg.MaxConnections,
		wsLimiter: NewWebSocketRateLimiter(cfg.MaxConnectionsPerIP),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			// Non-browser clients send no Origin.
			if origin == "" || origins.Allowed(origin) {
				return true
			}
			log.WithField("origin", origin).Warn("websocket connection rejected: origin")
			metrics.RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *WebSocketHub) register(c *wsConn, ip string) {
	h.mu.Lock()
	h.clients[c] = ip
	count := len(h.clients)
	h.mu.Unlock()
	metrics.WSConnected()
	log.WithFields(log.Fields{"remote": ip, "total": count}).Debug("client connected")
}

func (h *WebSocketHub) unregister(c *wsConn) {
	h.mu.Lock()
	ip, ok := h.clients[c]
	delete(h.clients, c)
	count := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}
	h.wsLimiter.Release(ip)
	metrics.WSDisconnected()
	log.WithFields(log.Fields{"remote": ip, "total": count}).Debug("client disconnected")
}

// Close disconnects every client.
func (h *WebSocketHub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.Close()
	}
}

// HandleWebSocket upgrades the request and pumps frames between the socket
// and a relay client. ?codec=msgpack selects binary frames.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	codec, err := protocol.ForName(r.URL.Query().Get("codec"))
	if err != nil {
		metrics.RecordConnectionRejected("codec")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if total := h.ClientCount(); total >= h.maxTotal {
		log.WithField("total", total).Warn("websocket connection rejected: total limit reached")
		metrics.RecordConnectionRejected("ws_limit")
		http.Error(w, "Too many connections", http.StatusServiceUnavailable)
		return
	}
	if !h.wsLimiter.Allow(ip) {
		log.WithField("remote", ip).Warn("websocket connection rejected: per-IP limit reached")
		metrics.RecordConnectionRejected("ws_limit")
		http.Error(w, "Too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).WithField("remote", ip).Debug("websocket upgrade failed")
		h.wsLimiter.Release(ip)
		return
	}

	wc := newWSConn(conn, codec)
	h.register(wc, ip)
	client := h.manager.Connect(wc, codec, ip)

	go wc.writePump()
	go func() {
		defer func() {
			client.Disconnect()
			wc.Close()
			h.unregister(wc)
		}()

		conn.SetReadLimit(maxFrameSize)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			metrics.WSMessageIn()
			client.HandleFrame(frame)
		}
	}()
}
