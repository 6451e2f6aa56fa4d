package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"vector-void/internal/protocol"
	"vector-void/internal/relay"
)

func newTestServer(t *testing.T, hub HubConfig) string {
	t.Helper()
	mgr := relay.NewManager(relay.DefaultOptions())
	s := NewServer(ServerConfig{
		Manager:   mgr,
		Hub:       hub,
		RateLimit: RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000, CleanupInterval: time.Hour},
	})
	ts := httptest.NewServer(s.Router())
	t.Cleanup(func() {
		ts.Close()
		_ = s.Shutdown(context.Background())
		mgr.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("dial %s: %v (status %d)", url, err, status)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, codec protocol.Codec, typ string, payload any) {
	t.Helper()
	b, err := codec.Encode(typ, payload)
	if err != nil {
		t.Fatal(err)
	}
	mt := websocket.TextMessage
	if codec.Binary() {
		mt = websocket.BinaryMessage
	}
	if err := conn.WriteMessage(mt, b); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

func readFrame(t *testing.T, conn *websocket.Conn, codec protocol.Codec, want string) protocol.Envelope {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	mt, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read (waiting for %s): %v", want, err)
	}
	if codec.Binary() != (mt == websocket.BinaryMessage) {
		t.Fatalf("unexpected frame type %d for codec %s", mt, codec.Name())
	}
	env, err := codec.DecodeEnvelope(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.T != want {
		t.Fatalf("expected %s, got %s", want, env.T)
	}
	return env
}

func TestWebSocketPairsAndRelays(t *testing.T) {
	url := newTestServer(t, HubConfig{})
	codec := protocol.JSON

	p1 := dial(t, url, nil)
	sendFrame(t, p1, codec, protocol.MsgJoinRoom, protocol.JoinRoom{Word: "socket"})
	env := readFrame(t, p1, codec, protocol.MsgPlayerJoined)
	joined, err := protocol.DecodePayload[protocol.PlayerJoined](codec, env)
	if err != nil || joined.Role != 1 {
		t.Fatalf("expected role 1, got %+v (%v)", joined, err)
	}

	p2 := dial(t, url, nil)
	sendFrame(t, p2, codec, protocol.MsgJoinRoom, protocol.JoinRoom{Word: "socket"})
	readFrame(t, p2, codec, protocol.MsgPlayerJoined)
	readFrame(t, p1, codec, protocol.MsgOpponentFound)
	readFrame(t, p2, codec, protocol.MsgOpponentFound)

	sent := protocol.Action{Type: protocol.ActionShootTarget, Data: protocol.ActionData{R: 2, C: 3}}
	sendFrame(t, p1, codec, protocol.MsgAction, sent)
	env = readFrame(t, p2, codec, protocol.MsgAction)
	got, err := protocol.DecodePayload[protocol.Action](codec, env)
	if err != nil || got.Type != sent.Type || got.Data != sent.Data {
		t.Fatalf("unexpected relayed action %+v (%v)", got, err)
	}

	p1.Close()
	readFrame(t, p2, codec, protocol.MsgOpponentDisconnected)
}

func TestWebSocketMsgpackCodec(t *testing.T) {
	url := newTestServer(t, HubConfig{})
	codec := protocol.Msgpack

	conn := dial(t, url+"?codec=msgpack", nil)
	sendFrame(t, conn, codec, protocol.MsgJoinRoom, protocol.JoinRoom{Word: "binary"})
	env := readFrame(t, conn, codec, protocol.MsgPlayerJoined)
	joined, err := protocol.DecodePayload[protocol.PlayerJoined](codec, env)
	if err != nil || joined.Role != 1 {
		t.Fatalf("expected role 1, got %+v (%v)", joined, err)
	}
}

func TestWebSocketRejections(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		origin string
		want   int
	}{
		{"unknown codec", "?codec=xml", "", http.StatusBadRequest},
		{"foreign origin", "", "https://evil.example", http.StatusForbidden},
	}
	url := newTestServer(t, HubConfig{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}
			_, resp, err := websocket.DefaultDialer.Dial(url+tt.query, header)
			if err == nil {
				t.Fatal("expected dial to fail")
			}
			if resp == nil || resp.StatusCode != tt.want {
				t.Fatalf("expected status %d, got %+v", tt.want, resp)
			}
		})
	}
}

func TestWebSocketPerIPLimit(t *testing.T) {
	url := newTestServer(t, HubConfig{MaxConnectionsPerIP: 1})
	dial(t, url, nil)

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected second connection to be refused")
	}
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %+v", resp)
	}
}
