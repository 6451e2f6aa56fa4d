// Package relay pairs two peers per room word and coordinates stage and
// character votes, seeds, rematches and disconnects. In relay mode actions
// are forwarded verbatim; in authoritative mode the room runs the engine and
// only accepted actions reach the peers.
package relay

import (
	"crypto/rand"
	"math/big"
	"sort"
	"sync"
	"time"

	"vector-void/internal/game"
	"vector-void/internal/metrics"
)

// MinWordLength is the shortest room word accepted by join_room.
const MinWordLength = 3

type Options struct {
	Authoritative bool
	// TurnTimeout ends an authoritative match when the current player does
	// not finish their turn in time. Zero disables the timer.
	TurnTimeout time.Duration
	// RoomSeed seeds every room's stream when non-zero. Zero seeds each room
	// from the clock.
	RoomSeed int64
	// Per-connection action throttle.
	ActionsPerSecond float64
	ActionBurst      int

	Archive MatchSaver
	Events  *game.EventLog
}

func DefaultOptions() Options {
	return Options{
		ActionsPerSecond: 10,
		ActionBurst:      20,
	}
}

func (o Options) mode() string {
	if o.Authoritative {
		return "authoritative"
	}
	return "relay"
}

// Manager holds rooms by word. Rooms are created on first join or via
// CreateRoom, and removed when a peer leaves.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	opts  Options
}

func NewManager(opts Options) *Manager {
	if opts.ActionsPerSecond <= 0 {
		opts.ActionsPerSecond = DefaultOptions().ActionsPerSecond
	}
	if opts.ActionBurst <= 0 {
		opts.ActionBurst = DefaultOptions().ActionBurst
	}
	return &Manager{
		rooms: make(map[string]*Room),
		opts:  opts,
	}
}

func (m *Manager) Options() Options { return m.opts }

// GetOrCreateRoom returns the room for the given word, creating it if needed.
func (m *Manager) GetOrCreateRoom(code string) *Room {
	if code == "" {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[code]; ok {
		return r
	}
	return m.newRoomLocked(code)
}

func (m *Manager) newRoomLocked(code string) *Room {
	seed := m.opts.RoomSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r := newRoom(code, m.opts, seed)
	r.OnClose = func(c string) {
		m.removeRoom(c, r)
	}
	m.rooms[code] = r
	metrics.RoomOpened()
	go r.Run()
	return r
}

func (m *Manager) removeRoom(code string, r *Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.rooms[code]; ok && cur == r {
		delete(m.rooms, code)
		metrics.RoomClosed()
	}
	r.Stop()
}

const codeChars = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CreateRoom generates a unique 6-char word, creates the room, and returns the word.
func (m *Manager) CreateRoom() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for {
		code := generateCode(6)
		if _, exists := m.rooms[code]; exists {
			continue
		}
		m.newRoomLocked(code)
		return code
	}
}

// ListRooms returns all active rooms sorted by word.
func (m *Manager) ListRooms() []Info {
	m.mu.RLock()
	out := make([]Info, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r.Info())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Close stops every room. Connected peers are left to their transports.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for code, r := range m.rooms {
		r.Stop()
		delete(m.rooms, code)
		metrics.RoomClosed()
	}
}

func generateCode(n int) string {
	b := make([]byte, n)
	max := big.NewInt(int64(len(codeChars)))
	for i := range b {
		idx, _ := rand.Int(rand.Reader, max)
		b[i] = codeChars[idx.Int64()]
	}
	return string(b)
}
