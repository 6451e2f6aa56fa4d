package relay

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"vector-void/internal/archive"
	"vector-void/internal/game"
	"vector-void/internal/protocol"
)

type sent struct {
	t       string
	payload any
}

type fakeConn struct {
	sendCh chan sent
	closed atomic.Bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{sendCh: make(chan sent, 64)}
}

func (f *fakeConn) Send(t string, payload any) error {
	f.sendCh <- sent{t: t, payload: payload}
	return nil
}

func (f *fakeConn) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *fakeConn) expect(t *testing.T, want string) sent {
	t.Helper()
	select {
	case m := <-f.sendCh:
		if m.t != want {
			t.Fatalf("expected %s, got %s (%+v)", want, m.t, m.payload)
		}
		return m
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
	return sent{}
}

func (f *fakeConn) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case m := <-f.sendCh:
		t.Fatalf("unexpected %s (%+v)", m.t, m.payload)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeSaver struct {
	saved chan *archive.Match
}

func (s *fakeSaver) SaveMatch(_ context.Context, m *archive.Match) error {
	s.saved <- m
	return nil
}

func frame(t *testing.T, typ string, payload any) []byte {
	t.Helper()
	b, err := protocol.JSON.Encode(typ, payload)
	if err != nil {
		t.Fatalf("encode %s: %v", typ, err)
	}
	return b
}

type peer struct {
	c *Client
	f *fakeConn
}

func (p peer) send(t *testing.T, typ string, payload any) {
	t.Helper()
	p.c.HandleFrame(frame(t, typ, payload))
}

// joinPair connects two peers to word and drains the join handshake.
func joinPair(t *testing.T, opts Options, word string) (*Manager, [2]peer) {
	t.Helper()
	m := NewManager(opts)
	t.Cleanup(m.Close)

	var peers [2]peer
	for i := range peers {
		f := newFakeConn()
		peers[i] = peer{c: m.Connect(f, protocol.JSON, "test"), f: f}
		peers[i].send(t, protocol.MsgJoinRoom, protocol.JoinRoom{Word: word})
		joined := f.expect(t, protocol.MsgPlayerJoined).payload.(protocol.PlayerJoined)
		if joined.Role != i+1 {
			t.Fatalf("peer %d: expected role %d, got %d", i, i+1, joined.Role)
		}
	}
	peers[0].f.expect(t, protocol.MsgOpponentFound)
	peers[1].f.expect(t, protocol.MsgOpponentFound)
	return m, peers
}

func selectStage(t *testing.T, peers [2]peer, mapID string) protocol.StageSelected {
	t.Helper()
	peers[0].send(t, protocol.MsgStageVote, protocol.StageVote{MapID: mapID})
	peers[0].f.expect(t, protocol.MsgWaitingForOpponent)
	peers[1].send(t, protocol.MsgStageVote, protocol.StageVote{MapID: mapID})
	a := peers[0].f.expect(t, protocol.MsgStageSelected).payload.(protocol.StageSelected)
	b := peers[1].f.expect(t, protocol.MsgStageSelected).payload.(protocol.StageSelected)
	if a != b {
		t.Fatalf("peers saw different stages: %+v vs %+v", a, b)
	}
	return a
}

func startGame(t *testing.T, peers [2]peer, p1, p2 string) protocol.GameStart {
	t.Helper()
	peers[0].send(t, protocol.MsgCharacterVote, protocol.CharacterVote{Character: p1})
	peers[0].f.expect(t, protocol.MsgWaitingForOpponent)
	peers[1].send(t, protocol.MsgCharacterVote, protocol.CharacterVote{Character: p2})
	a := peers[0].f.expect(t, protocol.MsgGameStart).payload.(protocol.GameStart)
	b := peers[1].f.expect(t, protocol.MsgGameStart).payload.(protocol.GameStart)
	if a != b {
		t.Fatalf("peers saw different starts: %+v vs %+v", a, b)
	}
	return a
}

func TestJoinAssignsRolesAndRejectsThird(t *testing.T) {
	m, peers := joinPair(t, DefaultOptions(), "apple")
	if peers[0].c.Role() != game.P1 || peers[1].c.Role() != game.P2 {
		t.Fatalf("unexpected roles %v %v", peers[0].c.Role(), peers[1].c.Role())
	}

	f := newFakeConn()
	third := m.Connect(f, protocol.JSON, "test")
	third.HandleFrame(frame(t, protocol.MsgJoinRoom, protocol.JoinRoom{Word: "apple"}))
	f.expect(t, protocol.MsgRoomFull)
	if third.Room() != "" {
		t.Fatalf("third peer should not be in a room, got %q", third.Room())
	}

	rooms := m.ListRooms()
	if len(rooms) != 1 || rooms[0].Code != "apple" || rooms[0].Players != 2 {
		t.Fatalf("unexpected room list %+v", rooms)
	}
}

func TestShortWordIgnored(t *testing.T) {
	m := NewManager(DefaultOptions())
	defer m.Close()

	f := newFakeConn()
	c := m.Connect(f, protocol.JSON, "test")
	c.HandleFrame(frame(t, protocol.MsgJoinRoom, protocol.JoinRoom{Word: "ab"}))
	f.expectNothing(t)
	if c.Room() != "" || m.Count() != 0 {
		t.Fatal("short word must not create a room")
	}
}

func TestFramesBeforeJoinRejected(t *testing.T) {
	m := NewManager(DefaultOptions())
	defer m.Close()

	f := newFakeConn()
	c := m.Connect(f, protocol.JSON, "test")
	c.HandleFrame(frame(t, protocol.MsgStageVote, protocol.StageVote{MapID: "void_5"}))
	f.expect(t, protocol.MsgError)

	c.HandleFrame([]byte("not json"))
	f.expect(t, protocol.MsgError)

	c.HandleFrame(frame(t, protocol.MsgGameStart, nil))
	f.expect(t, protocol.MsgError)
}

func TestStageVoteUsesRoomStream(t *testing.T) {
	opts := DefaultOptions()
	opts.RoomSeed = 42
	_, peers := joinPair(t, opts, "stream")

	peers[0].send(t, protocol.MsgStageVote, protocol.StageVote{MapID: "void_5"})
	peers[0].f.expect(t, protocol.MsgWaitingForOpponent)
	peers[1].send(t, protocol.MsgStageVote, protocol.StageVote{MapID: "rift_9"})
	got := peers[0].f.expect(t, protocol.MsgStageSelected).payload.(protocol.StageSelected)
	peers[1].f.expect(t, protocol.MsgStageSelected)

	s := game.NewStream(42)
	votes := [2]string{"void_5", "rift_9"}
	want := protocol.StageSelected{MapID: votes[s.Range(0, 2)]}
	want.Seed = int64(s.Range(0, protocol.MaxSeed))
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestCharacterVoteNeedsStage(t *testing.T) {
	_, peers := joinPair(t, DefaultOptions(), "early")
	peers[0].send(t, protocol.MsgCharacterVote, protocol.CharacterVote{Character: "void_drifter"})
	peers[0].f.expect(t, protocol.MsgError)
}

func TestGameStartAttributesVotesByConnection(t *testing.T) {
	_, peers := joinPair(t, DefaultOptions(), "chars")
	stage := selectStage(t, peers, "crossroads_7")

	// playerId claims are ignored.
	peers[0].send(t, protocol.MsgCharacterVote, protocol.CharacterVote{Character: "swift_shadow", PlayerID: 2})
	peers[0].f.expect(t, protocol.MsgWaitingForOpponent)
	peers[1].send(t, protocol.MsgCharacterVote, protocol.CharacterVote{Character: "heavy_guardian", PlayerID: 2})
	gs := peers[1].f.expect(t, protocol.MsgGameStart).payload.(protocol.GameStart)
	peers[0].f.expect(t, protocol.MsgGameStart)

	if gs.P1Character != "swift_shadow" || gs.P2Character != "heavy_guardian" {
		t.Fatalf("unexpected characters %+v", gs)
	}
	if gs.MapID != stage.MapID || gs.Seed != stage.Seed {
		t.Fatalf("game start %+v does not match stage %+v", gs, stage)
	}
	if gs.MatchID != "" {
		t.Fatal("relay mode must not assign match ids")
	}
}

func TestRelayForwardsActionsToOpponent(t *testing.T) {
	_, peers := joinPair(t, DefaultOptions(), "relay")
	selectStage(t, peers, "void_5")
	startGame(t, peers, "void_drifter", "void_drifter")

	a := protocol.Action{Type: protocol.ActionMove, Data: protocol.ActionData{R: 1, C: 1}}
	peers[0].send(t, protocol.MsgAction, a)
	got := peers[1].f.expect(t, protocol.MsgAction).payload.(protocol.Action)
	if got.Type != a.Type || got.Data != a.Data {
		t.Fatalf("expected %+v, got %+v", a, got)
	}
	peers[0].f.expectNothing(t)
}

func TestActionThrottle(t *testing.T) {
	opts := DefaultOptions()
	opts.ActionsPerSecond = 0.01
	opts.ActionBurst = 1
	_, peers := joinPair(t, opts, "throttle")

	a := protocol.Action{Type: protocol.ActionShoot, Data: protocol.ActionData{Dir: "N"}}
	peers[0].send(t, protocol.MsgAction, a)
	peers[1].f.expect(t, protocol.MsgAction)

	peers[0].send(t, protocol.MsgAction, a)
	rej := peers[0].f.expect(t, protocol.MsgActionRejected).payload.(protocol.ActionRejected)
	if rej.Reason != "throttled" {
		t.Fatalf("expected throttled, got %q", rej.Reason)
	}
	peers[1].f.expectNothing(t)
}

func TestRematchFlow(t *testing.T) {
	_, peers := joinPair(t, DefaultOptions(), "again")
	selectStage(t, peers, "void_5")

	peers[0].send(t, protocol.MsgRematchRequest, nil)
	st := peers[0].f.expect(t, protocol.MsgRematchWaiting).payload.(protocol.RematchStatus)
	if !st.Player1Ready || st.Player2Ready {
		t.Fatalf("unexpected status %+v", st)
	}
	peers[1].f.expect(t, protocol.MsgOpponentWaitingRematch)

	peers[1].send(t, protocol.MsgRematchRequest, nil)
	a := peers[0].f.expect(t, protocol.MsgRematchStart).payload.(protocol.Seeded)
	b := peers[1].f.expect(t, protocol.MsgRematchStart).payload.(protocol.Seeded)
	if a != b || a.Seed < 0 || a.Seed >= protocol.MaxSeed {
		t.Fatalf("bad rematch seeds %+v %+v", a, b)
	}

	// Readiness starts over after a rematch.
	peers[1].send(t, protocol.MsgRematchRequest, nil)
	st = peers[1].f.expect(t, protocol.MsgRematchWaiting).payload.(protocol.RematchStatus)
	if st.Player1Ready || !st.Player2Ready {
		t.Fatalf("unexpected status %+v", st)
	}
	peers[0].f.expect(t, protocol.MsgOpponentWaitingRematch)
}

func TestRematchIgnoredBeforeStage(t *testing.T) {
	_, peers := joinPair(t, DefaultOptions(), "nostage")
	peers[0].send(t, protocol.MsgRematchRequest, nil)
	peers[0].f.expectNothing(t)
}

func TestMenuCancelsRematch(t *testing.T) {
	_, peers := joinPair(t, DefaultOptions(), "menu")
	selectStage(t, peers, "void_5")

	peers[0].send(t, protocol.MsgRematchRequest, nil)
	peers[0].f.expect(t, protocol.MsgRematchWaiting)
	peers[1].f.expect(t, protocol.MsgOpponentWaitingRematch)

	peers[1].send(t, protocol.MsgMenuRequest, nil)
	peers[0].f.expect(t, protocol.MsgRematchCancelled)
	peers[1].f.expect(t, protocol.MsgRematchCancelled)

	peers[1].send(t, protocol.MsgRematchRequest, nil)
	st := peers[1].f.expect(t, protocol.MsgRematchWaiting).payload.(protocol.RematchStatus)
	if st.Player1Ready {
		t.Fatal("menu request should clear readiness")
	}
}

func TestResetBroadcastsSeed(t *testing.T) {
	_, peers := joinPair(t, DefaultOptions(), "reset")
	peers[1].send(t, protocol.MsgResetGame, nil)
	a := peers[0].f.expect(t, protocol.MsgGameReset).payload.(protocol.Seeded)
	b := peers[1].f.expect(t, protocol.MsgGameReset).payload.(protocol.Seeded)
	if a != b {
		t.Fatalf("peers saw different seeds %+v %+v", a, b)
	}
}

// counterValue reads a labelled counter from the default registry.
func counterValue(t *testing.T, name, label, value string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestAuthoritativeResetCountsNewMatch(t *testing.T) {
	opts := DefaultOptions()
	opts.Authoritative = true
	opts.RoomSeed = 3
	_, peers := joinPair(t, opts, "recount")
	selectStage(t, peers, "void_5")

	started := counterValue(t, "relay_matches_started_total", "mode", "authoritative")
	abandoned := counterValue(t, "relay_matches_finished_total", "reason", "abandoned")
	first := startGame(t, peers, "void_drifter", "swift_shadow")

	peers[0].send(t, protocol.MsgResetGame, nil)
	reset := peers[0].f.expect(t, protocol.MsgGameReset).payload.(protocol.Seeded)
	peers[1].f.expect(t, protocol.MsgGameReset)
	if reset.MatchID == "" || reset.MatchID == first.MatchID {
		t.Fatalf("expected a fresh match id, got %q after %q", reset.MatchID, first.MatchID)
	}

	if got := counterValue(t, "relay_matches_started_total", "mode", "authoritative") - started; got != 2 {
		t.Errorf("expected 2 started matches (start and reset), got %v", got)
	}
	if got := counterValue(t, "relay_matches_finished_total", "reason", "abandoned") - abandoned; got != 1 {
		t.Errorf("expected the reset match to count as abandoned once, got %v", got)
	}
}

func TestDisconnectClosesRoom(t *testing.T) {
	m, peers := joinPair(t, DefaultOptions(), "leave")
	selectStage(t, peers, "void_5")

	peers[0].c.Disconnect()
	peers[1].f.expect(t, protocol.MsgRematchCancelled)
	peers[1].f.expect(t, protocol.MsgOpponentDisconnected)
	if !peers[0].f.closed.Load() {
		t.Error("leaving peer should be closed")
	}

	deadline := time.Now().Add(time.Second)
	for m.Count() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("room was not removed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	peers[1].send(t, protocol.MsgResetGame, nil)
	peers[1].f.expect(t, protocol.MsgError)
	if peers[1].c.Room() != "" {
		t.Fatal("remaining peer should be detached from the closed room")
	}

	// The word can be reused right away.
	peers[1].send(t, protocol.MsgJoinRoom, protocol.JoinRoom{Word: "leave"})
	joined := peers[1].f.expect(t, protocol.MsgPlayerJoined).payload.(protocol.PlayerJoined)
	if joined.Role != 1 {
		t.Fatalf("expected role 1 in the fresh room, got %d", joined.Role)
	}
}

func TestAuthoritativeMatch(t *testing.T) {
	opts := DefaultOptions()
	opts.Authoritative = true
	opts.RoomSeed = 7
	_, peers := joinPair(t, opts, "engine")

	peers[0].send(t, protocol.MsgStageVote, protocol.StageVote{MapID: "nowhere"})
	peers[0].f.expect(t, protocol.MsgError)

	selectStage(t, peers, "void_5")
	gs := startGame(t, peers, "void_drifter", "void_drifter")
	if gs.MatchID == "" {
		t.Fatal("expected a match id")
	}
	starter := game.PlayerID(gs.StartingPlayer)
	if !starter.Valid() {
		t.Fatalf("invalid starting player %d", gs.StartingPlayer)
	}
	mover, waiter := peers[starter.Index()], peers[starter.Opponent().Index()]
	corner := map[game.PlayerID]game.Position{game.P1: {R: 0, C: 0}, game.P2: {R: 4, C: 4}}
	inner := map[game.PlayerID]game.Position{game.P1: {R: 1, C: 1}, game.P2: {R: 3, C: 3}}

	// Out of turn: dropped silently.
	wp := corner[starter.Opponent()]
	waiter.send(t, protocol.MsgAction, protocol.Action{Type: protocol.ActionMove, Data: protocol.ActionData{R: wp.R, C: wp.C}})
	waiter.f.expectNothing(t)
	mover.f.expectNothing(t)

	// Own tile is occupied.
	own := corner[starter]
	mover.send(t, protocol.MsgAction, protocol.Action{Type: protocol.ActionMove, Data: protocol.ActionData{R: own.R, C: own.C}})
	rej := mover.f.expect(t, protocol.MsgActionRejected).payload.(protocol.ActionRejected)
	if rej.Reason != "illegal" {
		t.Fatalf("expected illegal, got %q", rej.Reason)
	}

	mover.send(t, protocol.MsgAction, protocol.Action{Type: protocol.ActionShoot, Data: protocol.ActionData{Dir: "up"}})
	rej = mover.f.expect(t, protocol.MsgActionRejected).payload.(protocol.ActionRejected)
	if rej.Reason != "malformed" {
		t.Fatalf("expected malformed, got %q", rej.Reason)
	}

	to := inner[starter]
	mover.send(t, protocol.MsgAction, protocol.Action{Type: protocol.ActionMove, Data: protocol.ActionData{R: to.R, C: to.C}})
	for _, p := range []peer{peers[0], peers[1]} {
		got := p.f.expect(t, protocol.MsgAction).payload.(protocol.Action)
		if got.Player != int(starter) || got.State == nil {
			t.Fatalf("unexpected broadcast %+v", got)
		}
		if got.State.CurrentPlayer != starter.String() || got.State.Phase != "shoot" {
			t.Fatalf("unexpected state %s/%s", got.State.CurrentPlayer, got.State.Phase)
		}
	}
}

func TestTurnTimeoutFinishesAndArchives(t *testing.T) {
	saver := &fakeSaver{saved: make(chan *archive.Match, 1)}
	opts := DefaultOptions()
	opts.Authoritative = true
	opts.RoomSeed = 11
	opts.TurnTimeout = 30 * time.Millisecond
	opts.Archive = saver
	_, peers := joinPair(t, opts, "clock")

	selectStage(t, peers, "crossroads_7")
	gs := startGame(t, peers, "swift_shadow", "heavy_guardian")
	starter := game.PlayerID(gs.StartingPlayer)

	for _, p := range peers {
		over := p.f.expect(t, protocol.MsgGameOver).payload.(protocol.GameOver)
		if over.Reason != "timeout" || over.Winner != int(starter.Opponent()) || over.MatchID != gs.MatchID {
			t.Fatalf("unexpected game over %+v", over)
		}
	}

	var m *archive.Match
	select {
	case m = <-saver.saved:
	case <-time.After(time.Second):
		t.Fatal("match was not archived")
	}
	if m.ID != gs.MatchID || m.Room != "clock" || m.Reason != "timeout" {
		t.Fatalf("unexpected archive record %+v", m)
	}
	cfg, err := m.Config()
	if err != nil {
		t.Fatal(err)
	}
	replayed, err := game.Replay(cfg, m.Actions)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed.Winner() != starter.Opponent() {
		t.Fatalf("replay winner %v, expected %v", replayed.Winner(), starter.Opponent())
	}

	// Further actions are refused.
	peers[0].send(t, protocol.MsgAction, protocol.Action{Type: protocol.ActionMove, Data: protocol.ActionData{R: 1, C: 0}})
	rej := peers[0].f.expect(t, protocol.MsgActionRejected).payload.(protocol.ActionRejected)
	if rej.Reason != "no_match" {
		t.Fatalf("expected no_match, got %q", rej.Reason)
	}
}

func TestManagerCreateRoom(t *testing.T) {
	m := NewManager(DefaultOptions())
	defer m.Close()

	code := m.CreateRoom()
	if len(code) != 6 {
		t.Fatalf("expected 6-char code, got %q", code)
	}
	if m.GetOrCreateRoom(code) == nil || m.Count() != 1 {
		t.Fatal("created room should be reachable")
	}
	if m.GetOrCreateRoom("") != nil {
		t.Fatal("empty word must not create a room")
	}
	rooms := m.ListRooms()
	if len(rooms) != 1 || rooms[0].Players != 0 || rooms[0].InMatch {
		t.Fatalf("unexpected listing %+v", rooms)
	}
}
