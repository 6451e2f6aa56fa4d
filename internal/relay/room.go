package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"vector-void/internal/archive"
	"vector-void/internal/game"
	"vector-void/internal/metrics"
	"vector-void/internal/protocol"
)

const archiveTimeout = 5 * time.Second

type rematchState struct {
	ready [2]bool
}

// Room pairs two peers. All state is owned by the Run goroutine; other
// goroutines talk to it through Inbox.
type Room struct {
	Inbox chan any
	Code  string
	// OnClose is called from the room goroutine once a peer leaves.
	OnClose func(code string)

	opts   Options
	stream *game.Stream
	log    *log.Entry

	peers   [2]Conn
	players atomic.Int32
	inMatch atomic.Bool
	closed  bool

	stageVotes [2]string
	charVotes  [2]string
	mapID      string
	seed       int64
	characters [2]string
	rematch    *rematchState

	// authoritative mode only
	engine     *game.Engine
	match      *archive.Match
	timer      *time.Timer
	timerToken uint64

	quit     chan struct{}
	stopOnce sync.Once
}

func newRoom(code string, opts Options, seed int64) *Room {
	return &Room{
		Inbox:  make(chan any, 64),
		Code:   code,
		opts:   opts,
		stream: game.NewStream(seed),
		log:    log.WithFields(log.Fields{"room": code, "mode": opts.mode()}),
		quit:   make(chan struct{}),
	}
}

func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
}

// NumPlayers returns the current number of connected peers.
func (r *Room) NumPlayers() int {
	return int(r.players.Load())
}

func (r *Room) Info() Info {
	return Info{Code: r.Code, Players: r.NumPlayers(), InMatch: r.inMatch.Load()}
}

// submit queues cmd unless the room has shut down.
func (r *Room) submit(cmd any) bool {
	select {
	case <-r.quit:
		return false
	default:
	}
	select {
	case r.Inbox <- cmd:
		return true
	case <-r.quit:
		return false
	}
}

func (r *Room) Run() {
	defer r.stopTimer()
	for {
		select {
		case <-r.quit:
			return
		case cmd := <-r.Inbox:
			r.handleCommand(cmd)
		}
	}
}

func (r *Room) handleCommand(cmd any) {
	// A closing room drops everything. Pending joins see quit and retry
	// against a fresh room.
	if r.closed {
		return
	}
	switch c := cmd.(type) {
	case Join:
		r.handleJoin(c)
	case StageVote:
		if r.peer(c.Role) != nil {
			r.handleStageVote(c)
		}
	case CharacterVote:
		if r.peer(c.Role) != nil {
			r.handleCharacterVote(c)
		}
	case Action:
		if r.peer(c.Role) != nil {
			r.handleAction(c)
		}
	case ResetGame:
		if r.peer(c.Role) != nil {
			r.handleReset()
		}
	case RematchRequest:
		if r.peer(c.Role) != nil {
			r.handleRematch(c.Role)
		}
	case MenuRequest:
		if r.peer(c.Role) != nil {
			r.handleMenu()
		}
	case Leave:
		r.handleLeave(c.Role)
	case turnExpired:
		r.handleTurnExpired(c.token)
	}
}

func (r *Room) peer(role game.PlayerID) Conn {
	if !role.Valid() {
		return nil
	}
	return r.peers[role.Index()]
}

func (r *Room) sendTo(role game.PlayerID, t string, payload any) {
	c := r.peer(role)
	if c == nil {
		return
	}
	if err := c.Send(t, payload); err != nil {
		// The connection's read loop notices the close and posts Leave.
		r.log.WithError(err).WithFields(log.Fields{"role": role, "type": t}).Warn("send failed, closing peer")
		_ = c.Close()
	}
}

func (r *Room) broadcast(t string, payload any) {
	r.sendTo(game.P1, t, payload)
	r.sendTo(game.P2, t, payload)
}

func (r *Room) sendError(role game.PlayerID, msg string) {
	r.sendTo(role, protocol.MsgError, protocol.Error{Message: msg})
}

func (r *Room) drawSeed() int64 {
	return int64(r.stream.Range(0, protocol.MaxSeed))
}

func (r *Room) handleJoin(c Join) {
	slot := -1
	for i, p := range r.peers {
		if p == nil {
			slot = i
			break
		}
	}
	if slot < 0 {
		_ = c.Conn.Send(protocol.MsgRoomFull, nil)
		c.Reply <- JoinResult{Role: game.NoPlayer}
		return
	}

	role := game.PlayerID(slot + 1)
	r.peers[slot] = c.Conn
	r.players.Add(1)
	r.sendTo(role, protocol.MsgPlayerJoined, protocol.PlayerJoined{Role: int(role)})
	r.log.WithField("role", role).Info("player joined")
	c.Reply <- JoinResult{Role: role}

	if r.NumPlayers() == 2 {
		r.broadcast(protocol.MsgOpponentFound, nil)
	}
}

func (r *Room) handleStageVote(c StageVote) {
	if c.MapID == "" {
		r.sendError(c.Role, "mapId is required")
		return
	}
	if r.opts.Authoritative {
		if _, err := game.GetStage(c.MapID); err != nil {
			r.sendError(c.Role, err.Error())
			return
		}
	}

	r.stageVotes[c.Role.Index()] = c.MapID
	if r.stageVotes[0] == "" || r.stageVotes[1] == "" {
		r.sendTo(c.Role, protocol.MsgWaitingForOpponent, nil)
		return
	}

	votes := r.stageVotes
	r.stageVotes = [2]string{}
	r.mapID = votes[r.stream.Range(0, len(votes))]
	r.seed = r.drawSeed()
	r.rematch = &rematchState{}

	r.log.WithFields(log.Fields{"map": r.mapID, "seed": r.seed}).Info("stage selected")
	r.broadcast(protocol.MsgStageSelected, protocol.StageSelected{MapID: r.mapID, Seed: r.seed})
}

func (r *Room) handleCharacterVote(c CharacterVote) {
	if r.mapID == "" {
		r.sendError(c.Role, "no stage selected")
		return
	}
	if c.Character == "" {
		r.sendError(c.Role, "character is required")
		return
	}
	if r.opts.Authoritative {
		if _, err := game.ParseCharacter(c.Character); err != nil {
			r.sendError(c.Role, err.Error())
			return
		}
	}

	r.charVotes[c.Role.Index()] = c.Character
	if r.charVotes[0] == "" || r.charVotes[1] == "" {
		r.sendTo(c.Role, protocol.MsgWaitingForOpponent, nil)
		return
	}

	r.characters = r.charVotes
	r.charVotes = [2]string{}
	start := protocol.GameStart{
		MapID:       r.mapID,
		Seed:        r.seed,
		P1Character: r.characters[0],
		P2Character: r.characters[1],
	}
	if r.opts.Authoritative {
		if err := r.startMatch(r.seed); err != nil {
			r.log.WithError(err).Error("start match")
			r.broadcast(protocol.MsgError, protocol.Error{Message: "could not start match"})
			return
		}
		start.MatchID = r.match.ID
		start.StartingPlayer = int(r.engine.CurrentPlayer())
	}

	metrics.MatchStarted(r.opts.mode())
	r.log.WithFields(log.Fields{"p1": start.P1Character, "p2": start.P2Character}).Info("game start")
	r.broadcast(protocol.MsgGameStart, start)
}

// startMatch builds the authoritative engine for the current stage and
// characters, abandoning any match still in progress.
func (r *Room) startMatch(seed int64) error {
	r.abandonMatch()

	stage, err := game.GetStage(r.mapID)
	if err != nil {
		return err
	}
	var chars [2]game.CharacterType
	for i, id := range r.characters {
		if chars[i], err = game.ParseCharacter(id); err != nil {
			return err
		}
	}

	id := archive.NewMatchID()
	e, err := game.New(game.Config{
		MatchID:    id,
		Layout:     stage.Layout,
		Characters: chars,
		Seed:       seed,
		Events:     r.opts.Events,
	})
	if err != nil {
		return err
	}

	r.engine = e
	r.match = &archive.Match{
		ID:             id,
		Room:           r.Code,
		StageID:        stage.ID,
		Seed:           seed,
		P1Character:    r.characters[0],
		P2Character:    r.characters[1],
		StartingPlayer: e.CurrentPlayer().String(),
		StartedAt:      time.Now(),
	}
	r.inMatch.Store(true)
	r.armTimer()
	return nil
}

// abandonMatch drops an unfinished authoritative match without archiving it.
func (r *Room) abandonMatch() {
	r.stopTimer()
	if r.match == nil {
		return
	}
	metrics.MatchFinished("abandoned", time.Since(r.match.StartedAt))
	r.log.WithField("match", r.match.ID).Info("match abandoned")
	r.match = nil
	r.inMatch.Store(false)
}

func (r *Room) handleAction(c Action) {
	if !r.opts.Authoritative {
		if r.peer(c.Role.Opponent()) == nil {
			return
		}
		metrics.ActionRelayed()
		r.sendTo(c.Role.Opponent(), protocol.MsgAction, c.Action)
		return
	}

	e := r.engine
	if e == nil || r.match == nil || e.GameOver() {
		r.reject(c.Role, c.Action.Type, "no_match")
		return
	}
	if c.Role != e.CurrentPlayer() {
		metrics.ActionRejected("out_of_turn")
		r.log.WithFields(log.Fields{"role": c.Role, "type": c.Action.Type}).Debug("dropped out-of-turn action")
		return
	}

	turn := e.Turn()
	if reason := applyAction(e, c.Action); reason != "" {
		r.reject(c.Role, c.Action.Type, reason)
		return
	}

	metrics.ActionRelayed()
	snap := e.Snapshot()
	out := c.Action
	out.Player = int(c.Role)
	out.State = &snap
	r.broadcast(protocol.MsgAction, out)

	if e.GameOver() {
		r.finishMatch()
	} else if e.Turn() != turn {
		r.armTimer()
	}
}

// applyAction feeds one intent to the engine and returns the rejection
// reason, or "" when it was applied.
func applyAction(e *game.Engine, a protocol.Action) string {
	switch a.Type {
	case protocol.ActionMove:
		if !e.Move(a.Data.R, a.Data.C) {
			return "illegal"
		}
	case protocol.ActionShoot:
		d, ok := game.ParseDirection(a.Data.Dir)
		if !ok {
			return "malformed"
		}
		if !e.Shoot(d).OK {
			return "illegal"
		}
	case protocol.ActionShootTarget:
		if !e.ShootTarget(a.Data.R, a.Data.C) {
			return "illegal"
		}
	default:
		return "malformed"
	}
	return ""
}

func (r *Room) reject(role game.PlayerID, actionType, reason string) {
	metrics.ActionRejected(reason)
	r.sendTo(role, protocol.MsgActionRejected, protocol.ActionRejected{Type: actionType, Reason: reason})
}

func (r *Room) finishMatch() {
	r.stopTimer()
	e, m := r.engine, r.match
	if m == nil {
		return
	}
	r.match = nil
	r.inMatch.Store(false)

	m.Winner = e.Winner().String()
	m.Reason = e.EndReason()
	m.Turns = e.Turn()
	m.Actions = e.Journal()
	m.FinishedAt = time.Now()

	r.broadcast(protocol.MsgGameOver, protocol.GameOver{MatchID: m.ID, Winner: int(e.Winner()), Reason: m.Reason})
	metrics.MatchFinished(m.Reason, m.FinishedAt.Sub(m.StartedAt))

	logger := r.log.WithFields(log.Fields{"match": m.ID, "winner": m.Winner, "reason": m.Reason, "turns": m.Turns})
	logger.Info("match finished")

	if r.opts.Archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := r.opts.Archive.SaveMatch(ctx, m); err != nil {
		logger.WithError(err).Error("archive match")
	}
}

func (r *Room) armTimer() {
	r.stopTimer()
	if r.opts.TurnTimeout <= 0 || r.engine == nil || r.engine.GameOver() {
		return
	}
	r.timerToken++
	token := r.timerToken
	r.timer = time.AfterFunc(r.opts.TurnTimeout, func() {
		r.submit(turnExpired{token: token})
	})
}

func (r *Room) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Room) handleTurnExpired(token uint64) {
	if token != r.timerToken || r.engine == nil || r.match == nil || r.engine.GameOver() {
		return
	}
	r.log.WithField("player", r.engine.CurrentPlayer()).Info("turn timed out")
	r.engine.HandleTimeout()
	r.finishMatch()
}

func (r *Room) handleReset() {
	seed := r.drawSeed()
	if r.rematch != nil {
		r.rematch = &rematchState{}
	}
	r.seed = seed

	msg := protocol.Seeded{Seed: seed}
	if r.opts.Authoritative && r.engine != nil {
		if err := r.startMatch(seed); err != nil {
			r.log.WithError(err).Error("reset match")
			return
		}
		metrics.MatchStarted(r.opts.mode())
		msg.MatchID = r.match.ID
		msg.StartingPlayer = int(r.engine.CurrentPlayer())
	}
	r.log.WithField("seed", seed).Info("game reset")
	r.broadcast(protocol.MsgGameReset, msg)
}

func (r *Room) handleRematch(role game.PlayerID) {
	if r.rematch == nil {
		return
	}
	r.rematch.ready[role.Index()] = true

	if r.rematch.ready[0] && r.rematch.ready[1] {
		seed := r.drawSeed()
		r.rematch = &rematchState{}
		r.seed = seed

		msg := protocol.Seeded{Seed: seed}
		if r.opts.Authoritative && r.engine != nil {
			if err := r.startMatch(seed); err != nil {
				r.log.WithError(err).Error("start rematch")
				return
			}
			msg.MatchID = r.match.ID
			msg.StartingPlayer = int(r.engine.CurrentPlayer())
		}
		metrics.MatchStarted(r.opts.mode())
		r.log.WithField("seed", seed).Info("rematch start")
		r.broadcast(protocol.MsgRematchStart, msg)
		return
	}

	status := protocol.RematchStatus{Player1Ready: r.rematch.ready[0], Player2Ready: r.rematch.ready[1]}
	r.sendTo(role, protocol.MsgRematchWaiting, status)
	r.sendTo(role.Opponent(), protocol.MsgOpponentWaitingRematch, status)
}

func (r *Room) handleMenu() {
	if r.rematch != nil {
		r.rematch = &rematchState{}
	}
	r.broadcast(protocol.MsgRematchCancelled, nil)
}

// handleLeave closes the room: a match cannot continue with one peer.
func (r *Room) handleLeave(role game.PlayerID) {
	c := r.peer(role)
	if c == nil {
		return
	}
	r.peers[role.Index()] = nil
	r.players.Add(-1)
	_ = c.Close()
	r.log.WithField("role", role).Info("player left")

	if r.rematch != nil {
		r.broadcast(protocol.MsgRematchCancelled, nil)
	}
	r.broadcast(protocol.MsgOpponentDisconnected, nil)

	r.abandonMatch()
	r.closed = true
	if r.OnClose != nil {
		r.OnClose(r.Code)
	} else {
		r.Stop()
	}
}
