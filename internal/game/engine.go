package game

import "fmt"

// Config is everything both peers must agree on before a match starts.
type Config struct {
	// MatchID tags emitted events. Optional.
	MatchID string
	Layout  Layout
	// Characters is indexed by PlayerID.Index().
	Characters [2]CharacterType
	Seed       int64
	// Events receives match events when set. It has no effect on play.
	Events *EventLog
}

// Engine is the turn/phase state machine of a single match.
//
// It is synchronous and not safe for concurrent use: whoever hosts it must
// serialize every call. It never checks who is calling; attributing an
// intent to the current player is the caller's job.
type Engine struct {
	cfg    Config
	seed   int64
	stream *Stream
	board  *Board

	current   PlayerID
	phase     Phase
	units     [2]Position
	chars     [2]Character
	moveSteps int
	turn      int

	gameOver bool
	winner   PlayerID
	reason   string

	journal []Action

	// Optional sink for match events; nil or stopped logs are ignored.
	events *EventLog
}

// New creates an engine, generates the board and draws the starting player.
func New(cfg Config) (*Engine, error) {
	for i, ct := range cfg.Characters {
		if !ct.Valid() {
			return nil, fmt.Errorf("%w: player %d has character %d", ErrUnknownCharacter, i+1, ct)
		}
	}
	size, err := cfg.Layout.Size()
	if err != nil {
		return nil, err
	}
	for _, corner := range []Position{{0, 0}, {size - 1, size - 1}} {
		if t := cfg.Layout[corner.R][corner.C]; t != CellEmpty {
			return nil, fmt.Errorf("%w: start tile %s is %s", ErrInvalidLayout, corner, t)
		}
	}

	e := &Engine{cfg: cfg, events: cfg.Events}
	for i, ct := range cfg.Characters {
		e.chars[i] = ct.Stats()
	}
	if err := e.init(cfg.Seed); err != nil {
		return nil, err
	}
	return e, nil
}

// init (re)builds all per-match state from seed. Stream order: teleporter
// placement first, then one draw for the starting player.
func (e *Engine) init(seed int64) error {
	e.seed = seed
	e.stream = NewStream(seed)

	board, err := NewBoard(e.cfg.Layout, e.stream)
	if err != nil {
		return err
	}
	e.board = board

	last := board.Size() - 1
	e.units[P1.Index()] = Position{R: 0, C: 0}
	e.units[P2.Index()] = Position{R: last, C: last}

	e.current = P1
	if e.stream.Next() >= 0.5 {
		e.current = P2
	}
	e.phase = PhaseMove
	e.moveSteps = 0
	e.turn = 0
	e.gameOver = false
	e.winner = NoPlayer
	e.reason = ""
	e.journal = e.journal[:0]
	e.syncOccupants()

	e.emit(EventTypeMatchStart, MatchStartPayload{
		Seed:           seed,
		Size:           board.Size(),
		P1Character:    e.cfg.Characters[0].String(),
		P2Character:    e.cfg.Characters[1].String(),
		StartingPlayer: e.current.String(),
		Teleporters:    board.Teleporters(),
	})
	return nil
}

// Reset starts a rematch on the same layout and characters with a new seed.
// The starting player is drawn again.
func (e *Engine) Reset(seed int64) error {
	return e.init(seed)
}

// SetEventLog attaches an event sink. Pass nil to detach.
func (e *Engine) SetEventLog(el *EventLog) {
	e.events = el
}

func (e *Engine) emit(t EventType, payload interface{}) {
	if e.events == nil {
		return
	}
	e.events.EmitSimple(t, uint64(e.turn), e.cfg.MatchID, e.current.String(), payload)
}

// syncOccupants rebuilds the board's occupant index from units.
func (e *Engine) syncOccupants() {
	e.board.clearOccupants()
	for i, pos := range e.units {
		if cell, ok := e.board.At(pos); ok {
			cell.Occupant = PlayerID(i + 1)
		}
	}
}

// Move relocates the current player's unit to (r,c). It returns false, with
// no state change, when the game is over, the phase is not Move, or the
// destination is illegal.
func (e *Engine) Move(r, c int) bool {
	if e.gameOver || e.phase != PhaseMove {
		return false
	}
	if !e.IsValidMove(e.current, r, c) {
		return false
	}

	mover := e.current
	idx := mover.Index()
	from := e.units[idx]
	to := Position{R: r, C: c}
	e.units[idx] = to

	// One hop at most: the partner tile is not re-evaluated as a teleporter.
	if dest, ok := e.board.TeleportDestination(r, c); ok && dest != e.units[mover.Opponent().Index()] {
		e.units[idx] = dest
		e.emit(EventTypeTeleport, TeleportPayload{From: to, To: dest})
	}

	e.syncOccupants()
	e.journal = append(e.journal, Action{Kind: ActionMove, R: r, C: c})
	e.emit(EventTypeMove, MovePayload{From: from, To: to, Final: e.units[idx], Step: e.moveSteps + 1})

	e.moveSteps++
	if e.moveSteps < e.chars[idx].MoveCount && e.CanMove(mover) {
		return true
	}
	e.enterShoot()
	return true
}

// enterShoot switches to the Shoot phase, or passes the turn straight away
// when the current player has nothing to shoot at.
func (e *Engine) enterShoot() {
	e.phase = PhaseShoot
	if len(e.ShootableTargets(e.units[e.current.Index()].R, e.units[e.current.Index()].C)) == 0 {
		e.endTurn()
	}
}

// IsValidMove reports whether player may step to (r,c) from its current tile.
func (e *Engine) IsValidMove(player PlayerID, r, c int) bool {
	if !player.Valid() {
		return false
	}
	idx := player.Index()
	unit := e.units[idx]
	ch := e.chars[idx]

	dr, dc := abs(r-unit.R), abs(c-unit.C)
	if dr == 0 && dc == 0 {
		return false
	}
	if max(dr, dc) > ch.MoveRange {
		return false
	}
	if ch.MovePattern == PatternOrtho4 && dr != 0 && dc != 0 {
		return false
	}

	cell, ok := e.board.Cell(r, c)
	if !ok || cell.IsHole() || cell.IsMirror() || cell.HasUnit() {
		return false
	}

	// Melee-only characters may end a move anywhere; everyone else must be
	// able to fire from where they land.
	if ch.MeleeOnly() {
		return true
	}
	return e.canShootAs(player, Position{R: r, C: c})
}

// CanMove reports whether player has any legal move from its tile.
func (e *Engine) CanMove(player PlayerID) bool {
	if !player.Valid() {
		return false
	}
	unit := e.units[player.Index()]
	reach := e.chars[player.Index()].MoveRange
	for r := unit.R - reach; r <= unit.R+reach; r++ {
		for c := unit.C - reach; c <= unit.C+reach; c++ {
			if e.IsValidMove(player, r, c) {
				return true
			}
		}
	}
	return false
}

// endTurn hands control to the other player. A player who cannot move at
// the start of their turn loses.
func (e *Engine) endTurn() {
	e.current = e.current.Opponent()
	e.phase = PhaseMove
	e.moveSteps = 0
	e.turn++
	e.emit(EventTypeTurn, TurnPayload{Player: e.current.String(), Turn: e.turn})

	if !e.CanMove(e.current) {
		e.finish(e.current.Opponent(), "stuck")
	}
}

func (e *Engine) finish(winner PlayerID, reason string) {
	e.gameOver = true
	e.winner = winner
	e.reason = reason
	e.emit(EventTypeGameOver, GameOverPayload{Winner: winner.String(), Reason: reason, Turn: e.turn})
}

// HandleTimeout ends the game with the current player losing. It is the
// hook for an external turn clock and performs no other validation.
func (e *Engine) HandleTimeout() bool {
	if e.gameOver {
		return false
	}
	e.journal = append(e.journal, Action{Kind: ActionTimeout})
	e.emit(EventTypeTimeout, TurnPayload{Player: e.current.String(), Turn: e.turn})
	e.finish(e.current.Opponent(), "timeout")
	return true
}

// Accessors

func (e *Engine) Phase() Phase            { return e.phase }
func (e *Engine) CurrentPlayer() PlayerID { return e.current }
func (e *Engine) GameOver() bool          { return e.gameOver }
func (e *Engine) Winner() PlayerID        { return e.winner }
func (e *Engine) EndReason() string       { return e.reason }
func (e *Engine) Board() *Board           { return e.board }
func (e *Engine) Seed() int64             { return e.seed }
func (e *Engine) Turn() int               { return e.turn }
func (e *Engine) MoveStepsTaken() int     { return e.moveSteps }
func (e *Engine) Config() Config          { return e.cfg }

// Character returns the capability record of player's archetype.
func (e *Engine) Character(p PlayerID) Character {
	if !p.Valid() {
		return Character{}
	}
	return e.chars[p.Index()]
}

// Unit returns the position of player's unit.
func (e *Engine) Unit(p PlayerID) Position {
	if !p.Valid() {
		return Position{}
	}
	return e.units[p.Index()]
}

// Journal returns a copy of the accepted actions so far.
func (e *Engine) Journal() []Action {
	out := make([]Action, len(e.journal))
	copy(out, e.journal)
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
