package game

// CellSnapshot is an immutable copy of one tile.
type CellSnapshot struct {
	Type     CellType `json:"type" msgpack:"type"`
	Occupant string   `json:"occupant,omitempty" msgpack:"occupant,omitempty"`
	LinkID   int      `json:"linkId" msgpack:"linkId"`
}

// UnitSnapshot is an immutable copy of one player's unit.
type UnitSnapshot struct {
	Player    string   `json:"player" msgpack:"player"`
	Character string   `json:"character" msgpack:"character"`
	Pos       Position `json:"pos" msgpack:"pos"`
}

// Snapshot is a complete immutable copy of engine state for broadcast and
// rendering. It holds value types only; two engines fed identical inputs
// produce equal snapshots.
type Snapshot struct {
	Seed          int64            `json:"seed" msgpack:"seed"`
	Draws         uint64           `json:"draws" msgpack:"draws"` // stream position
	Size          int              `json:"size" msgpack:"size"`
	Cells         [][]CellSnapshot `json:"cells" msgpack:"cells"`
	Teleporters   []Position       `json:"teleporters" msgpack:"teleporters"`
	Units         [2]UnitSnapshot  `json:"units" msgpack:"units"`
	CurrentPlayer string           `json:"currentPlayer" msgpack:"currentPlayer"`
	Phase         string           `json:"phase" msgpack:"phase"`
	MoveSteps     int              `json:"moveSteps" msgpack:"moveSteps"`
	Turn          int              `json:"turn" msgpack:"turn"`
	GameOver      bool             `json:"gameOver" msgpack:"gameOver"`
	Winner        string           `json:"winner,omitempty" msgpack:"winner,omitempty"`
}

// Cells returns an immutable copy of the grid.
func (b *Board) Cells() [][]CellSnapshot {
	out := make([][]CellSnapshot, b.size)
	for r, row := range b.grid {
		out[r] = make([]CellSnapshot, len(row))
		for c, cell := range row {
			cs := CellSnapshot{Type: cell.Type, LinkID: cell.LinkID}
			if cell.HasUnit() {
				cs.Occupant = cell.Occupant.String()
			}
			out[r][c] = cs
		}
	}
	return out
}

// Snapshot captures the current engine state.
func (e *Engine) Snapshot() Snapshot {
	s := Snapshot{
		Seed:          e.seed,
		Draws:         e.stream.Draws(),
		Size:          e.board.Size(),
		Cells:         e.board.Cells(),
		Teleporters:   e.board.Teleporters(),
		CurrentPlayer: e.current.String(),
		Phase:         e.phase.String(),
		MoveSteps:     e.moveSteps,
		Turn:          e.turn,
		GameOver:      e.gameOver,
	}
	for i := range e.units {
		p := PlayerID(i + 1)
		s.Units[i] = UnitSnapshot{
			Player:    p.String(),
			Character: e.cfg.Characters[i].String(),
			Pos:       e.units[i],
		}
	}
	if e.gameOver {
		s.Winner = e.winner.String()
	}
	return s
}
