package game

import "fmt"

const (
	// Draw budgets for teleporter placement. Exhausting either leaves the
	// board with fewer teleporters; it is never an error.
	maxPlacementDraws = 200
	maxRespawnDraws   = 100
)

// Layout is a size×size matrix of cell-type codes.
type Layout [][]CellType

// Size returns the side length, or an error when the layout is not square
// or holds a code other than empty, hole or mirror. Teleporters are always
// generated, never drawn into a layout.
func (l Layout) Size() (int, error) {
	n := len(l)
	if n < 2 {
		return 0, fmt.Errorf("%w: need at least 2 rows, got %d", ErrInvalidLayout, n)
	}
	for r, row := range l {
		if len(row) != n {
			return 0, fmt.Errorf("%w: row %d has %d cells, want %d", ErrInvalidLayout, r, len(row), n)
		}
		for c, t := range row {
			if t < CellEmpty || t > CellMirrorBackslash {
				return 0, fmt.Errorf("%w: cell (%d,%d) has code %d", ErrInvalidLayout, r, c, int(t))
			}
		}
	}
	return n, nil
}

// TeleporterCount is the number of teleporters generated for a board size.
func TeleporterCount(size int) int {
	switch size {
	case 7:
		return 4
	case 9:
		return 6
	default:
		return 2
	}
}

// Board is the square grid plus the teleporter index.
//
// teleporters[id] is the last known position of link id; ids pair by parity
// (0↔1, 2↔3, 4↔5). An entry can go stale after its cell is destroyed, so
// lookups always re-check the cell.
type Board struct {
	size        int
	grid        [][]Cell
	teleporters []Position
	stream      *Stream
}

// NewBoard builds a board from layout and places teleporters using stream.
func NewBoard(layout Layout, stream *Stream) (*Board, error) {
	size, err := layout.Size()
	if err != nil {
		return nil, err
	}
	b := &Board{size: size, stream: stream}
	b.initialize(layout)
	return b, nil
}

func (b *Board) initialize(layout Layout) {
	b.grid = make([][]Cell, b.size)
	for r := 0; r < b.size; r++ {
		row := make([]Cell, b.size)
		for c := 0; c < b.size; c++ {
			row[c] = newCell(layout[r][c])
		}
		b.grid[r] = row
	}
	b.placeTeleporters()
}

func (b *Board) isReservedCorner(r, c int) bool {
	return (r == 0 && c == 0) || (r == b.size-1 && c == b.size-1)
}

// placeTeleporters draws random cells until every slot is filled or the draw
// budget runs out. Link ids follow placement order.
func (b *Board) placeTeleporters() {
	want := TeleporterCount(b.size)
	b.teleporters = make([]Position, 0, want)

	for attempts := 0; len(b.teleporters) < want && attempts < maxPlacementDraws; attempts++ {
		r := b.stream.Range(0, b.size)
		c := b.stream.Range(0, b.size)
		if b.isReservedCorner(r, c) {
			continue
		}
		cell := &b.grid[r][c]
		if cell.Type != CellEmpty {
			continue
		}
		cell.Type = CellTeleport
		cell.LinkID = len(b.teleporters)
		b.teleporters = append(b.teleporters, Position{R: r, C: c})
	}
}

// Size returns the side length of the board.
func (b *Board) Size() int {
	return b.size
}

// InBounds reports whether (r,c) lies on the board.
func (b *Board) InBounds(r, c int) bool {
	return r >= 0 && r < b.size && c >= 0 && c < b.size
}

// Cell returns the cell at (r,c). Out-of-bounds coordinates return nil, false.
func (b *Board) Cell(r, c int) (*Cell, bool) {
	if !b.InBounds(r, c) {
		return nil, false
	}
	return &b.grid[r][c], true
}

// At is Cell for a Position.
func (b *Board) At(p Position) (*Cell, bool) {
	return b.Cell(p.R, p.C)
}

// TeleportDestination returns the live partner of the teleporter at (r,c).
func (b *Board) TeleportDestination(r, c int) (Position, bool) {
	cell, ok := b.Cell(r, c)
	if !ok || !cell.IsTeleport() || cell.LinkID == NoLink {
		return Position{}, false
	}

	partner := cell.LinkID ^ 1
	if partner >= len(b.teleporters) {
		return Position{}, false
	}
	dest := b.teleporters[partner]
	destCell, ok := b.At(dest)
	if !ok || !destCell.IsTeleport() || destCell.LinkID != partner {
		return Position{}, false
	}
	return dest, true
}

// RespawnTeleporter re-places link id on a random free cell. It returns
// false when the draw budget runs out, in which case the link is lost for
// the rest of the match.
func (b *Board) RespawnTeleporter(linkID int) (Position, bool) {
	for attempts := 0; attempts < maxRespawnDraws; attempts++ {
		r := b.stream.Range(0, b.size)
		c := b.stream.Range(0, b.size)

		cell := &b.grid[r][c]
		if !cell.IsFree() {
			continue
		}
		cell.Type = CellTeleport
		cell.LinkID = linkID

		pos := Position{R: r, C: c}
		if linkID >= 0 && linkID < len(b.teleporters) {
			b.teleporters[linkID] = pos
		}
		return pos, true
	}
	return Position{}, false
}

// Teleporters returns a copy of the teleporter index.
func (b *Board) Teleporters() []Position {
	out := make([]Position, len(b.teleporters))
	copy(out, b.teleporters)
	return out
}

// clearOccupants wipes the derived occupant index.
func (b *Board) clearOccupants() {
	for r := range b.grid {
		for c := range b.grid[r] {
			b.grid[r][c].Occupant = NoPlayer
		}
	}
}
