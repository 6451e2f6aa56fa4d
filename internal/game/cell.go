package game

// CellType is the terrain of a single tile. The numeric values are the codes
// used in map layouts.
type CellType int

const (
	CellEmpty CellType = iota
	CellHole
	CellMirrorSlash     // "/"
	CellMirrorBackslash // "\"
	CellTeleport
)

func (t CellType) String() string {
	switch t {
	case CellEmpty:
		return "empty"
	case CellHole:
		return "hole"
	case CellMirrorSlash:
		return "mirror_slash"
	case CellMirrorBackslash:
		return "mirror_backslash"
	case CellTeleport:
		return "teleport"
	default:
		return "unknown"
	}
}

// NoLink marks a cell without a teleporter link.
const NoLink = -1

// Cell is a single tile: terrain, the unit standing on it (if any) and the
// teleporter link id for teleport cells.
type Cell struct {
	Type     CellType
	Occupant PlayerID
	LinkID   int
}

func newCell(t CellType) Cell {
	return Cell{Type: t, LinkID: NoLink}
}

func (c *Cell) IsHole() bool     { return c.Type == CellHole }
func (c *Cell) IsTeleport() bool { return c.Type == CellTeleport }
func (c *Cell) HasUnit() bool    { return c.Occupant != NoPlayer }

// IsMirror reports whether the cell holds either mirror orientation.
func (c *Cell) IsMirror() bool {
	return c.Type == CellMirrorSlash || c.Type == CellMirrorBackslash
}

// IsFree reports whether the cell is plain floor with nobody on it.
func (c *Cell) IsFree() bool {
	return c.Type == CellEmpty && !c.HasUnit()
}

// Destroy turns the cell into a hole. Holes never carry a unit or a link.
func (c *Cell) Destroy() {
	if c.Type == CellHole {
		return
	}
	c.Type = CellHole
	c.Occupant = NoPlayer
	c.LinkID = NoLink
}
