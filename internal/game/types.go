package game

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidLayout is returned when a map layout is empty or not square.
	ErrInvalidLayout = errors.New("invalid layout")
	// ErrUnknownCharacter is returned for a character id outside the catalog.
	ErrUnknownCharacter = errors.New("unknown character")
	// ErrActionRejected is returned by Replay when a journaled action no
	// longer applies.
	ErrActionRejected = errors.New("action rejected")
)

// PlayerID identifies one of the two combatants.
type PlayerID uint8

const (
	NoPlayer PlayerID = iota
	P1
	P2
)

// Opponent returns the other player. NoPlayer maps to NoPlayer.
func (p PlayerID) Opponent() PlayerID {
	switch p {
	case P1:
		return P2
	case P2:
		return P1
	default:
		return NoPlayer
	}
}

// Index maps P1/P2 to 0/1 for array-backed per-player state.
func (p PlayerID) Index() int {
	return int(p) - 1
}

// Valid reports whether p is P1 or P2.
func (p PlayerID) Valid() bool {
	return p == P1 || p == P2
}

func (p PlayerID) String() string {
	switch p {
	case P1:
		return "p1"
	case P2:
		return "p2"
	default:
		return "none"
	}
}

// Phase is the sub-turn state of the current player.
type Phase uint8

const (
	PhaseMove Phase = iota
	PhaseShoot
)

func (p Phase) String() string {
	switch p {
	case PhaseMove:
		return "move"
	case PhaseShoot:
		return "shoot"
	default:
		return "unknown"
	}
}

// Position is a (row, column) board coordinate.
type Position struct {
	R int `json:"r" msgpack:"r"`
	C int `json:"c" msgpack:"c"`
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d)", p.R, p.C)
}

// Step returns the position one tile away in direction d.
func (p Position) Step(d Direction) Position {
	dr, dc := d.Delta()
	return Position{R: p.R + dr, C: p.C + dc}
}

// Direction is one of the eight compass directions a shot can travel.
type Direction uint8

const (
	North Direction = iota
	South
	East
	West
	NorthEast
	NorthWest
	SouthEast
	SouthWest
)

// AllDirections lists every direction in the order targets are enumerated.
// The order is part of the replay contract: ShootTarget resolves a tile to
// the first direction in this list that lands on it.
var AllDirections = [8]Direction{North, South, East, West, NorthEast, NorthWest, SouthEast, SouthWest}

// Delta returns the row/column step for d.
func (d Direction) Delta() (dr, dc int) {
	switch d {
	case North:
		return -1, 0
	case South:
		return 1, 0
	case East:
		return 0, 1
	case West:
		return 0, -1
	case NorthEast:
		return -1, 1
	case NorthWest:
		return -1, -1
	case SouthEast:
		return 1, 1
	case SouthWest:
		return 1, -1
	}
	return 0, 0
}

// Valid reports whether d is one of the eight compass directions.
func (d Direction) Valid() bool {
	return d <= SouthWest
}

// Orthogonal reports whether d is one of N, S, E, W.
func (d Direction) Orthogonal() bool {
	return d <= West
}

func (d Direction) String() string {
	switch d {
	case North:
		return "n"
	case South:
		return "s"
	case East:
		return "e"
	case West:
		return "w"
	case NorthEast:
		return "ne"
	case NorthWest:
		return "nw"
	case SouthEast:
		return "se"
	case SouthWest:
		return "sw"
	default:
		return "?"
	}
}

// ParseDirection accepts the short compass names used on the wire ("n", "se", ...).
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "n":
		return North, true
	case "s":
		return South, true
	case "e":
		return East, true
	case "w":
		return West, true
	case "ne":
		return NorthEast, true
	case "nw":
		return NorthWest, true
	case "se":
		return SouthEast, true
	case "sw":
		return SouthWest, true
	}
	return 0, false
}
