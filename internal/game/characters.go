package game

import "fmt"

// Pattern restricts which directions a character may move or shoot in.
type Pattern uint8

const (
	PatternAll8   Pattern = iota // all eight compass directions
	PatternOrtho4                // N, S, E, W only
)

func (p Pattern) String() string {
	if p == PatternOrtho4 {
		return "orthogonal"
	}
	return "all"
}

// Allows reports whether direction d is part of the pattern.
func (p Pattern) Allows(d Direction) bool {
	return p == PatternAll8 || d.Orthogonal()
}

// Unlimited is the ShootRange of a character whose shots travel to the edge.
const Unlimited = -1

// CharacterType is the closed set of playable archetypes.
type CharacterType uint8

const (
	VoidDrifter CharacterType = iota
	SwiftShadow
	HeavyGuardian
)

// Character is the immutable capability bundle of an archetype.
type Character struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	MoveRange    int     `json:"moveRange"`  // tiles per step
	MoveCount    int     `json:"moveCount"`  // steps per turn
	MovePattern  Pattern `json:"movePattern"`
	ShootRange   int     `json:"shootRange"` // -1 unlimited, 0 melee-only
	ShootPattern Pattern `json:"shootPattern"`
	Invincible   bool    `json:"invincible"`
	Shape        string  `json:"shape"`
}

// MeleeOnly reports whether the character cannot fire ranged shots.
func (c Character) MeleeOnly() bool {
	return c.ShootRange == 0
}

// characters is indexed by CharacterType.
var characters = [...]Character{
	VoidDrifter: {
		ID:           "void_drifter",
		Name:         "Void Drifter",
		Description:  "Balanced. Shoots one tile in all eight directions.",
		MoveRange:    1,
		MoveCount:    1,
		MovePattern:  PatternAll8,
		ShootRange:   1,
		ShootPattern: PatternAll8,
		Shape:        "circle",
	},
	SwiftShadow: {
		ID:           "swift_shadow",
		Name:         "Swift Shadow",
		Description:  "Mobile. Moves twice per turn but only shoots one tile in four directions.",
		MoveRange:    1,
		MoveCount:    2,
		MovePattern:  PatternAll8,
		ShootRange:   1,
		ShootPattern: PatternOrtho4,
		Shape:        "triangle",
	},
	HeavyGuardian: {
		ID:           "heavy_guardian",
		Name:         "Heavy Guardian",
		Description:  "Fortress. Cannot be killed by shots; no ranged attack, strikes adjacent enemies only.",
		MoveRange:    1,
		MoveCount:    1,
		MovePattern:  PatternAll8,
		ShootRange:   0,
		ShootPattern: PatternAll8,
		Invincible:   true,
		Shape:        "square",
	},
}

// Stats returns the capability record of the archetype. Unknown values fall
// back to the Void Drifter.
func (t CharacterType) Stats() Character {
	if int(t) < len(characters) {
		return characters[t]
	}
	return characters[VoidDrifter]
}

// Valid reports whether t is a catalog entry.
func (t CharacterType) Valid() bool {
	return int(t) < len(characters)
}

func (t CharacterType) String() string {
	if !t.Valid() {
		return fmt.Sprintf("character(%d)", uint8(t))
	}
	return characters[t].ID
}

// ParseCharacter resolves a wire id such as "swift_shadow".
func ParseCharacter(id string) (CharacterType, error) {
	for i, c := range characters {
		if c.ID == id {
			return CharacterType(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCharacter, id)
}

// AllCharacters returns the catalog in declaration order.
func AllCharacters() []Character {
	out := make([]Character, len(characters))
	copy(out, characters[:])
	return out
}
