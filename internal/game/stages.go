package game

import "fmt"

// Stage is a named map the players vote on before a match.
type Stage struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Size        int    `json:"size"`
	Layout      Layout `json:"layout"`
}

var stages = builtinStages()

func builtinStages() []Stage {
	const (
		e = CellEmpty
		h = CellHole
	)
	return []Stage{
		{
			ID:          "void_5",
			Name:        "The Void",
			Description: "Small open arena. One teleporter pair.",
			Size:        5,
			Layout: Layout{
				{e, e, e, e, e},
				{e, e, e, e, e},
				{e, e, e, e, e},
				{e, e, e, e, e},
				{e, e, e, e, e},
			},
		},
		{
			ID:          "crossroads_7",
			Name:        "Crossroads",
			Description: "Four pits split the field into lanes. Two teleporter pairs.",
			Size:        7,
			Layout: Layout{
				{e, e, e, e, e, e, e},
				{e, h, e, e, e, h, e},
				{e, e, e, e, e, e, e},
				{e, e, e, e, e, e, e},
				{e, e, e, e, e, e, e},
				{e, h, e, e, e, h, e},
				{e, e, e, e, e, e, e},
			},
		},
		{
			ID:          "rift_9",
			Name:        "The Rift",
			Description: "A broken canyon runs through the middle. Three teleporter pairs.",
			Size:        9,
			Layout: Layout{
				{e, e, e, e, e, e, e, e, e},
				{e, e, e, e, e, e, e, e, e},
				{e, e, e, e, h, e, e, e, e},
				{e, e, e, h, e, e, e, e, e},
				{e, e, e, e, h, e, e, e, e},
				{e, e, e, e, e, h, e, e, e},
				{e, e, e, e, h, e, e, e, e},
				{e, e, e, e, e, e, e, e, e},
				{e, e, e, e, e, e, e, e, e},
			},
		},
	}
}

// Stages returns the stage catalog.
func Stages() []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages)
	return out
}

// GetStage returns the stage with the given id.
func GetStage(id string) (Stage, error) {
	for _, s := range stages {
		if s.ID == id {
			return s, nil
		}
	}
	return Stage{}, fmt.Errorf("unknown stage %q", id)
}

// EmptyLayout returns a size×size layout of plain floor.
func EmptyLayout(size int) Layout {
	l := make(Layout, size)
	for r := range l {
		l[r] = make([]CellType, size)
	}
	return l
}
