package game

import (
	"fmt"
	"reflect"
	"testing"
)

// =============================================================================
// INTEGRATION TESTS: FULL MATCHES ON EVERY STAGE
// These tests play complete matches for each stage and character pairing and
// check board invariants after every accepted action
// =============================================================================

// TestIntegration_FullMatches plays scripted matches for every stage and
// character pairing and verifies the board after each step.
func TestIntegration_FullMatches(t *testing.T) {
	chars := []CharacterType{VoidDrifter, SwiftShadow, HeavyGuardian}

	for _, stage := range Stages() {
		for _, c1 := range chars {
			for _, c2 := range chars {
				name := fmt.Sprintf("%s/%s_vs_%s", stage.ID, c1, c2)
				t.Run(name, func(t *testing.T) {
					for seed := int64(0); seed < 5; seed++ {
						playAndCheck(t, Config{
							Layout:     stage.Layout,
							Characters: [2]CharacterType{c1, c2},
							Seed:       seed,
						})
					}
				})
			}
		}
	}
}

func playAndCheck(t *testing.T, cfg Config) {
	t.Helper()

	e, err := New(cfg)
	if err != nil {
		t.Fatalf("New(seed=%d): %v", cfg.Seed, err)
	}
	checkBoard(t, e)

	picker := NewStream(cfg.Seed + 1000)
	for steps := 0; steps < 400 && !e.GameOver(); steps++ {
		before := len(e.Journal())
		playScripted(e, picker, 1)
		if len(e.Journal()) == before {
			break
		}
		checkBoard(t, e)
	}
	if !e.GameOver() {
		e.HandleTimeout()
	}
	if !e.Winner().Valid() {
		t.Fatalf("seed %d: game over without a valid winner", cfg.Seed)
	}

	replayed, err := Replay(cfg, e.Journal())
	if err != nil {
		t.Fatalf("seed %d: replay: %v", cfg.Seed, err)
	}
	if !reflect.DeepEqual(replayed.Snapshot(), e.Snapshot()) {
		t.Fatalf("seed %d: replayed snapshot differs from live snapshot", cfg.Seed)
	}
}

// checkBoard verifies that both units stand on distinct floor tiles and
// that cell occupancy agrees with unit positions.
func checkBoard(t *testing.T, e *Engine) {
	t.Helper()

	p1, p2 := e.Unit(P1), e.Unit(P2)
	if p1 == p2 {
		t.Fatalf("turn %d: units share %s", e.Turn(), p1)
	}
	for _, p := range []PlayerID{P1, P2} {
		pos := e.Unit(p)
		cell, ok := e.Board().At(pos)
		if !ok {
			t.Fatalf("turn %d: %s out of bounds at %s", e.Turn(), p, pos)
		}
		if cell.IsHole() {
			t.Fatalf("turn %d: %s standing on a hole at %s", e.Turn(), p, pos)
		}
		if cell.Occupant != p {
			t.Fatalf("turn %d: cell %s occupant %s, want %s", e.Turn(), pos, cell.Occupant, p)
		}
	}

	occupied := 0
	size := e.Board().Size()
	for r := 0; r < size; r++ {
		for c := 0; c < size; c++ {
			cell, _ := e.Board().Cell(r, c)
			if cell.HasUnit() {
				occupied++
			}
		}
	}
	if occupied != 2 {
		t.Fatalf("turn %d: %d occupied cells, want 2", e.Turn(), occupied)
	}
}

// TestIntegration_SnapshotIsolation checks that a snapshot taken mid-match
// is not affected by later play.
func TestIntegration_SnapshotIsolation(t *testing.T) {
	stage, err := GetStage("crossroads_7")
	if err != nil {
		t.Fatal(err)
	}
	e, err := New(Config{Layout: stage.Layout, Characters: [2]CharacterType{VoidDrifter, VoidDrifter}, Seed: 11})
	if err != nil {
		t.Fatal(err)
	}
	snap := e.Snapshot()
	frozen := e.Snapshot()

	playScripted(e, NewStream(3), 50)

	if !reflect.DeepEqual(snap, frozen) {
		t.Fatal("snapshot mutated by later play")
	}
}
