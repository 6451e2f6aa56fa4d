package game

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// STRESS TEST SUITE: MANY ROOMS SHARING ONE EVENT LOG
// Run with: go test -v -run=TestStress -timeout=60s ./internal/game/...
// =============================================================================

// StressTestResult contains metrics from stress tests
type StressTestResult struct {
	Duration      time.Duration
	Matches       int64
	Actions       int64
	MatchesPerSec float64
	EventsEmitted uint64
	EventsDropped uint64
	Desyncs       int64
}

// StressTestConfig configures stress test parameters
type StressTestConfig struct {
	Rooms           int // concurrent engines, one goroutine each
	MatchesPerRoom  int
	ActionsPerMatch int
	MaxEventsPerSec int
}

// DefaultStressConfig returns a load resembling a busy relay
func DefaultStressConfig() StressTestConfig {
	return StressTestConfig{
		Rooms:           32,
		MatchesPerRoom:  20,
		ActionsPerMatch: 200,
		MaxEventsPerSec: 50000,
	}
}

// -----------------------------------------------------------------------------
// STRESS TEST: CONCURRENT ROOMS
// -----------------------------------------------------------------------------

func TestStress_ConcurrentRooms(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	result := runStressTest(t, DefaultStressConfig())

	if result.Desyncs != 0 {
		t.Errorf("%d matches diverged from their replay", result.Desyncs)
	}
	if result.EventsEmitted == 0 {
		t.Error("expected events to be recorded")
	}
	t.Logf("matches=%d actions=%d (%.0f matches/s) events=%d dropped=%d",
		result.Matches, result.Actions, result.MatchesPerSec, result.EventsEmitted, result.EventsDropped)
}

// TestStress_EventLogBackpressure floods a tiny log and checks that the
// engine keeps playing while events are dropped.
func TestStress_EventLogBackpressure(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress test in short mode")
	}

	cfg := DefaultStressConfig()
	cfg.Rooms = 8
	cfg.MatchesPerRoom = 10
	cfg.MaxEventsPerSec = 10

	result := runStressTest(t, cfg)
	if result.Desyncs != 0 {
		t.Errorf("%d matches diverged from their replay", result.Desyncs)
	}
	if result.EventsDropped == 0 {
		t.Error("expected the rate limiter to drop events")
	}
}

func runStressTest(t *testing.T, cfg StressTestConfig) StressTestResult {
	t.Helper()

	el := NewEventLog(EventLogOptions{MaxEventsPerSec: cfg.MaxEventsPerSec, MaxEventsPerMatch: 1 << 20})
	if err := el.StartWriter(io.Discard); err != nil {
		t.Fatal(err)
	}

	var (
		matches atomic.Int64
		actions atomic.Int64
		desyncs atomic.Int64
		wg      sync.WaitGroup
	)
	stages := Stages()
	start := time.Now()

	for room := 0; room < cfg.Rooms; room++ {
		wg.Add(1)
		go func(room int) {
			defer wg.Done()
			picker := NewStream(int64(room))
			for m := 0; m < cfg.MatchesPerRoom; m++ {
				stage := stages[(room+m)%len(stages)]
				mc := Config{
					MatchID:    fmt.Sprintf("room-%d-%d", room, m),
					Layout:     stage.Layout,
					Characters: [2]CharacterType{CharacterType(room % 3), CharacterType(m % 3)},
					Seed:       int64(room*1000 + m),
					Events:     el,
				}
				e, err := New(mc)
				if err != nil {
					t.Error(err)
					return
				}
				playScripted(e, picker, cfg.ActionsPerMatch)
				if !e.GameOver() {
					e.HandleTimeout()
				}
				journal := e.Journal()
				actions.Add(int64(len(journal)))
				matches.Add(1)

				mc.Events = nil
				replayed, err := Replay(mc, journal)
				if err != nil || replayed.Winner() != e.Winner() || replayed.Seed() != e.Seed() {
					desyncs.Add(1)
				}
			}
		}(room)
	}
	wg.Wait()
	el.Stop()

	elapsed := time.Since(start)
	return StressTestResult{
		Duration:      elapsed,
		Matches:       matches.Load(),
		Actions:       actions.Load(),
		MatchesPerSec: float64(matches.Load()) / elapsed.Seconds(),
		EventsEmitted: el.TotalCount(),
		EventsDropped: el.DroppedCount(),
		Desyncs:       desyncs.Load(),
	}
}
