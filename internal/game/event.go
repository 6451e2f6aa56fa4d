package game

import (
	"encoding/json"
	"time"
)

// EventType enum for event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeMatchStart        // board generated, starting player drawn
	EventTypeMove
	EventTypeTeleport
	EventTypeShot
	EventTypeTileDestroyed
	EventTypeTeleporterRespawn
	EventTypeTeleporterLost
	EventTypeHit
	EventTypeTurn
	EventTypeGameOver
	EventTypeTimeout
)

// EventVersion for backwards compatibility in replay
const EventVersion uint8 = 1

// Event is the core event structure for the event log
type Event struct {
	Version   uint8           `json:"version"`
	Type      EventType       `json:"type"`
	Timestamp int64           `json:"timestamp"` // Unix nano
	Sequence  uint64          `json:"sequence"`  // Monotonic sequence
	Turn      uint64          `json:"turn"`
	MatchID   string          `json:"matchId"` // rate limiting key
	PlayerID  string          `json:"playerId"`
	Payload   json.RawMessage `json:"payload"`
}

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeMatchStart:
		return "match_start"
	case EventTypeMove:
		return "move"
	case EventTypeTeleport:
		return "teleport"
	case EventTypeShot:
		return "shot"
	case EventTypeTileDestroyed:
		return "tile_destroyed"
	case EventTypeTeleporterRespawn:
		return "teleporter_respawn"
	case EventTypeTeleporterLost:
		return "teleporter_lost"
	case EventTypeHit:
		return "hit"
	case EventTypeTurn:
		return "turn"
	case EventTypeGameOver:
		return "game_over"
	case EventTypeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// MarshalText writes the type by name so JSONL logs stay readable.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText maps unknown names to EventTypeUnknown.
func (t *EventType) UnmarshalText(b []byte) error {
	name := string(b)
	for c := EventTypeMatchStart; c <= EventTypeTimeout; c++ {
		if c.String() == name {
			*t = c
			return nil
		}
	}
	*t = EventTypeUnknown
	return nil
}

// Typed payloads for different event types

type MatchStartPayload struct {
	Seed           int64      `json:"seed"`
	Size           int        `json:"size"`
	P1Character    string     `json:"p1Character"`
	P2Character    string     `json:"p2Character"`
	StartingPlayer string     `json:"startingPlayer"`
	Teleporters    []Position `json:"teleporters"`
}

// MovePayload records one movement step. Final differs from To when the
// unit was teleported.
type MovePayload struct {
	From  Position `json:"from"`
	To    Position `json:"to"`
	Final Position `json:"final"`
	Step  int      `json:"step"`
}

type TeleportPayload struct {
	From Position `json:"from"`
	To   Position `json:"to"`
}

type ShotPayload struct {
	Shooter string     `json:"shooter"`
	Dir     string     `json:"dir"`
	Path    []Position `json:"path"`
	Target  Position   `json:"target"`
}

type TilePayload struct {
	At         Position `json:"at"`
	Teleporter bool     `json:"teleporter"`
}

type TeleporterPayload struct {
	LinkID int      `json:"linkId"`
	At     Position `json:"at"`
}

// HitPayload contains hit details. Absorbed is set when the victim is
// invincible and survived.
type HitPayload struct {
	Victim   string   `json:"victim"`
	At       Position `json:"at"`
	Absorbed bool     `json:"absorbed,omitempty"`
}

type TurnPayload struct {
	Player string `json:"player"`
	Turn   int    `json:"turn"`
}

type GameOverPayload struct {
	Winner string `json:"winner"`
	Reason string `json:"reason"` // kill, stuck or timeout
	Turn   int    `json:"turn"`
}

// EncodePayload marshals a payload to JSON bytes
func EncodePayload(payload interface{}) json.RawMessage {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// NewEvent creates a new event with the current timestamp
func NewEvent(eventType EventType, turn uint64, matchID, playerID string, payload interface{}) Event {
	return Event{
		Version:   EventVersion,
		Type:      eventType,
		Timestamp: time.Now().UnixNano(),
		Turn:      turn,
		MatchID:   matchID,
		PlayerID:  playerID,
		Payload:   EncodePayload(payload),
	}
}
