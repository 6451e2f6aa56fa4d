package protocol

import "vector-void/internal/game"

// JoinRoom asks to join (or create) the room named by Word.
type JoinRoom struct {
	Word string `json:"word" msgpack:"word"`
}

type StageVote struct {
	MapID string `json:"mapId" msgpack:"mapId"`
}

// CharacterVote carries the sender's pick. PlayerID is the role the client
// believes it has; the server attributes votes by connection instead.
type CharacterVote struct {
	Character string `json:"character" msgpack:"character"`
	PlayerID  int    `json:"playerId,omitempty" msgpack:"playerId,omitempty"`
}

// ActionData is the argument of an action: a tile for moves and targeted
// shots, a compass name for directional shots.
type ActionData struct {
	R   int    `json:"r" msgpack:"r"`
	C   int    `json:"c" msgpack:"c"`
	Dir string `json:"dir,omitempty" msgpack:"dir,omitempty"`
}

// Action is a gameplay intent. In relay mode it is forwarded as-is to the
// other peer. In authoritative mode the server fills in Player and State
// and sends it to both peers once the engine accepted it.
type Action struct {
	Type   string         `json:"type" msgpack:"type"`
	Data   ActionData     `json:"data" msgpack:"data"`
	Player int            `json:"player,omitempty" msgpack:"player,omitempty"`
	State  *game.Snapshot `json:"state,omitempty" msgpack:"state,omitempty"`
}

type PlayerJoined struct {
	Role int `json:"role" msgpack:"role"`
}

type StageSelected struct {
	MapID string `json:"mapId" msgpack:"mapId"`
	Seed  int64  `json:"seed" msgpack:"seed"`
}

type GameStart struct {
	MapID       string `json:"mapId" msgpack:"mapId"`
	Seed        int64  `json:"seed" msgpack:"seed"`
	P1Character string `json:"p1Character" msgpack:"p1Character"`
	P2Character string `json:"p2Character" msgpack:"p2Character"`
	// Set in authoritative mode only.
	MatchID        string `json:"matchId,omitempty" msgpack:"matchId,omitempty"`
	StartingPlayer int    `json:"startingPlayer,omitempty" msgpack:"startingPlayer,omitempty"`
}

type ActionRejected struct {
	Type   string `json:"type" msgpack:"type"`
	Reason string `json:"reason" msgpack:"reason"`
}

type GameOver struct {
	MatchID string `json:"matchId" msgpack:"matchId"`
	Winner  int    `json:"winner" msgpack:"winner"`
	Reason  string `json:"reason" msgpack:"reason"`
}

// Seeded carries a fresh seed for game_reset and rematch_start.
type Seeded struct {
	Seed           int64  `json:"seed" msgpack:"seed"`
	MatchID        string `json:"matchId,omitempty" msgpack:"matchId,omitempty"`
	StartingPlayer int    `json:"startingPlayer,omitempty" msgpack:"startingPlayer,omitempty"`
}

// RematchStatus is sent with rematch_waiting and opponent_waiting_rematch.
type RematchStatus struct {
	Player1Ready bool `json:"player1Ready" msgpack:"player1Ready"`
	Player2Ready bool `json:"player2Ready" msgpack:"player2Ready"`
}

type Error struct {
	Message string `json:"message" msgpack:"message"`
}
