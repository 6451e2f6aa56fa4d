package relay

import (
	"context"

	"vector-void/internal/archive"
	"vector-void/internal/game"
	"vector-void/internal/protocol"
)

// Conn is one connected peer. Send is called from several goroutines and
// must not block: implementations queue the message and report an error
// when the peer is too slow.
type Conn interface {
	Send(t string, payload any) error
	Close() error
}

// MatchSaver archives finished authoritative matches.
type MatchSaver interface {
	SaveMatch(ctx context.Context, m *archive.Match) error
}

// Commands accepted by a room's inbox.

// Join: issued once per connection after join_room was parsed
type Join struct {
	Conn  Conn
	Reply chan<- JoinResult
}

type JoinResult struct {
	Role game.PlayerID // NoPlayer when the room was full
}

type StageVote struct {
	Role  game.PlayerID
	MapID string
}

type CharacterVote struct {
	Role      game.PlayerID
	Character string
}

type Action struct {
	Role   game.PlayerID
	Action protocol.Action
}

type ResetGame struct {
	Role game.PlayerID
}

type RematchRequest struct {
	Role game.PlayerID
}

type MenuRequest struct {
	Role game.PlayerID
}

// Leave: issued on disconnect
type Leave struct {
	Role game.PlayerID
}

// turnExpired is posted by the turn timer. Stale tokens are ignored.
type turnExpired struct {
	token uint64
}

// Info is a point-in-time summary for listings.
type Info struct {
	Code    string `json:"code"`
	Players int    `json:"players"`
	InMatch bool   `json:"inMatch"`
}
