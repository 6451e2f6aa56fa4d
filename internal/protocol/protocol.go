package protocol

import "errors"

// Client -> server
const (
	MsgJoinRoom       = "join_room"
	MsgStageVote      = "stage_vote"
	MsgCharacterVote  = "character_vote"
	MsgAction         = "action"
	MsgResetGame      = "reset_game"
	MsgRematchRequest = "rematch_request"
	MsgMenuRequest    = "menu_request"
)

// Server -> client
const (
	MsgPlayerJoined           = "player_joined"
	MsgRoomFull               = "room_full"
	MsgOpponentFound          = "opponent_found"
	MsgWaitingForOpponent     = "waiting_for_opponent"
	MsgStageSelected          = "stage_selected"
	MsgGameStart              = "game_start"
	MsgActionRejected         = "action_rejected"
	MsgGameOver               = "game_over"
	MsgGameReset              = "game_reset"
	MsgRematchWaiting         = "rematch_waiting"
	MsgOpponentWaitingRematch = "opponent_waiting_rematch"
	MsgRematchStart           = "rematch_start"
	MsgRematchCancelled       = "rematch_cancelled"
	MsgOpponentDisconnected   = "opponent_disconnected"
	MsgError                  = "error"
)

// Action types carried in Action.Type.
const (
	ActionMove        = "move"
	ActionShoot       = "shoot"
	ActionShootTarget = "shoot_target"
)

// MaxSeed bounds seeds handed out by the relay: [0, MaxSeed).
const MaxSeed = 1000000

// ErrUnknownType is returned when an envelope carries a type this server
// does not handle.
var ErrUnknownType = errors.New("unknown message type")

// Envelope is a decoded frame. P holds the payload still encoded in the
// codec the frame arrived in.
type Envelope struct {
	T string
	P []byte
}

var clientTypes = map[string]bool{
	MsgJoinRoom:       true,
	MsgStageVote:      true,
	MsgCharacterVote:  true,
	MsgAction:         true,
	MsgResetGame:      true,
	MsgRematchRequest: true,
	MsgMenuRequest:    true,
}

// IsClientType reports whether t is a message a client may send.
func IsClientType(t string) bool {
	return clientTypes[t]
}
