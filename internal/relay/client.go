package relay

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"vector-void/internal/game"
	"vector-void/internal/metrics"
	"vector-void/internal/protocol"
)

const joinAttempts = 3

// Client is the server side of one connection. HandleFrame and Disconnect
// must be called from the connection's read goroutine.
type Client struct {
	mgr     *Manager
	conn    Conn
	codec   protocol.Codec
	limiter *rate.Limiter
	log     *log.Entry

	room *Room
	role game.PlayerID
}

// Connect registers a new connection. remote is only used for logging.
func (m *Manager) Connect(conn Conn, codec protocol.Codec, remote string) *Client {
	if codec == nil {
		codec = protocol.JSON
	}
	return &Client{
		mgr:     m,
		conn:    conn,
		codec:   codec,
		limiter: rate.NewLimiter(rate.Limit(m.opts.ActionsPerSecond), m.opts.ActionBurst),
		log:     log.WithFields(log.Fields{"remote": remote, "codec": codec.Name()}),
	}
}

// Room returns the word of the joined room, or "".
func (c *Client) Room() string {
	if c.room == nil {
		return ""
	}
	return c.room.Code
}

func (c *Client) Role() game.PlayerID { return c.role }

// HandleFrame decodes one inbound frame and routes it to the room.
func (c *Client) HandleFrame(frame []byte) {
	env, err := c.codec.DecodeEnvelope(frame)
	if err != nil {
		c.fail("malformed frame")
		return
	}
	if !protocol.IsClientType(env.T) {
		c.fail(fmt.Sprintf("%v: %q", protocol.ErrUnknownType, env.T))
		return
	}

	if env.T == protocol.MsgJoinRoom {
		req, err := protocol.DecodePayload[protocol.JoinRoom](c.codec, env)
		if err != nil {
			c.fail("malformed join_room")
			return
		}
		c.join(req.Word)
		return
	}

	if c.room == nil {
		c.fail("join a room first")
		return
	}

	cmd, err := c.command(env)
	if err != nil {
		c.fail(err.Error())
		return
	}
	if cmd == nil {
		return
	}
	if !c.room.submit(cmd) {
		c.log.Debug("room closed")
		c.room, c.role = nil, game.NoPlayer
		c.fail("room closed")
	}
}

// command maps an envelope to a room command. A nil command with a nil
// error means the frame was consumed here.
func (c *Client) command(env protocol.Envelope) (any, error) {
	switch env.T {
	case protocol.MsgStageVote:
		v, err := protocol.DecodePayload[protocol.StageVote](c.codec, env)
		if err != nil {
			return nil, errors.New("malformed stage_vote")
		}
		return StageVote{Role: c.role, MapID: v.MapID}, nil
	case protocol.MsgCharacterVote:
		v, err := protocol.DecodePayload[protocol.CharacterVote](c.codec, env)
		if err != nil {
			return nil, errors.New("malformed character_vote")
		}
		return CharacterVote{Role: c.role, Character: v.Character}, nil
	case protocol.MsgAction:
		a, err := protocol.DecodePayload[protocol.Action](c.codec, env)
		if err != nil {
			metrics.ActionRejected("malformed")
			return nil, errors.New("malformed action")
		}
		if !c.limiter.Allow() {
			metrics.ActionRejected("throttled")
			c.send(protocol.MsgActionRejected, protocol.ActionRejected{Type: a.Type, Reason: "throttled"})
			return nil, nil
		}
		// Peers may not speak for each other.
		a.Player, a.State = 0, nil
		return Action{Role: c.role, Action: a}, nil
	case protocol.MsgResetGame:
		return ResetGame{Role: c.role}, nil
	case protocol.MsgRematchRequest:
		return RematchRequest{Role: c.role}, nil
	case protocol.MsgMenuRequest:
		return MenuRequest{Role: c.role}, nil
	}
	return nil, fmt.Errorf("%w: %q", protocol.ErrUnknownType, env.T)
}

func (c *Client) join(word string) {
	if c.room != nil {
		return
	}
	word = strings.TrimSpace(word)
	if utf8.RuneCountInString(word) < MinWordLength {
		return
	}

	for attempt := 0; attempt < joinAttempts; attempt++ {
		room := c.mgr.GetOrCreateRoom(word)
		reply := make(chan JoinResult, 1)
		if !room.submit(Join{Conn: c.conn, Reply: reply}) {
			continue
		}
		select {
		case res := <-reply:
			if res.Role == game.NoPlayer {
				return
			}
			c.room, c.role = room, res.Role
			c.log = c.log.WithFields(log.Fields{"room": room.Code, "role": res.Role})
			return
		case <-room.quit:
		}
	}
	c.log.WithField("room", word).Warn("join failed")
	c.fail("could not join room")
}

// Disconnect leaves the joined room, if any.
func (c *Client) Disconnect() {
	if c.room == nil {
		return
	}
	c.room.submit(Leave{Role: c.role})
	c.room, c.role = nil, game.NoPlayer
}

func (c *Client) send(t string, payload any) {
	if err := c.conn.Send(t, payload); err != nil {
		c.log.WithError(err).Debug("send failed")
	}
}

func (c *Client) fail(msg string) {
	c.send(protocol.MsgError, protocol.Error{Message: msg})
}
