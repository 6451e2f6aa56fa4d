package game

import (
	"fmt"
)

// ActionKind names an accepted engine mutation.
type ActionKind uint8

const (
	ActionMove ActionKind = iota
	ActionShoot
	ActionTimeout
)

func (k ActionKind) String() string {
	switch k {
	case ActionMove:
		return "move"
	case ActionShoot:
		return "shoot"
	case ActionTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

func (k ActionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ActionKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "move":
		*k = ActionMove
	case "shoot":
		*k = ActionShoot
	case "timeout":
		*k = ActionTimeout
	default:
		return fmt.Errorf("unknown action kind %q", b)
	}
	return nil
}

func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	parsed, ok := ParseDirection(string(b))
	if !ok {
		return fmt.Errorf("unknown direction %q", b)
	}
	*d = parsed
	return nil
}

// Action is one journaled engine call. R and C are used by moves, Dir by
// shots. Shots at a clicked tile are journaled by the direction they
// resolved to.
type Action struct {
	Kind ActionKind `json:"kind" msgpack:"kind"`
	R    int        `json:"r" msgpack:"r"`
	C    int        `json:"c" msgpack:"c"`
	Dir  Direction  `json:"dir,omitempty" msgpack:"dir,omitempty"`
}

func (a Action) String() string {
	switch a.Kind {
	case ActionMove:
		return fmt.Sprintf("move to %s", Position{R: a.R, C: a.C})
	case ActionShoot:
		return fmt.Sprintf("shoot %s", a.Dir)
	default:
		return a.Kind.String()
	}
}

// Apply dispatches a journaled action and reports whether it was accepted.
func (e *Engine) Apply(a Action) bool {
	switch a.Kind {
	case ActionMove:
		return e.Move(a.R, a.C)
	case ActionShoot:
		return e.Shoot(a.Dir).OK
	case ActionTimeout:
		return e.HandleTimeout()
	default:
		return false
	}
}

// Replay builds a fresh engine from cfg and applies actions in order. The
// error names the first action the engine refused.
func Replay(cfg Config, actions []Action) (*Engine, error) {
	e, err := New(cfg)
	if err != nil {
		return nil, err
	}
	for i, a := range actions {
		if !e.Apply(a) {
			return e, fmt.Errorf("%w: #%d (%s)", ErrActionRejected, i, a)
		}
	}
	return e, nil
}
