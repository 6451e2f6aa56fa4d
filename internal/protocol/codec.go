package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec turns envelopes into frames and back. A connection picks one codec
// for its lifetime.
type Codec interface {
	Name() string
	// Binary reports whether frames go out as binary WebSocket messages.
	Binary() bool
	Encode(t string, payload any) ([]byte, error)
	DecodeEnvelope(b []byte) (Envelope, error)
	Unmarshal(data []byte, v any) error
}

// ForName returns the codec registered under name. Empty means JSON.
func ForName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "msgpack":
		return Msgpack, nil
	}
	return nil, fmt.Errorf("unsupported codec %q", name)
}

// DecodePayload unmarshals the payload of env into a T.
func DecodePayload[T any](c Codec, env Envelope) (T, error) {
	var out T
	if len(env.P) == 0 {
		return out, fmt.Errorf("empty payload for type %q", env.T)
	}
	if err := c.Unmarshal(env.P, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", env.T, err)
	}
	return out, nil
}

var (
	JSON    Codec = jsonCodec{}
	Msgpack Codec = msgpackCodec{}
)

// JSON text frames: {"t": "...", "p": {...}}

type jsonEnvelope struct {
	T string          `json:"t"`
	P json.RawMessage `json:"p,omitempty"`
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }
func (jsonCodec) Binary() bool { return false }

func (jsonCodec) Encode(t string, payload any) ([]byte, error) {
	if t == "" {
		return nil, fmt.Errorf("trying to encode envelope without type")
	}
	env := jsonEnvelope{T: t}
	if payload != nil {
		pb, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.P = pb
	}
	return json.Marshal(env)
}

func (jsonCodec) DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, fmt.Errorf("empty frame")
	}
	var e jsonEnvelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, err
	}
	if e.T == "" {
		return Envelope{}, fmt.Errorf("frame without type")
	}
	return Envelope{T: e.T, P: e.P}, nil
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// MessagePack binary frames with the same {t, p} shape.

type msgpackEnvelope struct {
	T string             `msgpack:"t"`
	P msgpack.RawMessage `msgpack:"p,omitempty"`
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return "msgpack" }
func (msgpackCodec) Binary() bool { return true }

func (msgpackCodec) Encode(t string, payload any) ([]byte, error) {
	if t == "" {
		return nil, fmt.Errorf("trying to encode envelope without type")
	}
	env := msgpackEnvelope{T: t}
	if payload != nil {
		pb, err := msgpack.Marshal(payload)
		if err != nil {
			return nil, err
		}
		env.P = pb
	}
	return msgpack.Marshal(&env)
}

func (msgpackCodec) DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, fmt.Errorf("empty frame")
	}
	var e msgpackEnvelope
	if err := msgpack.Unmarshal(b, &e); err != nil {
		return Envelope{}, err
	}
	if e.T == "" {
		return Envelope{}, fmt.Errorf("frame without type")
	}
	return Envelope{T: e.T, P: e.P}, nil
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}
