package protocol

import (
	"encoding/json"
	"fmt"
)

// Type discriminates signaling and control-channel messages.
type Type string

const (
	TypeAuth    Type = "auth"
	TypeAuthOK  Type = "auth_ok"
	TypeOffer   Type = "offer"
	TypeAnswer  Type = "answer"
	TypeIce     Type = "ice"
	TypeCommand Type = "command"
	TypeError   Type = "error"
	TypePing    Type = "ping"
	TypePong    Type = "pong"
)

// IceCandidate carries a trickled ICE candidate. The agent never interprets
// the fields, it only relays them between the signaling channel and the
// peer connection.
type IceCandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// Envelope is the wire format shared by the websocket signaling channel and
// the WebRTC control data channel. Exactly one message kind is populated,
// selected by Type.
type Envelope struct {
	Type Type `json:"type"`

	// auth
	Email string `json:"email,omitempty"`

	// auth_ok
	SessionID string `json:"session_id,omitempty"`

	// offer / answer
	SDP string `json:"sdp,omitempty"`

	// ice
	Candidate *IceCandidate `json:"candidate,omitempty"`

	// command
	Action     string          `json:"action,omitempty"`
	Command    json.RawMessage `json:"command,omitempty"`
	AnswerText string          `json:"answer_text,omitempty"`
	Question   string          `json:"question,omitempty"`

	// error
	Message string `json:"message,omitempty"`
}

// ErrUnknownType is returned by Decode for messages outside the closed set.
type ErrUnknownType struct {
	Type string
}

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("protocol: unknown message type %q", e.Type)
}

var knownTypes = map[Type]struct{}{
	TypeAuth:    {},
	TypeAuthOK:  {},
	TypeOffer:   {},
	TypeAnswer:  {},
	TypeIce:     {},
	TypeCommand: {},
	TypeError:   {},
	TypePing:    {},
	TypePong:    {},
}

// Decode parses a raw message and validates its type against the closed set.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("protocol: malformed message: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, &ErrUnknownType{Type: ""}
	}
	if _, ok := knownTypes[env.Type]; !ok {
		return Envelope{}, &ErrUnknownType{Type: string(env.Type)}
	}
	return env, nil
}

// Encode serializes an envelope for either transport leg.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("protocol: encoding %s message: %w", env.Type, err)
	}
	return data, nil
}

// Auth builds the client half of the authentication handshake.
func Auth(email string) Envelope {
	return Envelope{Type: TypeAuth, Email: email}
}

// Offer wraps a local SDP offer for relay to the backend.
func Offer(sdp string) Envelope {
	return Envelope{Type: TypeOffer, SDP: sdp}
}

// Ice wraps a locally discovered candidate for relay to the backend.
func Ice(c IceCandidate) Envelope {
	return Envelope{Type: TypeIce, Candidate: &c}
}

// Ping is the keepalive probe sent while connected.
func Ping() Envelope {
	return Envelope{Type: TypePing}
}
