package command

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type enumerates the control instruction kinds the backend can emit.
type Type string

const (
	TypeMouseMove  Type = "mouse_move"
	TypeMouseClick Type = "mouse_click"
	TypeTypeText   Type = "type_text"
	TypeKeyPress   Type = "key_press"
	TypeComposite  Type = "composite"
)

// Defaults applied when the backend omits optional payload fields.
const (
	DefaultDurationMs     = 500
	DefaultWpmMin         = 40
	DefaultWpmMax         = 80
	DefaultInterStepDelay = 100 * time.Millisecond
)

// Payload is the wire form of a single instruction. Coordinates are
// normalized to [0,1]; the executor scales them to the configured screen
// size.
type Payload struct {
	Type Type `json:"type"`

	// mouse_move / mouse_click / type_text (click_first)
	X          float64 `json:"x,omitempty"`
	Y          float64 `json:"y,omitempty"`
	DurationMs int     `json:"duration_ms,omitempty"`
	HumanLike  bool    `json:"human_like,omitempty"`

	// mouse_click
	Button    string `json:"button,omitempty"`
	MoveFirst bool   `json:"move_first,omitempty"`

	// type_text
	Text         string `json:"text,omitempty"`
	WpmMin       int    `json:"wpm_min,omitempty"`
	WpmMax       int    `json:"wpm_max,omitempty"`
	MakeMistakes bool   `json:"make_mistakes,omitempty"`
	ClickFirst   bool   `json:"click_first,omitempty"`

	// key_press
	Key string `json:"key,omitempty"`

	// composite
	Commands       []Payload `json:"commands,omitempty"`
	DelayBetweenMs int       `json:"delay_between_ms,omitempty"`
}

// Validate rejects payloads the executor cannot act on. Composites may not
// nest.
func (p Payload) Validate() error {
	switch p.Type {
	case TypeMouseMove, TypeMouseClick, TypeTypeText, TypeKeyPress:
		return nil
	case TypeComposite:
		for i, sub := range p.Commands {
			if sub.Type == TypeComposite {
				return fmt.Errorf("command: composite step %d: nested composite not permitted", i)
			}
			if err := sub.Validate(); err != nil {
				return fmt.Errorf("command: composite step %d: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("command: unknown type %q", p.Type)
	}
}

// ParsePayload decodes and validates a raw payload from a command envelope.
func ParsePayload(raw json.RawMessage) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("command: malformed payload: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Payload{}, err
	}
	return p, nil
}

// Command is one queued instruction. Immutable after enqueue except for the
// executed flag, which flips false to true exactly once.
type Command struct {
	ID         uint64
	Payload    Payload
	Executed   bool
	ReceivedAt time.Time

	// tried records that an execution attempt completed. A command that
	// failed stays non-executed but is not retried; execution is
	// best-effort, not transactional.
	tried bool
}
