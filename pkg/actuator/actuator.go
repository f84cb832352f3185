package actuator

import (
	"context"
	"strings"
	"time"
)

// Actuator executes pointer and keyboard actions on the local machine.
// Implementations may be absent-by-design: the default build ships with the
// Log actuator only, and a native OS hook plugs in behind the same interface.
type Actuator interface {
	// MoveMouse moves the pointer to absolute screen coordinates over the
	// given duration.
	MoveMouse(ctx context.Context, x, y int, duration time.Duration) error

	// Click presses and releases the given button ("left", "right",
	// "middle") at absolute screen coordinates.
	Click(ctx context.Context, x, y int, button string) error

	// TypeRune emits a single character.
	TypeRune(ctx context.Context, r rune) error

	// PressKey emits a named key or key combination (e.g. "enter",
	// "ctrl+a").
	PressKey(ctx context.Context, key string) error
}

// keyAliases maps the key names the backend emits onto the canonical names
// a native hook expects.
var keyAliases = map[string]string{
	"enter":     "enter",
	"return":    "enter",
	"tab":       "tab",
	"backspace": "backspace",
	"delete":    "delete",
	"escape":    "esc",
	"space":     "space",
}

// NormalizeKey resolves backend key names to their canonical form. Unknown
// names pass through unchanged.
func NormalizeKey(key string) string {
	if mapped, ok := keyAliases[strings.ToLower(key)]; ok {
		return mapped
	}
	return key
}
