package actuator

import (
	"context"
	"sync"
	"time"
)

// ActionKind identifies a recorded action.
type ActionKind string

const (
	KindMove  ActionKind = "move"
	KindClick ActionKind = "click"
	KindRune  ActionKind = "rune"
	KindKey   ActionKind = "key"
)

// Action is one recorded actuation.
type Action struct {
	Kind     ActionKind
	X, Y     int
	Button   string
	Rune     rune
	Key      string
	Duration time.Duration
	At       time.Time
}

// Recorder captures actions instead of performing them. It backs the
// --dry-run mode and the executor tests.
type Recorder struct {
	mu      sync.Mutex
	actions []Action

	// Fail, when set, is consulted before recording; a non-nil return is
	// surfaced as the actuation error and the action is not recorded.
	Fail func(a Action) error
}

func (r *Recorder) record(a Action) error {
	a.At = time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Fail != nil {
		if err := r.Fail(a); err != nil {
			return err
		}
	}
	r.actions = append(r.actions, a)
	return nil
}

func (r *Recorder) MoveMouse(_ context.Context, x, y int, duration time.Duration) error {
	return r.record(Action{Kind: KindMove, X: x, Y: y, Duration: duration})
}

func (r *Recorder) Click(_ context.Context, x, y int, button string) error {
	return r.record(Action{Kind: KindClick, X: x, Y: y, Button: button})
}

func (r *Recorder) TypeRune(_ context.Context, c rune) error {
	return r.record(Action{Kind: KindRune, Rune: c})
}

func (r *Recorder) PressKey(_ context.Context, key string) error {
	return r.record(Action{Kind: KindKey, Key: key})
}

// Actions returns a copy of everything recorded so far.
func (r *Recorder) Actions() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Action, len(r.actions))
	copy(out, r.actions)
	return out
}
