package actuator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestNormalizeKey(t *testing.T) {
	cases := map[string]string{
		"enter":   "enter",
		"return":  "enter",
		"Return":  "enter",
		"ESCAPE":  "esc",
		"tab":     "tab",
		"ctrl+a":  "ctrl+a",
		"unknown": "unknown",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeKey(in), "key %q", in)
	}
}

func TestRecorderCapturesActions(t *testing.T) {
	r := &Recorder{}
	ctx := context.Background()

	require.NoError(t, r.MoveMouse(ctx, 10, 20, 100*time.Millisecond))
	require.NoError(t, r.Click(ctx, 10, 20, "left"))
	require.NoError(t, r.TypeRune(ctx, 'x'))
	require.NoError(t, r.PressKey(ctx, "enter"))

	actions := r.Actions()
	require.Len(t, actions, 4)
	assert.Equal(t, KindMove, actions[0].Kind)
	assert.Equal(t, 100*time.Millisecond, actions[0].Duration)
	assert.Equal(t, KindClick, actions[1].Kind)
	assert.Equal(t, "left", actions[1].Button)
	assert.Equal(t, 'x', actions[2].Rune)
	assert.Equal(t, "enter", actions[3].Key)
	assert.False(t, actions[0].At.IsZero())
}

func TestRecorderFailureInjection(t *testing.T) {
	r := &Recorder{Fail: func(a Action) error {
		if a.Kind == KindClick {
			return fmt.Errorf("no clicking")
		}
		return nil
	}}
	ctx := context.Background()

	assert.Error(t, r.Click(ctx, 1, 1, "left"))
	assert.NoError(t, r.PressKey(ctx, "enter"))

	// Failed actions are not recorded.
	actions := r.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, KindKey, actions[0].Kind)
}

func TestLogActuatorAlwaysSucceeds(t *testing.T) {
	l := NewLog(quietLogger())
	ctx := context.Background()

	assert.NoError(t, l.MoveMouse(ctx, 0, 0, 0))
	assert.NoError(t, l.Click(ctx, 0, 0, "right"))
	assert.NoError(t, l.TypeRune(ctx, 'a'))
	assert.NoError(t, l.PressKey(ctx, "tab"))
}
