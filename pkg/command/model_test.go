package command

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayload(t *testing.T) {
	raw := json.RawMessage(`{"type":"mouse_click","x":0.4,"y":0.6,"button":"right","move_first":true}`)
	p, err := ParsePayload(raw)
	require.NoError(t, err)
	assert.Equal(t, TypeMouseClick, p.Type)
	assert.Equal(t, 0.4, p.X)
	assert.Equal(t, "right", p.Button)
	assert.True(t, p.MoveFirst)
}

func TestParsePayloadComposite(t *testing.T) {
	raw := json.RawMessage(`{"type":"composite","delay_between_ms":250,"commands":[
		{"type":"mouse_move","x":0.1,"y":0.2},
		{"type":"type_text","text":"hello","wpm_min":30,"wpm_max":50}
	]}`)
	p, err := ParsePayload(raw)
	require.NoError(t, err)
	require.Len(t, p.Commands, 2)
	assert.Equal(t, TypeMouseMove, p.Commands[0].Type)
	assert.Equal(t, "hello", p.Commands[1].Text)
	assert.Equal(t, 250, p.DelayBetweenMs)
}

func TestParsePayloadRejectsMalformed(t *testing.T) {
	_, err := ParsePayload(json.RawMessage(`{"type":`))
	assert.Error(t, err)
}

func TestParsePayloadRejectsUnknownType(t *testing.T) {
	_, err := ParsePayload(json.RawMessage(`{"type":"drag"}`))
	assert.Error(t, err)
}
