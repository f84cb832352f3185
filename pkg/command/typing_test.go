package command

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMsPerChar(t *testing.T) {
	// 40-80 wpm averages 60 wpm = 300 chars/minute = 200ms per char.
	assert.InDelta(t, 200.0, msPerChar(40, 80), 0.001)

	// Missing bounds fall back to the defaults.
	assert.InDelta(t, msPerChar(DefaultWpmMin, DefaultWpmMax), msPerChar(0, 0), 0.001)
	assert.InDelta(t, msPerChar(40, DefaultWpmMax), msPerChar(40, 0), 0.001)
}

func TestCharDelayStaysWithinJitterBounds(t *testing.T) {
	p := newPacer(42)
	for i := 0; i < 1000; i++ {
		d := p.charDelay(200)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.Less(t, d, 300*time.Millisecond)
	}
}

func TestPreClickDelayStaysWithinBounds(t *testing.T) {
	p := newPacer(42)
	for i := 0; i < 1000; i++ {
		d := p.preClickDelay()
		assert.GreaterOrEqual(t, d, 50*time.Millisecond)
		assert.Less(t, d, 150*time.Millisecond)
	}
}

func TestTypoForDrawsAdjacentKey(t *testing.T) {
	p := newPacer(42)
	for i := 0; i < 100; i++ {
		typo := p.typoFor('g')
		assert.Contains(t, qwertyNeighbors['g'], typo)
	}
}

func TestTypoForUnknownRuneIsZero(t *testing.T) {
	p := newPacer(42)
	assert.Equal(t, rune(0), p.typoFor('7'))
	assert.Equal(t, rune(0), p.typoFor(' '))
	assert.Equal(t, rune(0), p.typoFor('G'))
}
