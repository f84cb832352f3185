package capture

import (
	"context"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestPatternSourceTrack(t *testing.T) {
	s, err := NewPatternSource(15, testLogger())
	require.NoError(t, err)

	tracks := s.Tracks()
	require.Len(t, tracks, 1)
	assert.Equal(t, "screen", tracks[0].ID())

	static, ok := tracks[0].(*webrtc.TrackLocalStaticRTP)
	require.True(t, ok)
	assert.Equal(t, webrtc.MimeTypeVP8, static.Codec().MimeType)
}

func TestPatternSourceLifecycle(t *testing.T) {
	s, err := NewPatternSource(30, testLogger())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	require.NoError(t, s.Start(ctx)) // second start is a no-op

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop())
}

func TestPatternPacketsAdvance(t *testing.T) {
	s, err := NewPatternSource(15, testLogger())
	require.NoError(t, err)

	first := s.nextPacket()
	second := s.nextPacket()

	assert.True(t, first.Marker)
	assert.Equal(t, uint8(96), first.PayloadType)
	assert.Equal(t, first.SequenceNumber+1, second.SequenceNumber)
	assert.Equal(t, first.Timestamp+uint32(90000/15), second.Timestamp)
	assert.NotEqual(t, first.Payload, second.Payload)
}

func TestPatternSourceDefaultsFps(t *testing.T) {
	s, err := NewPatternSource(0, testLogger())
	require.NoError(t, err)
	assert.Equal(t, 15, s.fps)
}
