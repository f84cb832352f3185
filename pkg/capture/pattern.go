package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

const (
	vp8PayloadType = 96
	videoClockRate = 90000
)

// PatternSource writes a synthetic VP8-shaped test pattern to a local video
// track at a fixed frame rate. It stands in for a native screen grabber so
// sessions negotiate and stream end to end without one; a real grabber
// implements Source the same way.
type PatternSource struct {
	track *webrtc.TrackLocalStaticRTP
	fps   int
	log   *logrus.Entry

	mu      sync.Mutex
	running bool
	stop    chan struct{}

	seq       uint16
	timestamp uint32
	frame     uint32
}

// NewPatternSource creates the source and its video track.
func NewPatternSource(fps int, logger *logrus.Logger) (*PatternSource, error) {
	if fps <= 0 {
		fps = 15
	}
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: videoClockRate,
		},
		"screen",
		fmt.Sprintf("scry-%s", uuid.NewString()[:8]),
	)
	if err != nil {
		return nil, fmt.Errorf("creating video track: %w", err)
	}
	return &PatternSource{
		track: track,
		fps:   fps,
		log:   logger.WithField("component", "capture"),
	}, nil
}

func (s *PatternSource) Tracks() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{s.track}
}

// Start launches the frame writer. Calling Start on a running source is a
// no-op.
func (s *PatternSource) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = true
	s.stop = make(chan struct{})
	stop := s.stop
	s.mu.Unlock()

	go s.writeLoop(ctx, stop)
	s.log.WithField("fps", s.fps).Info("test pattern capture started")
	return nil
}

func (s *PatternSource) writeLoop(ctx context.Context, stop chan struct{}) {
	interval := time.Second / time.Duration(s.fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := s.track.WriteRTP(s.nextPacket()); err != nil {
				s.log.WithError(err).Debug("frame write failed")
				return
			}
		}
	}
}

// nextPacket builds one RTP packet carrying a minimal VP8 payload. Every
// frame is a single packet with the marker bit set.
func (s *PatternSource) nextPacket() *rtp.Packet {
	s.frame++
	payload := vp8Frame(s.frame)
	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         true,
			PayloadType:    vp8PayloadType,
			SequenceNumber: s.seq,
			Timestamp:      s.timestamp,
		},
		Payload: payload,
	}
	s.seq++
	s.timestamp += uint32(videoClockRate / s.fps)
	return pkt
}

// vp8Frame produces a VP8 payload descriptor plus a tiny frame body. The
// pattern alternates so downstream decoders see changing bits; it is not a
// valid decodable stream, only a negotiable one.
func vp8Frame(n uint32) []byte {
	return []byte{
		0x10,                 // descriptor: start of partition
		byte(n), byte(n >> 8), // frame counter pattern
		0x9d, 0x01, 0x2a, // VP8 keyframe sync-code-like bytes
	}
}

// Stop halts the writer. Idempotent.
func (s *PatternSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	close(s.stop)
	s.log.Info("capture stopped")
	return nil
}
