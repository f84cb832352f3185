package client

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/divyamohan1993/scry/pkg/protocol"
)

const controlChannelLabel = "control"

// PeerSession owns the media transport and the reliable control data
// channel for one session. It performs the offer side of negotiation and
// buffers remote ICE candidates until a remote description exists.
type PeerSession struct {
	log *logrus.Entry

	pc      *webrtc.PeerConnection
	control *webrtc.DataChannel

	mu         sync.Mutex
	trackCount int
	remoteSet  bool
	pending    []webrtc.ICECandidateInit
	lastStatus string
	closed     bool

	// onLocalCandidate relays locally discovered candidates to signaling.
	// Candidates are data, not liveness signals; they are never dropped.
	onLocalCandidate func(protocol.IceCandidate)

	// onConnectionChange reports the deduplicated coarse transport state.
	onConnectionChange func(connected bool)

	// onCommand routes control-channel command envelopes into the same
	// router as signaling-delivered ones.
	onCommand func(protocol.Envelope)
}

// PeerCallbacks wires a PeerSession's outbound events.
type PeerCallbacks struct {
	LocalCandidate   func(protocol.IceCandidate)
	ConnectionChange func(connected bool)
	Command          func(protocol.Envelope)
}

// NewPeerSession creates the peer connection with a VP8-capable media
// engine and the given STUN/TURN servers.
func NewPeerSession(iceServers []string, cb PeerCallbacks, logger *logrus.Logger) (*PeerSession, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
		},
		PayloadType: 96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("registering VP8 codec: %w", err)
	}

	servers := make([]webrtc.ICEServer, 0, len(iceServers))
	for _, url := range iceServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{url}})
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}

	ps := &PeerSession{
		log:                logger.WithField("component", "peer"),
		pc:                 pc,
		onLocalCandidate:   cb.LocalCandidate,
		onConnectionChange: cb.ConnectionChange,
		onCommand:          cb.Command,
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		if ps.onLocalCandidate != nil {
			ps.onLocalCandidate(protocol.IceCandidate{
				Candidate:     init.Candidate,
				SDPMid:        init.SDPMid,
				SDPMLineIndex: init.SDPMLineIndex,
			})
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		ps.log.WithField("state", state.String()).Debug("transport state change")
		switch state {
		case webrtc.PeerConnectionStateConnected:
			ps.forwardStatus("connected")
		case webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed:
			ps.forwardStatus("disconnected")
		}
	})

	return ps, nil
}

// forwardStatus deduplicates repeated identical transport states before
// reporting them upward.
func (ps *PeerSession) forwardStatus(status string) {
	ps.mu.Lock()
	if ps.lastStatus == status {
		ps.mu.Unlock()
		return
	}
	ps.lastStatus = status
	cb := ps.onConnectionChange
	ps.mu.Unlock()
	if cb != nil {
		cb(status == "connected")
	}
}

// AttachTracks adds locally captured media tracks. Must happen before
// CreateOffer.
func (ps *PeerSession) AttachTracks(tracks []webrtc.TrackLocal) error {
	for _, track := range tracks {
		sender, err := ps.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("adding track %s: %w", track.ID(), err)
		}
		// Drain RTCP so the interceptors keep running.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := sender.Read(buf); err != nil {
					return
				}
			}
		}()
		ps.mu.Lock()
		ps.trackCount++
		ps.mu.Unlock()
	}
	return nil
}

// CreateOffer opens the ordered reliable control channel, generates the SDP
// offer, and installs it as the local description. Fails when no local
// media tracks are attached.
func (ps *PeerSession) CreateOffer() (string, error) {
	ps.mu.Lock()
	attached := ps.trackCount
	ps.mu.Unlock()
	if attached == 0 {
		return "", fmt.Errorf("%w: no local media tracks attached", ErrCapture)
	}

	ordered := true
	dc, err := ps.pc.CreateDataChannel(controlChannelLabel, &webrtc.DataChannelInit{
		Ordered: &ordered,
	})
	if err != nil {
		return "", fmt.Errorf("%w: creating control channel: %v", ErrNegotiation, err)
	}
	ps.mu.Lock()
	ps.control = dc
	ps.mu.Unlock()

	dc.OnOpen(func() {
		ps.log.Debug("control channel open")
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		env, err := protocol.Decode(msg.Data)
		if err != nil {
			ps.log.WithError(err).Warn("bad control channel message")
			return
		}
		if env.Type == protocol.TypeCommand && ps.onCommand != nil {
			ps.onCommand(env)
		}
	})

	offer, err := ps.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("%w: creating offer: %v", ErrNegotiation, err)
	}
	if err := ps.pc.SetLocalDescription(offer); err != nil {
		return "", fmt.Errorf("%w: setting local description: %v", ErrNegotiation, err)
	}
	return offer.SDP, nil
}

// ApplyAnswer installs the remote description and flushes any buffered
// remote candidates in arrival order. Fails when the local description was
// never set; the caller must treat that as fatal for the handshake.
func (ps *PeerSession) ApplyAnswer(sdp string) error {
	if ps.pc.PendingLocalDescription() == nil && ps.pc.CurrentLocalDescription() == nil {
		return fmt.Errorf("%w: answer received before local offer", ErrNegotiation)
	}
	answer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  sdp,
	}
	if err := ps.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("%w: setting remote description: %v", ErrNegotiation, err)
	}

	ps.mu.Lock()
	ps.remoteSet = true
	buffered := ps.pending
	ps.pending = nil
	ps.mu.Unlock()

	for _, init := range buffered {
		if err := ps.pc.AddICECandidate(init); err != nil {
			ps.log.WithError(err).Warn("applying buffered candidate")
		}
	}
	return nil
}

// AddRemoteCandidate applies a candidate, or buffers it when no remote
// description exists yet.
func (ps *PeerSession) AddRemoteCandidate(c protocol.IceCandidate) error {
	init := webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	}
	ps.mu.Lock()
	if !ps.remoteSet {
		ps.pending = append(ps.pending, init)
		n := len(ps.pending)
		ps.mu.Unlock()
		ps.log.WithField("buffered", n).Debug("candidate buffered until remote description")
		return nil
	}
	ps.mu.Unlock()
	if err := ps.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("%w: adding candidate: %v", ErrNegotiation, err)
	}
	return nil
}

// BufferedCandidates reports how many remote candidates are waiting for a
// remote description.
func (ps *PeerSession) BufferedCandidates() int {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return len(ps.pending)
}

// SendControl transmits an envelope over the control channel.
func (ps *PeerSession) SendControl(env protocol.Envelope) error {
	ps.mu.Lock()
	dc := ps.control
	closed := ps.closed
	ps.mu.Unlock()
	if closed || dc == nil {
		return fmt.Errorf("control channel not open")
	}
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	return dc.Send(data)
}

// Close tears down the control channel and the peer connection. Idempotent
// and order-independent; closing already-closed resources is a no-op.
func (ps *PeerSession) Close() error {
	ps.mu.Lock()
	if ps.closed {
		ps.mu.Unlock()
		return nil
	}
	ps.closed = true
	dc := ps.control
	ps.mu.Unlock()

	if dc != nil {
		if err := dc.Close(); err != nil {
			ps.log.WithError(err).Debug("closing control channel")
		}
	}
	if err := ps.pc.Close(); err != nil {
		ps.log.WithError(err).Debug("closing peer connection")
	}
	return nil
}
