// Package signaltest provides an in-process signaling peer for exercising
// the agent end to end: it answers the websocket handshake, negotiates a
// real peer connection for the offered media, and can inject commands over
// either the signaling socket or the control data channel.
package signaltest

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"

	"github.com/divyamohan1993/scry/pkg/protocol"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is a single-session signaling counterpart. It is not the
// production backend; it exists so the client core can be driven without
// one.
type Server struct {
	log *logrus.Entry

	// RejectAuth makes the auth handshake answer with an error message
	// instead of auth_ok.
	RejectAuth bool

	mu         sync.Mutex
	conn       *websocket.Conn
	writeMu    sync.Mutex
	pc         *webrtc.PeerConnection
	control    *webrtc.DataChannel
	email      string
	sessionID  string
	offerSDP   string
	candidates []protocol.IceCandidate
}

// New creates a server. The logger may be nil.
func New(logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Server{log: logger.WithField("component", "signaltest")}
}

// Handler returns the websocket endpoint.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleWebSocket)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Error("websocket upgrade")
		return
	}
	defer conn.Close()

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	for {
		var env protocol.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			s.teardown(conn)
			return
		}

		switch env.Type {
		case protocol.TypeAuth:
			s.handleAuth(env)
		case protocol.TypeOffer:
			s.handleOffer(env)
		case protocol.TypeIce:
			s.handleCandidate(env)
		case protocol.TypePing:
			s.sendEnvelope(protocol.Envelope{Type: protocol.TypePong})
		default:
			s.log.WithField("type", env.Type).Debug("ignoring message")
		}
	}
}

func (s *Server) handleAuth(env protocol.Envelope) {
	if s.RejectAuth {
		s.sendEnvelope(protocol.Envelope{Type: protocol.TypeError, Message: "authentication rejected"})
		return
	}
	id := uuid.NewString()
	s.mu.Lock()
	s.email = env.Email
	s.sessionID = id
	s.mu.Unlock()
	s.sendEnvelope(protocol.Envelope{Type: protocol.TypeAuthOK, SessionID: id})
}

func (s *Server) handleOffer(env protocol.Envelope) {
	pc, err := s.newPeerConnection()
	if err != nil {
		s.log.WithError(err).Error("creating peer connection")
		s.sendEnvelope(protocol.Envelope{Type: protocol.TypeError, Message: "peer setup failed"})
		return
	}

	s.mu.Lock()
	s.pc = pc
	s.offerSDP = env.SDP
	s.mu.Unlock()

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: env.SDP}
	if err := pc.SetRemoteDescription(offer); err != nil {
		s.log.WithError(err).Error("applying offer")
		s.sendEnvelope(protocol.Envelope{Type: protocol.TypeError, Message: "bad offer"})
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		s.log.WithError(err).Error("creating answer")
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		s.log.WithError(err).Error("setting local description")
		return
	}

	s.sendEnvelope(protocol.Envelope{Type: protocol.TypeAnswer, SDP: answer.SDP})
}

func (s *Server) newPeerConnection() (*webrtc.PeerConnection, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeVP8,
			ClockRate: 90000,
		},
		PayloadType: 96,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, err
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))
	pc, err := api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, err
	}

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		s.sendEnvelope(protocol.Ice(protocol.IceCandidate{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		}))
	})

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		s.mu.Lock()
		s.control = dc
		s.mu.Unlock()
		s.log.WithField("label", dc.Label()).Debug("data channel open")
	})

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		// Drain inbound media so congestion control keeps running.
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := remote.Read(buf); err != nil {
					return
				}
			}
		}()
	})

	return pc, nil
}

func (s *Server) handleCandidate(env protocol.Envelope) {
	if env.Candidate == nil {
		return
	}
	s.mu.Lock()
	s.candidates = append(s.candidates, *env.Candidate)
	pc := s.pc
	s.mu.Unlock()
	if pc == nil {
		return
	}
	init := webrtc.ICECandidateInit{
		Candidate:     env.Candidate.Candidate,
		SDPMid:        env.Candidate.SDPMid,
		SDPMLineIndex: env.Candidate.SDPMLineIndex,
	}
	if err := pc.AddICECandidate(init); err != nil {
		s.log.WithError(err).Warn("adding candidate")
	}
}

func (s *Server) sendEnvelope(env protocol.Envelope) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := conn.WriteJSON(env); err != nil {
		s.log.WithError(err).Warn("writing message")
	}
}

// Inject sends an envelope to the connected agent over the signaling
// socket.
func (s *Server) Inject(env protocol.Envelope) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no agent connected")
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(env)
}

// InjectControl sends an envelope over the control data channel. It fails
// until the agent's channel has been announced.
func (s *Server) InjectControl(env protocol.Envelope) error {
	s.mu.Lock()
	dc := s.control
	s.mu.Unlock()
	if dc == nil {
		return fmt.Errorf("control channel not open")
	}
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	return dc.Send(data)
}

// Email returns the address presented during the auth handshake.
func (s *Server) Email() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.email
}

// SessionID returns the identifier issued on auth_ok.
func (s *Server) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// OfferSDP returns the SDP the agent offered, empty before negotiation.
func (s *Server) OfferSDP() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offerSDP
}

// Candidates returns the remote candidates received so far.
func (s *Server) Candidates() []protocol.IceCandidate {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]protocol.IceCandidate, len(s.candidates))
	copy(out, s.candidates)
	return out
}

// teardown releases session state, but only when it still belongs to the
// given connection; a reconnect may already have replaced it.
func (s *Server) teardown(conn *websocket.Conn) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	pc := s.pc
	s.pc = nil
	s.control = nil
	s.conn = nil
	s.mu.Unlock()
	if pc != nil {
		_ = pc.Close()
	}
}
