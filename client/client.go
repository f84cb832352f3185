package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/divyamohan1993/scry/pkg/backend"
	"github.com/divyamohan1993/scry/pkg/capture"
	"github.com/divyamohan1993/scry/pkg/command"
	"github.com/divyamohan1993/scry/pkg/protocol"
)

// Config holds the signaling client configuration.
type Config struct {
	// ServerURL is the websocket signaling endpoint.
	ServerURL string

	// Email identifies the caller during the auth handshake.
	Email string

	// ICEServers is the static STUN/TURN list supplied at startup.
	ICEServers []string

	// PingInterval and StatusInterval tune the keepalive/status monitor.
	PingInterval   time.Duration
	StatusInterval time.Duration
}

// Client is the top-level session state machine. It owns the signaling
// transport and drives the peer session, routing inbound commands to the
// executor and outbound SDP/ICE to the transport. One Client manages one
// session at a time; Start is re-entrant after Disconnected or Failed.
type Client struct {
	cfg     Config
	logger  *logrus.Logger
	log     *logrus.Entry
	source  capture.Source
	exec    *command.Executor
	backend *backend.Client
	monitor *Monitor

	mu         sync.Mutex
	state      State
	lastCoarse Status
	starting   bool
	stopped    bool
	sessionID  string
	conn       *websocket.Conn
	peer       *PeerSession
	runCtx     context.Context
	runCancel  context.CancelFunc

	writeMu sync.Mutex

	observerMu sync.Mutex
	observers  []Observer
}

// New creates a client. The backend client may be nil; status polling and
// the disconnect notice are skipped without one.
func New(cfg Config, source capture.Source, exec *command.Executor, be *backend.Client, logger *logrus.Logger) *Client {
	c := &Client{
		cfg:        cfg,
		logger:     logger,
		log:        logger.WithField("component", "signaling"),
		source:     source,
		exec:       exec,
		backend:    be,
		state:      StateIdle,
		lastCoarse: StatusDisconnected,
	}

	var poll func(ctx context.Context) (backend.Status, error)
	if be != nil {
		poll = be.Status
	}
	c.monitor = NewMonitor(cfg.PingInterval, cfg.StatusInterval, c.send, poll, c.notifyStatus, logger)

	exec.AddListener(func(res command.Result) {
		c.notifyExecuted(res)
	})
	return c
}

// Subscribe registers an observer for session events.
func (c *Client) Subscribe(o Observer) {
	c.observerMu.Lock()
	defer c.observerMu.Unlock()
	c.observers = append(c.observers, o)
}

func (c *Client) eachObserver(fn func(Observer)) {
	c.observerMu.Lock()
	observers := make([]Observer, len(c.observers))
	copy(observers, c.observers)
	c.observerMu.Unlock()
	for _, o := range observers {
		fn(o)
	}
}

func (c *Client) notifyError(err error) {
	c.log.WithError(err).Error("session error")
	c.eachObserver(func(o Observer) { o.OnError(err) })
}

func (c *Client) notifyCommand(env protocol.Envelope) {
	c.eachObserver(func(o Observer) { o.OnCommand(env) })
}

func (c *Client) notifyExecuted(res command.Result) {
	c.eachObserver(func(o Observer) { o.OnExecuted(res) })
}

func (c *Client) notifyStatus(st backend.Status) {
	c.eachObserver(func(o Observer) { o.OnStatus(st) })
}

// State returns the current internal state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SessionID returns the backend-assigned session identifier, empty before
// authentication completes.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// setState records the internal transition and reports the coarse status
// to observers when it changed.
func (c *Client) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	switch s {
	case StateConnected, StateDisconnected, StateFailed:
		c.starting = false
	}
	coarse := s.Coarse()
	changed := coarse != c.lastCoarse
	c.lastCoarse = coarse
	c.mu.Unlock()

	c.log.WithFields(logrus.Fields{"from": prev.String(), "to": s.String()}).Debug("state change")
	if changed {
		c.eachObserver(func(o Observer) { o.OnStateChange(coarse) })
	}
}

// Start opens the signaling transport and begins the handshake. It is only
// effective from Idle, Disconnected, or Failed; anywhere else the call is a
// guarded no-op so a session cannot be duplicated.
func (c *Client) Start() error {
	c.mu.Lock()
	switch c.state {
	case StateIdle, StateDisconnected, StateFailed:
	default:
		state := c.state
		c.mu.Unlock()
		c.log.WithField("state", state.String()).Debug("start ignored, session in flight")
		return nil
	}
	if c.starting {
		c.mu.Unlock()
		return nil
	}
	c.starting = true
	c.stopped = false
	c.sessionID = ""
	c.mu.Unlock()

	c.setState(StateConnecting)

	conn, _, err := websocket.DefaultDialer.Dial(c.cfg.ServerURL, nil)
	if err != nil {
		werr := fmt.Errorf("%w: dialing %s: %v", ErrTransport, c.cfg.ServerURL, err)
		c.setState(StateDisconnected)
		c.notifyError(werr)
		return werr
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.conn = conn
	c.runCtx = ctx
	c.runCancel = cancel
	c.mu.Unlock()

	c.setState(StateAuthenticating)
	if err := c.send(protocol.Auth(c.cfg.Email)); err != nil {
		werr := fmt.Errorf("%w: sending auth: %v", ErrTransport, err)
		c.cleanupResources()
		c.setState(StateDisconnected)
		c.notifyError(werr)
		return werr
	}

	go c.readLoop(conn)
	return nil
}

// Stop tears the session down: capture, control channel, peer transport,
// timers, then a best-effort disconnect notice. Idempotent; the state is
// Disconnected afterwards, every time.
func (c *Client) Stop() error {
	c.mu.Lock()
	alreadyStopped := c.stopped && c.state == StateDisconnected
	c.stopped = true
	c.mu.Unlock()
	if alreadyStopped {
		return nil
	}

	c.cleanupResources()

	if c.backend != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := c.backend.NotifyDisconnect(ctx); err != nil {
			c.log.WithError(err).Warn("disconnect notice failed")
		}
	}

	c.setState(StateDisconnected)
	return nil
}

// cleanupResources releases everything a session holds. Each step tolerates
// the previous steps having failed or never run.
func (c *Client) cleanupResources() {
	c.mu.Lock()
	peer := c.peer
	conn := c.conn
	cancel := c.runCancel
	c.peer = nil
	c.conn = nil
	c.runCancel = nil
	c.runCtx = nil
	c.mu.Unlock()

	if c.source != nil {
		if err := c.source.Stop(); err != nil {
			c.log.WithError(err).Warn("stopping capture")
		}
	}
	if peer != nil {
		if err := peer.Close(); err != nil {
			c.log.WithError(err).Warn("closing peer session")
		}
	}
	c.monitor.Stop()
	if cancel != nil {
		cancel()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Client) runContext() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.runCtx != nil {
		return c.runCtx
	}
	return context.Background()
}

func (c *Client) isStopped() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopped
}

// send writes an envelope to the signaling transport. A write mutex keeps
// concurrent senders (monitor, ICE callbacks, handshake) from interleaving
// frames.
func (c *Client) send(env protocol.Envelope) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: transport not open", ErrTransport)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(env)
}

func (c *Client) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleTransportClosed(err)
			return
		}
		env, derr := protocol.Decode(data)
		if derr != nil {
			c.log.WithError(derr).Warn("discarding unparseable message")
			continue
		}
		c.route(env)
	}
}

// route dispatches one inbound envelope. Both the signaling transport and
// the control data channel feed into it; the control surface is
// transport-agnostic.
func (c *Client) route(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeAuthOK:
		if c.State() != StateAuthenticating {
			c.log.WithField("state", c.State().String()).Warn("auth_ok outside handshake, ignored")
			return
		}
		c.mu.Lock()
		c.sessionID = env.SessionID
		c.mu.Unlock()
		c.log.WithField("session_id", env.SessionID).Info("authenticated")
		c.beginNegotiation()

	case protocol.TypeAnswer:
		if c.State() != StateNegotiating {
			c.log.Warn("answer outside negotiation, ignored")
			return
		}
		peer := c.peerRef()
		if peer == nil {
			return
		}
		if err := peer.ApplyAnswer(env.SDP); err != nil {
			c.failHandshake(err)
			return
		}
		c.setState(StateConnected)
		c.monitor.Start()

	case protocol.TypeIce:
		if env.Candidate == nil {
			return
		}
		switch c.State() {
		case StateNegotiating, StateConnected:
		default:
			c.log.Warn("ice candidate outside session, ignored")
			return
		}
		if peer := c.peerRef(); peer != nil {
			if err := peer.AddRemoteCandidate(*env.Candidate); err != nil {
				if c.State() == StateNegotiating {
					c.failHandshake(err)
					return
				}
				c.log.WithError(err).Warn("adding remote candidate")
			}
		}

	case protocol.TypeCommand:
		c.handleCommand(env)

	case protocol.TypeError:
		c.handleServerError(env.Message)

	case protocol.TypePong:
		c.log.Debug("pong")

	case protocol.TypePing:
		_ = c.send(protocol.Envelope{Type: protocol.TypePong})
	}
}

// handleCommand enqueues a command for execution. Commands are accepted in
// any state: the backend may push them out of band before the media session
// settles, and dropping them would desynchronize the queue ids.
func (c *Client) handleCommand(env protocol.Envelope) {
	c.notifyCommand(env)
	payload, err := command.ParsePayload(env.Command)
	if err != nil {
		c.log.WithError(err).WithField("action", env.Action).Warn("discarding malformed command")
		return
	}
	if _, err := c.exec.Enqueue(c.runContext(), payload); err != nil {
		c.log.WithError(err).Warn("enqueue rejected")
	}
}

func (c *Client) handleServerError(message string) {
	switch c.State() {
	case StateAuthenticating:
		c.failHandshake(fmt.Errorf("%w: %s", ErrAuth, message))
	case StateNegotiating:
		c.failHandshake(fmt.Errorf("%w: %s", ErrNegotiation, message))
	default:
		c.notifyError(fmt.Errorf("server error: %s", message))
	}
}

func (c *Client) peerRef() *PeerSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

// beginNegotiation builds the peer session, attaches capture, and sends the
// offer. Any failure here is fatal for the handshake.
func (c *Client) beginNegotiation() {
	c.setState(StateNegotiating)

	peer, err := NewPeerSession(c.cfg.ICEServers, PeerCallbacks{
		LocalCandidate: func(cand protocol.IceCandidate) {
			if err := c.send(protocol.Ice(cand)); err != nil {
				c.log.WithError(err).Warn("relaying local candidate")
			}
		},
		ConnectionChange: func(connected bool) {
			if !connected && c.State() == StateConnected && !c.isStopped() {
				c.transportLost(fmt.Errorf("%w: media transport lost", ErrTransport))
			}
		},
		Command: c.route,
	}, c.logger)
	if err != nil {
		c.failHandshake(fmt.Errorf("%w: %v", ErrNegotiation, err))
		return
	}

	c.mu.Lock()
	c.peer = peer
	c.mu.Unlock()

	tracks := c.source.Tracks()
	if len(tracks) == 0 {
		c.failHandshake(fmt.Errorf("%w: no capture source available", ErrCapture))
		return
	}
	if err := peer.AttachTracks(tracks); err != nil {
		c.failHandshake(fmt.Errorf("%w: %v", ErrCapture, err))
		return
	}

	sdp, err := peer.CreateOffer()
	if err != nil {
		c.failHandshake(err)
		return
	}

	if err := c.source.Start(c.runContext()); err != nil {
		c.failHandshake(fmt.Errorf("%w: %v", ErrCapture, err))
		return
	}

	if err := c.send(protocol.Offer(sdp)); err != nil {
		c.transportLost(fmt.Errorf("%w: sending offer: %v", ErrTransport, err))
		return
	}
	c.log.Info("offer sent")
}

// failHandshake ends an incomplete handshake in Failed. Not retried
// internally; the caller decides whether to Start again.
func (c *Client) failHandshake(err error) {
	c.notifyError(err)
	c.cleanupResources()
	c.setState(StateFailed)
}

// transportLost ends an established session in Disconnected, leaving it
// eligible for a retry via Start.
func (c *Client) transportLost(err error) {
	c.notifyError(err)
	c.cleanupResources()
	c.setState(StateDisconnected)
}

// handleTransportClosed reacts to the signaling socket closing. During the
// handshake that is fatal; on an established session it is a plain
// disconnect; during Stop it is expected and already handled.
func (c *Client) handleTransportClosed(err error) {
	if c.isStopped() {
		return
	}
	werr := fmt.Errorf("%w: %v", ErrTransport, err)
	switch c.State() {
	case StateAuthenticating, StateNegotiating:
		c.failHandshake(werr)
	case StateConnected, StateConnecting:
		c.transportLost(werr)
	}
}
