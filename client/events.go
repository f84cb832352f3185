package client

import (
	"github.com/divyamohan1993/scry/pkg/backend"
	"github.com/divyamohan1993/scry/pkg/command"
	"github.com/divyamohan1993/scry/pkg/protocol"
)

// State is the signaling client's internal connection state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateAuthenticating
	StateNegotiating
	StateConnected
	StateDisconnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Status is the coarse externally visible connection state. The handshake
// sub-states are not exposed.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Coarse maps an internal state to its externally visible status.
func (s State) Coarse() Status {
	switch s {
	case StateConnecting, StateAuthenticating, StateNegotiating:
		return StatusConnecting
	case StateConnected:
		return StatusConnected
	default:
		return StatusDisconnected
	}
}

// Observer receives session events. Multiple observers can subscribe;
// callbacks run on the client's internal goroutines and must not block.
type Observer interface {
	// OnStateChange fires when the coarse status changes.
	OnStateChange(Status)

	// OnCommand fires for every inbound command envelope, before it is
	// enqueued for execution.
	OnCommand(protocol.Envelope)

	// OnExecuted fires after each execution attempt.
	OnExecuted(command.Result)

	// OnStatus fires with each successful status poll while connected.
	OnStatus(backend.Status)

	// OnError fires for surfaced transport, negotiation, auth, and
	// capture errors.
	OnError(error)
}

// ObserverFuncs adapts plain functions to the Observer interface. Nil
// fields are ignored.
type ObserverFuncs struct {
	StateChange func(Status)
	Command     func(protocol.Envelope)
	Executed    func(command.Result)
	StatusPoll  func(backend.Status)
	Error       func(error)
}

func (o ObserverFuncs) OnStateChange(s Status) {
	if o.StateChange != nil {
		o.StateChange(s)
	}
}

func (o ObserverFuncs) OnCommand(env protocol.Envelope) {
	if o.Command != nil {
		o.Command(env)
	}
}

func (o ObserverFuncs) OnExecuted(res command.Result) {
	if o.Executed != nil {
		o.Executed(res)
	}
}

func (o ObserverFuncs) OnStatus(st backend.Status) {
	if o.StatusPoll != nil {
		o.StatusPoll(st)
	}
}

func (o ObserverFuncs) OnError(err error) {
	if o.Error != nil {
		o.Error(err)
	}
}
