package client

import "errors"

// Error taxonomy. Transport errors leave the client in Disconnected and the
// caller may retry with Start; negotiation and auth errors end in Failed and
// are never retried internally.
var (
	// ErrTransport marks signaling socket failures.
	ErrTransport = errors.New("signaling transport error")

	// ErrNegotiation marks SDP or ICE application failures.
	ErrNegotiation = errors.New("negotiation error")

	// ErrAuth marks a server-reported error during the handshake.
	ErrAuth = errors.New("authentication error")

	// ErrCapture marks a missing or failed media source; no session is
	// created.
	ErrCapture = errors.New("capture error")
)
