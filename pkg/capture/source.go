package capture

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// Source produces the local media tracks for a session. Implementations
// own the underlying grabber; the session only attaches the tracks and
// controls the capture lifetime.
type Source interface {
	// Tracks returns the local tracks to attach to the peer connection.
	// An empty slice means capture is unavailable.
	Tracks() []webrtc.TrackLocal

	// Start begins producing media. It returns once production is
	// running; frames flow until Stop or context cancellation.
	Start(ctx context.Context) error

	// Stop halts production and releases the grabber. Idempotent.
	Stop() error
}
