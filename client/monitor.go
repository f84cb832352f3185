package client

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/divyamohan1993/scry/pkg/backend"
	"github.com/divyamohan1993/scry/pkg/protocol"
)

const (
	defaultPingInterval   = 30 * time.Second
	defaultStatusInterval = 2 * time.Second
)

// Monitor runs the liveness probe and the status poll as cancellable
// repeating tasks tied to one session. Stop cancels both synchronously; a
// probe or poll in flight may complete, but its result is discarded when
// the epoch has moved on.
type Monitor struct {
	pingInterval   time.Duration
	statusInterval time.Duration

	send   func(protocol.Envelope) error
	poll   func(ctx context.Context) (backend.Status, error)
	report func(backend.Status)
	log    *logrus.Entry

	mu     sync.Mutex
	epoch  uint64
	cancel context.CancelFunc
}

// NewMonitor creates a monitor. poll and report may be nil when no backend
// is configured; the liveness probe still runs.
func NewMonitor(pingInterval, statusInterval time.Duration,
	send func(protocol.Envelope) error,
	poll func(ctx context.Context) (backend.Status, error),
	report func(backend.Status),
	logger *logrus.Logger,
) *Monitor {
	if pingInterval <= 0 {
		pingInterval = defaultPingInterval
	}
	if statusInterval <= 0 {
		statusInterval = defaultStatusInterval
	}
	return &Monitor{
		pingInterval:   pingInterval,
		statusInterval: statusInterval,
		send:           send,
		poll:           poll,
		report:         report,
		log:            logger.WithField("component", "monitor"),
	}
}

// Start launches both loops. A second Start without an intervening Stop
// replaces the previous run.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
	}
	m.epoch++
	epoch := m.epoch
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	go m.pingLoop(ctx, epoch)
	if m.poll != nil {
		go m.pollLoop(ctx, epoch)
	}
}

// Stop cancels both loops. Safe to call repeatedly.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *Monitor) current(epoch uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.epoch == epoch
}

func (m *Monitor) pingLoop(ctx context.Context, epoch uint64) {
	ticker := time.NewTicker(m.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.current(epoch) {
				return
			}
			if err := m.send(protocol.Ping()); err != nil {
				m.log.WithError(err).Debug("keepalive send failed")
			}
		}
	}
}

func (m *Monitor) pollLoop(ctx context.Context, epoch uint64) {
	ticker := time.NewTicker(m.statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := m.poll(ctx)
			if err != nil {
				m.log.WithError(err).Debug("status poll failed")
				continue
			}
			// The session may have torn down while the poll was in
			// flight; stale results must not reach observers.
			if !m.current(epoch) {
				return
			}
			if m.report != nil {
				m.report(status)
			}
		}
	}
}
