package client

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/divyamohan1993/scry/pkg/actuator"
	"github.com/divyamohan1993/scry/pkg/backend"
	"github.com/divyamohan1993/scry/pkg/capture"
	"github.com/divyamohan1993/scry/pkg/command"
	"github.com/divyamohan1993/scry/pkg/protocol"
	"github.com/divyamohan1993/scry/signaltest"
)

type agentFixture struct {
	client   *Client
	recorder *actuator.Recorder
	server   *signaltest.Server
	wsURL    string
}

func newAgentFixture(t *testing.T) *agentFixture {
	t.Helper()

	srv := signaltest.New(quietLogger())
	web := httptest.NewServer(srv.Handler())
	t.Cleanup(web.Close)

	rec := &actuator.Recorder{}
	exec := command.New(command.Config{AutoExecute: true, Seed: 1}, rec, quietLogger())
	source, err := capture.NewPatternSource(5, quietLogger())
	require.NoError(t, err)

	wsURL := "ws" + strings.TrimPrefix(web.URL, "http")
	c := New(Config{
		ServerURL:      wsURL,
		Email:          "agent@example.com",
		PingInterval:   time.Hour,
		StatusInterval: time.Hour,
	}, source, exec, nil, quietLogger())
	t.Cleanup(func() { _ = c.Stop() })

	return &agentFixture{client: c, recorder: rec, server: srv, wsURL: wsURL}
}

func waitForState(t *testing.T, c *Client, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.State() == want
	}, 10*time.Second, 10*time.Millisecond, "state never reached %s, stuck at %s", want.String(), c.State().String())
}

func TestHandshakeReachesConnected(t *testing.T) {
	f := newAgentFixture(t)

	require.NoError(t, f.client.Start())
	waitForState(t, f.client, StateConnected)

	assert.Equal(t, "agent@example.com", f.server.Email())
	assert.NotEmpty(t, f.client.SessionID())
	assert.Equal(t, f.server.SessionID(), f.client.SessionID())

	sdp := f.server.OfferSDP()
	assert.Contains(t, sdp, "m=video")
	assert.Contains(t, sdp, "m=application")
}

func TestStartWhileRunningIsNoOp(t *testing.T) {
	f := newAgentFixture(t)

	require.NoError(t, f.client.Start())
	waitForState(t, f.client, StateConnected)

	require.NoError(t, f.client.Start())
	assert.Equal(t, StateConnected, f.client.State())
}

func TestCommandOverSignalingIsExecuted(t *testing.T) {
	f := newAgentFixture(t)

	require.NoError(t, f.client.Start())
	waitForState(t, f.client, StateConnected)

	payload, _ := json.Marshal(map[string]interface{}{"type": "key_press", "key": "enter"})
	require.NoError(t, f.server.Inject(protocol.Envelope{
		Type:    protocol.TypeCommand,
		Action:  "press",
		Command: payload,
	}))

	require.Eventually(t, func() bool {
		return len(f.recorder.Actions()) == 1
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "enter", f.recorder.Actions()[0].Key)
}

func TestCoarseStatusSequence(t *testing.T) {
	f := newAgentFixture(t)

	var mu sync.Mutex
	var seen []Status
	f.client.Subscribe(ObserverFuncs{
		StateChange: func(s Status) {
			mu.Lock()
			seen = append(seen, s)
			mu.Unlock()
		},
	})

	require.NoError(t, f.client.Start())
	waitForState(t, f.client, StateConnected)
	require.NoError(t, f.client.Stop())

	// The handshake sub-states collapse into one "connecting" report.
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Status{StatusConnecting, StatusConnected, StatusDisconnected}, seen)
}

func TestStopIsIdempotent(t *testing.T) {
	f := newAgentFixture(t)

	require.NoError(t, f.client.Start())
	waitForState(t, f.client, StateConnected)

	require.NoError(t, f.client.Stop())
	assert.Equal(t, StateDisconnected, f.client.State())
	require.NoError(t, f.client.Stop())
	assert.Equal(t, StateDisconnected, f.client.State())
}

func TestAuthRejectionFailsThenRetrySucceeds(t *testing.T) {
	f := newAgentFixture(t)
	f.server.RejectAuth = true

	errs := make(chan error, 8)
	f.client.Subscribe(ObserverFuncs{
		Error: func(err error) { errs <- err },
	})

	require.NoError(t, f.client.Start())
	waitForState(t, f.client, StateFailed)

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrAuth)
	case <-time.After(5 * time.Second):
		t.Fatal("auth error never surfaced")
	}

	// Failed is retryable.
	f.server.RejectAuth = false
	require.NoError(t, f.client.Start())
	waitForState(t, f.client, StateConnected)
}

func TestDialFailure(t *testing.T) {
	rec := &actuator.Recorder{}
	exec := command.New(command.Config{Seed: 1}, rec, quietLogger())
	source, err := capture.NewPatternSource(5, quietLogger())
	require.NoError(t, err)

	c := New(Config{
		ServerURL: "ws://127.0.0.1:1/signal",
		Email:     "agent@example.com",
	}, source, exec, nil, quietLogger())

	err = c.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, StateDisconnected, c.State())
}

func TestStopNotifiesBackendOnce(t *testing.T) {
	var mu sync.Mutex
	disconnects := 0
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && r.URL.Path == "/rtc/disconnect" {
			mu.Lock()
			disconnects++
			mu.Unlock()
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer api.Close()

	srv := signaltest.New(quietLogger())
	web := httptest.NewServer(srv.Handler())
	defer web.Close()

	rec := &actuator.Recorder{}
	exec := command.New(command.Config{Seed: 1}, rec, quietLogger())
	source, err := capture.NewPatternSource(5, quietLogger())
	require.NoError(t, err)
	be := backend.NewClient(backend.Config{BaseURL: api.URL}, quietLogger())

	c := New(Config{
		ServerURL:      "ws" + strings.TrimPrefix(web.URL, "http"),
		Email:          "agent@example.com",
		PingInterval:   time.Hour,
		StatusInterval: time.Hour,
	}, source, exec, be, quietLogger())

	require.NoError(t, c.Start())
	waitForState(t, c, StateConnected)

	require.NoError(t, c.Stop())
	require.NoError(t, c.Stop())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, disconnects)
}
