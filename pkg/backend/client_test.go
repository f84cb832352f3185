package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestCheckAuthSendsSessionCookie(t *testing.T) {
	var gotCookie string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/check", r.URL.Path)
		if c, err := r.Cookie("scry_session"); err == nil {
			gotCookie = c.Value
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"authenticated":true,"email":"user@example.com"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, SessionCookie: "tok123"}, testLogger())
	info, err := c.CheckAuth(context.Background())
	require.NoError(t, err)
	assert.True(t, info.Authenticated)
	assert.Equal(t, "user@example.com", info.Email)
	assert.Equal(t, "tok123", gotCookie)
}

func TestStatusDecodesMetrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/control/status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"connected":true,"frames_processed":120,"command_count":7,"last_analysis":{"summary":"idle desktop"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, testLogger())
	status, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.Equal(t, 120, status.FramesProcessed)
	assert.Equal(t, 7, status.CommandCount)
	assert.JSONEq(t, `{"summary":"idle desktop"}`, string(status.LastAnalysis))
}

func TestStatusSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, testLogger())
	_, err := c.Status(context.Background())
	assert.ErrorContains(t, err, "401")
}

func TestNotifyDisconnectPosts(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, testLogger())
	require.NoError(t, c.NotifyDisconnect(context.Background()))
	assert.Equal(t, http.MethodPost, method)
	assert.Equal(t, "/rtc/disconnect", path)
}

func TestNotifyDisconnectUnreachableBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, testLogger())
	assert.Error(t, c.NotifyDisconnect(context.Background()))
}

func TestMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/me", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"authenticated":true,"email":"user@example.com"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, testLogger())
	info, err := c.Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", info.Email)
}

func TestLogout(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, testLogger())
	require.NoError(t, c.Logout(context.Background()))
	assert.Equal(t, "/auth/logout", path)
}
