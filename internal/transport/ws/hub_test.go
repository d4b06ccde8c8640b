package ws

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/model"
	"pulse/internal/observability"
	"pulse/internal/service"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestHub(t *testing.T) (*Hub, *observability.Metrics) {
	t.Helper()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	hub := NewHub(metrics, quietLogger())
	t.Cleanup(hub.Stop)
	return hub, metrics
}

func receive(t *testing.T, ch <-chan []byte) Message {
	t.Helper()
	select {
	case data, ok := <-ch:
		require.True(t, ok, "send channel closed")
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
	return Message{}
}

func TestHubBroadcastsToSurveySubscribers(t *testing.T) {
	hub, metrics := newTestHub(t)

	a := &Connection{SurveyID: "s1", Send: make(chan []byte, 4)}
	b := &Connection{SurveyID: "s1", Send: make(chan []byte, 4)}
	other := &Connection{SurveyID: "s2", Send: make(chan []byte, 4)}
	hub.Register(a)
	hub.Register(b)
	hub.Register(other)
	require.Eventually(t, func() bool { return testutil.ToFloat64(metrics.LiveSubscribers) == 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, hub.Subscribers("s1"))

	hub.BroadcastToSurvey("s1", service.MsgLiveSnapshot, map[string]int{"responseCount": 7})

	for _, conn := range []*Connection{a, b} {
		msg := receive(t, conn.Send)
		assert.Equal(t, MsgLiveSnapshot, msg.Type)
		assert.JSONEq(t, `{"responseCount":7}`, string(msg.Payload))
	}
	select {
	case <-other.Send:
		t.Fatal("other survey received a frame")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDropsFramesForSlowDashboards(t *testing.T) {
	hub, _ := newTestHub(t)

	slow := &Connection{SurveyID: "s1", Send: make(chan []byte, 1)}
	hub.Register(slow)
	require.Eventually(t, func() bool { return hub.Subscribers("s1") == 1 }, time.Second, 5*time.Millisecond)

	for i := 0; i < 5; i++ {
		hub.BroadcastToSurvey("s1", service.MsgLiveSnapshot, i)
	}
	msg := receive(t, slow.Send)
	assert.Equal(t, "0", string(msg.Payload))
}

func TestHubDisconnectSurveyDeliversQueuedFramesFirst(t *testing.T) {
	hub, metrics := newTestHub(t)

	conn := &Connection{SurveyID: "s1", Send: make(chan []byte, 4)}
	hub.Register(conn)
	require.Eventually(t, func() bool { return hub.Subscribers("s1") == 1 }, time.Second, 5*time.Millisecond)

	hub.BroadcastToSurvey("s1", service.MsgStatusChange, map[string]string{"status": "archived"})
	hub.DisconnectSurvey("s1")

	msg := receive(t, conn.Send)
	assert.Equal(t, MsgStatusChanged, msg.Type)
	select {
	case _, ok := <-conn.Send:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("connection not closed")
	}
	assert.Equal(t, 0, hub.Subscribers("s1"))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.LiveSubscribers))

	// A late unregister from the read pump is a no-op
	hub.Unregister(conn)
}

func TestHubStopClosesConnections(t *testing.T) {
	hub := NewHub(nil, quietLogger())

	conn := &Connection{SurveyID: "s1", Send: make(chan []byte, 1)}
	hub.Register(conn)
	hub.Stop()

	select {
	case _, ok := <-conn.Send:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("connection not closed on stop")
	}
	hub.BroadcastToSurvey("s1", service.MsgLiveSnapshot, nil)
	hub.Stop()
}

type fakeAuth struct{}

func (fakeAuth) ValidateToken(token string) (*model.Caller, error) {
	switch token {
	case "acme-admin":
		return &model.Caller{TenantID: "acme", UserID: "hr-1", Role: model.RoleAdmin}, nil
	case "globex-admin":
		return &model.Caller{TenantID: "globex", UserID: "gx-1", Role: model.RoleAdmin}, nil
	}
	return nil, errors.New("bad token")
}

type fakeLive struct{}

func (fakeLive) Live(ctx context.Context, caller *model.Caller, surveyID string, top int) (*model.LiveSnapshot, error) {
	if surveyID != "s1" {
		return nil, &service.Error{Kind: service.KindNotFound, Reason: service.ReasonSurveyNotFound}
	}
	if caller.TenantID != "acme" {
		return nil, &service.Error{Kind: service.KindAuthorization, Reason: service.ReasonWrongTenant}
	}
	return &model.LiveSnapshot{SurveyID: "s1", ResponseCount: 3, Status: model.SurveyActive}, nil
}

func newWSServer(t *testing.T, hub *Hub) *httptest.Server {
	t.Helper()
	r := mux.NewRouter()
	r.HandleFunc("/v1/ws/microsurveys/{id}/live", NewHandler(hub, fakeAuth{}, fakeLive{}, quietLogger()).LiveWS)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + path
}

func TestLiveWSStreamsSnapshots(t *testing.T) {
	hub, _ := newTestHub(t)
	srv := newWSServer(t, hub)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, "/v1/ws/microsurveys/s1/live?token=acme-admin"), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first Message
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, MsgLiveSnapshot, first.Type)
	var snap model.LiveSnapshot
	require.NoError(t, json.Unmarshal(first.Payload, &snap))
	assert.Equal(t, int64(3), snap.ResponseCount)

	require.Eventually(t, func() bool { return hub.Subscribers("s1") == 1 }, time.Second, 5*time.Millisecond)
	hub.BroadcastToSurvey("s1", service.MsgLiveSnapshot, model.LiveSnapshot{SurveyID: "s1", ResponseCount: 4})

	var next Message
	require.NoError(t, conn.ReadJSON(&next))
	require.NoError(t, json.Unmarshal(next.Payload, &snap))
	assert.Equal(t, int64(4), snap.ResponseCount)

	hub.DisconnectSurvey("s1")
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestLiveWSRejectsBeforeUpgrade(t *testing.T) {
	hub, _ := newTestHub(t)
	srv := newWSServer(t, hub)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"missing token", "/v1/ws/microsurveys/s1/live", http.StatusUnauthorized},
		{"bad token", "/v1/ws/microsurveys/s1/live?token=nope", http.StatusUnauthorized},
		{"other tenant", "/v1/ws/microsurveys/s1/live?token=globex-admin", http.StatusForbidden},
		{"unknown survey", "/v1/ws/microsurveys/s9/live?token=acme-admin", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, tt.path), nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
	assert.Equal(t, 0, hub.Subscribers("s1"))
}
