package api

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/tidecast/mediapipe/internal/events"
)

func newWSServer(bus *events.Bus) *httptest.Server {
	r := gin.New()
	h := NewJobEventsHandler(bus)
	r.GET("/api/jobs/ws", h.HandleWebSocket)
	return httptest.NewServer(r)
}

func dialJobEventsWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/jobs/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	return conn
}

func TestJobEventsWebSocketReceivesPublishedEvent(t *testing.T) {
	bus := events.New()
	srv := newWSServer(bus)
	defer srv.Close()

	conn := dialJobEventsWS(t, srv)
	defer conn.Close()

	require.Eventually(t, func() bool { return bus.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	bus.Publish(events.JobProgressEvent{JobID: "job-1", Status: "processing", Progress: 0.25})

	var got events.JobProgressEvent
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&got))
	require.Equal(t, "job-1", got.JobID)
	require.Equal(t, "processing", got.Status)
	require.Equal(t, 0.25, got.Progress)
}

func TestJobEventsWebSocketUnsubscribesOnDisconnect(t *testing.T) {
	bus := events.New()
	srv := newWSServer(bus)
	defer srv.Close()

	conn := dialJobEventsWS(t, srv)
	require.Eventually(t, func() bool { return bus.SubscriberCount() == 1 }, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return bus.SubscriberCount() == 0 }, time.Second, 10*time.Millisecond)
}
