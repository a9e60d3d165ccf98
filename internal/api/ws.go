package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/tidecast/mediapipe/internal/events"
	"github.com/tidecast/mediapipe/internal/logger"
)

// JobEventsHandler upgrades /api/jobs/ws connections and fans events.Bus
// updates out to them, grounded on the teacher's DashboardAPIHandlers
// WebSocket idiom: one upgrader, one goroutine per client reading (to
// detect disconnects) while a Subscribe channel drives the writes.
type JobEventsHandler struct {
	Bus      *events.Bus
	upgrader websocket.Upgrader
}

func NewJobEventsHandler(bus *events.Bus) *JobEventsHandler {
	return &JobEventsHandler{
		Bus: bus,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// HandleWebSocket handles GET /api/jobs/ws.
func (h *JobEventsHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to upgrade connection"})
		return
	}
	defer conn.Close()

	subID, ch := h.Bus.Subscribe()
	defer h.Bus.Unsubscribe(subID)

	// A reader goroutine detects client disconnects (this handler never
	// expects inbound messages beyond close frames/pings) and signals the
	// write loop below to stop.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := conn.WriteJSON(evt); err != nil {
				logger.Named("api.ws").Debug("write failed, dropping client", "error", err)
				return
			}
		}
	}
}
