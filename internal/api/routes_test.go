package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/tidecast/mediapipe/internal/events"
)

func TestRegisterRoutesWiresJobsAndRulesAndWebSocket(t *testing.T) {
	r := gin.New()
	RegisterRoutes(r, newTestJobStore(t), newTestRuleStore(t), events.New())

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/rules", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// A plain (non-upgrade) GET reaches the WebSocket handler, which refuses
	// the handshake with 400; without the route it would fall through to
	// GET /api/jobs/:id and answer 404.
	req = httptest.NewRequest(http.MethodGet, "/api/jobs/ws", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterRoutesOmitsWebSocketWhenBusIsNil(t *testing.T) {
	r := gin.New()
	RegisterRoutes(r, newTestJobStore(t), newTestRuleStore(t), nil)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/ws", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
