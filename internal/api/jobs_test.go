package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tidecast/mediapipe/internal/database"
	"github.com/tidecast/mediapipe/internal/queue"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestJobStore(t *testing.T) *queue.Store {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "jobs.db"))
	require.NoError(t, err)
	return queue.New(db)
}

func newJobRouter(store *queue.Store) *gin.Engine {
	r := gin.New()
	h := NewJobHandlers(store)
	grp := r.Group("/api")
	grp.POST("/jobs", h.CreateJob)
	grp.GET("/jobs", h.ListJobs)
	grp.GET("/jobs/dead-letters", h.ListDeadLetters)
	grp.GET("/jobs/:id", h.GetJob)
	grp.POST("/jobs/:id/retry", h.RetryJob)
	return r
}

func TestCreateJobReturnsCreatedJobRecord(t *testing.T) {
	r := newJobRouter(newTestJobStore(t))

	body, _ := json.Marshal(map[string]interface{}{
		"file_path": "/media/movie.mkv",
		"file_name": "movie.mkv",
		"priority":  5,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var job database.Job
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
	assert.NotEmpty(t, job.ID)
	assert.Equal(t, "movie.mkv", job.FileName)
	assert.Equal(t, database.JobStatusQueued, job.Status)
}

func TestCreateJobRejectsMissingRequiredFields(t *testing.T) {
	r := newJobRouter(newTestJobStore(t))

	req := httptest.NewRequest(http.MethodPost, "/api/jobs", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetJobReturnsNotFoundForUnknownID(t *testing.T) {
	r := newJobRouter(newTestJobStore(t))

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/does-not-exist", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListJobsFiltersByStatus(t *testing.T) {
	store := newTestJobStore(t)
	r := newJobRouter(store)

	job, err := store.Create("/m/a.mkv", "a.mkv", "", 0)
	require.NoError(t, err)
	require.NoError(t, store.Complete(job.ID))
	_, err = store.Create("/m/b.mkv", "b.mkv", "", 0)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs?status=completed", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Jobs  []database.Job `json:"jobs"`
		Total int             `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "a.mkv", resp.Jobs[0].FileName)
}

func TestRetryJobRequeuesFailedJob(t *testing.T) {
	store := newTestJobStore(t)
	r := newJobRouter(store)

	job, err := store.Create("/m/a.mkv", "a.mkv", "", 0)
	require.NoError(t, err)
	require.NoError(t, store.Fail(job.ID, "boom"))

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/"+job.ID+"/retry", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	refreshed, err := store.Get(job.ID)
	require.NoError(t, err)
	assert.Equal(t, database.JobStatusQueued, refreshed.Status)
	assert.Equal(t, 1, refreshed.RetryCount)
}

func TestRetryJobReturnsBadRequestWhenRetriesExhausted(t *testing.T) {
	store := newTestJobStore(t)
	r := newJobRouter(store)

	job, err := store.Create("/m/a.mkv", "a.mkv", "", 0)
	require.NoError(t, err)
	require.NoError(t, store.Fail(job.ID, "boom"))
	for i := 0; i < job.MaxRetries; i++ {
		retried, err := store.Retry(job.ID)
		require.NoError(t, err)
		require.True(t, retried)
		require.NoError(t, store.Fail(job.ID, "boom again"))
	}

	req := httptest.NewRequest(http.MethodPost, "/api/jobs/"+job.ID+"/retry", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListDeadLettersReturnsExhaustedJobs(t *testing.T) {
	store := newTestJobStore(t)
	r := newJobRouter(store)

	job, err := store.Create("/m/a.mkv", "a.mkv", "", 0)
	require.NoError(t, err)
	require.NoError(t, store.Fail(job.ID, "boom"))
	for i := 0; i < job.MaxRetries; i++ {
		_, err := store.Retry(job.ID)
		require.NoError(t, err)
		require.NoError(t, store.Fail(job.ID, "boom again"))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/dead-letters", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Jobs  []database.Job `json:"jobs"`
		Total int             `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, job.ID, resp.Jobs[0].ID)
}
