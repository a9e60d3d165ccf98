package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidecast/mediapipe/internal/apperrors"
	"github.com/tidecast/mediapipe/internal/queue"
)

// JobHandlers exposes the admin surface onto the job queue (spec.md §4.G):
// create, fetch, retry, and list, following the teacher's
// transcodingmodule/api session handlers' shape (thin gin.Context binding,
// delegating all state to the backing store).
type JobHandlers struct {
	Store *queue.Store
}

func NewJobHandlers(store *queue.Store) *JobHandlers {
	return &JobHandlers{Store: store}
}

type createJobRequest struct {
	FilePath string `json:"file_path" binding:"required"`
	FileName string `json:"file_name" binding:"required"`
	Source   string `json:"source"`
	Priority int    `json:"priority"`
}

// CreateJob handles POST /api/jobs.
func (h *JobHandlers) CreateJob(c *gin.Context) {
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	job, err := h.Store.Create(req.FilePath, req.FileName, req.Source, req.Priority)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, job)
}

// GetJob handles GET /api/jobs/:id.
func (h *JobHandlers) GetJob(c *gin.Context) {
	job, err := h.Store.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// RetryJob handles POST /api/jobs/:id/retry.
func (h *JobHandlers) RetryJob(c *gin.Context) {
	retried, err := h.Store.Retry(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !retried {
		respondError(c, apperrors.Validation("retry_count", "job has exhausted its retry budget"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"retried": true})
}

// ListJobs handles GET /api/jobs, optionally filtered by ?status= and
// paginated by ?offset=&limit=.
func (h *JobHandlers) ListJobs(c *gin.Context) {
	status := c.Query("status")
	offset := queryInt(c, "offset", 0)
	limit := queryInt(c, "limit", 0)

	jobs, err := h.Store.List(statusOrEmpty(status), offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
}

// ListDeadLetters handles GET /api/jobs/dead-letters, the convenience query
// named in SPEC_FULL's supplemented-features section.
func (h *JobHandlers) ListDeadLetters(c *gin.Context) {
	offset := queryInt(c, "offset", 0)
	limit := queryInt(c, "limit", 0)

	jobs, err := h.Store.DeadLetters(offset, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
}
