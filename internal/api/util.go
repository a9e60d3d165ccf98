package api

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/tidecast/mediapipe/internal/database"
)

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func statusOrEmpty(s string) database.JobStatus {
	if s == "" {
		return ""
	}
	return database.JobStatus(s)
}
